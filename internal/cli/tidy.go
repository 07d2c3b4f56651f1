package cli

import (
	"github.com/rileyhilliard/pb/internal/tidy"
	"github.com/rileyhilliard/pb/internal/util"
	"github.com/spf13/cobra"
)

func newTidyCmd(a *app, use string) *cobra.Command {
	var (
		out    string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: "Merge raw benchmark CSVs into one tidy CSV",
		Long: `Merge bench-<host>.csv files into a single CSV with columns
host,name,iterations,real_ns,cpu_ns.

The host comes from each file name (the part after the last '-').
Preamble lines before the CSV header are skipped, and the mean, median
and stddev aggregate rows are dropped. Rows are written in argument order,
then file order.

Examples:
  pb tidy -o all.csv out/bench-*.csv
  bench2tidy -o - out/bench-alpha.csv | column -ts,`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			if err := a.setup(cmd, false); err != nil {
				return err
			}
			defer a.close()

			stats, err := tidy.WriteFile(out, files, tidy.Options{Strict: strict, Log: a.log})
			if err != nil {
				return err
			}
			a.log.Info("Merged %d %s from %d %s into %s",
				stats.Rows, util.Pluralize(stats.Rows, "row", "rows"),
				stats.Files, util.Pluralize(stats.Files, "file", "files"), out)
			a.log.Debug("Skipped %d aggregate rows", stats.Aggregates)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "all.csv", "tidy CSV to write (- for stdout)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on rows without an ns time unit or files without a header")
	return cmd
}

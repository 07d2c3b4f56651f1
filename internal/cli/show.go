package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/pb/internal/collect"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/ui"
	"github.com/rileyhilliard/pb/internal/util"
	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [DIR]",
		Short: "Show the run recorded in an output directory",
		Long: `Print the run.yaml that pb run left in DIR: which executable ran,
with what command, and how each host went.

DIR defaults to 'out' from .pb.yaml.

Examples:
  pb show
  pb show results/2026-03-01`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, false); err != nil {
				return err
			}
			defer a.close()

			dir := a.cfg.Out
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, collect.ManifestFile)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return errors.WrapWithCode(err, errors.ErrIO,
					"No run recorded in "+dir,
					"Run 'pb run' first, or pass the output directory of an earlier run")
			}
			m, err := collect.ReadManifest(path)
			if err != nil {
				return err
			}
			renderManifest(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

// renderManifest prints m as:
//
//	Run 5f0c... finished 2 hours ago (1m3s)
//	  exe      bench_syscalls (1.2 MB, sha256 3a7bd3e2360a)
//	  command  ./bench --benchmark_repetitions=3
//	✓ alpha.lab  alpha  core 6 of 8  out/bench-alpha.csv  1.5s
//	✗ beta  Can't reach 'beta'  1s
func renderManifest(w io.Writer, m *collect.Manifest) {
	fmt.Fprintf(w, "Run %s finished %s (%s)\n", m.RunID, humanize.Time(m.Finished), m.Finished.Sub(m.Started))

	sum := m.Executable.SHA256
	if len(sum) > 12 {
		sum = sum[:12]
	}
	fmt.Fprintf(w, "  exe      %s (%s, sha256 %s)\n", m.Executable.Path, m.Executable.Human, sum)
	fmt.Fprintf(w, "  command  %s\n", util.ShellJoin(m.Command))

	for _, h := range m.Hosts {
		fmt.Fprintf(w, "%s %s  %s  core %d of %d  %s  %s\n",
			ui.SymbolSuccess, h.Host, h.Hostname, h.Core, h.Cores, h.File, h.Duration)
	}
	for _, f := range m.Failures {
		fmt.Fprintf(w, "%s %s  %s  %s\n", ui.SymbolFail, f.Host, f.Error, f.Duration)
	}
	fmt.Fprintf(w, "%d %s collected, %d failed\n",
		len(m.Hosts), util.Pluralize(len(m.Hosts), "host", "hosts"), len(m.Failures))
}

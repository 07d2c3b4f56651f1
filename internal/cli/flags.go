package cli

import (
	"github.com/rileyhilliard/pb/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// globalFlags are registered on every root command.
type globalFlags struct {
	ConfigPath string
	NoColor    bool
}

func addGlobalFlags(cmd *cobra.Command, g *globalFlags) {
	cmd.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "config file (default ./.pb.yaml, then ~/.config/pb/config.yaml)")
	cmd.PersistentFlags().BoolVar(&g.NoColor, "no-color", false, "disable colored log output")
	cmd.PersistentFlags().String("log-level", "info", "console log level: debug, info, warn, error")
}

// runFlags holds flags that only affect where and how the benchmark runs.
// Everything else goes straight into the viper-bound flag set.
type runFlags struct {
	InsecureIgnoreHostKey bool
	NoLock                bool
}

// addRunFlags registers the orchestrator flags on cmd. Flag names match the
// keys in config.Load's binding table.
func addRunFlags(cmd *cobra.Command, rf *runFlags) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.StringP("exe", "e", d.Exe, "benchmark executable to stage on each host")
	f.IntP("repetitions", "n", d.Repetitions, "benchmark repetitions")
	f.StringP("out", "o", d.Out, "output directory for hosts.csv and bench-<host>.csv")
	f.String("log", d.Log, "verbose log file")
	f.Int("max-parallel", d.MaxParallel, "maximum hosts running at once (0 = no limit)")
	f.Duration("connect-timeout", d.ConnectTimeout, "SSH connect timeout")
	f.Bool("manifest", d.Manifest, "write run.yaml into the output directory")
	f.BoolVar(&rf.InsecureIgnoreHostKey, "insecure-ignore-host-key", false, "skip known_hosts verification")
	f.BoolVar(&rf.NoLock, "no-lock", false, "don't take the per-host benchmark lock")
}

// loadConfig finds and loads the config file, then layers the changed
// flags from fs on top.
func loadConfig(explicit string, fs *pflag.FlagSet) (*config.Config, error) {
	path, err := config.Find(explicit)
	if err != nil {
		return nil, err
	}
	return config.Load(path, fs)
}

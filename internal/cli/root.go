package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rileyhilliard/pb/internal/config"
	"github.com/rileyhilliard/pb/internal/dispatch"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
	"github.com/rileyhilliard/pb/pkg/sshutil"
	"github.com/spf13/cobra"
)

// Exit codes returned by Execute.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitHostsFailed = 2
)

// app carries what every command needs once flags are parsed.
type app struct {
	global globalFlags
	stdout io.Writer
	stderr io.Writer

	cfg      *config.Config
	log      logger.Logger
	closeLog func() error

	// newTransport builds the host transport for a run.
	newTransport func(cfg *config.Config) (dispatch.Transport, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:       stdout,
		stderr:       stderr,
		log:          logger.Noop(),
		closeLog:     func() error { return nil },
		newTransport: sshTransport,
	}
}

// setup loads config for cmd and builds the process logger. The log file
// is only opened when logFile is set.
func (a *app) setup(cmd *cobra.Command, logFile bool) error {
	cfg, err := loadConfig(a.global.ConfigPath, cmd.Flags())
	if err != nil {
		return err
	}

	opts := logger.Options{
		Console:      a.stderr,
		ConsoleLevel: logger.ParseLevel(cfg.LogLevel),
	}
	if a.global.NoColor {
		off := false
		opts.Color = &off
	}
	if logFile {
		opts.File = cfg.Log
	}

	log, closeFn, err := logger.Setup(opts)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	a.closeLog = closeFn
	return nil
}

func (a *app) close() {
	if err := a.closeLog(); err != nil {
		fmt.Fprintf(a.stderr, "Couldn't close log file: %v\n", err)
	}
	a.closeLog = func() error { return nil }
}

func sshTransport(cfg *config.Config) (dispatch.Transport, error) {
	dialer, err := sshutil.NewDialer(cfg.ConnectTimeout, cfg.StrictHostKeyChecking)
	if err != nil {
		return nil, err
	}
	return dispatch.NewSSHTransport(dialer), nil
}

// NewRootCmd builds the pb command tree writing to the process streams.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp(os.Stdout, os.Stderr))
}

func newRootCmd(a *app) *cobra.Command {
	var rf runFlags
	root := &cobra.Command{
		Use:   "pb [HOST...]",
		Short: "Run a benchmark on many hosts and collect the results",
		Long: `pb stages a benchmark executable on each host over SSH, runs it pinned
to one CPU, and collects the raw CSV plus host facts into an output directory.

With hosts and no subcommand, pb behaves like "pb run".

Examples:
  pb alpha beta
  pb run -e ./bench_syscalls -n 5 -o results alpha bob@beta:2222
  pb tidy -o all.csv results/bench-*.csv`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, args, &rf)
		},
	}
	addGlobalFlags(root, &a.global)
	addRunFlags(root, &rf)

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newTidyCmd(a, "tidy FILE..."))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newUnlockCmd(a))
	root.AddCommand(newVersionCmd())
	root.AddCommand(newCompletionCmd())

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root
}

// NewTidyRootCmd builds the standalone bench2tidy command.
func NewTidyRootCmd() *cobra.Command {
	return newTidyRootCmd(newApp(os.Stdout, os.Stderr))
}

func newTidyRootCmd(a *app) *cobra.Command {
	cmd := newTidyCmd(a, "bench2tidy FILE...")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	addGlobalFlags(cmd, &a.global)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// Execute runs the pb command tree and exits with its code.
func Execute() {
	os.Exit(execute(NewRootCmd(), os.Args[1:], os.Stderr))
}

// ExecuteTidy runs bench2tidy and exits with its code.
func ExecuteTidy() {
	os.Exit(execute(NewTidyRootCmd(), os.Args[1:], os.Stderr))
}

// execute runs cmd with args and maps the outcome to an exit code,
// printing any error that hasn't already been reported.
func execute(cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return ExitOK
	}
	if code, ok := errors.GetExitCode(err); ok {
		return code
	}

	var pbErr *errors.Error
	if stderrors.As(err, &pbErr) {
		fmt.Fprint(stderr, pbErr.Error())
		return ExitError
	}
	fmt.Fprintf(stderr, "✗ %s\n", strings.TrimSpace(err.Error()))
	if isUsageError(err) {
		fmt.Fprintf(stderr, "\n  Run '%s --help' for usage.\n", cmd.Root().Name())
	}
	return ExitError
}

// isUsageError reports whether err came from cobra's argument or flag parsing.
func isUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "requires at least") ||
		strings.Contains(msg, "accepts ")
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/pb/internal/collect"
	"github.com/rileyhilliard/pb/internal/config"
	"github.com/rileyhilliard/pb/internal/dispatch"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/lock"
	"github.com/rileyhilliard/pb/internal/remote"
	"github.com/rileyhilliard/pb/internal/ui"
	"github.com/rileyhilliard/pb/internal/util"
	"github.com/rileyhilliard/pb/pkg/sshutil"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run [HOST...]",
		Short: "Run the benchmark on every host and collect results",
		Long: `Stage the benchmark executable on each host, run it pinned to one CPU,
and write hosts.csv plus bench-<hostname>.csv into the output directory.

Hosts run concurrently. A host that fails is reported and skipped; the
others are still collected, and pb exits 2.

Hosts come from the arguments, or from 'hosts' in .pb.yaml when none are given.

Examples:
  pb run alpha beta gamma
  pb run -n 10 --max-parallel 4 alpha beta
  pb run --exe ./build/bench_syscalls -o results bob@alpha:2222`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, args, &rf)
		},
	}
	addRunFlags(cmd, &rf)
	return cmd
}

// runCommand is the orchestrator: stage, run, collect, summarize.
func (a *app) runCommand(cmd *cobra.Command, hosts []string, rf *runFlags) error {
	if err := a.setup(cmd, true); err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if rf.InsecureIgnoreHostKey {
		cfg.StrictHostKeyChecking = false
	}
	if rf.NoLock {
		cfg.Lock.Enabled = false
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if len(hosts) == 0 {
		hosts = cfg.Hosts
	}
	if err := config.ValidateHosts(hosts); err != nil {
		return err
	}

	payload, err := os.ReadFile(cfg.Exe)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrIO,
			fmt.Sprintf("Couldn't read benchmark executable %s", cfg.Exe),
			"Build it first, or point --exe at it")
	}

	transport, err := a.newTransport(cfg)
	if err != nil {
		return err
	}
	defer sshutil.CloseAgent()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := remote.Job{
		Payload:    payload,
		Command:    cfg.BenchCommand(),
		ResultFile: cfg.Bench.ResultFile,
	}
	a.log.Debug("Config: exe=%s reps=%d out=%s max_parallel=%d strict_host_keys=%t",
		cfg.Exe, cfg.Repetitions, cfg.Out, cfg.MaxParallel, cfg.StrictHostKeyChecking)

	display := ui.NewPhaseDisplay(a.stdout)
	display.RenderProgress(fmt.Sprintf("Running %s (%s) on %d %s",
		filepath.Base(cfg.Exe), humanize.Bytes(uint64(len(payload))),
		len(hosts), util.Pluralize(len(hosts), "host", "hosts")))

	started := time.Now()
	summary, err := a.collect(ctx, transport, hosts, job, display)
	if err != nil {
		return err
	}
	finished := time.Now()

	display.Divider()
	rs := runSummary(summary, cfg.Out, finished.Sub(started))
	a.log.Info("Run finished in %s: succeeded %s; failed %s",
		finished.Sub(started).Round(time.Millisecond), util.JoinOrNone(rs.Succeeded), util.JoinOrNone(rs.Failed))
	ui.RenderRunSummary(a.stdout, rs)

	if cfg.Manifest {
		m := collect.NewManifest(started, finished, collect.DescribeExecutable(cfg.Exe, payload), job.Command, summary)
		path := filepath.Join(cfg.Out, collect.ManifestFile)
		if err := collect.WriteManifest(path, m); err != nil {
			return err
		}
		a.log.Debug("Wrote %s (run %s)", path, m.RunID)
	}

	if ctx.Err() != nil {
		a.log.Warn("Interrupted; benchmarks already started may still be running on their hosts")
	}
	if !summary.OK() {
		return errors.NewExitError(ExitHostsFailed)
	}
	return nil
}

// collect fans the job out over transport and writes completions as they land.
func (a *app) collect(ctx context.Context, transport dispatch.Transport, hosts []string, job remote.Job, reporter collect.Reporter) (*collect.Summary, error) {
	d := dispatch.New(transport, dispatch.Options{MaxParallel: a.cfg.MaxParallel}, a.log)
	stream := d.Submit(ctx, hosts, func(ctx context.Context, client sshutil.SSHClient) (*remote.Result, error) {
		runner := remote.NewRunner(client, a.log)
		if a.cfg.Lock.Enabled {
			runner.WithLock(lock.Options{
				Dir:     a.cfg.Lock.Dir,
				Timeout: a.cfg.Lock.Timeout,
				Stale:   a.cfg.Lock.Stale,
				Command: "pb run " + filepath.Base(a.cfg.Exe),
			})
		}
		return runner.Run(ctx, job)
	})
	return collect.New(a.cfg.Out, a.log, reporter).Collect(stream)
}

func runSummary(s *collect.Summary, outDir string, d time.Duration) ui.RunSummary {
	rs := ui.RunSummary{OutDir: outDir, Duration: d}
	for _, h := range s.Succeeded {
		rs.Succeeded = append(rs.Succeeded, h.Hostname)
	}
	for _, f := range s.Failed {
		rs.Failed = append(rs.Failed, f.Host)
	}
	return rs
}

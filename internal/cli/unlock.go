package cli

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/pb/internal/config"
	"github.com/rileyhilliard/pb/internal/dispatch"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/lock"
	"github.com/rileyhilliard/pb/internal/ui"
	"github.com/rileyhilliard/pb/internal/util"
	"github.com/rileyhilliard/pb/pkg/sshutil"
	"github.com/spf13/cobra"
)

func newUnlockCmd(a *app) *cobra.Command {
	var insecure bool
	cmd := &cobra.Command{
		Use:   "unlock [HOST...]",
		Short: "Remove the benchmark lock from hosts",
		Long: `Remove pb-bench.lock from each host, whoever holds it.

Use this when a run was killed before it could release its lock. A lock
held by a run that is still going is removed too, so check first.

Hosts come from the arguments, or from 'hosts' in .pb.yaml when none are given.

Examples:
  pb unlock alpha
  pb unlock --config lab.yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, hosts []string) error {
			return a.unlockCommand(cmd, hosts, insecure)
		},
	}
	cmd.Flags().Duration("connect-timeout", config.DefaultConfig().ConnectTimeout, "SSH connect timeout")
	cmd.Flags().BoolVar(&insecure, "insecure-ignore-host-key", false, "skip known_hosts verification")
	return cmd
}

func (a *app) unlockCommand(cmd *cobra.Command, hosts []string, insecure bool) error {
	if err := a.setup(cmd, false); err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if insecure {
		cfg.StrictHostKeyChecking = false
	}
	if len(hosts) == 0 {
		hosts = cfg.Hosts
	}
	if err := config.ValidateHosts(hosts); err != nil {
		return err
	}

	transport, err := a.newTransport(cfg)
	if err != nil {
		return err
	}
	defer sshutil.CloseAgent()

	out := cmd.OutOrStdout()
	opts := lock.Options{Dir: cfg.Lock.Dir}
	failed := 0
	for _, host := range hosts {
		holder, held, err := unlockHost(cmd.Context(), transport, host, opts)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(out, "%s %s: %s\n", ui.SymbolFail, host, errors.Summary(err))
		case !held:
			fmt.Fprintf(out, "%s %s: no lock held\n", ui.SymbolPending, host)
		case holder == "unknown":
			fmt.Fprintf(out, "%s %s: lock released\n", ui.SymbolSuccess, host)
		default:
			fmt.Fprintf(out, "%s %s: lock released (was held by %s)\n", ui.SymbolSuccess, host, holder)
		}
	}

	if failed > 0 {
		return errors.New(errors.ErrLock,
			fmt.Sprintf("Couldn't unlock %d %s", failed, util.Pluralize(failed, "host", "hosts")),
			"Check the SSH connection and try again")
	}
	return nil
}

func unlockHost(ctx context.Context, transport dispatch.Transport, host string, opts lock.Options) (string, bool, error) {
	client, err := transport.Connect(ctx, host)
	if err != nil {
		if !errors.IsCode(err, errors.ErrSSH) {
			err = errors.Wrap(err, "Couldn't connect to "+host)
		}
		return "", false, err
	}
	defer client.Close()
	return lock.ForceRelease(client, opts)
}

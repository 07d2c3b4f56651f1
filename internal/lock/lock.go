// Package lock keeps two benchmark runs off the same host at once.
//
// The lock is a directory on the remote host: mkdir is atomic, so whoever
// creates it holds the lock. An info.json inside names the holder.
package lock

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
	"github.com/rileyhilliard/pb/internal/util"
	"github.com/rileyhilliard/pb/pkg/sshutil"
)

const (
	// DirName is the lock directory created under Options.Dir.
	DirName = "pb-bench.lock"
	// InfoFile is the holder record inside the lock directory.
	InfoFile = "info.json"

	defaultDir  = "/tmp"
	defaultPoll = 2 * time.Second
)

// Options controls how a lock is taken.
type Options struct {
	Dir     string        // Parent directory on the host. Empty means /tmp.
	Timeout time.Duration // How long to wait for another holder. 0 gives up at once.
	Stale   time.Duration // Holders older than this are removed. 0 never expires.
	Poll    time.Duration // Delay between attempts. 0 means 2s.
	Command string        // Recorded in the info file
}

// Lock is a held benchmark lock on one host.
type Lock struct {
	Dir    string // Lock directory on the host
	Info   *Info  // Our holder record
	client sshutil.SSHClient
}

// Path returns the lock directory Acquire uses for opts.
func Path(opts Options) string {
	dir := opts.Dir
	if dir == "" {
		dir = defaultDir
	}
	return path.Join(dir, DirName)
}

// Acquire takes the benchmark lock on client's host, waiting up to
// opts.Timeout while another run holds it. A holder older than opts.Stale
// is removed and the attempt retried.
func Acquire(ctx context.Context, client sshutil.SSHClient, opts Options, log logger.Logger) (*Lock, error) {
	if log == nil {
		log = logger.Noop()
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPoll
	}

	host := client.GetHost()
	lockDir := Path(opts)
	infoFile := path.Join(lockDir, InfoFile)
	info := NewInfo(opts.Command)
	deadline := time.Now().Add(opts.Timeout)
	waiting := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, _, code, err := client.Exec("mkdir " + util.ShellQuote(lockDir))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Lost the connection to %s while taking the lock", host),
				"Check the host is still reachable")
		}
		if code == 0 {
			if err := writeInfo(client, infoFile, info); err != nil {
				_ = forceRemove(client, lockDir)
				return nil, err
			}
			return &Lock{Dir: lockDir, Info: info, client: client}, nil
		}

		holder, age := readHolder(client, infoFile)
		if opts.Stale > 0 && age > opts.Stale {
			log.Warn("%s: removing stale lock held by %s for %s", host, holder, age.Round(time.Second))
			if err := forceRemove(client, lockDir); err == nil {
				continue
			}
		}

		if !time.Now().Before(deadline) {
			return nil, errors.WrapWithCode(ErrLocked, errors.ErrLock,
				fmt.Sprintf("%s is busy: another run holds %s", host, lockDir),
				fmt.Sprintf("Held by %s. Wait for it to finish, or remove %s if that run is gone.", holder, lockDir))
		}
		if !waiting {
			log.Info("%s: waiting for the benchmark lock held by %s", host, holder)
			waiting = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(poll, time.Until(deadline))):
		}
	}
}

// Release removes the lock so the next run can take it.
func (l *Lock) Release() error {
	if l == nil || l.client == nil {
		return nil
	}
	return forceRemove(l.client, l.Dir)
}

// ForceRelease removes the lock on client's host whoever holds it, and
// returns the holder it removed. held is false when there was no lock.
func ForceRelease(client sshutil.SSHClient, opts Options) (holder string, held bool, err error) {
	lockDir := Path(opts)
	_, _, code, err := client.Exec("test -d " + util.ShellQuote(lockDir))
	if err != nil {
		return "", false, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Lost the connection to %s while checking the lock", client.GetHost()),
			"Check the host is still reachable")
	}
	if code != 0 {
		return "", false, nil
	}
	holder, _ = readHolder(client, path.Join(lockDir, InfoFile))
	return holder, true, forceRemove(client, lockDir)
}

func writeInfo(client sshutil.SSHClient, infoFile string, info *Info) error {
	data, err := info.Marshal()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLock, "Couldn't encode lock info", "")
	}
	_, stderr, code, err := client.ExecInput("cat > "+util.ShellQuote(infoFile), bytes.NewReader(data))
	if err != nil || code != 0 {
		return errors.WrapWithCode(err, errors.ErrLock,
			fmt.Sprintf("Couldn't write %s on %s: %s", infoFile, client.GetHost(), strings.TrimSpace(string(stderr))),
			"Check disk space and permissions on the host")
	}
	return nil
}

// readHolder returns a description of the holder and how long it has held
// the lock. An unreadable record gives "unknown" and age 0, which is never stale.
func readHolder(client sshutil.SSHClient, infoFile string) (string, time.Duration) {
	stdout, _, code, err := client.Exec("cat " + util.ShellQuote(infoFile))
	if err != nil || code != 0 {
		return "unknown", 0
	}
	info, err := ParseInfo(stdout)
	if err != nil {
		if raw := strings.TrimSpace(string(stdout)); raw != "" {
			return raw, 0
		}
		return "unknown", 0
	}
	return info.String(), info.Age()
}

func forceRemove(client sshutil.SSHClient, dir string) error {
	_, stderr, code, err := client.Exec("rm -rf " + util.ShellQuote(dir))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't remove lock %s", dir),
			"Check the SSH connection")
	}
	if code != 0 {
		return errors.New(errors.ErrLock,
			fmt.Sprintf("Couldn't remove lock %s", dir),
			strings.TrimSpace(string(stderr)))
	}
	return nil
}

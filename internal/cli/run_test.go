package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rileyhilliard/pb/internal/collect"
	"github.com/rileyhilliard/pb/internal/config"
	"github.com/rileyhilliard/pb/internal/dispatch"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/pkg/sshutil"
	sshtest "github.com/rileyhilliard/pb/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawCSV = `Running ./bench
name,iterations,real_time,cpu_time,time_unit,bytes_per_second,items_per_second,label,error_occurred,error_message
"BM_getpid",1000,12.3,4.5,ns,,,,,
"BM_getpid_mean",1,12.3,4.5,ns,,,,,
`

// mockTransport hands out a fresh MockClient per host, set up to run a
// benchmark that writes rawCSV.
type mockTransport struct {
	mu      sync.Mutex
	fail    map[string]error
	clients map[string]*sshtest.MockClient
}

func newMockTransport() *mockTransport {
	return &mockTransport{fail: map[string]error{}, clients: map[string]*sshtest.MockClient{}}
}

func (m *mockTransport) Connect(_ context.Context, host string) (sshutil.SSHClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[host]; err != nil {
		return nil, err
	}
	client := sshtest.NewMockClient(host)
	sshtest.WithHostFacts(client, "quiet isolcpus=6", "Intel(R) Xeon(R) Gold 6230")
	sshtest.WithBenchmark(client, "out.csv", rawCSV)
	m.clients[host] = client
	return client, nil
}

type cliEnv struct {
	dir    string
	exe    string
	out    string
	log    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	app    *app

	transport *mockTransport
	gotCfg    *config.Config
}

// newCLIEnv isolates a test from any real config and SSH setup.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	testChdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	exe := filepath.Join(dir, "bench_syscalls")
	require.NoError(t, os.WriteFile(exe, []byte("\x7fELF fake benchmark"), 0o755))

	e := &cliEnv{
		dir:       dir,
		exe:       exe,
		out:       filepath.Join(dir, "results"),
		log:       filepath.Join(dir, "pb.log"),
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
		transport: newMockTransport(),
	}
	e.app = newApp(e.stdout, e.stderr)
	e.app.newTransport = func(cfg *config.Config) (dispatch.Transport, error) {
		e.gotCfg = cfg
		return e.transport, nil
	}
	return e
}

func (e *cliEnv) run(args ...string) int {
	return execute(newRootCmd(e.app), args, e.stderr)
}

func (e *cliEnv) runArgs(hosts ...string) []string {
	return append([]string{"run", "--exe", e.exe, "-o", e.out, "--log", e.log, "--no-color"}, hosts...)
}

func TestRun_AllHostsSucceed(t *testing.T) {
	e := newCLIEnv(t)

	code := e.run(e.runArgs("alpha", "beta")...)
	require.Equal(t, ExitOK, code, e.stderr.String())

	hosts, err := os.ReadFile(filepath.Join(e.out, collect.HostsFile))
	require.NoError(t, err)
	assert.Contains(t, string(hosts), collect.HostsHeader+"\n")
	assert.Contains(t, string(hosts), `alpha,Intel(R) Xeon(R) Gold 6230,"quiet isolcpus=6"`)
	assert.Contains(t, string(hosts), `beta,Intel(R) Xeon(R) Gold 6230,"quiet isolcpus=6"`)

	raw, err := os.ReadFile(filepath.Join(e.out, "bench-alpha.csv"))
	require.NoError(t, err)
	assert.Equal(t, rawCSV, string(raw))

	m, err := collect.ReadManifest(filepath.Join(e.out, collect.ManifestFile))
	require.NoError(t, err)
	assert.Len(t, m.Hosts, 2)
	assert.Equal(t, []string{"./bench", "--benchmark_out_format=csv", "--benchmark_out=out.csv", "--benchmark_repetitions=3"}, m.Command)

	assert.Contains(t, e.stdout.String(), "2 hosts collected")
	assert.FileExists(t, e.log)
	assert.True(t, e.transport.clients["alpha"].IsClosed())
}

func TestRun_DefaultCommand(t *testing.T) {
	e := newCLIEnv(t)

	code := e.run("--exe", e.exe, "-o", e.out, "--log", e.log, "alpha")
	require.Equal(t, ExitOK, code, e.stderr.String())
	assert.FileExists(t, filepath.Join(e.out, "bench-alpha.csv"))
}

func TestRun_RepetitionsReachTheHost(t *testing.T) {
	e := newCLIEnv(t)

	code := e.run(append(e.runArgs("alpha"), "-n", "7")...)
	require.Equal(t, ExitOK, code, e.stderr.String())

	var benchCmd string
	for _, c := range e.transport.clients["alpha"].Commands() {
		if bytes.Contains([]byte(c), []byte("taskset")) {
			benchCmd = c
		}
	}
	assert.Contains(t, benchCmd, "--benchmark_repetitions=7")
	assert.Contains(t, benchCmd, "taskset -c 6 ")
}

func TestRun_HostFailureExitsTwo(t *testing.T) {
	e := newCLIEnv(t)
	e.transport.fail["beta"] = stderrors.New("dial tcp: connection refused")

	code := e.run(e.runArgs("alpha", "beta")...)
	assert.Equal(t, ExitHostsFailed, code)

	hosts, err := os.ReadFile(filepath.Join(e.out, collect.HostsFile))
	require.NoError(t, err)
	assert.Contains(t, string(hosts), "alpha,")
	assert.NotContains(t, string(hosts), "beta,")
	assert.NoFileExists(t, filepath.Join(e.out, "bench-beta.csv"))

	assert.Contains(t, e.stdout.String(), "1 host failed: beta")

	m, err := collect.ReadManifest(filepath.Join(e.out, collect.ManifestFile))
	require.NoError(t, err)
	require.Len(t, m.Failures, 1)
	assert.Equal(t, "beta", m.Failures[0].Host)
}

func TestRun_HostsFromConfig(t *testing.T) {
	e := newCLIEnv(t)
	cfg := "hosts: [alpha, beta]\nexe: " + e.exe + "\nout: " + e.out + "\nlog: " + e.log + "\nmanifest: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, config.ConfigFileName), []byte(cfg), 0o644))

	code := e.run("run")
	require.Equal(t, ExitOK, code, e.stderr.String())
	assert.FileExists(t, filepath.Join(e.out, "bench-alpha.csv"))
	assert.FileExists(t, filepath.Join(e.out, "bench-beta.csv"))
	assert.NoFileExists(t, filepath.Join(e.out, collect.ManifestFile))
}

func TestRun_ArgumentsReplaceConfigHosts(t *testing.T) {
	e := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, config.ConfigFileName), []byte("hosts: [alpha, beta]\n"), 0o644))

	code := e.run(e.runArgs("gamma")...)
	require.Equal(t, ExitOK, code, e.stderr.String())
	assert.FileExists(t, filepath.Join(e.out, "bench-gamma.csv"))
	assert.NoFileExists(t, filepath.Join(e.out, "bench-alpha.csv"))
}

func TestRun_ManifestDisabled(t *testing.T) {
	e := newCLIEnv(t)

	code := e.run(append(e.runArgs("alpha"), "--manifest=false")...)
	require.Equal(t, ExitOK, code, e.stderr.String())
	assert.NoFileExists(t, filepath.Join(e.out, collect.ManifestFile))
}

func TestRun_HostKeyFlag(t *testing.T) {
	e := newCLIEnv(t)
	require.Equal(t, ExitOK, e.run(e.runArgs("alpha")...), e.stderr.String())
	require.NotNil(t, e.gotCfg)
	assert.True(t, e.gotCfg.StrictHostKeyChecking)

	e2 := newCLIEnv(t)
	require.Equal(t, ExitOK, e2.run(append(e2.runArgs("alpha"), "--insecure-ignore-host-key")...), e2.stderr.String())
	assert.False(t, e2.gotCfg.StrictHostKeyChecking)
}

func TestRun_SetupFailures(t *testing.T) {
	t.Run("missing executable", func(t *testing.T) {
		e := newCLIEnv(t)
		code := e.run("run", "--exe", filepath.Join(e.dir, "nope"), "-o", e.out, "--log", e.log, "alpha")
		assert.Equal(t, ExitError, code)
		assert.Contains(t, e.stderr.String(), "Couldn't read benchmark executable")
		assert.NoDirExists(t, e.out)
	})

	t.Run("no hosts", func(t *testing.T) {
		e := newCLIEnv(t)
		code := e.run(e.runArgs()...)
		assert.Equal(t, ExitError, code)
		assert.Contains(t, e.stderr.String(), "No hosts to benchmark")
	})

	t.Run("transport init", func(t *testing.T) {
		e := newCLIEnv(t)
		e.app.newTransport = func(*config.Config) (dispatch.Transport, error) {
			return nil, errors.New(errors.ErrSSH, "Couldn't load known_hosts", "")
		}
		code := e.run(e.runArgs("alpha")...)
		assert.Equal(t, ExitError, code)
		assert.Contains(t, e.stderr.String(), "Couldn't load known_hosts")
	})

	t.Run("invalid repetitions", func(t *testing.T) {
		e := newCLIEnv(t)
		code := e.run(append(e.runArgs("alpha"), "-n", "0")...)
		assert.Equal(t, ExitError, code)
		assert.Contains(t, e.stderr.String(), "repetitions must be at least 1")
	})

	t.Run("unwritable output", func(t *testing.T) {
		e := newCLIEnv(t)
		blocker := filepath.Join(e.dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))
		code := e.run("run", "--exe", e.exe, "-o", filepath.Join(blocker, "out"), "--log", e.log, "alpha")
		assert.Equal(t, ExitError, code)
	})
}

func TestRun_LockReleasedAfterRun(t *testing.T) {
	e := newCLIEnv(t)

	require.Equal(t, ExitOK, e.run(e.runArgs("alpha")...), e.stderr.String())
	client := e.transport.clients["alpha"]
	assert.Contains(t, client.Commands(), "mkdir '/tmp/pb-bench.lock'")
	assert.False(t, client.GetFS().Exists("/tmp/pb-bench.lock"))
}

func TestRun_NoLock(t *testing.T) {
	e := newCLIEnv(t)

	require.Equal(t, ExitOK, e.run(append(e.runArgs("alpha"), "--no-lock")...), e.stderr.String())
	for _, c := range e.transport.clients["alpha"].Commands() {
		assert.NotContains(t, c, "pb-bench.lock")
	}
}

func TestRun_BusyHostFails(t *testing.T) {
	e := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, config.ConfigFileName), []byte("lock:\n  timeout: 0s\n"), 0o644))

	busy := newMockTransport()
	e.app.newTransport = func(*config.Config) (dispatch.Transport, error) { return busyTransport{busy, "beta"}, nil }

	code := e.run(e.runArgs("alpha", "beta")...)
	assert.Equal(t, ExitHostsFailed, code)
	assert.Contains(t, e.stdout.String(), "1 host failed: beta")
	assert.FileExists(t, filepath.Join(e.out, "bench-alpha.csv"))
}

// busyTransport is a mockTransport where one host is already locked.
type busyTransport struct {
	*mockTransport
	busy string
}

func (b busyTransport) Connect(ctx context.Context, host string) (sshutil.SSHClient, error) {
	client, err := b.mockTransport.Connect(ctx, host)
	if err == nil && host == b.busy {
		sshtest.WithDirs(client.(*sshtest.MockClient), []string{"/tmp/pb-bench.lock"})
	}
	return client, err
}

func TestShowCommand(t *testing.T) {
	e := newCLIEnv(t)
	e.transport.fail["beta"] = stderrors.New("dial tcp: connection refused")
	require.Equal(t, ExitHostsFailed, e.run(e.runArgs("alpha", "beta")...))

	m, err := collect.ReadManifest(filepath.Join(e.out, collect.ManifestFile))
	require.NoError(t, err)

	e.stdout.Reset()
	code := e.run("show", e.out)
	require.Equal(t, ExitOK, code, e.stderr.String())

	got := e.stdout.String()
	assert.Contains(t, got, "Run "+m.RunID+" finished")
	assert.Contains(t, got, "exe      "+e.exe)
	assert.Contains(t, got, "command  ./bench --benchmark_out_format=csv --benchmark_out=out.csv --benchmark_repetitions=3")
	assert.Contains(t, got, "✓ alpha  alpha")
	assert.Contains(t, got, "✗ beta  Couldn't connect to beta: dial tcp: connection refused")
	assert.Contains(t, got, "1 host collected, 1 failed")
}

func TestShowCommand_DefaultsToConfiguredOut(t *testing.T) {
	e := newCLIEnv(t)
	require.Equal(t, ExitOK, e.run(e.runArgs("alpha")...))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, config.ConfigFileName), []byte("out: "+e.out+"\n"), 0o644))

	e.stdout.Reset()
	require.Equal(t, ExitOK, e.run("show"), e.stderr.String())
	assert.Contains(t, e.stdout.String(), "1 host collected, 0 failed")
}

func TestShowCommand_NoRun(t *testing.T) {
	e := newCLIEnv(t)

	assert.Equal(t, ExitError, e.run("show", e.dir))
	assert.Contains(t, e.stderr.String(), "No run recorded in "+e.dir)
	assert.Contains(t, e.stderr.String(), "pb run")
}

func TestUnlockCommand(t *testing.T) {
	e := newCLIEnv(t)
	busy := newMockTransport()
	e.app.newTransport = func(*config.Config) (dispatch.Transport, error) { return busyTransport{busy, "beta"}, nil }

	code := e.run("unlock", "alpha", "beta")
	require.Equal(t, ExitOK, code, e.stderr.String())
	assert.Contains(t, e.stdout.String(), "○ alpha: no lock held")
	assert.Contains(t, e.stdout.String(), "✓ beta: lock released")
	assert.False(t, busy.clients["beta"].GetFS().Exists("/tmp/pb-bench.lock"))
	assert.True(t, busy.clients["beta"].IsClosed())
}

func TestUnlockCommand_HostsFromConfig(t *testing.T) {
	e := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, config.ConfigFileName),
		[]byte("hosts: [alpha]\nlock:\n  dir: /var/lock\n"), 0o644))

	require.Equal(t, ExitOK, e.run("unlock"), e.stderr.String())
	assert.Contains(t, e.stdout.String(), "alpha: no lock held")
	assert.Contains(t, e.transport.clients["alpha"].Commands(), "test -d '/var/lock/pb-bench.lock'")
}

func TestUnlockCommand_ConnectFailure(t *testing.T) {
	e := newCLIEnv(t)
	e.transport.fail["gamma"] = stderrors.New("no route to host")

	code := e.run("unlock", "alpha", "gamma")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, e.stdout.String(), "✗ gamma: Couldn't connect to gamma: no route to host")
	assert.Contains(t, e.stderr.String(), "Couldn't unlock 1 host")
}

func TestUnlockCommand_NoHosts(t *testing.T) {
	e := newCLIEnv(t)

	assert.Equal(t, ExitError, e.run("unlock"))
	assert.Contains(t, e.stderr.String(), "No hosts")
}

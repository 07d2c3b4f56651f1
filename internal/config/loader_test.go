package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("exe", "", "")
	fs.IntP("repetitions", "n", 0, "")
	fs.String("out", "", "")
	fs.String("log", "", "")
	fs.String("log-level", "", "")
	fs.Int("max-parallel", 0, "")
	fs.Duration("connect-timeout", 0, "")
	fs.Bool("manifest", false, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.Exe, cfg.Exe)
	assert.Equal(t, want.Repetitions, cfg.Repetitions)
	assert.Equal(t, want.Out, cfg.Out)
	assert.Equal(t, want.LogLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.StrictHostKeyChecking)
	assert.True(t, cfg.Manifest)
	assert.Equal(t, DefaultBenchArgs, cfg.Bench.Args)
	assert.Equal(t, "out.csv", cfg.Bench.ResultFile)
	assert.Empty(t, cfg.Hosts)
	assert.Equal(t, LockConfig{Enabled: true, Dir: "/tmp", Timeout: 10 * time.Minute, Stale: 6 * time.Hour}, cfg.Lock)
}

func TestLoad_LockSection(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "lock:\n  timeout: 0s\n  stale: 30m\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, "/tmp", cfg.Lock.Dir)
	assert.Equal(t, time.Duration(0), cfg.Lock.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Lock.Stale)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
hosts:
  - alpha
  - bob@beta:2222
exe: ./build/bench_syscalls
repetitions: 5
connect_timeout: 30s
max_parallel: 4
strict_host_key_checking: false
bench:
  args: ["./bench", "--out=${RESULT_FILE}"]
  result_file: result.csv
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "bob@beta:2222"}, cfg.Hosts)
	assert.Equal(t, "./build/bench_syscalls", cfg.Exe)
	assert.Equal(t, 5, cfg.Repetitions)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.False(t, cfg.StrictHostKeyChecking)
	assert.Equal(t, []string{"./bench", "--out=${RESULT_FILE}"}, cfg.Bench.Args)
	assert.Equal(t, "result.csv", cfg.Bench.ResultFile)
	// Keys the file leaves out keep their defaults.
	assert.Equal(t, "out", cfg.Out)
	assert.True(t, cfg.Manifest)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "repetitions: 5\nout: results\n")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"-n", "9", "--connect-timeout", "2s", "--manifest=false"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Repetitions)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.False(t, cfg.Manifest)
	// Unset flags don't clobber the file.
	assert.Equal(t, "results", cfg.Out)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "repetitions: 5\n")
	t.Setenv("PB_REPETITIONS", "7")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Repetitions)
}

func TestLoad_ExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, t.TempDir(), "exe: ~/bin/bench\nout: ~/runs\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "bin/bench"), cfg.Exe)
	assert.Equal(t, filepath.Join(home, "runs"), cfg.Out)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "hosts: [alpha\n")
		_, err := Load(path, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})

	t.Run("wrong type", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "repetitions: lots\n")
		_, err := Load(path, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})
}

func TestFind(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "exe: x\n")
		got, err := Find(path)
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := Find(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})

	t.Run("current directory", func(t *testing.T) {
		dir := t.TempDir()
		testChdir(t, dir)
		t.Setenv("HOME", t.TempDir())
		path := writeConfig(t, dir, "exe: x\n")

		got, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(path), filepath.Base(got))
	})

	t.Run("global fallback", func(t *testing.T) {
		testChdir(t, t.TempDir())
		home := t.TempDir()
		t.Setenv("HOME", home)
		global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		require.NoError(t, os.MkdirAll(filepath.Dir(global), 0o755))
		require.NoError(t, os.WriteFile(global, []byte("exe: x\n"), 0o644))

		got, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, global, got)
	})

	t.Run("nothing found", func(t *testing.T) {
		testChdir(t, t.TempDir())
		t.Setenv("HOME", t.TempDir())

		got, err := Find("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

package collect

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeExecutable(t *testing.T) {
	payload := []byte("\x7fELF benchmark")
	sum := sha256.Sum256(payload)

	exe := DescribeExecutable("bench_syscalls", payload)
	assert.Equal(t, "bench_syscalls", exe.Path)
	assert.Equal(t, hex.EncodeToString(sum[:]), exe.SHA256)
	assert.Equal(t, int64(len(payload)), exe.Size)
	assert.Equal(t, "14 B", exe.Human)
}

func TestManifestRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := &Summary{
		Succeeded: []HostRecord{{
			Host: "alpha.lab", Hostname: "alpha", CPUModel: "Test CPU", KernelCmdline: "ro quiet",
			PowerProfile: "balanced", Core: 6, Cores: 8, File: "out/bench-alpha.csv",
			Duration: 1500 * time.Millisecond,
		}},
		Failed: []HostFailure{{
			Host: "beta", Err: errors.New(errors.ErrSSH, "Can't reach 'beta'", "ping it"), Duration: time.Second,
		}},
	}
	command := []string{"./bench", "--benchmark_repetitions=3"}

	m := NewManifest(started, started.Add(time.Minute), DescribeExecutable("bench", []byte("x")), command, summary)
	_, err := uuid.Parse(m.RunID)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), ManifestFile)
	require.NoError(t, WriteManifest(path, m))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.True(t, started.Equal(got.Started))
	assert.Equal(t, command, got.Command)
	require.Len(t, got.Hosts, 1)
	assert.Equal(t, "alpha", got.Hosts[0].Hostname)
	assert.Equal(t, "balanced", got.Hosts[0].PowerProfile)
	assert.Equal(t, "1.5s", got.Hosts[0].Duration)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "Can't reach 'beta'", got.Failures[0].Error)
}

func TestNewManifest_UniqueRunIDs(t *testing.T) {
	now := time.Now()
	a := NewManifest(now, now, Executable{}, nil, &Summary{})
	b := NewManifest(now, now, Executable{}, nil, &Summary{})
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Empty(t, a.Failures)
}

func TestReadManifest_Errors(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrIO))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("hosts: [unclosed"), 0o644))
	_, err = ReadManifest(bad)
	assert.True(t, errors.IsCode(err, errors.ErrParse))
}

package lock

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
	sshtest "github.com/rileyhilliard/pb/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockDir = "/tmp/pb-bench.lock"

func holdLock(t *testing.T, client *sshtest.MockClient, info *Info) {
	t.Helper()
	data, err := info.Marshal()
	require.NoError(t, err)
	sshtest.WithDirs(client, []string{lockDir})
	sshtest.WithFiles(client, map[string]string{lockDir + "/" + InfoFile: string(data)})
}

func otherHolder(started time.Time) *Info {
	return &Info{User: "bob", Hostname: "laptop", PID: 42, Started: started, Command: "pb run bench"}
}

func TestPath(t *testing.T) {
	assert.Equal(t, lockDir, Path(Options{}))
	assert.Equal(t, "/var/lock/pb-bench.lock", Path(Options{Dir: "/var/lock"}))
	assert.Equal(t, "/var/lock/pb-bench.lock", Path(Options{Dir: "/var/lock/"}))
}

func TestAcquireAndRelease(t *testing.T) {
	client := sshtest.NewMockClient("alpha")

	l, err := Acquire(context.Background(), client, Options{Command: "pb run bench"}, nil)
	require.NoError(t, err)
	assert.Equal(t, lockDir, l.Dir)
	assert.True(t, client.GetFS().IsDir(lockDir))

	data, err := client.GetFS().ReadFile(lockDir + "/" + InfoFile)
	require.NoError(t, err)
	info, err := ParseInfo(data)
	require.NoError(t, err)
	assert.Equal(t, l.Info.PID, info.PID)
	assert.Equal(t, "pb run bench", info.Command)

	require.NoError(t, l.Release())
	assert.False(t, client.GetFS().Exists(lockDir))
}

func TestAcquire_HeldGivesUp(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Now()))

	_, err := Acquire(context.Background(), client, Options{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLock))
	assert.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "alpha is busy")
	assert.Contains(t, err.Error(), "bob@laptop (pid 42")

	assert.True(t, client.GetFS().IsDir(lockDir), "the holder's lock stays")
}

func TestAcquire_RemovesStaleLock(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Now().Add(-2*time.Hour)))
	log := logger.NewBufferLogger()

	l, err := Acquire(context.Background(), client, Options{Stale: time.Hour}, log)
	require.NoError(t, err)
	assert.True(t, log.Contains("warn", "removing stale lock held by bob@laptop"))

	data, err := client.GetFS().ReadFile(lockDir + "/" + InfoFile)
	require.NoError(t, err)
	info, err := ParseInfo(data)
	require.NoError(t, err)
	assert.Equal(t, l.Info.PID, info.PID)
}

func TestAcquire_FreshLockIsNotStale(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Now()))

	_, err := Acquire(context.Background(), client, Options{Stale: time.Hour}, nil)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAcquire_WaitsForHolder(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Now()))
	log := logger.NewBufferLogger()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = client.GetFS().Remove(lockDir)
	}()

	l, err := Acquire(context.Background(), client, Options{Timeout: 5 * time.Second, Poll: 10 * time.Millisecond}, log)
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.True(t, log.Contains("info", "waiting for the benchmark lock held by bob@laptop"))
}

func TestAcquire_TimesOut(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Now()))

	start := time.Now()
	_, err := Acquire(context.Background(), client, Options{Timeout: 60 * time.Millisecond, Poll: 10 * time.Millisecond}, nil)
	assert.ErrorIs(t, err, ErrLocked)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := Acquire(ctx, client, Options{Timeout: time.Minute, Poll: 10 * time.Millisecond}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_TransportError(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	client.SetCommandResponse(`^mkdir `, sshtest.CommandResponse{Error: stderrors.New("session closed")})

	_, err := Acquire(context.Background(), client, Options{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestAcquire_InfoWriteFailureReleases(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	client.SetCommandResponse(`^cat > `, sshtest.CommandResponse{ExitCode: 1, Stderr: []byte("No space left on device")})

	_, err := Acquire(context.Background(), client, Options{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLock))
	assert.Contains(t, err.Error(), "No space left on device")
	assert.False(t, client.GetFS().Exists(lockDir))
}

func TestForceRelease(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	holdLock(t, client, otherHolder(time.Time{}))

	holder, held, err := ForceRelease(client, Options{})
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "bob@laptop (pid 42)", holder)
	assert.False(t, client.GetFS().Exists(lockDir))

	holder, held, err = ForceRelease(client, Options{})
	require.NoError(t, err)
	assert.False(t, held)
	assert.Empty(t, holder)
}

func TestForceRelease_CustomDir(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	sshtest.WithDirs(client, []string{"/var/lock/pb-bench.lock"})

	holder, held, err := ForceRelease(client, Options{Dir: "/var/lock"})
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "unknown", holder)
	assert.False(t, client.GetFS().Exists("/var/lock/pb-bench.lock"))
}

func TestForceRelease_TransportError(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	client.SetCommandResponse(`^test -d `, sshtest.CommandResponse{Error: stderrors.New("session closed")})

	_, held, err := ForceRelease(client, Options{})
	require.Error(t, err)
	assert.False(t, held)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}

func TestReadHolder(t *testing.T) {
	client := sshtest.NewMockClient("alpha")
	infoFile := lockDir + "/" + InfoFile

	holder, age := readHolder(client, infoFile)
	assert.Equal(t, "unknown", holder)
	assert.Zero(t, age)

	sshtest.WithFiles(client, map[string]string{infoFile: "not json\n"})
	holder, age = readHolder(client, infoFile)
	assert.Equal(t, "not json", holder)
	assert.Zero(t, age)

	holdLock(t, client, otherHolder(time.Time{}))
	holder, _ = readHolder(client, infoFile)
	assert.Equal(t, "bob@laptop (pid 42)", holder)
}

func TestInfo(t *testing.T) {
	info := NewInfo("pb run bench")
	assert.NotEmpty(t, info.User)
	assert.NotEmpty(t, info.Hostname)
	assert.NotZero(t, info.PID)
	assert.Less(t, info.Age(), time.Second)

	data, err := info.Marshal()
	require.NoError(t, err)
	back, err := ParseInfo(data)
	require.NoError(t, err)
	assert.Equal(t, info.PID, back.PID)
	assert.True(t, info.Started.Equal(back.Started))
	assert.True(t, strings.HasPrefix(back.String(), info.User+"@"+info.Hostname+" (pid "))

	_, err = ParseInfo([]byte("{"))
	assert.Error(t, err)
}

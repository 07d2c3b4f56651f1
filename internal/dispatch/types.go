package dispatch

import (
	"context"
	"time"

	"github.com/rileyhilliard/pb/internal/remote"
	"github.com/rileyhilliard/pb/pkg/sshutil"
)

// Transport opens a connection to a host.
type Transport interface {
	Connect(ctx context.Context, host string) (sshutil.SSHClient, error)
}

// Task is the work run once per host over an open connection.
type Task func(ctx context.Context, client sshutil.SSHClient) (*remote.Result, error)

// Options controls fan-out.
type Options struct {
	// MaxParallel caps concurrent hosts. 0 starts every host at once.
	MaxParallel int
}

// Completion is the outcome for one host. Exactly one of Result and Err is set.
type Completion struct {
	Host     string
	Result   *remote.Result
	Err      error
	Started  time.Time
	Finished time.Time
}

// Success reports whether the host produced a result.
func (c Completion) Success() bool {
	return c.Err == nil && c.Result != nil
}

// Duration returns how long the host took, connect included.
func (c Completion) Duration() time.Duration {
	return c.Finished.Sub(c.Started)
}

package dispatch

import (
	"context"

	"github.com/rileyhilliard/pb/pkg/sshutil"
)

// SSHTransport connects with an sshutil.Dialer.
type SSHTransport struct {
	dialer *sshutil.Dialer
}

// NewSSHTransport wraps a dialer whose host key policy is already loaded.
func NewSSHTransport(dialer *sshutil.Dialer) *SSHTransport {
	return &SSHTransport{dialer: dialer}
}

// Connect dials host. The dial itself is bounded by the dialer timeout; a
// cancelled ctx returns early and closes the connection if it lands later.
func (t *SSHTransport) Connect(ctx context.Context, host string) (sshutil.SSHClient, error) {
	type dialResult struct {
		client *sshutil.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := t.dialer.Dial(host)
		done <- dialResult{client, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.client, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

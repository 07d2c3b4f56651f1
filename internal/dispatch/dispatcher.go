// Package dispatch fans a task out to hosts and streams back one Completion
// per host in the order hosts finish.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs a Task on many hosts concurrently.
type Dispatcher struct {
	transport Transport
	opts      Options
	log       logger.Logger
}

// New creates a Dispatcher. A nil log discards messages.
func New(transport Transport, opts Options, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Noop()
	}
	return &Dispatcher{transport: transport, opts: opts, log: log}
}

// Submit starts task on every distinct host and returns the completion
// stream. The channel is buffered for every host, so workers never block on
// a slow consumer, and is closed after the last host finishes.
//
// Once ctx is cancelled, hosts that haven't started are reported with the
// context error instead of being contacted.
func (d *Dispatcher) Submit(ctx context.Context, hosts []string, task Task) <-chan Completion {
	hosts = d.unique(hosts)
	completions := make(chan Completion, len(hosts))

	var g errgroup.Group
	if d.opts.MaxParallel > 0 {
		g.SetLimit(d.opts.MaxParallel)
	}

	go func() {
		defer close(completions)
		for _, host := range hosts {
			if err := ctx.Err(); err != nil {
				now := time.Now()
				completions <- Completion{Host: host, Err: err, Started: now, Finished: now}
				continue
			}
			host := host
			g.Go(func() error {
				completions <- d.runHost(ctx, host, task)
				return nil
			})
		}
		// Workers report through the channel; Wait only tracks completion.
		_ = g.Wait()
	}()

	return completions
}

// runHost connects and runs the task, turning panics into a failed completion.
func (d *Dispatcher) runHost(ctx context.Context, host string, task Task) (c Completion) {
	c = Completion{Host: host, Started: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			c.Result = nil
			c.Err = errors.New(errors.ErrExec,
				fmt.Sprintf("Task panicked on %s: %v", host, r), "")
		}
		c.Finished = time.Now()
		if c.Err != nil {
			d.log.Warn("%s failed after %s: %s", host, c.Finished.Sub(c.Started).Round(time.Millisecond), errors.Summary(c.Err))
		} else {
			d.log.Info("%s finished in %s", host, c.Finished.Sub(c.Started).Round(time.Millisecond))
		}
	}()

	d.log.Debug("Connecting to %s", host)
	client, err := d.transport.Connect(ctx, host)
	if err != nil {
		if !errors.IsCode(err, errors.ErrSSH) {
			err = errors.Wrap(err, "Couldn't connect to "+host)
		}
		c.Err = err
		return c
	}
	defer client.Close()

	res, err := task(ctx, client)
	if err == nil && res == nil {
		err = errors.New(errors.ErrExec, "No result from "+host, "")
	}
	c.Result, c.Err = res, err
	if err != nil {
		c.Result = nil
	}
	return c
}

// unique drops repeated hosts, keeping first-seen order.
func (d *Dispatcher) unique(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if seen[h] {
			d.log.Warn("Host %s listed more than once; running it once", h)
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

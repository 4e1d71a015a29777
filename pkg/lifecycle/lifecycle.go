// Package lifecycle wires SIGINT/SIGTERM handling to a bounded,
// orderly shutdown: every concurrent task shares one cancellable
// context, and the process waits a grace period for them to unwind
// before forcing an exit.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iowaguy/ting-go/pkg/logger"
)

// DefaultGracePeriod bounds how long Run waits for tasks to return
// after a shutdown signal before giving up and returning anyway.
const DefaultGracePeriod = 10 * time.Second

// Task is one concurrently-run unit of work. It must return promptly
// once ctx is cancelled.
type Task func(ctx context.Context) error

// Run starts every task under a shared context derived from parent,
// cancels that context on SIGINT/SIGTERM or on the first task error,
// and waits for the rest to unwind. Only after a signal is that wait
// bounded: once gracePeriod passes, Run returns nil. It returns the
// first non-nil task error, or nil if every task returned cleanly
// (including the ones cut short by cancellation returning nil).
//
// This is the measurement session's shutdown contract: a signal sets
// the shared context's Done channel, the in-flight sample may fail
// with ProbeFailed as its tunnel read unblocks, the driver's loop
// notices ctx.Done() and returns, and pending results already written
// to the sink are not touched — there is nothing left to flush, since
// every result is fsynced as it's produced.
func Run(parent context.Context, log *logger.Logger, gracePeriod time.Duration, tasks ...Task) error {
	log = log.Component("lifecycle")
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cancelCtx, cancel := context.WithCancel(parent)
	defer cancel()

	eg, ctx := errgroup.WithContext(cancelCtx)
	for _, t := range tasks {
		t := t
		eg.Go(func() error { return t(ctx) })
	}

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()

	select {
	case err := <-done:
		return err
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}

	select {
	case err := <-done:
		return err
	case <-time.After(gracePeriod):
		log.Warn("shutdown grace period exceeded, exiting anyway", "grace_period", gracePeriod)
		return nil
	}
}

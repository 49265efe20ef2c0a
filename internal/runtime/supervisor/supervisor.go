// Package supervisor manages the daemon's long-running goroutines:
// named, panic-safe, optionally restarted with backoff, and stoppable
// with a bounded wait.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"udpquake/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log logx.Logger

	errOnce  sync.Once
	firstErr atomic.Value // stores error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error observed from any supervised goroutine.
func (s *Supervisor) Err() error {
	v := s.firstErr.Load()
	if v == nil {
		return nil
	}
	err, _ := v.(error)
	return err
}

// Go runs fn once under the supervisor context with panic recovery.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s: %v", name, r)
				if !s.log.IsZero() {
					s.log.Error("goroutine panicked",
						logx.String("name", name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
				}
				s.setErr(err)
			}
		}()

		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// RestartConfig tunes GoRestart. Zero values get sane defaults.
type RestartConfig struct {
	MinBackoff time.Duration // default 250ms
	MaxBackoff time.Duration // default 30s
}

// GoRestart runs fn and restarts it on error or panic with jittered
// exponential backoff until ctx is canceled. Intended for long-running
// loops (pollers, watchers) where transient failures should self-heal
// without bringing down the process. A clean (nil) exit stops the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, cfg RestartConfig) {
	if fn == nil {
		return
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}

	s.Go(name+".restart", func(ctx context.Context) error {
		backoff := cfg.MinBackoff
		for {
			if ctx.Err() != nil {
				return nil
			}

			startedAt := time.Now()
			err := runRecovered(ctx, fn)

			// Cancellation during or after the run is a clean stop.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if err == nil {
				return nil
			}

			// A loop that ran for a while before failing earns a fresh
			// backoff window.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.MinBackoff
			}

			wait := backoff + jitter(backoff)
			if !s.log.IsZero() {
				s.log.Warn("goroutine restarting",
					logx.String("name", name),
					logx.Duration("backoff", wait),
					logx.Err(err),
				)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}

			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	})
}

func runRecovered(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// jitter returns up to 20% of d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() % (int64(d)/5 + 1))
}

// Stop cancels the supervisor context and waits for goroutines to exit,
// bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}

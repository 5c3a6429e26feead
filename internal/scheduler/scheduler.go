// internal/scheduler/scheduler.go
//
// Poll scheduling and run coalescing.
//
/*
Context
--------
A Scheduler owns the tenant iterator and decides when it runs:

  • `Once` performs a single pass (CLI `--once`).
  • `Start` registers a cron schedule.  Ticks that fire while a pass is
    still running are skipped (`cron.SkipIfStillRunning`).
  • `Trigger` is used by the ops endpoint.  Concurrent triggers, and a
    trigger that lands during a cron pass, share that pass through
    singleflight instead of starting a second one.

The latest Report is kept in an atomic pointer for `/runs/last`.
*/
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/tronpoll/internal/tenant"
)

// ErrStarted is returned by Start when a schedule is already active.
var ErrStarted = errors.New("scheduler: already started")

// Runner performs one poll pass.  *tenant.Iterator satisfies it.
type Runner interface {
	Run(ctx context.Context) (*tenant.Report, error)
}

// Scheduler serialises poll passes.
type Scheduler struct {
	runner Runner
	log    *zap.SugaredLogger

	group singleflight.Group
	last  atomic.Pointer[tenant.Report]

	// base is the context cron-fired passes run under; Stop cancels it.
	base   context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
}

// New returns a Scheduler around r.
func New(r Runner, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{runner: r, log: log, base: base, cancel: cancel}
}

// Once runs a pass under ctx and waits for it.
func (s *Scheduler) Once(ctx context.Context) (*tenant.Report, error) {
	return s.do(ctx, ctx)
}

// Trigger starts a pass, or joins the one in flight, and waits for it.
// The pass itself runs under the scheduler's context, so a caller that
// gives up (ctx done) does not cancel it for the others.
func (s *Scheduler) Trigger(ctx context.Context) (*tenant.Report, error) {
	return s.do(s.base, ctx)
}

func (s *Scheduler) do(runCtx, waitCtx context.Context) (*tenant.Report, error) {
	ch := s.group.DoChan("run", func() (any, error) {
		rep, err := s.runner.Run(runCtx)
		if rep != nil {
			s.last.Store(rep)
		}
		return rep, err
	})
	select {
	case res := <-ch:
		rep, _ := res.Val.(*tenant.Report)
		return rep, res.Err
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	}
}

// Last returns the report of the most recent pass, nil before the first.
func (s *Scheduler) Last() *tenant.Report { return s.last.Load() }

// Start schedules passes with a standard five-field cron spec (descriptors
// such as "@every 1m" are accepted too).
func (s *Scheduler) Start(spec string) error {
	if s.cron != nil {
		return ErrStarted
	}
	logger := cronLogger{s.log}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Infow("poll schedule started", "spec", spec)
	return nil
}

func (s *Scheduler) tick() {
	start := time.Now()
	if _, err := s.Trigger(s.base); err != nil {
		s.log.Warnw("scheduled pass ended early", "err", err)
		return
	}
	s.log.Debugw("scheduled pass done", "took", time.Since(start))
}

// Stop halts the schedule, cancels a running scheduled pass, and waits
// for it to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's internal messages to zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Debugw("cron: "+msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Errorw("cron: "+msg, append(kv, "err", err)...)
}

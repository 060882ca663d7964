// Package scheduler implements C8, the Cycle Controller: it ticks hourly,
// classifying each tick as an hourly cycle or a deeper sweep cycle at the
// two configured sweep hours, and drives discovery, planning, and batch
// analysis for that tick.
//
// Grounded on the teacher's internal/app/services/automation.Scheduler
// (a lifecycle-managed background loop with Start/Stop and a single
// dispatcher callback), but the teacher's loop is a plain time.Ticker —
// this generalizes it onto the real github.com/robfig/cron/v3 scheduler
// the teacher's go.mod already declares but never imports, since spec §4.8
// needs calendar-aware ticks (two fixed sweep hours), not a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/logging"
	"github.com/R3E-Network/repo-scout/internal/store"
)

// SweepHours names the two hours of the day (0-23, local time) that run a
// comprehensive sweep cycle instead of the regular hourly cycle (spec §4.8).
var SweepHours = map[int]bool{2: true, 14: true}

// CycleRunner performs one scheduler tick; Scheduler only decides *when* and
// *what kind*, never how discovery/planning/batching actually work.
type CycleRunner interface {
	RunCycle(ctx context.Context, kind domain.CycleKind) error
}

// Scheduler is C8: a durable singleton driving exactly one hourly cron
// entry. Only one tick runs at a time — an in-flight tick that overruns the
// hour simply delays the next one, it is never run concurrently with
// itself.
type Scheduler struct {
	cron   *cron.Cron
	runner CycleRunner
	store  *store.Store
	log    *logging.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID

	tickMu sync.Mutex // held for the whole of a tick, so ticks never overlap
}

// New builds a Scheduler that has not yet started ticking.
func New(runner CycleRunner, s *store.Store, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		runner: runner,
		store: s,
		log:   log,
	}
}

// Start registers the hourly entry and begins the cron scheduler's
// background goroutine. Idempotent. If a next_tick was persisted by a prior
// process and it has already elapsed, Start runs one tick immediately before
// the cron entry's first scheduled fire, so a tick missed across a restart
// (spec §4.8, §9) is not silently skipped for up to an hour.
func (sch *Scheduler) Start(ctx context.Context) error {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.running {
		return nil
	}
	missed := false
	if sch.store != nil {
		if at, ok, err := sch.store.GetNextTick(ctx); err == nil && ok && at.Before(time.Now()) {
			missed = true
		}
	}
	id, err := sch.cron.AddFunc("@hourly", func() { sch.tick(ctx) })
	if err != nil {
		return err
	}
	sch.entryID = id
	sch.cron.Start()
	sch.running = true
	sch.persistNextTick(ctx)
	if missed {
		go sch.tick(ctx)
	}
	return nil
}

// Stop halts future ticks and waits for any in-flight tick to finish.
func (sch *Scheduler) Stop() {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if !sch.running {
		return
	}
	<-sch.cron.Stop().Done()
	sch.running = false
}

// NextTick reports when the scheduler's single entry will next fire.
func (sch *Scheduler) NextTick() time.Time {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	for _, e := range sch.cron.Entries() {
		if e.ID == sch.entryID {
			return e.Next
		}
	}
	return time.Time{}
}

func (sch *Scheduler) tick(ctx context.Context) {
	sch.tickMu.Lock()
	defer sch.tickMu.Unlock()
	kind := classify(time.Now())
	sch.log.LogCycleTick(ctx, string(kind))
	if err := sch.runner.RunCycle(ctx, kind); err != nil {
		sch.log.WithError(err).WithFields(nil).WithField("cycle_kind", string(kind)).Error("cycle run failed")
	}
	sch.persistNextTick(ctx)
}

// persistNextTick durably records when the cron entry will next fire so a
// restarted process can tell whether a tick was missed while it was down.
func (sch *Scheduler) persistNextTick(ctx context.Context) {
	if sch.store == nil {
		return
	}
	var next time.Time
	for _, e := range sch.cron.Entries() {
		if e.ID == sch.entryID {
			next = e.Next
		}
	}
	if next.IsZero() {
		return
	}
	if err := sch.store.SaveNextTick(ctx, next); err != nil {
		sch.log.WithError(err).Warn("persist next_tick failed")
	}
}

// classify decides hourly vs. sweep purely from the wall-clock hour, per
// spec §4.8.
func classify(now time.Time) domain.CycleKind {
	if SweepHours[now.Hour()] {
		return domain.CycleSweep
	}
	return domain.CycleHourly
}

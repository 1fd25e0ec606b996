/*
scheduler.go - Monthly deposit scheduler

PURPOSE:
  Runs UpdateDeposits for every strategy with a period ledger on a cron
  schedule, so each period is closed at the start of the next month even
  when no holder touches the strategy.

DESIGN:
  - robfig/cron in UTC, default spec "5 0 1 * *" (00:05 on the 1st)
  - Each run calls every ledger strategy with the configured operator
  - A failing strategy does not stop the others; errors are joined
  - Runs are recorded on the optional SchedulerRecorder, timestamped by the
    strategies' clock

USAGE:
  sched, err := NewDepositScheduler(registry, operator, spec, clock, log, metrics)
  sched.Start()
  // ... later
  <-sched.Stop().Done()

SEE ALSO:
  - handlers.go: UpdateDeposits endpoint (manual trigger)
  - generic/ledger.go: AdvanceTo
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/warp/staking-engine/factory"
	"github.com/warp/staking-engine/generic"
)

// DefaultSchedulerSpec runs five minutes past midnight UTC on the first of
// every month.
const DefaultSchedulerSpec = "5 0 1 * *"

// SchedulerRecorder receives the outcome of each run.
type SchedulerRecorder interface {
	RecordSchedulerRun(at time.Time, err error)
}

// DepositScheduler advances every period ledger on a cron schedule.
type DepositScheduler struct {
	registry *factory.Registry
	operator common.Address
	clock    generic.Clock
	log      zerolog.Logger
	recorder SchedulerRecorder

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewDepositScheduler parses spec and registers the run. clock defaults to
// the system clock; recorder may be nil.
func NewDepositScheduler(registry *factory.Registry, operator common.Address, spec string,
	clock generic.Clock, log zerolog.Logger, recorder SchedulerRecorder) (*DepositScheduler, error) {
	if spec == "" {
		spec = DefaultSchedulerSpec
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	ds := &DepositScheduler{
		registry: registry,
		operator: operator,
		clock:    clock,
		log:      log.With().Str("component", "scheduler").Logger(),
		recorder: recorder,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
	id, err := ds.cron.AddFunc(spec, func() {
		_ = ds.RunNow(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler spec %q: %w", spec, err)
	}
	ds.entryID = id
	return ds, nil
}

// Start begins the scheduler in its own goroutine.
func (ds *DepositScheduler) Start() {
	ds.cron.Start()
	ds.log.Info().Time("next_run", ds.NextRun()).Msg("scheduler started")
}

// Stop stops the scheduler. The returned context is done once a running
// job has finished.
func (ds *DepositScheduler) Stop() context.Context {
	ctx := ds.cron.Stop()
	ds.log.Info().Msg("scheduler stopped")
	return ctx
}

// NextRun returns the next scheduled run, or zero before Start.
func (ds *DepositScheduler) NextRun() time.Time {
	return ds.cron.Entry(ds.entryID).Next
}

// RunNow calls UpdateDeposits on every ledger strategy.
func (ds *DepositScheduler) RunNow(ctx context.Context) error {
	var errs []error
	for _, op := range ds.registry.Operators() {
		id := "unknown"
		if s, ok := op.(generic.Strategy); ok {
			id = string(s.ID())
		}
		p, err := op.UpdateDeposits(ctx, ds.operator)
		if err != nil {
			ds.log.Error().Err(err).Str("strategy", id).Msg("update deposits failed")
			errs = append(errs, fmt.Errorf("strategy %s: %w", id, err))
			continue
		}
		ds.log.Info().Str("strategy", id).Str("period", p.String()).Msg("deposits updated")
	}

	err := errors.Join(errs...)
	if ds.recorder != nil {
		ds.recorder.RecordSchedulerRun(ds.clock.Now().UTC(), err)
	}
	return err
}

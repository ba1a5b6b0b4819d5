// Package crank runs the internal settlement loop: it periodically lists
// schedules that still hold unreleased tokens and submits them to the engine
// in bounded batches. The HTTP crank endpoint stays permissionless for
// external crankers; this worker is just a built-in one.
package crank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/haiolabs/vesting/engine/pkg/engine"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
	"github.com/haiolabs/vesting/utils/pkg/retry"
)

type WorkerConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Engine *engine.Engine

	// CollectorAccount is the token account settled amounts are released to.
	// It must be owned by the active distribution collector.
	CollectorAccount solana.PublicKey

	// Interval between settlement cycles.
	Interval time.Duration

	// BatchSize caps schedules per crank call; defaults to the engine's hard
	// maximum.
	BatchSize int
}

func (cfg *WorkerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.CollectorAccount.IsZero() {
		return errors.New("collector account is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > vesting.MaxSchedulesPerCrank {
		cfg.BatchSize = vesting.MaxSchedulesPerCrank
	}
	return nil
}

// Worker drives periodic settlement.
type Worker struct {
	log      *slog.Logger
	cfg      WorkerConfig
	settleMu sync.Mutex
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Worker{log: cfg.Logger, cfg: cfg}, nil
}

// Start launches the settlement loop and returns. The loop stops when ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		w.log.Info("crank: starting settlement loop", "interval", w.cfg.Interval)

		w.safeSettle(ctx)

		ticker := w.cfg.Clock.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.safeSettle(ctx)
			}
		}
	}()
}

func (w *Worker) safeSettle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("crank: settlement cycle panicked", "panic", r)
		}
	}()

	if err := w.Settle(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.log.Error("crank: settlement cycle failed", "error", err)
	}
}

// Settle runs one settlement cycle: list unsettled schedules, batch them, and
// crank each batch. Transient store failures are retried; a schedule-level
// rejection is reported by the engine per pair and never fails the cycle.
func (w *Worker) Settle(ctx context.Context) error {
	w.settleMu.Lock()
	defer w.settleMu.Unlock()

	start := time.Now()
	w.log.Debug("crank: settlement cycle started")

	var schedules []vesting.Schedule
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		schedules, err = w.cfg.Engine.Unsettled(ctx, 0)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list unsettled schedules: %w", err)
	}
	if len(schedules) == 0 {
		w.log.Debug("crank: nothing to settle")
		return nil
	}

	var processed, attempted int
	for batch := range batches(schedules, w.cfg.BatchSize) {
		pairs := make([]engine.Pair, len(batch))
		for i, s := range batch {
			pairs[i] = engine.Pair{ScheduleID: s.ScheduleID, Vault: s.TokenVault}
		}

		var res *engine.CrankResult
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			var err error
			res, err = w.cfg.Engine.Crank(ctx, pairs, w.cfg.CollectorAccount)
			return err
		})
		if err != nil {
			// A collector misconfiguration fails every batch the same way, so
			// stop the cycle instead of hammering the store.
			return fmt.Errorf("failed to crank batch: %w", err)
		}
		processed += res.Processed
		attempted += res.Attempted
	}

	w.log.Info("crank: settlement cycle completed",
		"attempted", attempted,
		"processed", processed,
		"duration", time.Since(start).String(),
	)
	return nil
}

func batches(schedules []vesting.Schedule, size int) func(yield func([]vesting.Schedule) bool) {
	return func(yield func([]vesting.Schedule) bool) {
		for start := 0; start < len(schedules); start += size {
			end := min(start+size, len(schedules))
			if !yield(schedules[start:end]) {
				return
			}
		}
	}
}

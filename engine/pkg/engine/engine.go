// Package engine implements the vesting operations: one-time initialization,
// admin-gated schedule creation, permissionless batched settlement, the
// timelocked collector rotation machine, and terminal schedule close. Each
// operation runs inside the store's atomic unit of work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// Config holds the engine configuration.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	DB     store.DB

	// ProgramID scopes all derived identities to this deployment.
	ProgramID solana.PublicKey

	// RotationDelay is the timelock between proposing and confirming a
	// collector rotation. Defaults to vesting.DefaultRotationDelay.
	RotationDelay time.Duration

	// MaxSchedulesPerCrank caps the pair list of a single crank call.
	// Defaults to vesting.MaxSchedulesPerCrank.
	MaxSchedulesPerCrank int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.DB == nil {
		return errors.New("db is required")
	}
	if c.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.RotationDelay == 0 {
		c.RotationDelay = vesting.DefaultRotationDelay
	}
	if c.MaxSchedulesPerCrank == 0 {
		c.MaxSchedulesPerCrank = vesting.MaxSchedulesPerCrank
	}
	return nil
}

// Engine executes vesting operations against a store.DB.
type Engine struct {
	log       *slog.Logger
	clock     clockwork.Clock
	db        store.DB
	programID solana.PublicKey

	rotationDelay time.Duration
	maxPairs      int
}

func New(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		log:           cfg.Logger,
		clock:         cfg.Clock,
		db:            cfg.DB,
		programID:     cfg.ProgramID,
		rotationDelay: cfg.RotationDelay,
		maxPairs:      cfg.MaxSchedulesPerCrank,
	}, nil
}

// Config returns the current program configuration.
func (e *Engine) Config(ctx context.Context) (*vesting.ProgramConfig, error) {
	return e.db.GetConfig(ctx)
}

// Schedule returns a schedule by id.
func (e *Engine) Schedule(ctx context.Context, id uint64) (*vesting.Schedule, error) {
	return e.db.GetSchedule(ctx, id)
}

// ScheduleRecord returns a schedule's fixed-layout record blob.
func (e *Engine) ScheduleRecord(ctx context.Context, id uint64) ([]byte, error) {
	return e.db.GetScheduleRecord(ctx, id)
}

// Unsettled lists initialized schedules that still hold unreleased tokens.
func (e *Engine) Unsettled(ctx context.Context, limit int) ([]vesting.Schedule, error) {
	return e.db.ListUnsettled(ctx, limit)
}

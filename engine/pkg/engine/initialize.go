package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/codec"
	"github.com/haiolabs/vesting/engine/pkg/keys"
	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// Initialize creates the program configuration singleton with the given admin,
// an unset distribution collector, and a zeroed schedule counter. Callable
// once per deployment.
func (e *Engine) Initialize(ctx context.Context, admin solana.PublicKey) error {
	if admin.IsZero() {
		return vesting.ErrInvalidAdmin
	}

	_, bump, err := keys.Config(e.programID)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	return e.db.InTx(ctx, func(tx store.DB) error {
		cfg := &vesting.ProgramConfig{Admin: admin, Bump: bump}
		record, err := codec.EncodeConfig(cfg)
		if err != nil {
			return err
		}
		if err := tx.InitConfig(ctx, cfg, record); err != nil {
			return err
		}

		e.log.Info("engine: program initialized", "admin", admin.String())
		return tx.AppendEvent(ctx, vesting.NewEvent(
			vesting.EventProgramInitialized, now,
			vesting.ProgramInitializedPayload{
				Admin:     admin.String(),
				Timestamp: now.Unix(),
			},
		))
	})
}

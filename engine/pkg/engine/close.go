package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// CloseSchedule reclaims a terminal schedule. Admin only. The schedule must
// have released its full allocation and its vault must be empty; the vault
// account and schedule record are removed.
func (e *Engine) CloseSchedule(ctx context.Context, caller solana.PublicKey, id uint64) error {
	now := e.clock.Now()
	err := e.db.InTx(ctx, func(tx store.DB) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Admin) {
			return vesting.ErrUnauthorized
		}

		s, err := tx.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		if !s.FullyReleased() {
			return vesting.ErrScheduleNotSettled
		}

		vault, err := tx.ReadAccount(ctx, s.TokenVault)
		if err != nil {
			return err
		}
		if vault.Balance != 0 {
			return vesting.ErrVaultNotEmpty
		}
		if err := tx.CloseAccount(ctx, s.TokenVault); err != nil {
			return err
		}
		if err := tx.DeleteSchedule(ctx, id); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, vesting.NewEvent(
			vesting.EventScheduleClosed, now,
			vesting.ScheduleClosedPayload{ScheduleID: id, Timestamp: now.Unix()},
		))
	})
	if err != nil {
		return err
	}

	e.log.Info("engine: schedule closed", "schedule_id", id)
	return nil
}

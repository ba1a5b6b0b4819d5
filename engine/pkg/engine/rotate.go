package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/codec"
	"github.com/haiolabs/vesting/engine/pkg/metrics"
	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// UpdateCollector is the single entry point of the collector rotation
// machine. Admin only. Behavior branches on the current state and the input:
//
//   - collector unset: the input becomes active immediately (bootstrap).
//   - input equals the pending collector: a confirm attempt; it succeeds at
//     or after the deadline and fails with ErrTimelockNotExpired before it.
//     Matching the pending address is always read as confirm intent, never as
//     a re-proposal that would push the deadline out.
//   - input equals the active collector: rejected, nothing to change.
//   - otherwise: a new proposal replacing any existing pending one, with
//     deadline now + rotation delay.
func (e *Engine) UpdateCollector(ctx context.Context, caller, input solana.PublicKey) error {
	if input.IsZero() {
		return vesting.ErrInvalidCollector
	}

	now := e.clock.Now()
	var phase string
	err := e.db.InTx(ctx, func(tx store.DB) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Admin) {
			return vesting.ErrUnauthorized
		}

		var ev vesting.Event
		switch {
		case !cfg.CollectorSet():
			phase = "bootstrap"
			old := cfg.DistributionCollector
			cfg.DistributionCollector = input
			cfg.PendingCollector = nil
			cfg.PendingCollectorDeadline = nil
			ev = vesting.NewEvent(vesting.EventCollectorUpdated, now,
				vesting.CollectorUpdatedPayload{
					Admin:     caller.String(),
					Old:       old.String(),
					New:       input.String(),
					Timestamp: now.Unix(),
				})

		case cfg.HasPending() && input.Equals(*cfg.PendingCollector):
			if now.Unix() < *cfg.PendingCollectorDeadline {
				return vesting.ErrTimelockNotExpired
			}
			phase = "confirm"
			old := cfg.DistributionCollector
			cfg.DistributionCollector = input
			cfg.PendingCollector = nil
			cfg.PendingCollectorDeadline = nil
			ev = vesting.NewEvent(vesting.EventCollectorUpdated, now,
				vesting.CollectorUpdatedPayload{
					Admin:     caller.String(),
					Old:       old.String(),
					New:       input.String(),
					Timestamp: now.Unix(),
				})

		case input.Equals(cfg.DistributionCollector):
			return vesting.ErrCollectorNotChanged

		default:
			phase = "propose"
			deadline := now.Add(e.rotationDelay).Unix()
			pending := input
			cfg.PendingCollector = &pending
			cfg.PendingCollectorDeadline = &deadline
			ev = vesting.NewEvent(vesting.EventCollectorUpdateProposed, now,
				vesting.CollectorUpdateProposedPayload{
					Admin:    caller.String(),
					Current:  cfg.DistributionCollector.String(),
					Proposed: input.String(),
					Deadline: deadline,
				})
		}

		record, err := codec.EncodeConfig(cfg)
		if err != nil {
			return err
		}
		if err := tx.SaveConfig(ctx, cfg, record); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return err
	}

	metrics.CollectorRotationsTotal.WithLabelValues(phase).Inc()
	e.log.Info("engine: collector rotation", "phase", phase, "input", input.String())
	return nil
}

package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/codec"
	"github.com/haiolabs/vesting/engine/pkg/keys"
	"github.com/haiolabs/vesting/engine/pkg/metrics"
	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// CreateScheduleParams are the caller-supplied schedule parameters.
type CreateScheduleParams struct {
	// ScheduleID must equal the config's current TotalSchedules; this rejects
	// id reuse, gaps, and creation races.
	ScheduleID uint64
	// Mint is the vested asset.
	Mint solana.PublicKey
	// FundingAccount is the token account the total amount is pulled from.
	// It must be owned by the caller and hold at least TotalAmount.
	FundingAccount solana.PublicKey

	TotalAmount      uint64
	CliffTime        int64
	VestingStartTime int64
	VestingEndTime   int64
	SourceCategory   vesting.SourceCategory
}

// CreateSchedule validates the parameters, derives the schedule and vault
// identities, funds the vault from the caller's account, and records the
// schedule, all inside one atomic unit. Admin only.
func (e *Engine) CreateSchedule(ctx context.Context, caller solana.PublicKey, p CreateScheduleParams) (*vesting.Schedule, error) {
	if p.TotalAmount == 0 {
		return nil, vesting.ErrInvalidAmount
	}
	if err := vesting.ValidateTimes(p.CliffTime, p.VestingStartTime, p.VestingEndTime); err != nil {
		return nil, err
	}
	if !p.SourceCategory.Valid() {
		return nil, vesting.ErrInvalidCategory
	}

	scheduleAddr, scheduleBump, err := keys.Schedule(e.programID, p.ScheduleID)
	if err != nil {
		return nil, err
	}
	vaultAddr, _, err := keys.Vault(e.programID, p.ScheduleID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	var created *vesting.Schedule
	err = e.db.InTx(ctx, func(tx store.DB) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Admin) {
			return vesting.ErrUnauthorized
		}
		if p.ScheduleID != cfg.TotalSchedules {
			return vesting.ErrScheduleIDConflict
		}
		if !cfg.CollectorSet() {
			return vesting.ErrCollectorNotSet
		}

		funding, err := tx.ReadAccount(ctx, p.FundingAccount)
		if err != nil {
			return err
		}
		if !funding.Owner.Equals(caller) {
			return vesting.ErrUnauthorized
		}
		if !funding.Mint.Equals(p.Mint) {
			return vesting.ErrMintMismatch
		}
		if funding.Balance < p.TotalAmount {
			return vesting.ErrInsufficientFunds
		}

		// The vault's owning authority is the schedule's derived identity, so
		// only settlement can move tokens out.
		if err := tx.CreateAccount(ctx, vaultAddr, p.Mint, scheduleAddr); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, p.FundingAccount, vaultAddr, caller, p.TotalAmount); err != nil {
			return err
		}

		s := &vesting.Schedule{
			ScheduleID:       p.ScheduleID,
			Mint:             p.Mint,
			TokenVault:       vaultAddr,
			Depositor:        funding.Owner,
			TotalAmount:      p.TotalAmount,
			CliffTime:        p.CliffTime,
			VestingStartTime: p.VestingStartTime,
			VestingEndTime:   p.VestingEndTime,
			SourceCategory:   p.SourceCategory,
			Initialized:      true,
			Bump:             scheduleBump,
		}
		record, err := codec.EncodeSchedule(s)
		if err != nil {
			return err
		}
		if err := tx.InsertSchedule(ctx, s, scheduleAddr, record); err != nil {
			return err
		}

		cfg.TotalSchedules++
		cfgRecord, err := codec.EncodeConfig(cfg)
		if err != nil {
			return err
		}
		if err := tx.SaveConfig(ctx, cfg, cfgRecord); err != nil {
			return err
		}

		if err := tx.AppendEvent(ctx, vesting.NewEvent(
			vesting.EventScheduleCreated, now,
			vesting.ScheduleCreatedPayload{
				ScheduleID:       s.ScheduleID,
				Depositor:        s.Depositor.String(),
				Mint:             s.Mint.String(),
				TotalAmount:      s.TotalAmount,
				CliffTime:        s.CliffTime,
				VestingStartTime: s.VestingStartTime,
				VestingEndTime:   s.VestingEndTime,
				SourceCategory:   s.SourceCategory.String(),
			},
		)); err != nil {
			return err
		}

		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SchedulesCreatedTotal.Inc()
	e.log.Info("engine: schedule created",
		"schedule_id", created.ScheduleID,
		"total_amount", created.TotalAmount,
		"category", created.SourceCategory.String(),
	)
	return created, nil
}

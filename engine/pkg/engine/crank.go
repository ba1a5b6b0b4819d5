package engine

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/haiolabs/vesting/engine/pkg/codec"
	"github.com/haiolabs/vesting/engine/pkg/keys"
	"github.com/haiolabs/vesting/engine/pkg/metrics"
	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// Pair references one schedule and its vault, in caller-supplied order.
type Pair struct {
	ScheduleID uint64
	Vault      solana.PublicKey
}

// PairStatus is the per-pair outcome of a crank call.
type PairStatus string

const (
	// PairProcessed means tokens moved and the counter advanced.
	PairProcessed PairStatus = "processed"
	// PairSkipped covers benign conditions: nothing transferable, already
	// settled, drained vault, or an interleaved settlement of the same
	// schedule.
	PairSkipped PairStatus = "skipped"
	// PairRejected covers validation failures that indicate incorrect or
	// malicious input for that pair.
	PairRejected PairStatus = "rejected"
)

// PairResult reports the outcome of one pair.
type PairResult struct {
	ScheduleID uint64     `json:"schedule_id"`
	Status     PairStatus `json:"status"`
	// Amount released by this pair; zero unless processed.
	Amount uint64 `json:"amount"`
	// Reason is the machine-readable code for a skip or rejection.
	Reason string `json:"reason,omitempty"`
}

// CrankResult summarizes one crank call.
type CrankResult struct {
	RunID     string       `json:"run_id"`
	Attempted int          `json:"attempted"`
	Processed int          `json:"processed"`
	Pairs     []PairResult `json:"pairs"`
}

// Crank settles a batch of schedule/vault pairs into the collector account.
// It is permissionless. Pairs are handled independently in caller order: a
// pair's validation failure rejects only that pair, benign conditions skip
// it, and completed pairs are never rolled back because a later pair failed.
// Only a platform failure aborts the whole call.
func (e *Engine) Crank(ctx context.Context, pairs []Pair, collectorAccount solana.PublicKey) (*CrankResult, error) {
	if len(pairs) == 0 {
		return nil, vesting.ErrInvalidPair
	}
	if len(pairs) > e.maxPairs {
		return nil, vesting.ErrTooManySchedules
	}

	start := e.clock.Now()
	res := &CrankResult{
		RunID:     uuid.New().String(),
		Attempted: len(pairs),
		Pairs:     make([]PairResult, 0, len(pairs)),
	}

	err := e.db.InTx(ctx, func(tx store.DB) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		if !cfg.CollectorSet() {
			return vesting.ErrCollectorNotSet
		}

		collector, err := tx.ReadAccount(ctx, collectorAccount)
		if err != nil {
			return err
		}
		if !collector.Owner.Equals(cfg.DistributionCollector) {
			return vesting.ErrCollectorAccountOwnerMismatch
		}

		for _, pair := range pairs {
			pr, err := e.settlePair(ctx, tx, pair, collector, res.RunID)
			if err != nil {
				return err
			}
			if pr.Status == PairProcessed {
				res.Processed++
			}
			res.Pairs = append(res.Pairs, pr)
		}
		return nil
	})
	if err != nil {
		metrics.CrankRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	for _, pr := range res.Pairs {
		metrics.CrankPairsTotal.WithLabelValues(string(pr.Status)).Inc()
		if pr.Status == PairProcessed {
			metrics.TokensReleasedTotal.Add(float64(pr.Amount))
		}
	}
	metrics.CrankRunsTotal.WithLabelValues("success").Inc()
	metrics.CrankDuration.Observe(e.clock.Since(start).Seconds())

	e.log.Info("engine: crank completed",
		"run_id", res.RunID,
		"attempted", res.Attempted,
		"processed", res.Processed,
	)
	return res, nil
}

// Skip reasons with no corresponding error code.
const (
	reasonNothingTransferable = "nothing_transferable"
	reasonVaultDrained        = "vault_drained"
	reasonConcurrentUpdate    = "concurrent_update"
)

func skip(id uint64, reason error) PairResult {
	return PairResult{ScheduleID: id, Status: PairSkipped, Reason: vesting.Code(reason)}
}

func skipReason(id uint64, reason string) PairResult {
	return PairResult{ScheduleID: id, Status: PairSkipped, Reason: reason}
}

func reject(id uint64, reason error) PairResult {
	return PairResult{ScheduleID: id, Status: PairRejected, Reason: vesting.Code(reason)}
}

// settlePair runs the per-pair settlement steps. A non-nil error means a
// platform failure that aborts the whole batch; pair-level conditions come
// back as skipped or rejected results.
func (e *Engine) settlePair(ctx context.Context, tx store.DB, pair Pair, collector store.Account, runID string) (PairResult, error) {
	now := e.clock.Now()

	s, err := tx.GetSchedule(ctx, pair.ScheduleID)
	if errors.Is(err, vesting.ErrScheduleNotFound) {
		return skip(pair.ScheduleID, err), nil
	}
	if err != nil {
		return PairResult{}, err
	}
	if !s.Initialized {
		return skip(pair.ScheduleID, vesting.ErrScheduleNotInitialized), nil
	}

	if !s.TokenVault.Equals(pair.Vault) {
		return reject(pair.ScheduleID, vesting.ErrVaultMismatch), nil
	}
	vault, err := tx.ReadAccount(ctx, pair.Vault)
	if errors.Is(err, vesting.ErrAccountNotFound) {
		return reject(pair.ScheduleID, err), nil
	}
	if err != nil {
		return PairResult{}, err
	}
	if err := keys.VerifySchedule(e.programID, s.ScheduleID, s.Bump, vault.Owner); err != nil {
		return reject(pair.ScheduleID, vesting.ErrVaultAuthorityMismatch), nil
	}
	if !vault.Mint.Equals(s.Mint) {
		return reject(pair.ScheduleID, vesting.ErrMintMismatch), nil
	}
	if !collector.Mint.Equals(s.Mint) {
		return reject(pair.ScheduleID, vesting.ErrCollectorAccountMintMismatch), nil
	}

	if s.FullyReleased() {
		return skip(pair.ScheduleID, vesting.ErrScheduleFullyReleased), nil
	}
	transferable, err := s.TransferableAmount(now.Unix())
	if err != nil {
		return reject(pair.ScheduleID, err), nil
	}
	if transferable == 0 {
		return skipReason(pair.ScheduleID, reasonNothingTransferable), nil
	}
	actual := min(transferable, vault.Balance)
	if actual == 0 {
		return skipReason(pair.ScheduleID, reasonVaultDrained), nil
	}

	// Concurrency guard: re-read the counter right before mutating. A
	// difference means another settlement of this schedule interleaved within
	// this call (for example a duplicate pair), so this pair must not release
	// again.
	released, err := tx.AmountReleased(ctx, s.ScheduleID)
	if err != nil {
		return PairResult{}, err
	}
	if released != s.AmountReleased {
		e.log.Warn("engine: crank pair skipped by concurrency guard",
			"schedule_id", s.ScheduleID, "observed", s.AmountReleased, "current", released)
		return skipReason(pair.ScheduleID, reasonConcurrentUpdate), nil
	}

	newCumulative, err := vesting.CheckedAdd(s.AmountReleased, actual)
	if err != nil {
		return reject(pair.ScheduleID, err), nil
	}

	authority, err := keys.ScheduleFromBump(e.programID, s.ScheduleID, s.Bump)
	if err != nil {
		return PairResult{}, err
	}
	if err := tx.Transfer(ctx, pair.Vault, collector.Address, authority, actual); err != nil {
		return PairResult{}, err
	}

	prior := s.AmountReleased
	s.AmountReleased = newCumulative
	record, err := codec.EncodeSchedule(s)
	if err != nil {
		return PairResult{}, err
	}
	if err := tx.UpdateAmountReleased(ctx, s.ScheduleID, prior, newCumulative, record); err != nil {
		if errors.Is(err, store.ErrStale) {
			return skipReason(pair.ScheduleID, reasonConcurrentUpdate), nil
		}
		return PairResult{}, err
	}

	ev := vesting.NewEvent(vesting.EventTokensReleased, now, vesting.TokensReleasedPayload{
		ScheduleID: s.ScheduleID,
		Amount:     actual,
		Cumulative: newCumulative,
		Recipient:  collector.Address.String(),
		Timestamp:  now.Unix(),
	})
	ev.CrankRunID = runID
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return PairResult{}, err
	}

	return PairResult{ScheduleID: s.ScheduleID, Status: PairProcessed, Amount: actual}, nil
}

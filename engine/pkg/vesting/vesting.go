// Package vesting holds the domain model for the vesting settlement engine:
// the program configuration singleton, per-allocation schedules, the pure
// unlock curve, the error taxonomy, and audit event payloads.
package vesting

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	// DefaultRotationDelay is the build-time default timelock between
	// proposing and confirming a collector rotation. Deployments override it
	// via engine config; test environments use much shorter values.
	DefaultRotationDelay = 48 * time.Hour

	// MaxSchedulesPerCrank is the hard upper bound on schedule/vault pairs a
	// single crank call may carry.
	MaxSchedulesPerCrank = 10
)

// ProgramConfig is the deployment singleton. It is created once by
// Initialize and mutated only by schedule creation (counter) and collector
// rotation (collector fields).
type ProgramConfig struct {
	// Admin has exclusive rights to create schedules and rotate the collector.
	Admin solana.PublicKey
	// DistributionCollector receives settled tokens. Zero means unset.
	DistributionCollector solana.PublicKey
	// PendingCollector is a proposed replacement awaiting its timelock.
	// It is set if and only if PendingCollectorDeadline is set.
	PendingCollector *solana.PublicKey
	// PendingCollectorDeadline is the unix time at or after which the
	// pending collector may be confirmed.
	PendingCollectorDeadline *int64
	// TotalSchedules counts created schedules and doubles as the next
	// schedule's required id.
	TotalSchedules uint64
	// Bump is the config PDA bump seed.
	Bump uint8
}

// CollectorSet reports whether a distribution collector is active.
func (c *ProgramConfig) CollectorSet() bool {
	return !c.DistributionCollector.IsZero()
}

// HasPending reports whether a collector rotation is awaiting its timelock.
func (c *ProgramConfig) HasPending() bool {
	return c.PendingCollector != nil && c.PendingCollectorDeadline != nil
}

// Schedule is one beneficiary allocation: a fixed pool of a single asset,
// held in a dedicated vault and released along a cliff + linear curve.
type Schedule struct {
	// ScheduleID equals ProgramConfig.TotalSchedules at creation time; ids
	// are gap-free and sequential.
	ScheduleID uint64
	// Mint identifies the vested asset.
	Mint solana.PublicKey
	// TokenVault is the dedicated custody account holding the undistributed
	// tokens. Its owning authority is the schedule's own derived identity.
	TokenVault solana.PublicKey
	// Depositor funded the schedule.
	Depositor solana.PublicKey
	// TotalAmount is the full lifetime allocation, fixed at creation.
	TotalAmount uint64
	// CliffTime, VestingStartTime, VestingEndTime satisfy
	// cliff <= start < end.
	CliffTime        int64
	VestingStartTime int64
	VestingEndTime   int64
	// AmountReleased is the cumulative amount moved out so far. It only
	// increases and never exceeds TotalAmount.
	AmountReleased uint64
	SourceCategory SourceCategory
	// Initialized guards against acting on a zeroed record.
	Initialized bool
	// Bump is the schedule PDA bump seed, needed to re-derive the schedule's
	// identity when authorizing vault transfers.
	Bump uint8
}

// FullyReleased reports whether the schedule reached its terminal state.
func (s *Schedule) FullyReleased() bool {
	return s.AmountReleased >= s.TotalAmount
}

// ValidateTimes checks the creation-time timestamp ordering invariant.
func ValidateTimes(cliff, start, end int64) error {
	if cliff > start || start >= end {
		return ErrInvalidTimestamps
	}
	return nil
}

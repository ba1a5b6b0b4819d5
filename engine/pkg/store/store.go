// Package store persists the program state: the config singleton, vesting
// schedules with their fixed-layout records, token custody accounts, and the
// append-only audit log. Two implementations share the same semantics: a
// Postgres ledger (the production platform) and an in-memory ledger for dev
// mode and unit tests.
package store

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// ErrStale is returned by UpdateAmountReleased when the expected prior value
// no longer matches, meaning another settlement of the same schedule committed in
// between. Callers treat this as a skip, not a failure.
var ErrStale = errors.New("amount released changed concurrently")

// Account is a custody account's observable state.
type Account struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Balance uint64
}

// Store holds the vesting program's own records.
type Store interface {
	// GetConfig returns the config singleton, or
	// vesting.ErrConfigNotInitialized.
	GetConfig(ctx context.Context) (*vesting.ProgramConfig, error)
	// InitConfig creates the singleton; vesting.ErrAlreadyInitialized if it
	// exists.
	InitConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error
	// SaveConfig overwrites the singleton's mutable fields.
	SaveConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error

	// InsertSchedule records a newly created schedule under its derived
	// address, along with its wire-layout record blob.
	InsertSchedule(ctx context.Context, s *vesting.Schedule, address solana.PublicKey, record []byte) error
	// GetSchedule returns a schedule by id, or vesting.ErrScheduleNotFound.
	GetSchedule(ctx context.Context, id uint64) (*vesting.Schedule, error)
	// GetScheduleByAddress resolves a schedule by its derived address.
	GetScheduleByAddress(ctx context.Context, address solana.PublicKey) (*vesting.Schedule, error)
	// GetScheduleRecord returns the stored wire-layout record blob.
	GetScheduleRecord(ctx context.Context, id uint64) ([]byte, error)
	// AmountReleased re-reads only the cumulative released counter.
	AmountReleased(ctx context.Context, id uint64) (uint64, error)
	// UpdateAmountReleased advances the released counter from an expected
	// prior value, persisting the refreshed record blob. Returns ErrStale if
	// the prior value no longer matches.
	UpdateAmountReleased(ctx context.Context, id uint64, from, to uint64, record []byte) error
	// DeleteSchedule removes a closed schedule.
	DeleteSchedule(ctx context.Context, id uint64) error
	// ListUnsettled returns initialized schedules that have not yet released
	// their full allocation, in id order. A limit of 0 means no limit.
	ListUnsettled(ctx context.Context, limit int) ([]vesting.Schedule, error)

	// AppendEvent records one audit event.
	AppendEvent(ctx context.Context, ev vesting.Event) error
}

// TokenCustody is the consumed boundary to the platform that holds balances
// and moves tokens. Transfers require the authority to match the source
// account's owner; for vaults that owner is a derived identity the engine
// proves by recomputation.
type TokenCustody interface {
	// CreateAccount registers an empty custody account.
	CreateAccount(ctx context.Context, address, mint, owner solana.PublicKey) error
	// Deposit credits an account out-of-band (bridge-in/faucet boundary).
	Deposit(ctx context.Context, address solana.PublicKey, amount uint64) error
	// ReadAccount returns balance, owner, and mint, or
	// vesting.ErrAccountNotFound.
	ReadAccount(ctx context.Context, address solana.PublicKey) (Account, error)
	// Transfer moves amount from one account to another, authorized by the
	// source owner's identity.
	Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error
	// CloseAccount removes an account; vesting.ErrVaultNotEmpty if a balance
	// remains.
	CloseAccount(ctx context.Context, address solana.PublicKey) error
}

// DB is the platform's atomic unit of work: every engine operation runs its
// reads and writes inside one InTx call, which either commits completely or
// leaves no effect.
type DB interface {
	Store
	TokenCustody

	InTx(ctx context.Context, fn func(tx DB) error) error
}

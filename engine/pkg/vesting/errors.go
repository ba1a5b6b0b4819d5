package vesting

import "errors"

// Kind classifies errors so callers (and the HTTP layer) can branch without
// matching individual sentinels.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthorization: caller lacks the required identity.
	KindAuthorization
	// KindValidation: malformed parameters or mismatched accounts.
	KindValidation
	// KindState: the operation is not valid in the current state.
	KindState
	// KindArithmetic: checked integer math overflowed or underflowed.
	KindArithmetic
	// KindResource: input shape violations (too many pairs, malformed list).
	KindResource
)

var (
	ErrUnauthorized = errors.New("unauthorized: admin privilege required")

	ErrInvalidAdmin       = errors.New("admin address must not be the zero address")
	ErrInvalidAmount      = errors.New("total amount must be greater than zero")
	ErrInvalidTimestamps  = errors.New("cliff must be at or before vesting start, and vesting start must be before vesting end")
	ErrInvalidCollector   = errors.New("collector address must not be the zero address")
	ErrInvalidCategory    = errors.New("unknown source category")
	ErrScheduleIDConflict = errors.New("schedule id does not match the next expected id")

	ErrMintMismatch                  = errors.New("mint does not match the schedule's mint")
	ErrVaultMismatch                 = errors.New("vault does not match the schedule's vault")
	ErrVaultAuthorityMismatch        = errors.New("vault authority does not match the schedule's derived identity")
	ErrCollectorAccountMintMismatch  = errors.New("collector token account is not for the schedule's mint")
	ErrCollectorAccountOwnerMismatch = errors.New("collector token account is not owned by the distribution collector")

	ErrAlreadyInitialized     = errors.New("program config already initialized")
	ErrConfigNotInitialized   = errors.New("program config not initialized")
	ErrCollectorNotSet        = errors.New("distribution collector is not set")
	ErrTimelockNotExpired     = errors.New("timelock for collector update has not expired")
	ErrCollectorNotChanged    = errors.New("proposed collector is already the active collector")
	ErrScheduleNotInitialized = errors.New("vesting schedule is not initialized")
	ErrScheduleFullyReleased  = errors.New("schedule is already fully released")
	ErrScheduleNotSettled     = errors.New("schedule has not released its full allocation")
	ErrVaultNotEmpty          = errors.New("vault balance must be zero")
	ErrInsufficientFunds      = errors.New("insufficient funds in source account")
	ErrScheduleNotFound       = errors.New("vesting schedule not found")
	ErrAccountNotFound        = errors.New("token account not found")
	ErrAccountExists          = errors.New("token account already exists")

	ErrMathOverflow = errors.New("math operation overflow")

	ErrTooManySchedules = errors.New("pair count exceeds the per-crank maximum")
	ErrInvalidPair      = errors.New("malformed schedule/vault pair")
)

// KindOf reports the taxonomy bucket an error belongs to. Wrapped errors are
// unwrapped via errors.Is.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrInvalidAdmin),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidTimestamps),
		errors.Is(err, ErrInvalidCollector),
		errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrScheduleIDConflict),
		errors.Is(err, ErrMintMismatch),
		errors.Is(err, ErrVaultMismatch),
		errors.Is(err, ErrVaultAuthorityMismatch),
		errors.Is(err, ErrCollectorAccountMintMismatch),
		errors.Is(err, ErrCollectorAccountOwnerMismatch),
		errors.Is(err, ErrScheduleNotFound),
		errors.Is(err, ErrAccountNotFound):
		return KindValidation
	case errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrConfigNotInitialized),
		errors.Is(err, ErrCollectorNotSet),
		errors.Is(err, ErrTimelockNotExpired),
		errors.Is(err, ErrCollectorNotChanged),
		errors.Is(err, ErrScheduleNotInitialized),
		errors.Is(err, ErrScheduleFullyReleased),
		errors.Is(err, ErrScheduleNotSettled),
		errors.Is(err, ErrVaultNotEmpty),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAccountExists):
		return KindState
	case errors.Is(err, ErrMathOverflow):
		return KindArithmetic
	case errors.Is(err, ErrTooManySchedules), errors.Is(err, ErrInvalidPair):
		return KindResource
	default:
		return KindUnknown
	}
}

// Code returns a stable machine-readable code for an error, suitable for API
// responses. Unknown errors map to "internal".
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidAdmin, "invalid_admin"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidTimestamps, "invalid_timestamps"},
	{ErrInvalidCollector, "invalid_collector"},
	{ErrInvalidCategory, "invalid_category"},
	{ErrScheduleIDConflict, "schedule_id_conflict"},
	{ErrMintMismatch, "mint_mismatch"},
	{ErrVaultMismatch, "vault_mismatch"},
	{ErrVaultAuthorityMismatch, "vault_authority_mismatch"},
	{ErrCollectorAccountMintMismatch, "collector_account_mint_mismatch"},
	{ErrCollectorAccountOwnerMismatch, "collector_account_owner_mismatch"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrConfigNotInitialized, "config_not_initialized"},
	{ErrCollectorNotSet, "collector_not_set"},
	{ErrTimelockNotExpired, "timelock_not_expired"},
	{ErrCollectorNotChanged, "collector_not_changed"},
	{ErrScheduleNotInitialized, "schedule_not_initialized"},
	{ErrScheduleFullyReleased, "schedule_fully_released"},
	{ErrScheduleNotSettled, "schedule_not_settled"},
	{ErrVaultNotEmpty, "vault_not_empty"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrScheduleNotFound, "schedule_not_found"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrAccountExists, "account_exists"},
	{ErrMathOverflow, "math_overflow"},
	{ErrTooManySchedules, "too_many_schedules"},
	{ErrInvalidPair, "invalid_pair"},
}

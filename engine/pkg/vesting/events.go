package vesting

import (
	"time"

	"github.com/google/uuid"
)

// Event is one append-only audit record, emitted once per state-changing
// operation and persisted alongside the state it describes.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// CrankRunID ties settlement events back to the crank call that produced
	// them; empty for non-settlement events.
	CrankRunID string `json:"crank_run_id,omitempty"`
	Payload    any    `json:"payload"`
}

const (
	EventProgramInitialized      = "program_initialized"
	EventScheduleCreated         = "schedule_created"
	EventTokensReleased          = "tokens_released"
	EventCollectorUpdateProposed = "collector_update_proposed"
	EventCollectorUpdated        = "collector_updated"
	EventScheduleClosed          = "schedule_closed"
)

// NewEvent stamps a fresh audit record.
func NewEvent(typ string, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

type ProgramInitializedPayload struct {
	Admin     string `json:"admin"`
	Timestamp int64  `json:"timestamp"`
}

type ScheduleCreatedPayload struct {
	ScheduleID       uint64 `json:"schedule_id"`
	Depositor        string `json:"depositor"`
	Mint             string `json:"mint"`
	TotalAmount      uint64 `json:"total_amount"`
	CliffTime        int64  `json:"cliff_time"`
	VestingStartTime int64  `json:"vesting_start_time"`
	VestingEndTime   int64  `json:"vesting_end_time"`
	SourceCategory   string `json:"source_category"`
}

type TokensReleasedPayload struct {
	ScheduleID uint64 `json:"schedule_id"`
	Amount     uint64 `json:"amount"`
	Cumulative uint64 `json:"cumulative"`
	Recipient  string `json:"recipient"`
	Timestamp  int64  `json:"timestamp"`
}

type CollectorUpdateProposedPayload struct {
	Admin    string `json:"admin"`
	Current  string `json:"current"`
	Proposed string `json:"proposed"`
	Deadline int64  `json:"deadline"`
}

type CollectorUpdatedPayload struct {
	Admin     string `json:"admin"`
	Old       string `json:"old"`
	New       string `json:"new"`
	Timestamp int64  `json:"timestamp"`
}

type ScheduleClosedPayload struct {
	ScheduleID uint64 `json:"schedule_id"`
	Timestamp  int64  `json:"timestamp"`
}

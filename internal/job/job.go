package job

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kind identifies what a claimed job does.
type Kind string

const (
	// KindBackfill fetches the maximal daily history for a symbol. Created
	// as a follow-up when cached coverage is narrower than a requested range.
	KindBackfill Kind = "backfill"
	// KindDailyAppend fetches bars since the symbol's last cached date.
	KindDailyAppend Kind = "daily_append"
)

// Queue tiers. Lower numbers are claimed first, so follow-ups for live
// requests jump ahead of scheduled appends. Within a tier, jobs run in
// creation order.
const (
	PriorityInteractive = 0
	PriorityDaily       = 1
)

type Job struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	Symbol       string    `json:"symbol"`
	Kind         Kind      `json:"kind"`
	Priority     int       `json:"priority"`
	StartDate    time.Time `json:"startDate,omitzero"`
	Status       Status    `json:"status"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
	RecordsCount int64     `json:"recordsCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

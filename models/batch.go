package models

import "time"

// ItemState is the lifecycle position of a single item in a batch run
type ItemState string

const (
	// StatePending means the item is queued but no worker has picked it up
	StatePending ItemState = "pending"

	// StateAttempting means a worker is running attempts for the item
	StateAttempting ItemState = "attempting"

	// StateSucceeded means an attempt produced the artifact
	StateSucceeded ItemState = "succeeded"

	// StateFailed means every allowed attempt failed (permanent failure)
	StateFailed ItemState = "failed"
)

// String returns the string representation of ItemState
func (s ItemState) String() string {
	return string(s)
}

// IsTerminal returns true once the item can no longer change state
func (s ItemState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ItemResult is the final outcome of one item
type ItemResult struct {
	Item      string
	State     ItemState
	Attempts  int
	File      string // artifact file name, set on success
	LastError string // error of the last failed attempt
	Duration  time.Duration
}

// Succeeded reports whether the item ended in StateSucceeded
func (r ItemResult) Succeeded() bool {
	return r.State == StateSucceeded
}

// BatchResult aggregates one invocation of the orchestrator.
// Results are kept in completion order, not submission order.
type BatchResult struct {
	RunID      string
	OutputDir  string
	Total      int
	Succeeded  int
	Failed     int
	Results    []ItemResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Record adds a terminal item result and bumps the matching counter
func (b *BatchResult) Record(r ItemResult) {
	b.Results = append(b.Results, r)
	if r.Succeeded() {
		b.Succeeded++
	} else {
		b.Failed++
	}
}

// FailedItems returns the identifiers of permanently failed items
func (b *BatchResult) FailedItems() []string {
	var items []string
	for _, r := range b.Results {
		if !r.Succeeded() {
			items = append(items, r.Item)
		}
	}
	return items
}

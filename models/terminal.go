package models

import "time"

// TerminalRecord is one satellite terminal row as exposed by the API and
// consumed by the report.
type TerminalRecord struct {
	Label    string `json:"label"`
	StableID string `json:"stable_id,omitempty"`
	State    string `json:"state"` // ONLINE, OFFLINE, WARNING or UNKNOWN
}

// RunWarning is a non-fatal condition observed during an extraction run.
type RunWarning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RunFailure is the sentinel entry of a failed run.
type RunFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TerminalRun is the transport form of one extraction run.
type TerminalRun struct {
	Records       []TerminalRecord `json:"records"`
	ExpectedTotal int              `json:"expected_total"`
	ActualTotal   int              `json:"actual_total"`
	PagesVisited  int              `json:"pages_visited"`
	Warnings      []RunWarning     `json:"warnings,omitempty"`
	Failure       *RunFailure      `json:"failure,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	DurationMs    int64            `json:"duration_ms"`
}

// CountState returns how many records are in state.
func (r *TerminalRun) CountState(state string) int {
	n := 0
	for _, rec := range r.Records {
		if rec.State == state {
			n++
		}
	}
	return n
}

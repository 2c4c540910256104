package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/statuswatch/models"
)

// State is the classified health of one terminal. The zero value is
// StateUnknown, so a record can never carry an absent state.
type State int

const (
	StateUnknown State = iota
	StateOnline
	StateOffline
	StateWarning
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "ONLINE"
	case StateOffline:
		return "OFFLINE"
	case StateWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// States lists every state in display order.
var States = []State{StateOnline, StateOffline, StateWarning, StateUnknown}

// ExtractedRecord is one accepted table row. Records are only built by the
// row extractor and never change afterwards.
type ExtractedRecord struct {
	label    string
	stableID string
	state    State
}

func (r ExtractedRecord) Label() string    { return r.label }
func (r ExtractedRecord) StableID() string { return r.stableID }
func (r ExtractedRecord) State() State     { return r.state }

func (r ExtractedRecord) String() string {
	if r.stableID == "" {
		return fmt.Sprintf("%s [%s]", r.label, r.state)
	}
	return fmt.Sprintf("%s (%s) [%s]", r.label, r.stableID, r.state)
}

// DTO converts the record to its API/report form.
func (r ExtractedRecord) DTO() models.TerminalRecord {
	return models.TerminalRecord{
		Label:    r.label,
		StableID: r.stableID,
		State:    r.state.String(),
	}
}

func (r ExtractedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.DTO())
}

// WarningKind names a non-fatal condition observed during a run.
type WarningKind string

const (
	WarningFilterApplication WarningKind = "FILTER_APPLICATION"
	WarningPaginationStall   WarningKind = "PAGINATION_STALL"
	WarningTotalMismatch     WarningKind = "TOTAL_MISMATCH"
	WarningRowExtraction     WarningKind = "ROW_EXTRACTION"
)

// Warning is a non-fatal condition surfaced to the caller.
type Warning struct {
	Kind    WarningKind
	Message string
}

// Failure is the sentinel entry of a run that produced no usable data.
type Failure struct {
	Code    string
	Message string
}

// failureMessageLimit bounds the sentinel message so it fits a table cell.
const failureMessageLimit = 80

// RunResult is what one engine run hands to the document builder.
type RunResult struct {
	Records       []ExtractedRecord
	ExpectedTotal int
	ActualTotal   int
	PagesVisited  int
	Warnings      []Warning
	Failure       *Failure
	StartedAt     time.Time
	Duration      time.Duration
}

// Failed reports whether the run ended at the failure boundary.
func (r *RunResult) Failed() bool { return r.Failure != nil }

// Count returns the number of records in state s.
func (r *RunResult) Count(s State) int {
	n := 0
	for _, rec := range r.Records {
		if rec.state == s {
			n++
		}
	}
	return n
}

// Incomplete reports whether fewer records were emitted than the portal announced.
func (r *RunResult) Incomplete() bool {
	return r.ActualTotal < r.ExpectedTotal
}

func (r *RunResult) warn(kind WarningKind, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// fail replaces whatever the run collected with the sentinel failure entry.
func (r *RunResult) fail(err error) {
	r.Records = nil
	r.ActualTotal = 0
	r.Failure = &Failure{
		Code:    models.CodeOf(err),
		Message: truncate(failureMessage(err), failureMessageLimit),
	}
}

// Snapshot converts the result into the transport form used by the API,
// the cache and the report.
func (r *RunResult) Snapshot() *models.TerminalRun {
	run := &models.TerminalRun{
		Records:       make([]models.TerminalRecord, 0, len(r.Records)),
		ExpectedTotal: r.ExpectedTotal,
		ActualTotal:   r.ActualTotal,
		PagesVisited:  r.PagesVisited,
		StartedAt:     r.StartedAt,
		DurationMs:    r.Duration.Milliseconds(),
	}
	for _, rec := range r.Records {
		run.Records = append(run.Records, rec.DTO())
	}
	for _, w := range r.Warnings {
		run.Warnings = append(run.Warnings, models.RunWarning{Kind: string(w.Kind), Message: w.Message})
	}
	if r.Failure != nil {
		run.Failure = &models.RunFailure{Code: r.Failure.Code, Message: r.Failure.Message}
	}
	return run
}

func failureMessage(err error) string {
	var xe *models.ExtractError
	if errors.As(err, &xe) {
		if xe.Err != nil {
			return xe.Message + ": " + xe.Err.Error()
		}
		return xe.Message
	}
	return err.Error()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

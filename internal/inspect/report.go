// Package inspect analyzes recorded steps: reward decomposition consistency
// and observation schema.
//
// Analyzers never fail the caller. Contract violations are collected as
// Mismatches in a Report, so a single bad step cannot abort a diagnostic run.
package inspect

import (
	"fmt"

	"github.com/roach88/envprobe/internal/env"
)

// Status summarizes a report.
type Status string

const (
	StatusPass         Status = "pass"
	StatusMismatch     Status = "mismatch"
	StatusNotAvailable Status = "not_available"
)

// Mismatch is one contract violation found in the data.
type Mismatch struct {
	// Step is the 1-based step number within the episode.
	Step int `json:"step"`

	// Index is the vector position involved, or -1.
	Index int `json:"index"`

	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (m Mismatch) String() string {
	if m.Index >= 0 {
		return fmt.Sprintf("step %d: %s[%d]: expected %s, got %s", m.Step, m.Field, m.Index, m.Expected, m.Actual)
	}
	return fmt.Sprintf("step %d: %s: expected %s, got %s", m.Step, m.Field, m.Expected, m.Actual)
}

// Report is the outcome of one analyzer.
type Report struct {
	Check        string     `json:"check"`
	Status       Status     `json:"status"`
	StepsChecked int        `json:"steps_checked"`
	Mismatches   []Mismatch `json:"mismatches,omitempty"`
	Notes        []string   `json:"notes,omitempty"`

	// Reward decomposition detail.
	ComponentNames []string       `json:"component_names,omitempty"`
	Rows           []ComponentRow `json:"rows,omitempty"`

	// Observation detail.
	Labeled []LabeledValue `json:"labeled,omitempty"`
	Ranges  []Range        `json:"ranges,omitempty"`
}

func newReport(check string) *Report {
	return &Report{Check: check, Status: StatusPass}
}

// AddMismatch records a violation and marks the report failed.
func (r *Report) AddMismatch(m Mismatch) {
	r.Mismatches = append(r.Mismatches, m)
	r.Status = StatusMismatch
}

// AddNote records an informational message.
func (r *Report) AddNote(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Pass reports whether no mismatch was found.
func (r *Report) Pass() bool {
	return r.Status != StatusMismatch
}

// Err returns a validation error summarizing the mismatches, or nil.
func (r *Report) Err() error {
	if len(r.Mismatches) == 0 {
		return nil
	}
	return env.NewValidationError(r.Check, fmt.Sprintf("%d mismatches, first: %s", len(r.Mismatches), r.Mismatches[0]))
}

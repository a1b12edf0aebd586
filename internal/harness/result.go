package harness

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Status is the outcome of a property or a check.
type Status string

const (
	StatusPass         Status = "pass"
	StatusMismatch     Status = "mismatch"
	StatusError        Status = "error"
	StatusNotAvailable Status = "not_available"
)

// Property is one checked statement with its own verdict.
type Property struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Detail is one line of supporting data. Order is preserved.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Status     Status     `json:"status"`
	Properties []Property `json:"properties"`
	Errors     []string   `json:"errors,omitempty"`
	Details    []Detail   `json:"details,omitempty"`
}

// numbers formats counts and measurements in reports.
var numbers = message.NewPrinter(language.English)

func newCheckResult(c Check) *CheckResult {
	return &CheckResult{Name: c.Name, Type: c.Type, Status: StatusPass, Properties: []Property{}}
}

// AddProperty records a property verdict.
func (r *CheckResult) AddProperty(name string, status Status, detail string) {
	r.Properties = append(r.Properties, Property{Name: name, Status: status, Detail: detail})
	r.Status = r.verdict()
}

// AddError records a hard failure.
func (r *CheckResult) AddError(err error) {
	r.Errors = append(r.Errors, err.Error())
	r.Status = StatusError
}

// AddDetail appends a formatted detail line.
func (r *CheckResult) AddDetail(key, format string, args ...any) {
	r.Details = append(r.Details, Detail{Key: key, Value: numbers.Sprintf(format, args...)})
}

// verdict is error if anything errored, else mismatch if any property
// mismatched, else not_available if nothing could be checked, else pass.
func (r *CheckResult) verdict() Status {
	if len(r.Errors) > 0 {
		return StatusError
	}
	available := 0
	mismatch := false
	for _, p := range r.Properties {
		switch p.Status {
		case StatusError:
			return StatusError
		case StatusMismatch:
			mismatch = true
		}
		if p.Status != StatusNotAvailable {
			available++
		}
	}
	switch {
	case mismatch:
		return StatusMismatch
	case available == 0 && len(r.Properties) > 0:
		return StatusNotAvailable
	default:
		return StatusPass
	}
}

// Result is the outcome of a suite run.
type Result struct {
	Suite       string `json:"suite"`
	Environment string `json:"environment"`

	// Pass is true when every check passed or was not available.
	Pass bool `json:"pass"`

	// HardFailure is true when any check hit an interaction, resource or
	// configuration error.
	HardFailure bool `json:"hard_failure"`

	Checks []CheckResult `json:"checks"`
}

// NewResult creates a passing result.
func NewResult(suite, environment string) *Result {
	return &Result{Suite: suite, Environment: environment, Pass: true, Checks: []CheckResult{}}
}

// AddCheck appends a check outcome and updates the run verdicts.
func (r *Result) AddCheck(c CheckResult) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case StatusMismatch:
		r.Pass = false
	case StatusError:
		r.Pass = false
		r.HardFailure = true
	}
}

// Counts returns how many checks ended in each status.
func (r *Result) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, c := range r.Checks {
		counts[c.Status]++
	}
	return counts
}

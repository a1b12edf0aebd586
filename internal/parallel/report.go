package parallel

import (
	"fmt"

	"github.com/roach88/envprobe/internal/env"
)

// State is a checker lifecycle state.
type State string

const (
	StateIdle            State = "idle"
	StateWorkersStarting State = "workers_starting"
	StateRoundRunning    State = "round_running"
	StateStopping        State = "stopping"
	StateAborting        State = "aborting"
	StateClosed          State = "closed"
)

// Worker phases reported in failures.
const (
	PhaseCreate    = "create"
	PhaseReset     = "reset"
	PhaseStep      = "step"
	PhaseClose     = "close"
	PhaseReference = "reference"
	PhaseRound     = "round"
)

// WorkerResult is one worker's slot in a round.
type WorkerResult struct {
	WorkerID    int             `json:"worker_id"`
	Observation env.Observation `json:"observation"`
	Reward      float64         `json:"reward"`
	Done        bool            `json:"done"`
	Truncated   bool            `json:"truncated"`

	// Reset is set when the worker reset itself after the episode ended.
	Reset bool `json:"reset,omitempty"`

	Phase string `json:"phase,omitempty"`
	Err   error  `json:"-"`
}

// Failure describes the error that aborted a run, or a close failure.
type Failure struct {
	// WorkerID is -1 when the failure is not tied to a worker.
	WorkerID int `json:"worker_id"`

	// Round is 0 while workers start.
	Round int `json:"round"`

	Phase   string `json:"phase"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

func newFailure(workerID, round int, phase string, err error) *Failure {
	return &Failure{
		WorkerID: workerID,
		Round:    round,
		Phase:    phase,
		Kind:     fmt.Sprintf("%T", env.RootCause(err)),
		Message:  err.Error(),
		Trace:    env.TraceOf(err),
	}
}

// WorkerError is returned by Checker.Run when a worker fails.
type WorkerError struct {
	Failure Failure
	Err     error
}

func (e *WorkerError) Error() string {
	if e.Failure.WorkerID < 0 {
		return fmt.Sprintf("parallel check aborted in round %d: %v", e.Failure.Round, e.Err)
	}
	return fmt.Sprintf("worker %d failed during %s in round %d: %v", e.Failure.WorkerID, e.Failure.Phase, e.Failure.Round, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// WorkerSummary is the running bookkeeping of one worker.
type WorkerSummary struct {
	WorkerID           int             `json:"worker_id"`
	Seed               int64           `json:"seed"`
	InitialObservation env.Observation `json:"initial_observation,omitempty"`
	TotalReward        float64         `json:"total_reward"`
	Steps              int             `json:"steps"`

	// Episodes counts completed episodes.
	Episodes int `json:"episodes"`

	// Rewards is the per-round reward trajectory.
	Rewards []float64 `json:"rewards,omitempty"`
}

// Report is the outcome of a parallel check. It is returned even when the run
// aborts.
type Report struct {
	NumWorkers      int             `json:"num_workers"`
	Rounds          int             `json:"rounds"`
	RoundsCompleted int             `json:"rounds_completed"`
	States          []State         `json:"states"`
	Workers         []WorkerSummary `json:"workers"`

	// Mismatches lists isolation violations. They do not abort the run.
	Mismatches []string `json:"mismatches,omitempty"`

	Aborted     bool      `json:"aborted"`
	Failure     *Failure  `json:"failure,omitempty"`
	CloseErrors []Failure `json:"close_errors,omitempty"`
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

// State returns the last state entered.
func (r *Report) State() State {
	if len(r.States) == 0 {
		return StateIdle
	}
	return r.States[len(r.States)-1]
}

// Pass reports whether all rounds completed and no isolation violation was
// found.
func (r *Report) Pass() bool {
	return !r.Aborted && len(r.Mismatches) == 0
}

// MismatchErr returns a validation error for isolation violations, or nil.
func (r *Report) MismatchErr() error {
	if len(r.Mismatches) == 0 {
		return nil
	}
	return env.NewValidationError("parallel", fmt.Sprintf("%d isolation violations, first: %s", len(r.Mismatches), r.Mismatches[0]))
}

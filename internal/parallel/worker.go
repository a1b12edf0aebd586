package parallel

import (
	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/rollout"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStep
)

// command asks a worker to fill slot and then report its id on done.
type command struct {
	kind commandKind
	slot *WorkerResult
	done chan<- int
}

// worker owns one handle. Only its goroutine touches handle, spec and policy.
type worker struct {
	id     int
	seed   int64
	cmds   chan command
	exited chan error

	handle env.Handle
	policy rollout.Policy
	spec   env.Spec
}

func newWorker(id int, seed int64, h env.Handle, policy rollout.Policy) *worker {
	return &worker{
		id:     id,
		seed:   seed,
		cmds:   make(chan command, 1),
		exited: make(chan error, 1),
		handle: h,
		policy: policy,
	}
}

// loop serves commands until cmds is closed, then closes the handle.
func (w *worker) loop() {
	for cmd := range w.cmds {
		*cmd.slot = w.serve(cmd.kind)
		cmd.done <- w.id
	}
	w.exited <- env.Interact("close", w.handle.Close)
}

func (w *worker) serve(kind commandKind) WorkerResult {
	switch kind {
	case cmdStart:
		return w.start()
	default:
		return w.step()
	}
}

func (w *worker) start() WorkerResult {
	res := WorkerResult{WorkerID: w.id}

	w.spec = w.handle.Spec()
	if err := w.spec.Validate(); err != nil {
		res.Phase, res.Err = PhaseCreate, err
		return res
	}
	if err := w.policy.Validate(w.spec); err != nil {
		res.Phase, res.Err = PhaseCreate, err
		return res
	}

	err := env.Interact("reset", func() error {
		obs, _, err := w.handle.Reset(env.Seed(w.seed))
		res.Observation = obs
		return err
	})
	if err != nil {
		res.Phase, res.Err = PhaseReset, err
	}
	return res
}

func (w *worker) step() WorkerResult {
	res := WorkerResult{WorkerID: w.id}

	action := w.policy.Action(w.spec)
	var out env.StepResult
	err := env.Interact("step", func() error {
		var err error
		out, err = w.handle.Step(action)
		return err
	})
	if err != nil {
		res.Phase, res.Err = PhaseStep, err
		return res
	}
	res.Observation = out.Observation
	res.Reward = out.Reward
	res.Done = out.Terminated
	res.Truncated = out.Truncated

	if out.Done() {
		err := env.Interact("reset", func() error {
			_, _, err := w.handle.Reset(nil)
			return err
		})
		if err != nil {
			res.Phase, res.Err = PhaseReset, err
			return res
		}
		res.Reset = true
	}
	return res
}

package parallel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/rollout"
)

var errNilHandle = errors.New("factory returned a nil handle")

// Checker runs NumWorkers handles in synchronized rounds.
type Checker struct {
	// Factory creates one independent handle per worker. Required.
	Factory env.Factory

	// Options is passed to every Factory call.
	Options env.Options

	NumWorkers int

	// Seeds holds one distinct reset seed per worker.
	Seeds []int64

	Rounds int

	// PolicySeed seeds worker i's random policy with PolicySeed+i.
	PolicySeed int64

	// VerifyReference re-creates a standalone handle per seed and requires
	// its initial observation to equal the pooled worker's.
	VerifyReference bool

	Logger *slog.Logger
}

// DefaultSeeds returns the seeds 0..n-1.
func DefaultSeeds(n int) []int64 {
	return rollout.Seeds(0, n)
}

func (c *Checker) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c *Checker) validate() error {
	if c.Factory == nil {
		return env.NewConfigurationError("parallel", "no environment factory")
	}
	if c.NumWorkers <= 0 {
		return env.NewConfigurationError("parallel", fmt.Sprintf("num workers must be positive, got %d", c.NumWorkers))
	}
	if c.Rounds < 0 {
		return env.NewConfigurationError("parallel", fmt.Sprintf("rounds must be non-negative, got %d", c.Rounds))
	}
	if len(c.Seeds) != c.NumWorkers {
		return env.NewConfigurationError("parallel", fmt.Sprintf("%d seeds for %d workers", len(c.Seeds), c.NumWorkers))
	}
	seen := make(map[int64]int, len(c.Seeds))
	for i, s := range c.Seeds {
		if j, ok := seen[s]; ok {
			return env.NewConfigurationError("parallel", fmt.Sprintf("workers %d and %d share seed %d", j, i, s))
		}
		seen[s] = i
	}
	return nil
}

// run carries the state of one Run call.
type run struct {
	*Checker
	log     *slog.Logger
	report  *Report
	workers []*worker

	// busy marks workers that have not answered the current command.
	busy []bool
}

// Run executes the check. Configuration errors return a nil report. Any
// other failure returns the report together with a *WorkerError.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	r := &run{
		Checker: c,
		log:     c.logger(),
		report: &Report{
			NumWorkers: c.NumWorkers,
			Rounds:     c.Rounds,
			Workers:    make([]WorkerSummary, c.NumWorkers),
		},
		workers: make([]*worker, 0, c.NumWorkers),
		busy:    make([]bool, c.NumWorkers),
	}
	for i := range r.report.Workers {
		r.report.Workers[i] = WorkerSummary{WorkerID: i, Seed: c.Seeds[i]}
	}
	r.report.enter(StateIdle)

	r.report.enter(StateWorkersStarting)
	r.log.Info("workers starting", "workers", c.NumWorkers, "seeds", c.Seeds, "rounds", c.Rounds)
	for i := 0; i < c.NumWorkers; i++ {
		h, err := r.create()
		if err != nil {
			return r.abort(ctx, newFailure(i, 0, PhaseCreate, err), err)
		}
		w := newWorker(i, c.Seeds[i], h, rollout.RandomSample(c.PolicySeed+int64(i)))
		r.workers = append(r.workers, w)
		go w.loop()
	}

	results, err := r.barrier(ctx, cmdStart)
	if err != nil {
		return r.abort(ctx, newFailure(-1, 0, PhaseRound, err), err)
	}
	if f, err := firstFailure(results, 0); f != nil {
		return r.abort(ctx, f, err)
	}
	for i, res := range results {
		r.report.Workers[i].InitialObservation = res.Observation
	}
	r.checkIsolation()
	if c.VerifyReference {
		if f, err := r.checkReference(); f != nil {
			return r.abort(ctx, f, err)
		}
	}

	if c.Rounds > 0 {
		r.report.enter(StateRoundRunning)
	}
	for round := 1; round <= c.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, newFailure(-1, round, PhaseRound, err), err)
		}
		results, err := r.barrier(ctx, cmdStep)
		if err != nil {
			return r.abort(ctx, newFailure(-1, round, PhaseRound, err), err)
		}
		if f, err := firstFailure(results, round); f != nil {
			return r.abort(ctx, f, err)
		}
		r.aggregate(results)
		r.report.RoundsCompleted = round
	}

	r.report.enter(StateStopping)
	r.shutdown(ctx)
	r.report.enter(StateClosed)
	r.log.Info("parallel check finished", "rounds", r.report.RoundsCompleted, "mismatches", len(r.report.Mismatches))
	return r.report, nil
}

// barrier sends kind to every worker before reading any result, then waits
// until all workers have filled their slot or ctx is done.
func (r *run) barrier(ctx context.Context, kind commandKind) ([]WorkerResult, error) {
	results := make([]WorkerResult, len(r.workers))
	done := make(chan int, len(r.workers))
	for i, w := range r.workers {
		r.busy[i] = true
		w.cmds <- command{kind: kind, slot: &results[i], done: done}
	}
	for pending := len(r.workers); pending > 0; pending-- {
		select {
		case id := <-done:
			r.busy[id] = false
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// firstFailure returns the failure of the lowest worker id in results.
func firstFailure(results []WorkerResult, round int) (*Failure, error) {
	for _, res := range results {
		if res.Err != nil {
			return newFailure(res.WorkerID, round, res.Phase, res.Err), res.Err
		}
	}
	return nil, nil
}

func (r *run) aggregate(results []WorkerResult) {
	for i, res := range results {
		ws := &r.report.Workers[i]
		ws.TotalReward += res.Reward
		ws.Steps++
		ws.Rewards = append(ws.Rewards, res.Reward)
		if res.Done || res.Truncated {
			ws.Episodes++
			r.log.Debug("worker episode finished", "worker", i, "episodes", ws.Episodes, "total_reward", ws.TotalReward)
		}
	}
}

// checkIsolation flags identical initial observations from distinct seeds,
// the symptom of workers sharing one RNG.
func (r *run) checkIsolation() {
	ws := r.report.Workers
	for i := 0; i < len(ws); i++ {
		for j := i + 1; j < len(ws); j++ {
			if slices.Equal(ws[i].InitialObservation, ws[j].InitialObservation) {
				r.report.Mismatches = append(r.report.Mismatches,
					fmt.Sprintf("workers %d and %d produced identical initial observations from seeds %d and %d", i, j, ws[i].Seed, ws[j].Seed))
			}
		}
	}
}

// checkReference resets a standalone handle with every worker's seed and
// compares initial observations.
func (r *run) checkReference() (*Failure, error) {
	for i, ws := range r.report.Workers {
		obs, err := r.referenceObservation(ws.Seed)
		if err != nil {
			return newFailure(i, 0, PhaseReference, err), err
		}
		if !slices.Equal(obs, ws.InitialObservation) {
			r.report.Mismatches = append(r.report.Mismatches,
				fmt.Sprintf("worker %d initial observation differs from a standalone handle reset with seed %d", i, ws.Seed))
		}
	}
	return nil, nil
}

// create calls the factory once.
func (r *run) create() (env.Handle, error) {
	var h env.Handle
	err := env.Interact("create", func() error {
		var err error
		h, err = r.Factory(r.Options)
		if err == nil && h == nil {
			err = errNilHandle
		}
		return err
	})
	return h, err
}

func (r *run) referenceObservation(seed int64) (obs env.Observation, err error) {
	h, err := r.create()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := env.Interact("close", h.Close); cerr != nil {
			r.log.Warn("reference handle close failed", "error", cerr)
			r.report.CloseErrors = append(r.report.CloseErrors, *newFailure(-1, 0, PhaseClose, cerr))
		}
	}()

	err = env.Interact("reset", func() error {
		var err error
		obs, _, err = h.Reset(env.Seed(seed))
		return err
	})
	return obs, err
}

func (r *run) abort(ctx context.Context, f *Failure, cause error) (*Report, error) {
	r.report.enter(StateAborting)
	r.report.Aborted = true
	r.report.Failure = f
	r.log.Error("parallel check aborted",
		"worker", f.WorkerID,
		"round", f.Round,
		"phase", f.Phase,
		"kind", f.Kind,
		"error", f.Message)
	r.shutdown(ctx)
	r.report.enter(StateClosed)
	return r.report, &WorkerError{Failure: *f, Err: cause}
}

// shutdown stops every worker and collects close results. Workers still busy
// when ctx is done are not waited for; they close their handle when their
// current call returns.
func (r *run) shutdown(ctx context.Context) {
	for _, w := range r.workers {
		close(w.cmds)
	}
	for i, w := range r.workers {
		if r.busy[i] && ctx.Err() != nil {
			r.log.Warn("worker still busy at shutdown", "worker", i)
			continue
		}
		if err := <-w.exited; err != nil {
			r.log.Warn("worker close failed", "worker", i, "error", err)
			r.report.CloseErrors = append(r.report.CloseErrors, *newFailure(i, r.report.RoundsCompleted, PhaseClose, err))
		}
	}
}

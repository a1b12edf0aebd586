package parallel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/hopper"
	"github.com/roach88/envprobe/internal/testutil"
)

func scriptedChecker(pool *testutil.HandlePool, workers, rounds int) *Checker {
	return &Checker{
		Factory:    pool.Factory(),
		NumWorkers: workers,
		Seeds:      DefaultSeeds(workers),
		Rounds:     rounds,
	}
}

func assertClosedOnce(t *testing.T, pool *testutil.HandlePool) {
	t.Helper()
	for i, h := range pool.Handles() {
		assert.Equal(t, 1, h.Closes(), "handle %d", i)
	}
}

func TestRun_HopperFourWorkers(t *testing.T) {
	c := &Checker{
		Factory:         hopper.New,
		NumWorkers:      4,
		Seeds:           []int64{0, 1, 2, 3},
		Rounds:          100,
		PolicySeed:      7,
		VerifyReference: true,
	}

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Pass(), "%v", report.Mismatches)
	assert.False(t, report.Aborted)
	assert.Equal(t, 100, report.RoundsCompleted)
	assert.Equal(t, []State{StateIdle, StateWorkersStarting, StateRoundRunning, StateStopping, StateClosed}, report.States)

	require.Len(t, report.Workers, 4)
	for i, ws := range report.Workers {
		assert.Equal(t, i, ws.WorkerID)
		assert.Equal(t, int64(i), ws.Seed)
		assert.Equal(t, 100, ws.Steps)
		assert.Len(t, ws.Rewards, 100)
		assert.GreaterOrEqual(t, ws.Episodes, 1, "worker %d", i)
		assert.Len(t, ws.InitialObservation, 15)
		for j := i + 1; j < len(report.Workers); j++ {
			assert.NotEqual(t, ws.Rewards, report.Workers[j].Rewards, "workers %d and %d", i, j)
		}
	}
}

func TestRun_ForcedFailureAborts(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		if id == 2 {
			h.FailStepAt = 50
		}
	}
	c := scriptedChecker(pool, 4, 100)

	report, err := c.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Aborted)
	assert.False(t, report.Pass())
	require.NotNil(t, report.Failure)
	assert.Equal(t, 2, report.Failure.WorkerID)
	assert.Equal(t, 50, report.Failure.Round)
	assert.Equal(t, PhaseStep, report.Failure.Phase)
	assert.Equal(t, "*errors.errorString", report.Failure.Kind)
	assert.Contains(t, report.Failure.Message, "step call 50")
	assert.NotEmpty(t, report.Failure.Trace)
	assert.Equal(t, 49, report.RoundsCompleted)
	assert.Equal(t, []State{StateIdle, StateWorkersStarting, StateRoundRunning, StateAborting, StateClosed}, report.States)

	for _, ws := range report.Workers {
		assert.Equal(t, 49, ws.Steps)
	}

	var we *WorkerError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 2, we.Failure.WorkerID)
	assert.True(t, env.IsInteraction(err))
	assert.ErrorIs(t, err, testutil.ErrScripted)
	assert.Contains(t, err.Error(), "worker 2 failed during step in round 50")

	require.Len(t, pool.Handles(), 4)
	assertClosedOnce(t, pool)
}

func TestRun_WorkerPanic(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		if id == 1 {
			h.FailStepAt = 3
			h.PanicOnFail = true
		}
	}

	report, err := scriptedChecker(pool, 3, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, report.Failure.WorkerID)
	assert.Equal(t, "*env.PanicError", report.Failure.Kind)
	assert.Contains(t, report.Failure.Trace, "goroutine")
	assertClosedOnce(t, pool)
}

func TestRun_LowestFailingWorkerWins(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		if id == 1 || id == 3 {
			h.FailStepAt = 5
		}
	}

	report, err := scriptedChecker(pool, 4, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, report.Failure.WorkerID)
	assert.Equal(t, 5, report.Failure.Round)
}

func TestRun_CreateFailure(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.FailCreateAt = 3

	report, err := scriptedChecker(pool, 4, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, report.Failure.WorkerID)
	assert.Equal(t, PhaseCreate, report.Failure.Phase)
	assert.Equal(t, 0, report.Failure.Round)
	assert.Equal(t, []State{StateIdle, StateWorkersStarting, StateAborting, StateClosed}, report.States)

	// Workers 0 and 1 were created and must be released.
	require.Len(t, pool.Handles(), 2)
	assertClosedOnce(t, pool)
	assert.Len(t, report.Workers, 4)
}

func TestRun_SeededResetFailure(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		if id == 1 {
			h.FailResetAt = 1
		}
	}

	report, err := scriptedChecker(pool, 3, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, report.Failure.WorkerID)
	assert.Equal(t, PhaseReset, report.Failure.Phase)
	assert.Equal(t, 0, report.Failure.Round)
	assertClosedOnce(t, pool)
}

func TestRun_AutoResetFailure(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		h.TerminateAfter = 2
		if id == 0 {
			h.FailResetAt = 2
		}
	}

	report, err := scriptedChecker(pool, 2, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, report.Failure.WorkerID)
	assert.Equal(t, PhaseReset, report.Failure.Phase)
	assert.Equal(t, 2, report.Failure.Round)
}

func TestRun_EpisodeBookkeeping(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		h.TerminateAfter = 10 + id
		h.Reward = float64(id + 1)
	}

	report, err := scriptedChecker(pool, 3, 35).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Workers[0].Episodes)
	assert.Equal(t, 3, report.Workers[1].Episodes)
	assert.Equal(t, 2, report.Workers[2].Episodes)
	assert.Equal(t, 35.0, report.Workers[0].TotalReward)
	assert.Equal(t, 70.0, report.Workers[1].TotalReward)
	assert.Equal(t, 105.0, report.Workers[2].TotalReward)

	for i, h := range pool.Handles() {
		assert.Equal(t, 35, h.Steps())
		assert.Equal(t, 1+report.Workers[i].Episodes, h.Resets())
	}
	assertClosedOnce(t, pool)
}

func TestRun_ZeroRounds(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())

	report, err := scriptedChecker(pool, 2, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{StateIdle, StateWorkersStarting, StateStopping, StateClosed}, report.States)
	for _, h := range pool.Handles() {
		assert.Equal(t, 1, h.Resets())
		assert.Equal(t, 0, h.Steps())
	}
	assertClosedOnce(t, pool)
}

func TestRun_SharedStateDetected(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		h.ObservationFn = func(seed int64, step int) []float64 {
			return []float64{1, 2, 3, 4}
		}
	}

	report, err := scriptedChecker(pool, 3, 5).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Aborted)
	assert.False(t, report.Pass())
	assert.Len(t, report.Mismatches, 3)
	assert.True(t, env.IsValidation(report.MismatchErr()))
}

func TestRun_ReferenceMismatch(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		h.ObservationFn = func(seed int64, step int) []float64 {
			return []float64{float64(id), float64(seed), 0, 0}
		}
	}
	c := scriptedChecker(pool, 2, 1)
	c.VerifyReference = true

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Mismatches, 2)
	assert.Contains(t, report.Mismatches[0], "standalone handle")

	// Two workers plus two reference handles.
	require.Len(t, pool.Handles(), 4)
	assertClosedOnce(t, pool)
}

func TestRun_CloseErrorsAreRecordedNotRaised(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		if id == 1 {
			h.CloseErr = errors.New("close refused")
		}
	}

	report, err := scriptedChecker(pool, 2, 3).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Pass())
	require.Len(t, report.CloseErrors, 1)
	assert.Equal(t, 1, report.CloseErrors[0].WorkerID)
	assert.Equal(t, PhaseClose, report.CloseErrors[0].Phase)
}

func TestRun_CloseErrorDoesNotMaskFailure(t *testing.T) {
	pool := testutil.NewHandlePool(testutil.ScriptedSpec())
	pool.Configure = func(id int, h *testutil.ScriptedHandle) {
		if id == 0 {
			h.FailStepAt = 2
			h.CloseErr = errors.New("close refused")
		}
	}

	report, err := scriptedChecker(pool, 2, 3).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrScripted)
	assert.Equal(t, PhaseStep, report.Failure.Phase)
	assert.Len(t, report.CloseErrors, 1)
	assertClosedOnce(t, pool)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	factory := testutil.NewHandlePool(testutil.ScriptedSpec()).Factory()
	tests := []struct {
		name    string
		checker *Checker
	}{
		{"no factory", &Checker{NumWorkers: 1, Seeds: []int64{0}}},
		{"no workers", &Checker{Factory: factory}},
		{"negative rounds", &Checker{Factory: factory, NumWorkers: 1, Seeds: []int64{0}, Rounds: -1}},
		{"seed count", &Checker{Factory: factory, NumWorkers: 2, Seeds: []int64{0}}},
		{"duplicate seeds", &Checker{Factory: factory, NumWorkers: 3, Seeds: []int64{0, 1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := tt.checker.Run(context.Background())
			require.Error(t, err)
			assert.Nil(t, report)
			assert.True(t, env.IsConfiguration(err))
		})
	}
}

// blockingHandle blocks inside Step until released.
type blockingHandle struct {
	*testutil.ScriptedHandle
	blockAt int
	blocked chan struct{}
	release chan struct{}
	steps   int
}

func (h *blockingHandle) Step(action []float64) (env.StepResult, error) {
	h.steps++
	if h.steps == h.blockAt {
		close(h.blocked)
		<-h.release
	}
	return h.ScriptedHandle.Step(action)
}

func TestRun_CancelWhileWaitingOnBarrier(t *testing.T) {
	var (
		mu      sync.Mutex
		created []*testutil.ScriptedHandle
	)
	stuck := &blockingHandle{
		blockAt: 3,
		blocked: make(chan struct{}),
		release: make(chan struct{}),
	}
	factory := func(opts env.Options) (env.Handle, error) {
		mu.Lock()
		defer mu.Unlock()
		h := testutil.NewScriptedHandle(testutil.ScriptedSpec())
		created = append(created, h)
		if len(created) == 2 {
			stuck.ScriptedHandle = h
			return stuck, nil
		}
		return h, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stuck.blocked
		cancel()
	}()

	c := &Checker{Factory: factory, NumWorkers: 3, Seeds: DefaultSeeds(3), Rounds: 10}
	report, err := c.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)
	assert.Equal(t, -1, report.Failure.WorkerID)
	assert.Equal(t, 3, report.Failure.Round)
	assert.Equal(t, 2, report.RoundsCompleted)

	mu.Lock()
	handles := append([]*testutil.ScriptedHandle(nil), created...)
	mu.Unlock()
	assert.Equal(t, 0, handles[1].Closes())

	// Every worker closes its handle once its current call returns.
	close(stuck.release)
	for i, h := range handles {
		assert.Eventually(t, func() bool { return h.Closes() == 1 }, time.Second, 5*time.Millisecond, "handle %d", i)
	}
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a manually advanced clock shared by the orchestrator and the
// assertions.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func noopStage(name model.JobName) Stage {
	return Stage{Name: name, Run: func(context.Context) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}
}

func newTestOrchestrator(store state.Store, clk *testClock, stages ...Stage) *Orchestrator {
	return New(store, nil, stages, testLogger(), WithClock(clk.Now))
}

func TestRunCyclePausedIsNoOp(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	ran := false
	o := newTestOrchestrator(store, clk, Stage{
		Name: model.JobIngest,
		Run: func(context.Context) (map[string]any, error) {
			ran = true
			return nil, nil
		},
	})
	ctx := context.Background()

	require.NoError(t, o.SetAutomationState(ctx, model.AutomationPaused))

	result, err := o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AutomationPaused, result.State)
	assert.Empty(t, result.TasksExecuted)
	assert.False(t, ran, "no stage may run while paused")
	assert.NotEmpty(t, result.CycleID)
}

func TestRunCycleRunsAllDueStagesInOrder(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	var stages []Stage
	for _, name := range model.JobOrder {
		stages = append(stages, noopStage(name))
	}
	o := newTestOrchestrator(store, clk, stages...)
	ctx := context.Background()

	// First cycle: nothing has ever run, so every stage is due.
	result, err := o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.JobOrder, result.TasksExecuted)
	require.Len(t, result.TaskResults, len(model.JobOrder))
	for _, sr := range result.TaskResults {
		assert.Equal(t, model.ExecutionSuccess, sr.Status)
	}

	// An immediate second cycle finds every interval unexpired.
	result, err = o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.TasksExecuted)

	// Advance past only the publish interval (5 min default): exactly that
	// stage runs.
	clk.Advance(6 * time.Minute)
	result, err = o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.JobName{model.JobPublish}, result.TasksExecuted)
}

func TestRunCycleIsolatesStageFailure(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	o := newTestOrchestrator(store, clk,
		Stage{Name: model.JobIngest, Run: func(context.Context) (map[string]any, error) {
			return map[string]any{"sources": 2}, errors.New("feed unreachable")
		}},
		noopStage(model.JobPublish),
	)
	ctx := context.Background()

	result, err := o.RunCycle(ctx)
	require.NoError(t, err, "stage failure must not fail the cycle")
	require.Len(t, result.TaskResults, 2)

	assert.Equal(t, model.ExecutionFailure, result.TaskResults[0].Status)
	assert.Equal(t, "feed unreachable", result.TaskResults[0].Error)
	assert.Equal(t, model.ExecutionSuccess, result.TaskResults[1].Status,
		"a later stage still runs after an earlier failure")
}

func TestRunCycleRecoversStagePanic(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	o := newTestOrchestrator(store, clk,
		Stage{Name: model.JobIngest, Run: func(context.Context) (map[string]any, error) {
			panic("nil feed parser")
		}},
		noopStage(model.JobPublish),
	)

	result, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.TaskResults, 2)
	assert.Equal(t, model.ExecutionFailure, result.TaskResults[0].Status)
	assert.Contains(t, result.TaskResults[0].Error, "panic")
	assert.Equal(t, model.ExecutionSuccess, result.TaskResults[1].Status)
}

func TestRunCycleBacksOffFailedStage(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	calls := 0
	o := newTestOrchestrator(store, clk, Stage{
		Name: model.JobIngest,
		Run: func(context.Context) (map[string]any, error) {
			calls++
			return nil, errors.New("still broken")
		},
	})
	ctx := context.Background()

	_, err := o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// The failure still advanced the last-run timestamp, so the stage is
	// not retried until its own interval elapses.
	clk.Advance(time.Minute)
	_, err = o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "failed stage retried before its interval elapsed")

	clk.Advance(15 * time.Minute)
	_, err = o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunCycleStageTimeout(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	o := newTestOrchestrator(store, clk, Stage{
		Name:    model.JobSynthesize,
		Timeout: 10 * time.Millisecond,
		Run: func(ctx context.Context) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	result, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.TaskResults, 1)
	assert.Equal(t, model.ExecutionFailure, result.TaskResults[0].Status)
	assert.Contains(t, result.TaskResults[0].Error, "deadline")
}

func TestRunCycleRecordsExecutionHistory(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	o := newTestOrchestrator(store, clk,
		Stage{Name: model.JobIngest, Run: func(context.Context) (map[string]any, error) {
			return map[string]any{"signals_created": 3}, nil
		}},
	)
	ctx := context.Background()

	_, err := o.RunCycle(ctx)
	require.NoError(t, err)

	execs, err := o.Executions(ctx, model.JobIngest, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.JobIngest, execs[0].JobName)
	assert.Equal(t, model.ExecutionSuccess, execs[0].Status)
	assert.Equal(t, float64(3), execs[0].Detail["signals_created"])

	metrics, err := o.Metrics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "automation_cycle", metrics[0].Name)
	assert.Equal(t, 1.0, metrics[0].Value)
}

func TestRunCycleMergesErrorIntoDetail(t *testing.T) {
	store := state.NewMemoryStore()
	clk := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	o := newTestOrchestrator(store, clk,
		Stage{Name: model.JobIngest, Run: func(context.Context) (map[string]any, error) {
			return map[string]any{"sources": 1}, errors.New("boom")
		}},
	)
	ctx := context.Background()

	_, err := o.RunCycle(ctx)
	require.NoError(t, err)

	execs, err := o.Executions(ctx, model.JobIngest, 1)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "boom", execs[0].Detail["error"])
	assert.Equal(t, float64(1), execs[0].Detail["sources"])
}

package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingDecider struct{}

func (panickingDecider) Decide(context.Context, AgentContext) (Decision, error) {
	panic("decider blew up")
}

// A panic inside a tick must be contained, reported, and leave the
// scheduler able to fire again.
func TestSchedulerContainsTickPanic(t *testing.T) {
	start := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	replay := testReplayTable(start, map[string][]float64{"AAPL": {150, 155}, "MSFT": {400, 398}})
	inst := newTestInstance(histComp(), replay, panickingDecider{}, time.Now)
	inst.Initialize(testAgents(), testBenchmarks(), replay.SnapshotAt(0), start)

	sched := NewScheduler(inst, zerolog.Nop())
	faults := make(chan any, 2)
	sched.onPanic = func(v any) { faults <- v }

	sched.fire()
	sched.wg.Wait()

	select {
	case v := <-faults:
		assert.Equal(t, "decider blew up", v)
	default:
		t.Fatal("panic was not reported")
	}

	// The in-flight guard resets, so the next fire still runs. The first
	// tick already consumed its trade window, so no second panic.
	require.False(t, sched.ticking.Load())
	sched.fire()
	sched.wg.Wait()
	assert.Empty(t, faults)
}

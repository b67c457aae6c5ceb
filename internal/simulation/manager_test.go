package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/config"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
)

func testManagerConfig() config.Root {
	return config.Root{
		MarketData:  config.MarketData{Tickers: []string{"AAPL", "MSFT"}},
		Chat:        config.Chat{MaxMessageLength: 280, MaxMessagesPerUser: 2, MaxMessagesPerAgent: 5},
		Performance: config.Performance{RiskFreeRate: 0.05},
		Trading:     config.Trading{MaxPositionSizePct: 10},
		Persistence: config.Persistence{AutosaveMinutes: 15},
		Agents: []config.AgentSpec{
			{ID: "agent-alpha", Model: "gpt-4o", StartingCash: 1_000_000},
		},
		Benchmarks: []config.BenchmarkSpec{{ID: "sp500", Ticker: "AAPL"}},
		Competitions: []config.Competition{{
			ID: "blind", Name: "Blind Arena", Mode: "simulated", Enabled: true,
			ChatEnabled: true, TradingDays: 30, HoursPerDay: 2, TradeWindowHours: 2,
			ReplayTickMs: 2000, CatchUpTickMs: 500, RealtimeTickSecs: 60,
		}},
	}
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	provider := marketdata.NewProvider(marketdata.ProviderConfig{
		RateWindow:           time.Minute,
		MaxRequestsPerWindow: 1000,
	}, nil, marketdata.NewSyntheticSource(3), zerolog.Nop())
	loader := marketdata.NewHistoricalLoader(time.Second, zerolog.Nop())
	store := NewStore(dir, zerolog.Nop())
	return NewManager(testManagerConfig(), provider, loader, store, zerolog.Nop())
}

func TestManagerInitializeAndList(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	require.NoError(t, m.InitializeAll(context.Background()))

	types := m.List()
	require.Len(t, types, 1)
	assert.Equal(t, "blind", types[0].ID)

	inst, ok := m.Instance("blind")
	require.True(t, ok)
	assert.False(t, inst.State().IsLoading)

	_, ok = m.Instance("nope")
	assert.False(t, ok)
}

// A second process picks up where the saved snapshots left off.
func TestManagerResumesFromSavedSnapshots(t *testing.T) {
	dir := t.TempDir()

	m1 := newTestManager(t, dir)
	require.NoError(t, m1.InitializeAll(context.Background()))
	inst, ok := m1.Instance("blind")
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		inst.Tick(context.Background())
	}
	wantDay := inst.State().Day
	wantHour := inst.State().IntradayHour
	m1.SaveAll()

	m2 := newTestManager(t, dir)
	require.NoError(t, m2.InitializeAll(context.Background()))
	resumed, ok := m2.Instance("blind")
	require.True(t, ok)

	view := resumed.State()
	assert.Equal(t, wantDay, view.Day)
	assert.Equal(t, wantHour, view.IntradayHour)
	require.NotEmpty(t, view.Agents)
	assert.Len(t, view.Agents[0].Metrics, 5)
}

// Resuming a run must rebuild the replay table against the dates the run
// was saved with, not a window anchored at the restart time.
func TestReplayStartPrefersSavedSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	comp := config.Competition{ID: "daily", StartDate: "2026-07-01"}
	configured := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	saved := &Snapshot{StartDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	assert.Equal(t, saved.StartDate, replayStartFor(comp, saved, now))
	assert.Equal(t, saved.StartDate, replayStartFor(config.Competition{ID: "daily"}, saved, now),
		"saved start date pins the window even without a configured date")
	assert.Equal(t, configured, replayStartFor(comp, nil, now))
	assert.Equal(t, configured, replayStartFor(comp, &Snapshot{}, now),
		"a zero saved start date falls through to the configured one")
	assert.Equal(t, now.AddDate(0, 0, -30), replayStartFor(config.Competition{ID: "daily"}, nil, now))
}

func TestTickPanicFlushesAndReportsFault(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	require.NoError(t, m.InitializeAll(context.Background()))

	m.handleTickPanic("blind", "decider blew up")

	select {
	case err := <-m.Fatal():
		assert.Contains(t, err.Error(), "tick panic")
	default:
		t.Fatal("fault was not reported")
	}

	snap, err := NewStore(dir, zerolog.Nop()).Load("blind")
	require.NoError(t, err)
	require.NotNil(t, snap, "snapshots must be flushed before the process exits")
}

func TestManagerChatForwarding(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	require.NoError(t, m.InitializeAll(context.Background()))

	msg, err := m.SubmitChat("blind", "alice", "agent-alpha", "thoughts on tech?")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	_, err = m.SubmitChat("nope", "alice", "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown competition")
}

func TestManagerShutdownFlushesSnapshots(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	require.NoError(t, m.InitializeAll(context.Background()))
	m.StartSchedulers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	store := NewStore(dir, zerolog.Nop())
	snap, err := store.Load("blind")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "blind", snap.CompetitionID)
}

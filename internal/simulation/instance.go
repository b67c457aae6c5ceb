package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/chat"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/config"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/performance"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/portfolio"
)

// Benchmarks track a notional stake equal to the standard agent bankroll.
const benchmarkStartCash = 1_000_000

// InstanceDeps wires one competition instance. Synthetic serves simulated
// mode, Replay serves the historical phase, Provider serves catch-up and
// realtime.
type InstanceDeps struct {
	Competition config.Competition
	Tickers     []string
	FeePerTrade float64
	Provider    *marketdata.Provider
	Synthetic   *marketdata.SyntheticSource
	Replay      *marketdata.ReplayTable
	Engine      *portfolio.Engine
	Calculator  *performance.Calculator
	ChatConfig  chat.Config
	Decider     Decider
	Clock       func() time.Time
	Logger      zerolog.Logger
}

// Instance owns one competition's full state. All mutation happens inside
// Tick or Restore under the instance lock; readers get deep copies.
type Instance struct {
	mu sync.Mutex

	cfg         config.Competition
	tickers     []string
	feePerTrade float64

	provider  *marketdata.Provider
	synthetic *marketdata.SyntheticSource
	replay    *marketdata.ReplayTable
	engine    *portfolio.Engine
	calc      *performance.Calculator
	chat      *chat.Scheduler
	decider   Decider
	clock     func() time.Time
	log       zerolog.Logger

	mode          Mode
	phase         Phase
	day           int
	intradayHour  float64
	startDate     time.Time
	currentDate   time.Time
	market        marketdata.MarketSnapshot
	agents        []*Agent
	benchmarks    []*Benchmark
	isComplete    bool
	isLoading     bool
	lastUpdated   time.Time
	lastWindowDay int
	lastWindowIdx int
}

func NewInstance(d InstanceDeps) *Instance {
	inst := &Instance{
		cfg:           d.Competition,
		tickers:       d.Tickers,
		feePerTrade:   d.FeePerTrade,
		provider:      d.Provider,
		synthetic:     d.Synthetic,
		replay:        d.Replay,
		engine:        d.Engine,
		calc:          d.Calculator,
		decider:       d.Decider,
		clock:         d.Clock,
		log:           d.Logger.With().Str("competition", d.Competition.ID).Logger(),
		mode:          Mode(d.Competition.Mode),
		phase:         initialPhase(Mode(d.Competition.Mode)),
		market:        marketdata.MarketSnapshot{},
		isLoading:     true,
		lastWindowDay: -1,
		lastWindowIdx: -1,
	}
	if inst.clock == nil {
		inst.clock = time.Now
	}
	if d.Competition.ChatEnabled {
		inst.chat = chat.NewScheduler(&chat.State{Config: d.ChatConfig}, inst.log)
	}
	return inst
}

func (inst *Instance) ID() string { return inst.cfg.ID }

// Initialize seeds a fresh run: agents, benchmarks, the shared initial
// snapshot, and the start calendar date.
func (inst *Instance) Initialize(agents []config.AgentSpec, benchmarks []config.BenchmarkSpec, initial marketdata.MarketSnapshot, startDate time.Time) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.agents = inst.agents[:0]
	for _, a := range agents {
		inst.agents = append(inst.agents, NewAgent(a.ID, a.Model, a.Color, a.StartingCash))
	}
	inst.benchmarks = inst.benchmarks[:0]
	for _, b := range benchmarks {
		inst.benchmarks = append(inst.benchmarks, NewBenchmark(b.ID, b.Ticker))
	}

	inst.market = initial.Clone()
	inst.startDate = startDate
	inst.currentDate = startDate
	inst.day = 0
	inst.intradayHour = 0
	inst.isLoading = false
	inst.lastUpdated = inst.clock()
	inst.seedSynthetic()
}

// Tick runs one full simulation step. A tick always runs to completion;
// errors inside it degrade (synthetic quotes, rejected trades) rather than
// abort.
func (inst *Instance) Tick(ctx context.Context) {
	inst.mu.Lock()
	if inst.isComplete || inst.isLoading {
		inst.mu.Unlock()
		return
	}
	mode := inst.mode
	phase := inst.phase
	day := inst.day
	prev := inst.market.Clone()
	inst.mu.Unlock()

	// Quote fetches can block on the network in catch-up and realtime, so
	// they run outside the lock and readers stay responsive. The scheduler
	// never overlaps ticks, so only readers and chat submissions slip in.
	snap := inst.fetchSnapshot(ctx, mode, phase, day, prev)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.isComplete || inst.isLoading {
		return
	}
	now := inst.clock()

	if len(snap) > 0 {
		inst.market = snap
	}
	for _, a := range inst.agents {
		a.Portfolio.Revalue(inst.market)
	}

	tickNotional := make(map[string]float64)
	if inst.tradeWindowDue() {
		inst.runTradeWindow(ctx, tickNotional)
	}
	inst.appendMetrics(tickNotional)

	replayExhausted := inst.replay.Len() > 0 && inst.day >= inst.replay.Len()-1
	inst.advanceClock(now)
	inst.phase = nextPhase(inst.mode, inst.phase, replayExhausted, inst.currentDate, now)

	if inst.mode == ModeHistorical && inst.day >= inst.cfg.TradingDays {
		inst.isComplete = true
		inst.log.Info().Int("trading_days", inst.cfg.TradingDays).Msg("historical run complete")
	}
	inst.lastUpdated = now
}

// fetchSnapshot picks the tick's data source by mode and phase. It runs
// without the instance lock; everything it needs is passed in.
func (inst *Instance) fetchSnapshot(ctx context.Context, mode Mode, phase Phase, day int, prev marketdata.MarketSnapshot) marketdata.MarketSnapshot {
	switch {
	case mode == ModeSimulated:
		snap := make(marketdata.MarketSnapshot, len(inst.tickers))
		for _, t := range inst.tickers {
			if q, err := inst.synthetic.Fetch(ctx, t); err == nil {
				snap[t] = *q
			}
		}
		return snap
	case phase == PhaseHistoricalReplay:
		if day < inst.replay.Len() {
			return inst.replay.SnapshotAt(day)
		}
		return prev
	default:
		return inst.provider.FetchSnapshot(ctx, inst.tickers, prev)
	}
}

// tradeWindowDue reports whether this tick crosses a trade window boundary.
// Windows recur every TradeWindowHours of intraday time; a window fires
// once even if several ticks land inside it.
func (inst *Instance) tradeWindowDue() bool {
	idx := int(inst.intradayHour) / inst.cfg.TradeWindowHours
	if inst.day == inst.lastWindowDay && idx == inst.lastWindowIdx {
		return false
	}
	inst.lastWindowDay = inst.day
	inst.lastWindowIdx = idx
	return true
}

func (inst *Instance) runTradeWindow(ctx context.Context, tickNotional map[string]float64) {
	roundID := chat.RoundID(inst.day, inst.intradayHour)
	delivered := map[string][]chat.Message{}
	if inst.chat != nil {
		delivered = inst.chat.DeliverPending()
	}

	for _, a := range inst.agents {
		dec, err := inst.decider.Decide(ctx, AgentContext{
			Agent:        a,
			Snapshot:     inst.market,
			Messages:     delivered[a.ID],
			Day:          inst.day,
			IntradayHour: inst.intradayHour,
		})
		if err != nil {
			inst.log.Warn().Err(err).Str("agent", a.ID).Msg("decider failed, agent sits out this window")
			if inst.chat != nil && len(delivered[a.ID]) > 0 {
				inst.chat.Resolve(a.ID, false)
			}
			continue
		}

		for _, req := range dec.Trades {
			inst.executeRequest(a, req, roundID, tickNotional)
		}
		a.RecordRationale(dec.Rationale)

		if inst.chat != nil && len(delivered[a.ID]) > 0 {
			if dec.Reply != "" {
				inst.chat.AppendAgentReply(a.ID, dec.Reply, roundID)
				inst.chat.Resolve(a.ID, true)
			} else {
				inst.chat.Resolve(a.ID, false)
			}
		}
	}
}

func (inst *Instance) executeRequest(a *Agent, req TradeRequest, roundID string, tickNotional map[string]float64) {
	ts := portfolio.EncodeTimestamp(inst.day, inst.intradayHour)

	if req.Action == portfolio.Hold {
		a.Trades = append(a.Trades, portfolio.Trade{
			Ticker: req.Ticker, Action: portfolio.Hold, Timestamp: ts, Justification: req.Justification,
		})
		return
	}

	q, ok := inst.market[req.Ticker]
	if !ok || q.Price <= 0 {
		inst.log.Debug().Str("agent", a.ID).Str("ticker", req.Ticker).Msg("no price for requested ticker, trade skipped")
		return
	}

	tr := portfolio.Trade{
		Ticker:        req.Ticker,
		Action:        req.Action,
		Quantity:      req.Quantity,
		Price:         q.Price,
		Fee:           inst.feePerTrade,
		Timestamp:     ts,
		Justification: req.Justification,
	}
	if err := inst.engine.Execute(a.Portfolio, tr); err != nil {
		inst.log.Debug().Err(err).Str("agent", a.ID).Str("round", roundID).Msg("trade rejected")
		return
	}
	a.Trades = append(a.Trades, tr)
	tickNotional[a.ID] += req.Quantity * q.Price
}

func (inst *Instance) appendMetrics(tickNotional map[string]float64) {
	ts := portfolio.EncodeTimestamp(inst.day, inst.intradayHour)

	for _, a := range inst.agents {
		total := a.Portfolio.TotalValue(inst.market)
		m := inst.calc.Compute(valueHistory(a.Metrics, total), tickNotional[a.ID])
		m.Timestamp = ts
		a.Metrics = append(a.Metrics, m)
	}

	for _, b := range inst.benchmarks {
		q, ok := inst.market[b.Ticker]
		if !ok || q.Price <= 0 {
			continue
		}
		if b.Shares == 0 {
			b.Shares = benchmarkStartCash / q.Price
		}
		m := inst.calc.Compute(valueHistory(b.Metrics, b.Shares*q.Price), 0)
		m.Timestamp = ts
		b.Metrics = append(b.Metrics, m)
	}
}

// advanceClock moves the simulation clock one step. Replay pacing advances
// one intraday hour per tick; catch-up burns a full day per tick; realtime
// follows the wall clock. Weekend dates are jumped over without consuming
// a simulation day.
func (inst *Instance) advanceClock(now time.Time) {
	switch {
	case inst.mode == ModeSimulated || inst.phase == PhaseHistoricalReplay:
		inst.intradayHour++
		if inst.intradayHour >= float64(inst.cfg.HoursPerDay) {
			inst.intradayHour = 0
			inst.day++
			inst.currentDate = nextWeekday(inst.currentDate)
		}
	case inst.phase == PhaseCatchUp:
		inst.intradayHour = 0
		inst.day++
		inst.currentDate = nextWeekday(inst.currentDate)
	default: // realtime
		if dayOf(inst.currentDate).Before(dayOf(now)) {
			inst.day++
		}
		inst.currentDate = now
		inst.intradayHour = hoursSinceOpen(now, inst.cfg.HoursPerDay)
	}
}

func hoursSinceOpen(now time.Time, hoursPerDay int) float64 {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	t := now.In(loc)
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, loc)
	h := t.Sub(open).Hours()
	if h < 0 {
		return 0
	}
	if limit := float64(hoursPerDay); h > limit {
		return limit
	}
	return h
}

// Phase returns the current scheduler phase.
func (inst *Instance) Phase() Phase {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.phase
}

func (inst *Instance) IsComplete() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.isComplete
}

// TickInterval is the pacing for the current phase.
func (inst *Instance) TickInterval() time.Duration {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch inst.phase {
	case PhaseCatchUp:
		return time.Duration(inst.cfg.CatchUpTickMs) * time.Millisecond
	case PhaseRealtime:
		if inst.mode != ModeSimulated {
			return time.Duration(inst.cfg.RealtimeTickSecs) * time.Second
		}
	}
	return time.Duration(inst.cfg.ReplayTickMs) * time.Millisecond
}

// SubmitChat validates and appends one community message against the
// currently active round.
func (inst *Instance) SubmitChat(sender, agentID, content string) (chat.Message, error) {
	if inst.chat == nil {
		return chat.Message{}, fmt.Errorf("chat is not enabled for this competition")
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	known := agentID == ""
	for _, a := range inst.agents {
		if a.ID == agentID {
			known = true
			break
		}
	}
	if !known {
		return chat.Message{}, fmt.Errorf("unknown agent %q", agentID)
	}

	// The lock is held through Submit so a tick cannot advance the round
	// between reading it and tagging the message.
	round := chat.RoundID(inst.day, inst.intradayHour)
	return inst.chat.Submit(sender, agentID, content, round)
}

// NextTradeWindow estimates when the next trade window opens. Replay
// pacing converts remaining intraday hours to ticks; realtime windows
// track the wall clock.
func (inst *Instance) NextTradeWindow(now time.Time) (time.Time, int) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	w := float64(inst.cfg.TradeWindowHours)
	rem := w - math.Mod(inst.intradayHour, w)
	if rem <= 0 {
		rem = w
	}

	var wait time.Duration
	if inst.phase == PhaseRealtime && inst.mode != ModeSimulated {
		wait = time.Duration(rem * float64(time.Hour))
	} else {
		interval := time.Duration(inst.cfg.ReplayTickMs) * time.Millisecond
		if inst.phase == PhaseCatchUp {
			interval = time.Duration(inst.cfg.CatchUpTickMs) * time.Millisecond
		}
		wait = time.Duration(rem) * interval
	}

	next := now.Add(wait)
	return next, int(wait.Seconds())
}

// StateView is a deep, read-only copy of an instance for the HTTP layer.
type StateView struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	Mode         Mode                      `json:"mode"`
	Phase        Phase                     `json:"phase"`
	Day          int                       `json:"day"`
	IntradayHour float64                   `json:"intraday_hour"`
	StartDate    time.Time                 `json:"start_date"`
	CurrentDate  time.Time                 `json:"current_date"`
	IsComplete   bool                      `json:"is_complete"`
	IsLoading    bool                      `json:"is_loading"`
	LastUpdated  time.Time                 `json:"last_updated"`
	BlindMode    bool                      `json:"blind_mode"`
	ChatEnabled  bool                      `json:"chat_enabled"`
	Market       marketdata.MarketSnapshot `json:"market"`
	Agents       []Agent                   `json:"agents"`
	Benchmarks   []Benchmark               `json:"benchmarks"`
	Chat         *chat.State               `json:"chat,omitempty"`
}

// State returns a consistent copy of everything the UI renders.
func (inst *Instance) State() StateView {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	v := StateView{
		ID:           inst.cfg.ID,
		Name:         inst.cfg.Name,
		Mode:         inst.mode,
		Phase:        inst.phase,
		Day:          inst.day,
		IntradayHour: inst.intradayHour,
		StartDate:    inst.startDate,
		CurrentDate:  inst.currentDate,
		IsComplete:   inst.isComplete,
		IsLoading:    inst.isLoading,
		LastUpdated:  inst.lastUpdated,
		BlindMode:    inst.cfg.BlindMode,
		ChatEnabled:  inst.cfg.ChatEnabled,
		Market:       inst.market.Clone(),
	}
	for _, a := range inst.agents {
		v.Agents = append(v.Agents, copyAgent(a))
	}
	for _, b := range inst.benchmarks {
		v.Benchmarks = append(v.Benchmarks, copyBenchmark(b))
	}
	if inst.chat != nil {
		cs := inst.chat.StateCopy()
		v.Chat = &cs
	}
	return v
}

// seedSynthetic hands the synthetic walk real starting prices so fallback
// quotes stay continuous with the last known market.
func (inst *Instance) seedSynthetic() {
	if inst.synthetic == nil {
		return
	}
	for t, q := range inst.market {
		inst.synthetic.Seed(t, q.Price)
	}
}

func copyAgent(a *Agent) Agent {
	out := *a
	out.Portfolio = a.Portfolio.Clone()
	out.Trades = append([]portfolio.Trade(nil), a.Trades...)
	out.Metrics = append([]performance.Metrics(nil), a.Metrics...)
	out.RecentRationales = append([]string(nil), a.RecentRationales...)
	return out
}

func copyBenchmark(b *Benchmark) Benchmark {
	out := *b
	out.Metrics = append([]performance.Metrics(nil), b.Metrics...)
	return out
}

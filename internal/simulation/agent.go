package simulation

import (
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/performance"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/portfolio"
)

// memoryWindow bounds how much recent history an agent carries into its
// next decision.
const memoryWindow = 10

// Agent is one competing model: its portfolio, full trade and metrics
// history, and a short memory of recent rationales.
type Agent struct {
	ID               string                `json:"id"`
	Model            string                `json:"model"`
	Color            string                `json:"color"`
	Portfolio        *portfolio.Portfolio  `json:"portfolio"`
	Trades           []portfolio.Trade     `json:"trades"`
	Metrics          []performance.Metrics `json:"metrics"`
	Rationale        string                `json:"rationale,omitempty"`
	RecentRationales []string              `json:"recent_rationales,omitempty"`
}

func NewAgent(id, model, color string, startingCash float64) *Agent {
	return &Agent{
		ID:        id,
		Model:     model,
		Color:     color,
		Portfolio: portfolio.New(startingCash),
	}
}

// RecordRationale stores the latest decision rationale and keeps the
// memory window bounded.
func (a *Agent) RecordRationale(r string) {
	if r == "" {
		return
	}
	a.Rationale = r
	a.RecentRationales = append(a.RecentRationales, r)
	if len(a.RecentRationales) > memoryWindow {
		a.RecentRationales = a.RecentRationales[len(a.RecentRationales)-memoryWindow:]
	}
}

// RecentTrades returns up to the memory window of latest trades, newest
// last.
func (a *Agent) RecentTrades() []portfolio.Trade {
	if len(a.Trades) <= memoryWindow {
		return a.Trades
	}
	return a.Trades[len(a.Trades)-memoryWindow:]
}

// Benchmark is a buy-and-hold reference line: a fixed share count in one
// ticker, valued each tick alongside the agents.
type Benchmark struct {
	ID      string                `json:"id"`
	Ticker  string                `json:"ticker"`
	Shares  float64               `json:"shares"`
	Metrics []performance.Metrics `json:"metrics"`
}

func NewBenchmark(id, ticker string) *Benchmark {
	return &Benchmark{ID: id, Ticker: ticker}
}

// valueHistory rebuilds the total-value series the calculator needs from
// an append-only metrics history plus the current value.
func valueHistory(metrics []performance.Metrics, current float64) []float64 {
	values := make([]float64, 0, len(metrics)+1)
	for _, m := range metrics {
		values = append(values, m.TotalValue)
	}
	return append(values, current)
}

package simulation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/chat"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/portfolio"
)

// TradeRequest is one intended order from a decider. Price and fee are
// filled in by the instance from the current snapshot and config.
type TradeRequest struct {
	Ticker        string
	Action        portfolio.Action
	Quantity      float64
	Justification string
}

// Decision is a decider's full output for one trade window.
type Decision struct {
	Trades    []TradeRequest
	Rationale string
	Reply     string // chat reply; empty means delivered messages go ignored
}

// AgentContext is everything a decider may look at for one agent's turn.
type AgentContext struct {
	Agent        *Agent
	Snapshot     marketdata.MarketSnapshot
	Messages     []chat.Message // user messages delivered this window
	Day          int
	IntradayHour float64
}

// Decider produces trade decisions for an agent at a trade window. The
// production decider calls out to a model; simulated competitions and
// tests use MomentumDecider.
type Decider interface {
	Decide(ctx context.Context, ac AgentContext) (Decision, error)
}

// MomentumDecider chases the day's movers: trims losers, adds the top
// gainer with a fixed slice of cash. Deterministic given the snapshot.
// The default slice stays under the position cap so early buys clear it.
type MomentumDecider struct {
	BuySliceFraction float64 // of cash, default 0.08
	SellOffThreshold float64 // percent, default -2
}

func NewMomentumDecider() *MomentumDecider {
	return &MomentumDecider{BuySliceFraction: 0.08, SellOffThreshold: -2}
}

func (d *MomentumDecider) Decide(_ context.Context, ac AgentContext) (Decision, error) {
	var dec Decision

	// Trim half of any held position that sold off past the threshold.
	held := make([]string, 0, len(ac.Agent.Portfolio.Positions))
	for t := range ac.Agent.Portfolio.Positions {
		held = append(held, t)
	}
	sort.Strings(held)
	for _, t := range held {
		q, ok := ac.Snapshot[t]
		if !ok || q.ChangePercent >= d.SellOffThreshold {
			continue
		}
		pos := ac.Agent.Portfolio.Positions[t]
		qty := math.Floor(pos.Quantity / 2)
		if qty < 1 {
			qty = pos.Quantity
		}
		dec.Trades = append(dec.Trades, TradeRequest{
			Ticker:        t,
			Action:        portfolio.Sell,
			Quantity:      qty,
			Justification: fmt.Sprintf("%s down %.1f%% on the day, cutting exposure", t, q.ChangePercent),
		})
	}

	// Add the strongest gainer with a slice of cash.
	best := ""
	bestChange := 0.0
	tickers := make([]string, 0, len(ac.Snapshot))
	for t := range ac.Snapshot {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		q := ac.Snapshot[t]
		if q.Price > 0 && q.ChangePercent > bestChange {
			best, bestChange = t, q.ChangePercent
		}
	}
	if best != "" {
		budget := ac.Agent.Portfolio.Cash * d.BuySliceFraction
		qty := math.Floor(budget / ac.Snapshot[best].Price)
		if qty >= 1 {
			dec.Trades = append(dec.Trades, TradeRequest{
				Ticker:        best,
				Action:        portfolio.Buy,
				Quantity:      qty,
				Justification: fmt.Sprintf("%s leads the tape at +%.1f%%, riding momentum", best, bestChange),
			})
		}
	}

	if len(dec.Trades) > 0 {
		dec.Rationale = dec.Trades[len(dec.Trades)-1].Justification
	} else {
		dec.Rationale = "no signal strong enough to act on this window"
	}

	if len(ac.Messages) > 0 {
		dec.Reply = fmt.Sprintf("thanks for the %d question(s) this round; %s", len(ac.Messages), dec.Rationale)
	}

	return dec, nil
}

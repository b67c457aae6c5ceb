package portfolio

import (
	"fmt"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
)

// Position is a long holding of a single ticker. Quantity is never
// negative: shorting is not permitted anywhere in the engine.
type Position struct {
	Ticker      string  `json:"ticker"`
	Quantity    float64 `json:"quantity"`
	AverageCost float64 `json:"average_cost"` // cost basis, recomputed on buys only
	LastPrice   float64 `json:"last_price"`
	MarketValue float64 `json:"market_value"`
}

// Portfolio holds an agent's cash and positions. Cash is never negative:
// margin is not permitted.
type Portfolio struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

func New(startingCash float64) *Portfolio {
	return &Portfolio{
		Cash:      startingCash,
		Positions: make(map[string]Position),
	}
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	out := &Portfolio{
		Cash:      p.Cash,
		Positions: make(map[string]Position, len(p.Positions)),
	}
	for k, v := range p.Positions {
		out.Positions[k] = v
	}
	return out
}

// TotalValue is cash plus the sum of position values at snapshot prices.
// A ticker missing from the snapshot falls back to its last known price.
func (p *Portfolio) TotalValue(snap marketdata.MarketSnapshot) float64 {
	total := p.Cash
	for ticker, pos := range p.Positions {
		price := pos.LastPrice
		if q, ok := snap[ticker]; ok && q.Price > 0 {
			price = q.Price
		}
		total += pos.Quantity * price
	}
	return total
}

// Revalue refreshes per-position valuation fields from the snapshot.
func (p *Portfolio) Revalue(snap marketdata.MarketSnapshot) {
	for ticker, pos := range p.Positions {
		if q, ok := snap[ticker]; ok && q.Price > 0 {
			pos.LastPrice = q.Price
			pos.MarketValue = pos.Quantity * q.Price
			p.Positions[ticker] = pos
		}
	}
}

// Action is a trade direction.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
	Hold Action = "hold"
)

// Trade is one agent decision against the market. Timestamp uses the
// fractional day encoding: integer part is the simulation day, fractional
// part times ten is the intraday hour.
type Trade struct {
	Ticker        string  `json:"ticker"`
	Action        Action  `json:"action"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	Timestamp     float64 `json:"timestamp"`
	Fee           float64 `json:"fee,omitempty"`
	FairValue     float64 `json:"fair_value,omitempty"`
	TopOfBox      float64 `json:"top_of_box,omitempty"`
	BottomOfBox   float64 `json:"bottom_of_box,omitempty"`
	Justification string  `json:"justification,omitempty"`
}

// EncodeTimestamp packs a simulation day and intraday hour into the
// fractional day encoding used across trade history.
func EncodeTimestamp(day int, intradayHour float64) float64 {
	return float64(day) + intradayHour/10
}

// DecodeTimestamp unpacks the fractional day encoding.
func DecodeTimestamp(ts float64) (day int, intradayHour float64) {
	day = int(ts)
	return day, (ts - float64(day)) * 10
}

// TradeError is a typed rejection. The trade is simply not applied; the
// tick carries on.
type TradeError struct {
	Reason  string // "insufficient_cash" | "position_cap" | "short_sell" | "invalid_quantity" | "invalid_price"
	Message string
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("trade rejected (%s): %s", e.Reason, e.Message)
}

func rejectf(reason, format string, args ...any) *TradeError {
	return &TradeError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

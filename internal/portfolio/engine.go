package portfolio

import (
	"github.com/rs/zerolog"
)

// Comparison slack for cash and position-cap checks.
const epsilon = 1e-9

// Engine applies trades against portfolios under the competition's risk
// constraints: no shorting, no margin, and a hard per-position size cap.
type Engine struct {
	maxPositionSizePct float64
	log                zerolog.Logger
}

func NewEngine(maxPositionSizePct float64, log zerolog.Logger) *Engine {
	if maxPositionSizePct <= 0 {
		maxPositionSizePct = 10
	}
	return &Engine{
		maxPositionSizePct: maxPositionSizePct,
		log:                log.With().Str("component", "portfolio").Logger(),
	}
}

// Execute applies one trade to the portfolio in place. On rejection the
// portfolio is untouched and a *TradeError describes why.
func (e *Engine) Execute(p *Portfolio, t Trade) error {
	switch t.Action {
	case Hold:
		// Recorded in trade history by the caller for audit; no state change.
		return nil
	case Buy, Sell:
	default:
		return rejectf("invalid_quantity", "unknown action %q", t.Action)
	}

	if t.Quantity <= 0 {
		return rejectf("invalid_quantity", "quantity %.4f must be positive", t.Quantity)
	}
	if t.Price <= 0 {
		return rejectf("invalid_price", "price %.4f must be positive", t.Price)
	}
	if t.Fee < 0 {
		return rejectf("invalid_price", "fee %.4f must not be negative", t.Fee)
	}

	if t.Action == Buy {
		return e.executeBuy(p, t)
	}
	return e.executeSell(p, t)
}

func (e *Engine) executeBuy(p *Portfolio, t Trade) error {
	cost := t.Quantity*t.Price + t.Fee
	if cost > p.Cash+epsilon {
		return rejectf("insufficient_cash", "%s buy needs %.2f, cash is %.2f", t.Ticker, cost, p.Cash)
	}

	pos := p.Positions[t.Ticker]

	// Position cap: the resulting position may not exceed the configured
	// share of total portfolio value. Exactly at the cap is allowed.
	newQty := pos.Quantity + t.Quantity
	positionValue := newQty * t.Price
	total := p.TotalValue(nil)
	capValue := total * e.maxPositionSizePct / 100
	if positionValue > capValue+epsilon {
		return rejectf("position_cap", "%s position %.2f would exceed %.1f%% cap (%.2f of %.2f)",
			t.Ticker, positionValue, e.maxPositionSizePct, capValue, total)
	}

	// Weighted-average cost basis across the existing and new lots.
	if pos.Quantity > 0 {
		pos.AverageCost = (pos.AverageCost*pos.Quantity + t.Price*t.Quantity) / newQty
	} else {
		pos.AverageCost = t.Price
	}
	pos.Ticker = t.Ticker
	pos.Quantity = newQty
	pos.LastPrice = t.Price
	pos.MarketValue = newQty * t.Price

	p.Positions[t.Ticker] = pos
	p.Cash -= cost
	return nil
}

func (e *Engine) executeSell(p *Portfolio, t Trade) error {
	pos, ok := p.Positions[t.Ticker]
	if !ok || t.Quantity > pos.Quantity+epsilon {
		held := 0.0
		if ok {
			held = pos.Quantity
		}
		return rejectf("short_sell", "%s sell of %.4f exceeds held %.4f", t.Ticker, t.Quantity, held)
	}

	proceeds := t.Quantity*t.Price - t.Fee
	if p.Cash+proceeds < -epsilon {
		return rejectf("insufficient_cash", "%s sell fee %.2f would overdraw cash", t.Ticker, t.Fee)
	}

	pos.Quantity -= t.Quantity
	if pos.Quantity <= epsilon {
		delete(p.Positions, t.Ticker)
	} else {
		// Average cost is untouched by sells; realized P&L stays derivable
		// from trade history.
		pos.LastPrice = t.Price
		pos.MarketValue = pos.Quantity * t.Price
		p.Positions[t.Ticker] = pos
	}

	p.Cash += proceeds
	return nil
}

package portfolio

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
)

func newTestEngine() *Engine {
	return NewEngine(10, zerolog.Nop())
}

// Start cash $1,000,000; buy 100 AAPL @ $150 with no fee.
func TestExecuteBuyBasic(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)

	err := e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150})
	require.NoError(t, err)

	assert.InDelta(t, 985_000, p.Cash, 1e-6)
	pos := p.Positions["AAPL"]
	assert.InDelta(t, 100, pos.Quantity, 1e-9)
	assert.InDelta(t, 150, pos.AverageCost, 1e-9)
}

func TestExecuteBuyWeightedAverageCost(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)

	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150}))
	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 170}))

	pos := p.Positions["AAPL"]
	assert.InDelta(t, 200, pos.Quantity, 1e-9)
	assert.InDelta(t, 160, pos.AverageCost, 1e-9) // (100*150 + 100*170) / 200
}

func TestExecuteBuyInsufficientCash(t *testing.T) {
	e := newTestEngine()
	p := New(1_000)

	err := e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150})
	var te *TradeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "insufficient_cash", te.Reason)
	assert.InDelta(t, 1_000, p.Cash, 1e-9, "rejected trade must not touch the portfolio")
}

func TestExecuteBuyFeesCountAgainstCash(t *testing.T) {
	e := newTestEngine()
	p := New(15_000)

	// Notional alone fits the cash exactly; the fee tips it over.
	err := e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150, Fee: 5})
	var te *TradeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "insufficient_cash", te.Reason)

	funded := New(1_000_000)
	require.NoError(t, e.Execute(funded, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150, Fee: 5}))
	assert.InDelta(t, 1_000_000-100*150-5, funded.Cash, 1e-6)
}

func TestPositionCapBoundary(t *testing.T) {
	e := newTestEngine()

	// Exactly 10% of a $1,000,000 portfolio is accepted.
	p := New(1_000_000)
	err := e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 1000, Price: 100})
	require.NoError(t, err, "buy at exactly the cap must be accepted")

	// One share more is rejected.
	p = New(1_000_000)
	err = e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 1001, Price: 100})
	var te *TradeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "position_cap", te.Reason)
}

func TestPositionCapCountsExistingLots(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)

	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 600, Price: 100}))

	// 600 held + 500 more at the same price breaches the 10% cap.
	err := e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 500, Price: 100})
	var te *TradeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "position_cap", te.Reason)
}

func TestExecuteSellBasic(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)
	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150}))

	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Sell, Quantity: 40, Price: 180}))

	pos := p.Positions["AAPL"]
	assert.InDelta(t, 60, pos.Quantity, 1e-9)
	assert.InDelta(t, 150, pos.AverageCost, 1e-9, "average cost is unchanged by sells")
	assert.InDelta(t, 985_000+40*180, p.Cash, 1e-6)
}

func TestExecuteSellRemovesEmptyPosition(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)
	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150}))

	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Sell, Quantity: 100, Price: 160}))

	_, exists := p.Positions["AAPL"]
	assert.False(t, exists, "fully sold position must be removed")
}

func TestExecuteSellNoShorting(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)
	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 50, Price: 150}))

	err := e.Execute(p, Trade{Ticker: "AAPL", Action: Sell, Quantity: 51, Price: 150})
	var te *TradeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "short_sell", te.Reason)

	err = e.Execute(p, Trade{Ticker: "MSFT", Action: Sell, Quantity: 1, Price: 400})
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "short_sell", te.Reason)
}

func TestExecuteHoldIsNoOp(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)

	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Hold}))
	assert.InDelta(t, 1_000_000, p.Cash, 1e-9)
	assert.Empty(t, p.Positions)
}

func TestExecuteRejectsBadInputs(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)

	for _, tr := range []Trade{
		{Ticker: "AAPL", Action: Buy, Quantity: 0, Price: 100},
		{Ticker: "AAPL", Action: Buy, Quantity: -5, Price: 100},
		{Ticker: "AAPL", Action: Buy, Quantity: 10, Price: 0},
		{Ticker: "AAPL", Action: Buy, Quantity: 10, Price: -1},
		{Ticker: "AAPL", Action: "borrow", Quantity: 10, Price: 100},
	} {
		err := e.Execute(p, tr)
		var te *TradeError
		require.True(t, errors.As(err, &te), "trade %+v should be rejected", tr)
	}
}

// Invariants: cash >= 0 and quantity >= 0 after any trade sequence.
func TestInvariantsUnderRandomTradeSequences(t *testing.T) {
	e := newTestEngine()
	rng := rand.New(rand.NewSource(99))
	tickers := []string{"AAPL", "MSFT", "GOOGL"}

	p := New(1_000_000)
	for i := 0; i < 2000; i++ {
		tr := Trade{
			Ticker:   tickers[rng.Intn(len(tickers))],
			Quantity: float64(rng.Intn(500) + 1),
			Price:    10 + rng.Float64()*400,
			Fee:      rng.Float64() * 2,
		}
		if rng.Intn(2) == 0 {
			tr.Action = Buy
		} else {
			tr.Action = Sell
		}
		_ = e.Execute(p, tr) // rejections are expected and fine

		require.GreaterOrEqual(t, p.Cash, -1e-6, "cash must never go negative")
		for _, pos := range p.Positions {
			require.Greater(t, pos.Quantity, 0.0, "held positions must have positive quantity")
		}
	}
}

func TestTotalValueUsesSnapshotPrices(t *testing.T) {
	e := newTestEngine()
	p := New(1_000_000)
	require.NoError(t, e.Execute(p, Trade{Ticker: "AAPL", Action: Buy, Quantity: 100, Price: 150}))

	snap := marketdata.MarketSnapshot{"AAPL": {Ticker: "AAPL", Price: 180}}
	assert.InDelta(t, 985_000+100*180, p.TotalValue(snap), 1e-6)
}

func TestTimestampEncoding(t *testing.T) {
	ts := EncodeTimestamp(12, 4)
	assert.InDelta(t, 12.4, ts, 1e-9)

	day, hour := DecodeTimestamp(ts)
	assert.Equal(t, 12, day)
	assert.InDelta(t, 4, hour, 1e-9)
}

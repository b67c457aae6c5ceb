package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTotalReturn(t *testing.T) {
	c := NewCalculator(0.05)

	// $985,000 cash + 100 AAPL at $180.
	values := []float64{1_000_000, 1_003_000}
	m := c.Compute(values, 0)

	assert.InDelta(t, 1_003_000, m.TotalValue, 1e-6)
	assert.InDelta(t, 0.003, m.TotalReturn, 1e-9)
	assert.InDelta(t, 0.003, m.DailyReturn, 1e-9)
}

// Three consecutive flat days produce zero Sharpe and zero drawdown.
func TestComputeFlatSeries(t *testing.T) {
	c := NewCalculator(0.05)

	values := []float64{1_000_000, 1_000_000, 1_000_000}
	m := c.Compute(values, 0)

	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.AnnualizedVolatility)
	assert.Equal(t, 0.0, m.TotalReturn)
}

func TestComputeIsPure(t *testing.T) {
	c := NewCalculator(0.05)
	values := []float64{100, 105, 98, 110, 104}

	first := c.Compute(values, 2500)
	second := c.Compute(values, 2500)

	assert.Equal(t, first, second, "recomputing from an unchanged history must be identical")
}

func TestMaxDrawdown(t *testing.T) {
	c := NewCalculator(0)

	// Peak 120, trough 90: drawdown 25%.
	values := []float64{100, 120, 90, 110}
	m := c.Compute(values, 0)

	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-9)
}

func TestMaxDrawdownMonotonicRise(t *testing.T) {
	c := NewCalculator(0)

	values := []float64{100, 110, 120, 130}
	m := c.Compute(values, 0)

	assert.Equal(t, 0.0, m.MaxDrawdown)
}

func TestTurnover(t *testing.T) {
	c := NewCalculator(0)

	values := []float64{1_000_000, 1_000_000}
	m := c.Compute(values, 50_000)

	assert.InDelta(t, 0.05, m.Turnover, 1e-9)
}

func TestSharpeSignTracksExcessReturn(t *testing.T) {
	c := NewCalculator(0)

	up := c.Compute([]float64{100, 101, 103, 104, 106}, 0)
	assert.Greater(t, up.SharpeRatio, 0.0)

	down := c.Compute([]float64{106, 104, 103, 101, 100}, 0)
	assert.Less(t, down.SharpeRatio, 0.0)
}

func TestComputeEmptyAndSingle(t *testing.T) {
	c := NewCalculator(0.05)

	assert.Equal(t, Metrics{}, c.Compute(nil, 0))

	m := c.Compute([]float64{1_000_000}, 0)
	assert.InDelta(t, 1_000_000, m.TotalValue, 1e-9)
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.DailyReturn)
}

func TestVolatilityAnnualization(t *testing.T) {
	c := NewCalculator(0)

	// Alternating +1%/-1% daily moves: daily vol is positive, and the
	// annualized figure is sqrt(252) times the daily one by construction.
	values := []float64{100, 101, 99.99, 100.99, 99.98}
	m := c.Compute(values, 0)

	assert.Greater(t, m.AnnualizedVolatility, 0.0)
}

package performance

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization basis for volatility and Sharpe.
const TradingDaysPerYear = 252

// Metrics is one appended record of an agent's (or benchmark's) performance
// time series. History is append-only; a record is never revised.
type Metrics struct {
	TotalValue           float64 `json:"total_value"`
	TotalReturn          float64 `json:"total_return"`
	DailyReturn          float64 `json:"daily_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	Turnover             float64 `json:"turnover"`
	Timestamp            float64 `json:"timestamp"` // fractional day encoding
}

// Calculator derives return and risk metrics from a portfolio value
// history. Every call recomputes from the full series: the outputs are a
// pure function of the inputs, so they can never drift from the stored
// history.
type Calculator struct {
	RiskFreeRate float64 // annual, as a decimal
}

func NewCalculator(riskFreeRate float64) *Calculator {
	return &Calculator{RiskFreeRate: riskFreeRate}
}

// Compute derives metrics for a value history V[0..n] where V[n] is the
// current total value. tickNotional is the traded notional of this tick,
// used for turnover.
func (c *Calculator) Compute(values []float64, tickNotional float64) Metrics {
	var m Metrics
	if len(values) == 0 {
		return m
	}

	n := len(values) - 1
	m.TotalValue = values[n]

	if values[0] != 0 {
		m.TotalReturn = values[n]/values[0] - 1
	}
	if n > 0 && values[n-1] != 0 {
		m.DailyReturn = values[n]/values[n-1] - 1
	}

	returns := dailyReturns(values)
	if len(returns) >= 2 {
		dailyVol := stat.StdDev(returns, nil)
		m.AnnualizedVolatility = dailyVol * math.Sqrt(TradingDaysPerYear)
		m.SharpeRatio = c.sharpe(returns, dailyVol)
	}

	m.MaxDrawdown = maxDrawdown(values)

	if values[n] != 0 {
		m.Turnover = tickNotional / values[n]
	}

	return m
}

// sharpe annualizes the mean excess daily return over its volatility.
// Defined as zero when volatility is zero.
func (c *Calculator) sharpe(returns []float64, dailyVol float64) float64 {
	if dailyVol == 0 {
		return 0
	}
	dailyRiskFree := c.RiskFreeRate / TradingDaysPerYear
	excess := stat.Mean(returns, nil) - dailyRiskFree
	return excess / dailyVol * math.Sqrt(TradingDaysPerYear)
}

// dailyReturns converts a value series into period-over-period returns.
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns = append(returns, values[i]/values[i-1]-1)
		} else {
			returns = append(returns, 0)
		}
	}
	return returns
}

// maxDrawdown is the largest peak-relative decline over the series.
func maxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDD := 0.0
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// SyntheticSource generates random-walk quotes. It is the terminal fallback
// of the cascade and the sole source for simulated competitions; it never
// fails.
type SyntheticSource struct {
	mu     sync.Mutex
	last   map[string]float64
	random *rand.Rand

	dailyVol float64
}

func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		last:     make(map[string]float64),
		random:   rand.New(rand.NewSource(seed)),
		dailyVol: 0.02,
	}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) Fetch(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, NewBadTickerError(ticker, "empty ticker")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.last[ticker]
	if !ok {
		prev = basePriceFor(ticker)
	}

	// Per-tick volatility derived from daily volatility over a 390-minute
	// session, as a liquid-stock approximation.
	tickVol := s.dailyVol / math.Sqrt(390)
	move := s.random.NormFloat64() * tickVol
	price := roundToTick(prev*(1+move), tickSizeFor(prev))
	if price <= 0 {
		price = prev
	}
	s.last[ticker] = price

	change := price - prev
	var changePct float64
	if prev > 0 {
		changePct = change / prev * 100
	}

	return &Quote{
		Ticker:        ticker,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        int64(500_000 + s.random.Intn(5_000_000)),
		Source:        s.Name(),
		Timestamp:     time.Now().UTC(),
	}, nil
}

// Seed pins a ticker's current price, used to hand synthetic walks a real
// starting point after a live quote or snapshot restore.
func (s *SyntheticSource) Seed(ticker string, price float64) {
	if price <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[strings.ToUpper(strings.TrimSpace(ticker))] = price
}

// basePriceFor derives a stable starting price from the ticker name so
// unknown tickers still get plausible, repeatable levels.
func basePriceFor(ticker string) float64 {
	h := fnv.New32a()
	h.Write([]byte(ticker))
	return 20 + float64(h.Sum32()%480)
}

func tickSizeFor(price float64) float64 {
	if price >= 1.00 {
		return 0.01
	}
	return 0.0001
}

func roundToTick(price, tickSize float64) float64 {
	return math.Round(price/tickSize) * tickSize
}

package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/piquette/finance-go/equity"
)

// YahooSource is the primary price source, backed by Yahoo Finance.
type YahooSource struct{}

func NewYahooSource() *YahooSource {
	return &YahooSource{}
}

func (s *YahooSource) Name() string { return "yahoo" }

// Fetch retrieves a quote with fundamentals. The finance-go client has no
// context support, so the call runs in a goroutine and the result is
// abandoned on ctx expiry.
func (s *YahooSource) Fetch(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, NewBadTickerError(ticker, "empty ticker")
	}

	type result struct {
		quote *Quote
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		eq, err := equity.Get(ticker)
		if err != nil {
			ch <- result{err: NewProviderError(ticker, "yahoo equity lookup failed", err)}
			return
		}
		if eq == nil || eq.RegularMarketPrice <= 0 {
			ch <- result{err: NewBadTickerError(ticker, "no quote data returned")}
			return
		}
		ch <- result{quote: &Quote{
			Ticker:        ticker,
			Price:         eq.RegularMarketPrice,
			Change:        eq.RegularMarketChange,
			ChangePercent: eq.RegularMarketChangePercent,
			Volume:        int64(eq.RegularMarketVolume),
			PE:            eq.TrailingPE,
			MarketCap:     float64(eq.MarketCap),
			Source:        s.Name(),
			Timestamp:     time.Now().UTC(),
		}}
	}()

	select {
	case <-ctx.Done():
		return nil, NewNetworkError(ticker, "yahoo fetch cancelled", ctx.Err())
	case r := <-ch:
		return r.quote, r.err
	}
}

package marketdata

import (
	"fmt"
	"strings"
	"time"
)

// Quote represents normalized market data from any price source
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`         // Absolute change vs previous close
	ChangePercent float64   `json:"change_percent"` // Percent change vs previous close
	Volume        int64     `json:"volume,omitempty"`
	PE            float64   `json:"pe,omitempty"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	Source        string    `json:"source"` // "yahoo"|"stooq"|"finnhub"|"synthetic"
	Timestamp     time.Time `json:"timestamp"`
}

// MarketSnapshot maps ticker to its quote for one simulation tick.
// Replaced wholesale each tick, never mutated in place.
type MarketSnapshot map[string]Quote

// Clone returns an independent copy of the snapshot.
func (s MarketSnapshot) Clone() MarketSnapshot {
	out := make(MarketSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ValidateQuote performs fail-closed quote validation.
func ValidateQuote(q *Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}

	q.Ticker = strings.ToUpper(strings.TrimSpace(q.Ticker))
	if q.Ticker == "" {
		return fmt.Errorf("empty ticker")
	}

	if q.Price <= 0 {
		return fmt.Errorf("invalid price %.4f for %s", q.Price, q.Ticker)
	}
	if q.Volume < 0 {
		return fmt.Errorf("negative volume %d for %s", q.Volume, q.Ticker)
	}
	if q.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("quote timestamp too far in future: %v", q.Timestamp)
	}

	return nil
}

// QuoteError represents different types of quote fetch errors
type QuoteError struct {
	Kind    string // "network", "rate_limit", "provider_error", "bad_ticker", "implausible"
	Ticker  string
	Message string
	Cause   error
}

func (e *QuoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Kind, e.Ticker, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Kind, e.Ticker, e.Message)
}

func (e *QuoteError) Unwrap() error { return e.Cause }

func NewNetworkError(ticker, message string, cause error) *QuoteError {
	return &QuoteError{Kind: "network", Ticker: ticker, Message: message, Cause: cause}
}

func NewRateLimitError(ticker, message string) *QuoteError {
	return &QuoteError{Kind: "rate_limit", Ticker: ticker, Message: message}
}

func NewProviderError(ticker, message string, cause error) *QuoteError {
	return &QuoteError{Kind: "provider_error", Ticker: ticker, Message: message, Cause: cause}
}

func NewBadTickerError(ticker, message string) *QuoteError {
	return &QuoteError{Kind: "bad_ticker", Ticker: ticker, Message: message}
}

func NewImplausibleError(ticker string, prevPrice, newPrice, jumpPct float64) *QuoteError {
	return &QuoteError{
		Kind:   "implausible",
		Ticker: ticker,
		Message: fmt.Sprintf("price jump %.2f%% exceeds guard (prev %.2f, new %.2f)",
			jumpPct, prevPrice, newPrice),
	}
}

// MarketOpen reports whether US equity regular trading hours are active.
func MarketOpen(now time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	et := now.In(loc)

	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	open := 9*60 + 30
	close := 16 * 60
	return minutes >= open && minutes < close
}

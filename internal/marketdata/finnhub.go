package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// FinnhubSource is the tertiary price source. Requires an API key; without
// one every fetch fails fast and the cascade moves on.
type FinnhubSource struct {
	client *resty.Client
	apiKey string
}

func NewFinnhubSource(apiKey string, timeout time.Duration) *FinnhubSource {
	client := resty.New()
	client.SetBaseURL("https://finnhub.io/api/v1")
	client.SetTimeout(timeout)
	return &FinnhubSource{client: client, apiKey: apiKey}
}

func (s *FinnhubSource) Name() string { return "finnhub" }

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

func (s *FinnhubSource) Fetch(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, NewBadTickerError(ticker, "empty ticker")
	}
	if s.apiKey == "" {
		return nil, NewProviderError(ticker, "finnhub API key not configured", nil)
	}

	var fq finnhubQuote
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": ticker,
			"token":  s.apiKey,
		}).
		SetResult(&fq).
		Get("/quote")
	if err != nil {
		return nil, NewNetworkError(ticker, "finnhub request failed", err)
	}
	if resp.StatusCode() == 429 {
		return nil, NewRateLimitError(ticker, "finnhub API rate limit exceeded")
	}
	if resp.StatusCode() != 200 {
		return nil, NewProviderError(ticker, fmt.Sprintf("finnhub HTTP %d", resp.StatusCode()), nil)
	}

	// Finnhub returns zeros rather than an error for unknown symbols.
	if fq.Current <= 0 {
		return nil, NewBadTickerError(ticker, "finnhub has no data for ticker")
	}

	ts := time.Now().UTC()
	if fq.Timestamp > 0 {
		ts = time.Unix(fq.Timestamp, 0).UTC()
	}

	return &Quote{
		Ticker:        ticker,
		Price:         fq.Current,
		Change:        fq.Change,
		ChangePercent: fq.ChangePercent,
		Source:        s.Name(),
		Timestamp:     ts,
	}, nil
}

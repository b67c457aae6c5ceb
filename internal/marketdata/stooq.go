package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// StooqSource is the secondary price source. Stooq serves delayed quotes as
// bare CSV without auth, which makes it a cheap fallback tier.
type StooqSource struct {
	client *resty.Client
}

func NewStooqSource(timeout time.Duration) *StooqSource {
	client := resty.New()
	client.SetBaseURL("https://stooq.com")
	client.SetTimeout(timeout)
	return &StooqSource{client: client}
}

func (s *StooqSource) Name() string { return "stooq" }

// Fetch downloads the one-line CSV quote for a US-listed ticker.
// Format requested: symbol,date,time,open,high,low,close,volume
func (s *StooqSource) Fetch(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, NewBadTickerError(ticker, "empty ticker")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"s": strings.ToLower(ticker) + ".us",
			"f": "sd2t2ohlcv",
			"h": "",
			"e": "csv",
		}).
		Get("/q/l/")
	if err != nil {
		return nil, NewNetworkError(ticker, "stooq request failed", err)
	}
	if resp.StatusCode() != 200 {
		return nil, NewProviderError(ticker, fmt.Sprintf("stooq HTTP %d", resp.StatusCode()), nil)
	}

	return s.parseCSV(ticker, resp.String())
}

func (s *StooqSource) parseCSV(ticker, body string) (*Quote, error) {
	r := csv.NewReader(strings.NewReader(body))
	records, err := r.ReadAll()
	if err != nil {
		return nil, NewProviderError(ticker, "stooq CSV parse failed", err)
	}

	// Header row plus one data row expected.
	var row []string
	for _, rec := range records {
		if len(rec) >= 8 && !strings.EqualFold(rec[0], "Symbol") {
			row = append([]string{}, rec...)
			break
		}
	}
	if row == nil {
		return nil, NewBadTickerError(ticker, "no quote row in stooq response")
	}

	// N/D marks unknown symbols and closed sessions without data.
	if row[6] == "N/D" {
		return nil, NewBadTickerError(ticker, "stooq has no data for ticker")
	}

	// Prices go through decimal so the CSV's printed precision survives
	// the parse.
	closeDec, err := decimal.NewFromString(row[6])
	if err != nil || !closeDec.IsPositive() {
		return nil, NewProviderError(ticker, fmt.Sprintf("bad close price %q", row[6]), err)
	}
	closePx := closeDec.InexactFloat64()
	var open float64
	if openDec, err := decimal.NewFromString(row[3]); err == nil {
		open = openDec.InexactFloat64()
	}
	volume, _ := strconv.ParseInt(row[7], 10, 64)

	// Stooq's light endpoint has no previous close; intraday change vs open
	// is the best available approximation.
	var change, changePct float64
	if open > 0 {
		change = closePx - open
		changePct = change / open * 100
	}

	return &Quote{
		Ticker:        ticker,
		Price:         closePx,
		Change:        change,
		ChangePercent: changePct,
		Volume:        volume,
		Source:        s.Name(),
		Timestamp:     time.Now().UTC(),
	}, nil
}

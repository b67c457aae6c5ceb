package marketdata

import (
	"testing"
	"time"
)

func TestValidateQuote(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		quote   *Quote
		wantErr bool
	}{
		{
			name: "valid quote",
			quote: &Quote{
				Ticker:    "AAPL",
				Price:     206.80,
				Change:    1.20,
				Volume:    15000000,
				Source:    "yahoo",
				Timestamp: now.Add(-30 * time.Second),
			},
			wantErr: false,
		},
		{
			name:    "nil quote",
			quote:   nil,
			wantErr: true,
		},
		{
			name: "empty ticker",
			quote: &Quote{
				Ticker: "  ",
				Price:  100,
			},
			wantErr: true,
		},
		{
			name: "zero price",
			quote: &Quote{
				Ticker: "AAPL",
				Price:  0,
			},
			wantErr: true,
		},
		{
			name: "negative price",
			quote: &Quote{
				Ticker: "AAPL",
				Price:  -10,
			},
			wantErr: true,
		},
		{
			name: "negative volume",
			quote: &Quote{
				Ticker: "AAPL",
				Price:  100,
				Volume: -1,
			},
			wantErr: true,
		},
		{
			name: "future timestamp",
			quote: &Quote{
				Ticker:    "AAPL",
				Price:     100,
				Timestamp: now.Add(10 * time.Minute),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuote(tt.quote)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQuote() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateQuoteNormalizesTicker(t *testing.T) {
	q := &Quote{Ticker: " aapl ", Price: 100}
	if err := ValidateQuote(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Ticker != "AAPL" {
		t.Fatalf("want AAPL, got %s", q.Ticker)
	}
}

func TestSnapshotClone(t *testing.T) {
	snap := MarketSnapshot{"AAPL": {Ticker: "AAPL", Price: 100}}
	clone := snap.Clone()
	clone["AAPL"] = Quote{Ticker: "AAPL", Price: 200}

	if snap["AAPL"].Price != 100 {
		t.Fatalf("clone mutated the original snapshot")
	}
}

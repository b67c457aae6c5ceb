package marketdata

import "context"

// PriceSource fetches a normalized quote for a single ticker or fails.
// Sources are tried in fixed priority order by the Provider; each source is
// oblivious to the cascade it participates in.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (*Quote, error)
}

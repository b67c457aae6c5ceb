package marketdata

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ProviderConfig holds the cascade and guard settings.
type ProviderConfig struct {
	Timeout              time.Duration // per source attempt
	MaxPriceJumpPercent  float64
	FetchConcurrency     int
	RateWindow           time.Duration
	MaxRequestsPerWindow int
}

// Provider cascades across price sources per ticker in fixed priority
// order, short-circuiting on the first success. Every attempt is rate
// limited, timed out and panic-isolated; when all sources fail the
// synthetic fallback answers so a tick never aborts.
type Provider struct {
	sources  []PriceSource
	fallback *SyntheticSource
	limiters map[string]*SourceLimiter
	tel      *Telemetry
	cfg      ProviderConfig
	log      zerolog.Logger
}

func NewProvider(cfg ProviderConfig, sources []PriceSource, fallback *SyntheticSource, log zerolog.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPriceJumpPercent <= 0 {
		cfg.MaxPriceJumpPercent = 25
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}

	limiters := make(map[string]*SourceLimiter, len(sources))
	for _, s := range sources {
		limiters[s.Name()] = NewSourceLimiter(cfg.RateWindow, cfg.MaxRequestsPerWindow)
	}

	return &Provider{
		sources:  sources,
		fallback: fallback,
		limiters: limiters,
		tel:      NewTelemetry(),
		cfg:      cfg,
		log:      log.With().Str("component", "marketdata").Logger(),
	}
}

// FetchQuote resolves one ticker through the cascade. It never returns an
// error: after every source has failed the synthetic fallback answers with
// a warning.
func (p *Provider) FetchQuote(ctx context.Context, ticker string) *Quote {
	for _, src := range p.sources {
		limiter := p.limiters[src.Name()]
		if limiter != nil && !limiter.Allow() {
			// Blocked, not queued. Surfaces via limiter telemetry only.
			continue
		}

		quote, err := p.fetchIsolated(ctx, src, ticker)
		if err != nil {
			p.tel.RecordFailure(src.Name(), err)
			p.log.Debug().Str("source", src.Name()).Str("ticker", ticker).Err(err).Msg("source fetch failed")
			continue
		}
		if err := ValidateQuote(quote); err != nil {
			p.tel.RecordFailure(src.Name(), err)
			continue
		}

		p.tel.RecordSuccess(src.Name())
		// Hand the fallback a real anchor so a later synthetic quote
		// continues from the last observed price.
		p.fallback.Seed(ticker, quote.Price)
		return quote
	}

	p.tel.RecordFallback()
	quote, _ := p.fallback.Fetch(ctx, ticker)
	p.tel.RecordSuccess(p.fallback.Name())
	p.log.Warn().Str("ticker", ticker).Msg("all price sources failed, using synthetic quote")
	return quote
}

// fetchIsolated wraps one source attempt with a timeout and panic recovery
// so a misbehaving source cannot take the batch down.
func (p *Provider) fetchIsolated(ctx context.Context, src PriceSource, ticker string) (quote *Quote, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			quote = nil
			err = NewProviderError(ticker, fmt.Sprintf("source %s panicked: %v", src.Name(), r), nil)
		}
	}()

	return src.Fetch(ctx, ticker)
}

// FetchSnapshot fetches all tickers with bounded concurrency and applies the
// sanity guard against the previous snapshot. The returned snapshot always
// covers every requested ticker.
//
// Guard policy: a quote whose price jumped more than MaxPriceJumpPercent
// against the previous snapshot is rejected and the previous price carries
// forward unchanged; the event is logged and counted, never silent.
func (p *Provider) FetchSnapshot(ctx context.Context, tickers []string, prev MarketSnapshot) MarketSnapshot {
	var mu sync.Mutex
	next := make(MarketSnapshot, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchConcurrency)

	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			quote := p.FetchQuote(ctx, ticker)
			accepted := p.applyGuard(ticker, quote, prev)

			mu.Lock()
			next[ticker] = accepted
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-ticker failures never propagate

	return next
}

// applyGuard validates a fresh quote against the previous snapshot and
// returns the quote to keep for this tick.
func (p *Provider) applyGuard(ticker string, quote *Quote, prev MarketSnapshot) Quote {
	prevQuote, ok := prev[ticker]
	if !ok || prevQuote.Price <= 0 {
		return *quote
	}

	jumpPct := (quote.Price - prevQuote.Price) / prevQuote.Price * 100
	if math.Abs(jumpPct) > p.cfg.MaxPriceJumpPercent {
		p.tel.RecordSanityFlag()
		p.log.Warn().
			Str("ticker", ticker).
			Str("source", quote.Source).
			Float64("prev_price", prevQuote.Price).
			Float64("new_price", quote.Price).
			Float64("jump_pct", jumpPct).
			Msg("implausible price jump rejected, carrying previous price forward")
		return prevQuote
	}

	return *quote
}

// Telemetry returns the current telemetry view.
func (p *Provider) Telemetry() TelemetrySnapshot {
	return p.tel.Snapshot(p.limiters)
}

// Throttled reports whether any source's window budget is exhausted.
func (p *Provider) Throttled() bool {
	return Throttled(p.limiters)
}

package provider

import (
	"context"

	"quotefeed/internal/market"
)

// QuoteBatcher fetches quotes for many symbols in one upstream call.
// The result map is keyed by the originally requested symbol; symbols
// the provider could not serve are simply absent.
type QuoteBatcher interface {
	ID() market.ProviderID
	FetchQuotes(ctx context.Context, symbols []string) (map[string]market.Quote, error)
}

// QuoteFetcher fetches a quote for a single symbol.
type QuoteFetcher interface {
	ID() market.ProviderID
	FetchQuote(ctx context.Context, sym string) (market.Quote, error)
}

// HistoryFetcher fetches an OHLCV series for a single symbol.
type HistoryFetcher interface {
	ID() market.ProviderID
	FetchHistory(ctx context.Context, sym string, period market.Period) ([]market.HistoryPoint, error)
}

package fx

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quotefeed/internal/market"
)

// Pair is the reference pair every USD->EUR rescale is based on.
const Pair = "EURUSD=X"

// Defaults: the fixed fallback rate and the plausibility bounds outside
// which a fetched rate is discarded.
const (
	DefaultRate = 1.08
	MinRate     = 0.5
	MaxRate     = 2.5
)

// RateSource fetches the reference pair when no already-fetched rate is
// at hand. The unauthenticated Yahoo chart endpoint fills this role.
type RateSource interface {
	FetchQuote(ctx context.Context, sym string) (market.Quote, error)
}

// Normalizer rescales USD-denominated values to EUR. Best effort: it
// prefers a rate piggybacked on an earlier batch response, falls back
// to one chart request, and finally to the fixed default.
type Normalizer struct {
	src RateSource
	sf  singleflight.Group
	log zerolog.Logger
}

func NewNormalizer(src RateSource, log zerolog.Logger) *Normalizer {
	return &Normalizer{src: src, log: log.With().Str("component", "fx").Logger()}
}

func plausible(rate float64) bool {
	return rate >= MinRate && rate <= MaxRate
}

// Rate returns the EUR/USD rate to divide USD values by. prefetched is
// the rate a batch quote response already carried, 0 when it didn't.
func (n *Normalizer) Rate(ctx context.Context, prefetched float64) float64 {
	if plausible(prefetched) {
		return prefetched
	}
	if n.src == nil {
		return DefaultRate
	}
	v, err, _ := n.sf.Do(Pair, func() (any, error) {
		q, err := n.src.FetchQuote(ctx, Pair)
		if err != nil {
			return 0.0, err
		}
		return q.Price, nil
	})
	if err != nil {
		n.log.Warn().Err(err).Msg("fx fallback fetch failed, using default rate")
		return DefaultRate
	}
	rate := v.(float64)
	if !plausible(rate) {
		n.log.Warn().Float64("rate", rate).Msg("fx rate out of bounds, using default rate")
		return DefaultRate
	}
	return rate
}

// Normalize rescales a USD quote to EUR by dividing all absolute price
// values by rate. Percent change is currency-invariant and untouched.
// Non-USD quotes pass through unchanged.
func Normalize(q market.Quote, rate float64) market.Quote {
	if q.Currency != "USD" || rate <= 0 {
		return q
	}
	q.Price /= rate
	q.PreviousClose /= rate
	q.Change /= rate
	q.DayHigh /= rate
	q.DayLow /= rate
	q.Currency = "EUR"
	return q
}

package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quotefeed/internal/fx"
	"quotefeed/internal/market"
	"quotefeed/internal/provider"
	"quotefeed/internal/proverr"
	"quotefeed/internal/symbol"
)

// Attempt records one failed provider try for one symbol.
type Attempt struct {
	Provider market.ProviderID `json:"provider"`
	Reason   string            `json:"reason"`
}

// Failure is the per-symbol diagnostics entry: every provider in the
// symbol's chain that was attempted, in order.
type Failure struct {
	Symbol   string    `json:"symbol"`
	Attempts []Attempt `json:"attempts"`
}

func (f Failure) String() string {
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s(%s)", a.Provider, a.Reason))
	}
	return f.Symbol + ": " + strings.Join(parts, " ")
}

// ChainError reports a symbol whose whole provider chain failed, for
// callers that need a hard error rather than a partial result.
type ChainError struct {
	Failure Failure
}

func (e *ChainError) Error() string { return e.Failure.String() }

// QuoteResult is the aggregate a quote resolution produces. Symbols
// that exhausted their chain are absent from Quotes and listed in
// Errors; a missing key means unresolvable, never zero.
type QuoteResult struct {
	Quotes    map[string]market.Quote `json:"quotes"`
	Source    string                  `json:"source"`
	Sources   []market.ProviderID     `json:"sources"`
	Errors    []Failure               `json:"errors,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// HistoryResult is one symbol's resolved OHLCV series.
type HistoryResult struct {
	Symbol string                `json:"symbol"`
	Period market.Period         `json:"period"`
	Data   []market.HistoryPoint `json:"data"`
	Source market.ProviderID     `json:"source"`
}

// EquityBatcher is the batch-capable equity provider. Alongside the
// quotes it surfaces the FX reference rate its response already
// carried, so the normalizer can skip a second round trip.
type EquityBatcher interface {
	ID() market.ProviderID
	FetchQuotesFX(ctx context.Context, symbols []string) (map[string]market.Quote, float64, error)
}

// Chains holds the priority-ordered providers per instrument class.
// Fixed at construction; injectable so tests can force failures.
type Chains struct {
	CryptoQuotes  provider.QuoteBatcher    // batched, no further crypto fallback
	EquityBatch   EquityBatcher            // tried once for the whole partition
	EquityQuotes  []provider.QuoteFetcher  // per-symbol fallbacks, in priority order
	CryptoHistory []provider.HistoryFetcher
	EquityHistory []provider.HistoryFetcher
}

// Resolver walks provider chains per symbol with bounded concurrency
// and merges the outcomes into one aggregate per request. It holds no
// per-request state; every resolution allocates its own.
type Resolver struct {
	chains  Chains
	fx      *fx.Normalizer
	timeout time.Duration
	log     zerolog.Logger
}

func New(chains Chains, fxn *fx.Normalizer, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resolver{
		chains:  chains,
		fx:      fxn,
		timeout: timeout,
		log:     log.With().Str("component", "resolve").Logger(),
	}
}

// outcome is one symbol's final state after its chain walk.
type outcome struct {
	sym      string
	quote    market.Quote
	ok       bool
	attempts []Attempt
}

// Quotes resolves the requested symbols. Crypto goes out as one batch;
// the equity partition tries the batch provider once, then walks each
// unresolved symbol's fallback chain concurrently. Always returns
// whatever succeeded; only empty input is a hard error.
func (r *Resolver) Quotes(ctx context.Context, symbols []string) (*QuoteResult, error) {
	symbols = clean(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty symbol set", market.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	crypto, equity := symbol.Partition(symbols)
	ch := make(chan outcome, len(symbols))
	var wg sync.WaitGroup

	if len(crypto) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.resolveCrypto(ctx, crypto, ch)
		}()
	}
	if len(equity) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.resolveEquity(ctx, equity, ch)
		}()
	}
	go func() { wg.Wait(); close(ch) }()

	bySym := make(map[string]outcome, len(symbols))
	for o := range ch {
		bySym[o.sym] = o
	}
	res := r.merge(symbols, bySym)
	r.log.Info().
		Int("resolved", len(res.Quotes)).
		Int("requested", len(symbols)).
		Str("source", res.Source).
		Int("errors", len(res.Errors)).
		Msg("quotes")
	return res, nil
}

// resolveCrypto issues the one mandatory batch call. In the default
// configuration crypto has no further fallback provider; a miss is
// recorded as an error, never silently dropped.
func (r *Resolver) resolveCrypto(ctx context.Context, syms []string, ch chan<- outcome) {
	p := r.chains.CryptoQuotes
	if p == nil {
		for _, s := range syms {
			ch <- outcome{sym: s, attempts: []Attempt{{Provider: market.CoinGecko, Reason: "no crypto provider configured"}}}
		}
		return
	}
	quotes, err := p.FetchQuotes(ctx, syms)
	for _, s := range syms {
		if err != nil {
			ch <- outcome{sym: s, attempts: []Attempt{{Provider: p.ID(), Reason: reason(err)}}}
			continue
		}
		if q, ok := quotes[s]; ok {
			ch <- outcome{sym: s, quote: q, ok: true}
			continue
		}
		ch <- outcome{sym: s, attempts: []Attempt{{Provider: p.ID(), Reason: "symbol absent from batch response"}}}
	}
}

// resolveEquity tries the batch provider once for the whole partition,
// then walks each unresolved symbol's per-symbol chain concurrently.
// Provider N+1 is never attempted before N's outcome is known; pacing
// barriers (Alpha Vantage) live inside the adapter and do not gate
// unrelated symbols on other providers.
func (r *Resolver) resolveEquity(ctx context.Context, syms []string, ch chan<- outcome) {
	attempts := make(map[string][]Attempt, len(syms))
	resolved := make(map[string]market.Quote, len(syms))
	var prefetchedRate float64

	if b := r.chains.EquityBatch; b != nil {
		quotes, rate, err := b.FetchQuotesFX(ctx, syms)
		if err != nil {
			r.log.Warn().Err(err).Msg("equity batch failed")
			for _, s := range syms {
				attempts[s] = append(attempts[s], Attempt{Provider: b.ID(), Reason: reason(err)})
			}
		} else {
			prefetchedRate = rate
			for _, s := range syms {
				if q, ok := quotes[s]; ok {
					resolved[s] = q
				} else {
					attempts[s] = append(attempts[s], Attempt{Provider: b.ID(), Reason: "symbol absent from batch response"})
				}
			}
		}
	}

	var missing []string
	for _, s := range syms {
		if _, ok := resolved[s]; !ok {
			missing = append(missing, s)
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, s := range missing {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			for _, p := range r.chains.EquityQuotes {
				q, err := p.FetchQuote(ctx, s)
				if err != nil {
					mu.Lock()
					attempts[s] = append(attempts[s], Attempt{Provider: p.ID(), Reason: reason(err)})
					mu.Unlock()
					continue
				}
				mu.Lock()
				resolved[s] = q
				mu.Unlock()
				return
			}
		}(s)
	}
	wg.Wait()

	// One rate for the whole partition; fetched only when a USD quote
	// actually needs rescaling.
	var rate float64
	for _, s := range syms {
		q, ok := resolved[s]
		if !ok {
			ch <- outcome{sym: s, attempts: attempts[s]}
			continue
		}
		if q.Currency == "USD" && r.fx != nil {
			if rate == 0 {
				rate = r.fx.Rate(ctx, prefetchedRate)
			}
			q = fx.Normalize(q, rate)
		}
		ch <- outcome{sym: s, quote: q, ok: true}
	}
}

// merge builds the aggregate, keyed by the originally requested symbol.
// Order-independent and commutative over outcomes.
func (r *Resolver) merge(symbols []string, bySym map[string]outcome) *QuoteResult {
	res := &QuoteResult{
		Quotes:    make(map[string]market.Quote, len(bySym)),
		Timestamp: time.Now().UTC(),
	}
	used := make(map[market.ProviderID]struct{}, 2)
	for _, s := range symbols {
		o, ok := bySym[s]
		if !ok {
			// chain abandoned by the overall deadline
			res.Errors = append(res.Errors, Failure{Symbol: s, Attempts: []Attempt{{Provider: "", Reason: "resolution timed out"}}})
			continue
		}
		if o.ok {
			res.Quotes[s] = o.quote
			used[o.quote.Source] = struct{}{}
			continue
		}
		res.Errors = append(res.Errors, Failure{Symbol: s, Attempts: o.attempts})
	}
	res.Sources = sortedProviders(used)
	res.Source = sourceLabel(res.Sources)
	return res
}

// History walks one symbol's history chain, stopping at first success.
func (r *Resolver) History(ctx context.Context, sym string, period market.Period) (*HistoryResult, error) {
	sym = strings.TrimSpace(sym)
	if sym == "" {
		return nil, fmt.Errorf("%w: empty symbol", market.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	chain := r.chains.EquityHistory
	if symbol.Classify(sym) == symbol.Crypto {
		chain = r.chains.CryptoHistory
	}
	fail := Failure{Symbol: sym}
	for _, p := range chain {
		points, err := p.FetchHistory(ctx, sym, period)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", sym).Str("provider", string(p.ID())).Msg("history attempt failed")
			fail.Attempts = append(fail.Attempts, Attempt{Provider: p.ID(), Reason: reason(err)})
			continue
		}
		return &HistoryResult{Symbol: sym, Period: period, Data: points, Source: p.ID()}, nil
	}
	if len(fail.Attempts) == 0 {
		fail.Attempts = []Attempt{{Provider: "", Reason: "no history providers configured"}}
	}
	return nil, &ChainError{Failure: fail}
}

func sourceLabel(used []market.ProviderID) string {
	switch len(used) {
	case 0:
		return market.SourceNone
	case 1:
		return string(used[0])
	default:
		return market.SourceMixed
	}
}

func sortedProviders(set map[market.ProviderID]struct{}) []market.ProviderID {
	out := make([]market.ProviderID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// reason strips the provider prefix a proverr.Error carries; the
// Attempt already names the provider.
func reason(err error) string {
	return proverr.Reason(err)
}

func clean(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

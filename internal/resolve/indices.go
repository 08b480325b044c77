package resolve

import (
	"context"
	"sync"
	"time"

	"quotefeed/internal/market"
)

// indexEntry maps a dashboard index key to its tradable ETF proxy.
type indexEntry struct {
	Key    string
	Symbol string
	Name   string
}

// IndexTable is the fixed set of tracked indices.
var IndexTable = []indexEntry{
	{"msci_world", "URTH", "MSCI World"},
	{"sp500", "SPY", "S&P 500"},
	{"eurostoxx50", "FEZ", "EURO STOXX 50"},
	{"dax", "EWG", "DAX"},
	{"nasdaq100", "QQQ", "NASDAQ 100"},
	{"msci_em", "EEM", "MSCI Emerging Markets"},
}

// IndexResult aggregates all index series for one period. Indices whose
// whole chain failed are absent from the map and listed in Errors.
type IndexResult struct {
	Indices   map[string]market.IndexSeries `json:"indices"`
	Period    market.Period                 `json:"period"`
	Source    string                        `json:"source"`
	Errors    []Failure                     `json:"errors,omitempty"`
	Timestamp time.Time                     `json:"timestamp"`
}

// Indices resolves the whole index table concurrently for one period,
// rebasing each series to cumulative percent return from its first
// close. Each index walks the equity history chain independently.
func (r *Resolver) Indices(ctx context.Context, period market.Period) (*IndexResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type indexOutcome struct {
		key    string
		series market.IndexSeries
		source market.ProviderID
		fail   *Failure
	}
	ch := make(chan indexOutcome, len(IndexTable))
	var wg sync.WaitGroup
	for _, e := range IndexTable {
		wg.Add(1)
		go func(e indexEntry) {
			defer wg.Done()
			fail := Failure{Symbol: e.Symbol}
			for _, p := range r.chains.EquityHistory {
				points, err := p.FetchHistory(ctx, e.Symbol, period)
				if err != nil {
					fail.Attempts = append(fail.Attempts, Attempt{Provider: p.ID(), Reason: reason(err)})
					continue
				}
				ch <- indexOutcome{key: e.Key, series: market.Rebase(e.Symbol, e.Name, points), source: p.ID()}
				return
			}
			ch <- indexOutcome{key: e.Key, fail: &fail}
		}(e)
	}
	go func() { wg.Wait(); close(ch) }()

	res := &IndexResult{
		Indices:   make(map[string]market.IndexSeries, len(IndexTable)),
		Period:    period,
		Timestamp: time.Now().UTC(),
	}
	used := make(map[market.ProviderID]struct{}, 2)
	byKey := make(map[string]indexOutcome, len(IndexTable))
	for o := range ch {
		byKey[o.key] = o
	}
	for _, e := range IndexTable {
		o, ok := byKey[e.Key]
		if !ok {
			res.Errors = append(res.Errors, Failure{Symbol: e.Symbol, Attempts: []Attempt{{Reason: "resolution timed out"}}})
			continue
		}
		if o.fail != nil {
			res.Errors = append(res.Errors, *o.fail)
			continue
		}
		res.Indices[o.key] = o.series
		used[o.source] = struct{}{}
	}
	res.Source = sourceLabel(sortedProviders(used))
	r.log.Info().Int("resolved", len(res.Indices)).Str("period", string(period)).Str("source", res.Source).Msg("indices")
	return res, nil
}

package market

import (
	"errors"
	"strings"
	"time"
)

// ProviderID identifies one upstream market-data source.
type ProviderID string

const (
	CoinGecko    ProviderID = "coingecko"
	Yahoo        ProviderID = "yahoo"
	AlphaVantage ProviderID = "alphavantage"
	Stooq        ProviderID = "stooq"
)

// SourceMixed labels results that combine more than one provider,
// SourceNone labels a result set with no successes at all.
const (
	SourceMixed = "mixed"
	SourceNone  = "none"
)

// ErrInvalidInput is returned for an empty or malformed symbol set.
// It is the only error that aborts a resolution before any provider call.
var ErrInvalidInput = errors.New("invalid input")

// Quote is the normalized current-price snapshot all adapters produce.
// Price and PreviousClose are in the same currency after normalization.
type Quote struct {
	Symbol        string     `json:"symbol"`
	Price         float64    `json:"price"`
	PreviousClose float64    `json:"previousClose"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"changePercent"`
	DayHigh       float64    `json:"dayHigh"`
	DayLow        float64    `json:"dayLow"`
	Volume        float64    `json:"volume"`
	Name          string     `json:"name"`
	Currency      string     `json:"currency"`
	Source        ProviderID `json:"source"`
}

// Recompute derives Change and ChangePercent from Price and PreviousClose.
// ChangePercent is 0 when PreviousClose is 0.
func (q *Quote) Recompute() {
	q.Change = q.Price - q.PreviousClose
	if q.PreviousClose != 0 {
		q.ChangePercent = 100 * q.Change / q.PreviousClose
	} else {
		q.ChangePercent = 0
	}
}

// HistoryPoint is one OHLCV observation for one calendar day (UTC).
// Date is ISO "2006-01-02"; lexical order equals chronological order.
type HistoryPoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// IndexPoint is one observation of an index series, rebased to
// cumulative percent return from the series' first close.
type IndexPoint struct {
	Date      string  `json:"date"`
	Close     float64 `json:"close"`
	ReturnPct float64 `json:"returnPct"`
}

// IndexSeries is a history series re-based to returnPct. Rebuilt fully
// on each request.
type IndexSeries struct {
	Symbol string       `json:"symbol"`
	Name   string       `json:"name"`
	Points []IndexPoint `json:"data"`
}

// Rebase converts close-only history into an IndexSeries. The first
// point's ReturnPct is exactly 0.
func Rebase(symbol, name string, points []HistoryPoint) IndexSeries {
	s := IndexSeries{Symbol: symbol, Name: name}
	if len(points) == 0 {
		return s
	}
	base := points[0].Close
	s.Points = make([]IndexPoint, 0, len(points))
	for _, p := range points {
		ret := 0.0
		if base != 0 {
			ret = 100 * (p.Close - base) / base
		}
		s.Points = append(s.Points, IndexPoint{Date: p.Date, Close: p.Close, ReturnPct: ret})
	}
	if base != 0 {
		s.Points[0].ReturnPct = 0
	}
	return s
}

// Period is one of the fixed lookback windows a history request may ask
// for. Adapters map it to their own native range vocabulary.
type Period string

const (
	Period1W  Period = "1w"
	Period1M  Period = "1m"
	Period3M  Period = "3m"
	Period6M  Period = "6m"
	Period1Y  Period = "1y"
	Period3Y  Period = "3y"
	PeriodMax Period = "max"
)

// DefaultPeriod applies when a history or index request omits the period.
const DefaultPeriod = Period6M

var validPeriods = map[Period]struct{}{
	Period1W: {}, Period1M: {}, Period3M: {}, Period6M: {},
	Period1Y: {}, Period3Y: {}, PeriodMax: {},
}

// ParsePeriod normalizes a caller-supplied period string. Empty input
// yields DefaultPeriod; unknown input is an ErrInvalidInput.
func ParsePeriod(s string) (Period, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultPeriod, nil
	}
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validPeriods[p]; !ok {
		return "", errors.Join(ErrInvalidInput, errors.New("unknown period "+string(s)))
	}
	return p, nil
}

// Days is the approximate calendar span of the period, used by adapters
// that take a day count instead of a named range. 0 means unbounded.
func (p Period) Days() int {
	switch p {
	case Period1W:
		return 7
	case Period1M:
		return 30
	case Period3M:
		return 90
	case Period6M:
		return 180
	case Period1Y:
		return 365
	case Period3Y:
		return 1095
	case PeriodMax:
		return 0
	}
	return 180
}

// Day formats a timestamp as the calendar-day key used across the model.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

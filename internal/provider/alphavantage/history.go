package alphavantage

import (
	"context"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
)

// longPeriods use the weekly series; shorter windows get daily bars.
var longPeriods = map[market.Period]bool{
	market.Period1Y: true, market.Period3Y: true, market.PeriodMax: true,
}

// avMaxDays caps the "max" period; the full weekly series goes back
// decades and the dashboard charts top out around ten years.
const avMaxDays = 3650

// FetchHistory fetches the daily or weekly time series depending on
// period length and trims it to the period's day count.
func (p *Provider) FetchHistory(ctx context.Context, sym string, period market.Period) ([]market.HistoryPoint, error) {
	function, seriesKey := "TIME_SERIES_DAILY", "Time Series (Daily)"
	if longPeriods[period] {
		function, seriesKey = "TIME_SERIES_WEEKLY", "Weekly Time Series"
	}
	body, err := p.call(ctx, fmtQuery(function, sym, map[string]string{"outputsize": "full"}))
	if err != nil {
		return nil, err
	}
	series := gjson.GetBytes(body, escapeKey(seriesKey))
	if !series.Exists() || !series.IsObject() {
		return nil, proverr.Newf(market.AlphaVantage, proverr.KindPayload, "no %q in response for %s", seriesKey, sym)
	}

	maxDays := period.Days()
	if maxDays == 0 {
		maxDays = avMaxDays
	}
	cutoff := market.Day(time.Now().AddDate(0, 0, -maxDays))

	out := make([]market.HistoryPoint, 0, 256)
	series.ForEach(func(date, v gjson.Result) bool {
		d := date.String()
		if d < cutoff {
			return true
		}
		out = append(out, market.HistoryPoint{
			Date:   d,
			Open:   v.Get(`1\. open`).Float(),
			High:   v.Get(`2\. high`).Float(),
			Low:    v.Get(`3\. low`).Float(),
			Close:  v.Get(`4\. close`).Float(),
			Volume: v.Get(`5\. volume`).Float(),
		})
		return true
	})
	if len(out) == 0 {
		return nil, proverr.Newf(market.AlphaVantage, proverr.KindPayload, "empty history for %s", sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// escapeKey makes a literal JSON key usable as a gjson path.
func escapeKey(k string) string {
	out := make([]byte, 0, len(k)+4)
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '.', '*', '?', '\\':
			out = append(out, '\\')
		}
		out = append(out, k[i])
	}
	return string(out)
}

package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
	"quotefeed/internal/symbol"
)

type Config struct {
	// BaseURL without trailing slash, e.g. https://api.coingecko.com
	BaseURL string
}

// Provider fetches crypto quotes and history from CoinGecko. No
// credential is required; quotes for many symbols go out as one batch.
type Provider struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger
}

func New(cfg Config, hc *httpx.Client, log zerolog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com"
	}
	return &Provider{cfg: cfg, client: hc, log: log.With().Str("component", "coingecko").Logger()}
}

func (p *Provider) ID() market.ProviderID { return market.CoinGecko }

// FetchQuotes batches all requested crypto symbols into one
// simple/price call. The payload carries price plus 24h percent change;
// previousClose is back-computed as price / (1 + change/100).
func (p *Provider) FetchQuotes(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	ids := make([]string, 0, len(symbols))
	seenID := make(map[string]struct{}, len(symbols))
	seenCur := make(map[string]struct{}, 2)
	curs := make([]string, 0, 2)
	for _, s := range symbols {
		id := symbol.CoinGeckoID(s)
		if id == "" {
			continue
		}
		if _, ok := seenID[id]; !ok {
			seenID[id] = struct{}{}
			ids = append(ids, id)
		}
		cur := symbol.CryptoCurrency(s)
		if _, ok := seenCur[cur]; !ok {
			seenCur[cur] = struct{}{}
			curs = append(curs, cur)
		}
	}
	if len(ids) == 0 {
		return map[string]market.Quote{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", strings.Join(curs, ","))
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")
	u := p.cfg.BaseURL + "/api/v3/simple/price?" + q.Encode()

	resp, err := p.client.Get(ctx, u, nil)
	if err != nil {
		return nil, proverr.New(market.CoinGecko, proverr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, proverr.Newf(market.CoinGecko, proverr.KindStatus, "GET simple/price -> %d: %s", resp.StatusCode, string(b))
	}

	var data map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, proverr.Newf(market.CoinGecko, proverr.KindPayload, "decode: %v", err)
	}

	out := make(map[string]market.Quote, len(symbols))
	for _, s := range symbols {
		id := symbol.CoinGeckoID(s)
		row, ok := data[id]
		if id == "" || !ok {
			continue
		}
		cur := symbol.CryptoCurrency(s)
		price, ok := row[cur]
		if !ok || price == 0 {
			continue
		}
		change := row[cur+"_24h_change"]
		prev := price / (1 + change/100)
		quote := market.Quote{
			Symbol:        s,
			Price:         price,
			PreviousClose: prev,
			ChangePercent: change,
			DayHigh:       price,
			DayLow:        price,
			Volume:        row[cur+"_24h_vol"],
			Name:          titleID(id),
			Currency:      strings.ToUpper(cur),
			Source:        market.CoinGecko,
		}
		quote.Change = price - prev
		out[s] = quote
	}
	p.log.Debug().Int("requested", len(symbols)).Int("resolved", len(out)).Msg("batch quotes")
	return out, nil
}

// FetchHistory returns daily closes. CoinGecko's market_chart carries
// only prices, so open=high=low=close and volume=0; this is a provider
// limitation, not a bug.
func (p *Provider) FetchHistory(ctx context.Context, sym string, period market.Period) ([]market.HistoryPoint, error) {
	id := symbol.CoinGeckoID(sym)
	if id == "" {
		return nil, proverr.Newf(market.CoinGecko, proverr.KindPayload, "no coin id for %s", sym)
	}
	days := "max"
	if d := period.Days(); d > 0 {
		days = strconv.Itoa(d)
	}
	q := url.Values{}
	q.Set("vs_currency", symbol.CryptoCurrency(sym))
	q.Set("days", days)
	q.Set("interval", "daily")
	u := fmt.Sprintf("%s/api/v3/coins/%s/market_chart?%s", p.cfg.BaseURL, id, q.Encode())

	resp, err := p.client.Get(ctx, u, nil)
	if err != nil {
		return nil, proverr.New(market.CoinGecko, proverr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, proverr.Newf(market.CoinGecko, proverr.KindStatus, "GET market_chart -> %d: %s", resp.StatusCode, string(b))
	}

	var body struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, proverr.Newf(market.CoinGecko, proverr.KindPayload, "decode: %v", err)
	}
	if len(body.Prices) == 0 {
		return nil, proverr.Newf(market.CoinGecko, proverr.KindPayload, "empty history for %s", sym)
	}

	// One point per calendar day; the feed can carry an extra intraday
	// sample for today, the later sample wins.
	byDay := make(map[string]float64, len(body.Prices))
	for _, pr := range body.Prices {
		day := market.Day(msToUTC(pr[0]))
		byDay[day] = pr[1]
	}
	dates := make([]string, 0, len(byDay))
	for d := range byDay {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	out := make([]market.HistoryPoint, 0, len(dates))
	for _, d := range dates {
		c := byDay[d]
		out = append(out, market.HistoryPoint{Date: d, Open: c, High: c, Low: c, Close: c, Volume: 0})
	}
	return out, nil
}

func msToUTC(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

func titleID(id string) string {
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}

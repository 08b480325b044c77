package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
	"quotefeed/internal/symbol"
)

// FXPair is requested alongside the target symbols on the batch quote
// endpoint so USD-quoted instruments can be rescaled in one round trip.
const FXPair = "EURUSD=X"

var (
	errEmptyCrumb    = errors.New("empty crumb")
	errCrumbTooLong  = errors.New("crumb exceeds sanity length")
	errCrumbNotToken = errors.New("crumb looks like a JSON/HTML payload")
)

type Config struct {
	// Hosts are interchangeable chart mirrors, tried in order.
	Hosts      []string
	LandingURL string
	CrumbURL   string
}

// Provider serves equities and ETFs through two request shapes: the
// unauthenticated v8 chart endpoint (quotes and history) and the
// crumb-authenticated v7 batch quote endpoint.
type Provider struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger
}

func New(cfg Config, hc *httpx.Client, log zerolog.Logger) *Provider {
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"}
	}
	if cfg.LandingURL == "" {
		cfg.LandingURL = "https://fc.yahoo.com/"
	}
	if cfg.CrumbURL == "" {
		cfg.CrumbURL = hostURL(cfg.Hosts[0]) + "/v1/test/getcrumb"
	}
	return &Provider{cfg: cfg, client: hc, log: log.With().Str("component", "yahoo").Logger()}
}

func (p *Provider) ID() market.ProviderID { return market.Yahoo }

// yahooPeriods maps the period vocabulary to the chart API's
// range/interval pairs.
var yahooPeriods = map[market.Period]struct{ rng, interval string }{
	market.Period1W:  {"5d", "1d"},
	market.Period1M:  {"1mo", "1d"},
	market.Period3M:  {"3mo", "1d"},
	market.Period6M:  {"6mo", "1d"},
	market.Period1Y:  {"1y", "1wk"},
	market.Period3Y:  {"3y", "1wk"},
	market.PeriodMax: {"max", "1mo"},
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  any           `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency             string  `json:"currency"`
		ShortName            string  `json:"shortName"`
		LongName             string  `json:"longName"`
		RegularMarketPrice   float64 `json:"regularMarketPrice"`
		ChartPreviousClose   float64 `json:"chartPreviousClose"`
		PreviousClose        float64 `json:"previousClose"`
		RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
		RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
		RegularMarketVolume  float64 `json:"regularMarketVolume"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// hostURL accepts both bare hostnames (production mirrors) and full
// base URLs (tests).
func hostURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// fetchChart walks the host mirrors in order and returns the first
// result node that parses. A response missing the result node counts as
// a failure for that mirror.
func (p *Provider) fetchChart(ctx context.Context, chartSym, rng, interval string) (*chartResult, error) {
	var lastErr error
	for _, host := range p.cfg.Hosts {
		u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s&includePrePost=false",
			hostURL(host), url.PathEscape(chartSym), interval, rng)
		resp, err := p.client.Get(ctx, u, nil)
		if err != nil {
			lastErr = proverr.New(market.Yahoo, proverr.KindTransport, err)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
			resp.Body.Close()
			lastErr = proverr.Newf(market.Yahoo, proverr.KindStatus, "%s chart -> %d", host, resp.StatusCode)
			continue
		}
		var body chartResponse
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			lastErr = proverr.Newf(market.Yahoo, proverr.KindPayload, "%s decode: %v", host, err)
			continue
		}
		if len(body.Chart.Result) == 0 {
			lastErr = proverr.Newf(market.Yahoo, proverr.KindPayload, "no chart result from %s", host)
			continue
		}
		return &body.Chart.Result[0], nil
	}
	if lastErr == nil {
		lastErr = proverr.Newf(market.Yahoo, proverr.KindTransport, "no chart hosts configured")
	}
	return nil, lastErr
}

// FetchQuote reads a quote-lite snapshot from the chart endpoint. No
// credential needed.
func (p *Provider) FetchQuote(ctx context.Context, sym string) (market.Quote, error) {
	res, err := p.fetchChart(ctx, symbol.ForChart(sym), "1d", "1d")
	if err != nil {
		return market.Quote{}, err
	}
	m := res.Meta
	if m.RegularMarketPrice == 0 {
		return market.Quote{}, proverr.Newf(market.Yahoo, proverr.KindPayload, "no market price for %s", sym)
	}
	prev := m.ChartPreviousClose
	if prev == 0 {
		prev = m.PreviousClose
	}
	if prev == 0 {
		prev = m.RegularMarketPrice
	}
	name := m.ShortName
	if name == "" {
		name = m.LongName
	}
	if name == "" {
		name = sym
	}
	q := market.Quote{
		Symbol:        sym,
		Price:         m.RegularMarketPrice,
		PreviousClose: prev,
		DayHigh:       orElse(m.RegularMarketDayHigh, m.RegularMarketPrice),
		DayLow:        orElse(m.RegularMarketDayLow, m.RegularMarketPrice),
		Volume:        m.RegularMarketVolume,
		Name:          name,
		Currency:      m.Currency,
		Source:        market.Yahoo,
	}
	q.Recompute()
	return q, nil
}

// FetchHistory reads an OHLCV series from the chart endpoint, one point
// per calendar day, strictly ascending, null closes skipped.
func (p *Provider) FetchHistory(ctx context.Context, sym string, period market.Period) ([]market.HistoryPoint, error) {
	pm, ok := yahooPeriods[period]
	if !ok {
		pm = yahooPeriods[market.DefaultPeriod]
	}
	res, err := p.fetchChart(ctx, symbol.ForChart(sym), pm.rng, pm.interval)
	if err != nil {
		return nil, err
	}
	if len(res.Timestamp) == 0 || len(res.Indicators.Quote) == 0 {
		return nil, proverr.Newf(market.Yahoo, proverr.KindPayload, "no timestamps for %s", sym)
	}
	q := res.Indicators.Quote[0]
	byDay := make(map[string]market.HistoryPoint, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		pt := market.HistoryPoint{
			Date:  market.Day(time.Unix(ts, 0)),
			Close: *q.Close[i],
		}
		pt.Open = deref(at(q.Open, i), pt.Close)
		pt.High = deref(at(q.High, i), pt.Close)
		pt.Low = deref(at(q.Low, i), pt.Close)
		pt.Volume = deref(at(q.Volume, i), 0)
		byDay[pt.Date] = pt
	}
	if len(byDay) == 0 {
		return nil, proverr.Newf(market.Yahoo, proverr.KindPayload, "empty history for %s", sym)
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]market.HistoryPoint, 0, len(days))
	for _, d := range days {
		out = append(out, byDay[d])
	}
	return out, nil
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
			RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
			RegularMarketVolume        float64 `json:"regularMarketVolume"`
			ShortName                  string  `json:"shortName"`
			LongName                   string  `json:"longName"`
			Currency                   string  `json:"currency"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"quoteResponse"`
}

// FetchQuotesFX hits the authenticated batch quote endpoint for the
// whole symbol list plus the FX reference pair, acquiring a fresh
// session first. The returned rate is 0 when the pair was absent.
func (p *Provider) FetchQuotesFX(ctx context.Context, symbols []string) (map[string]market.Quote, float64, error) {
	sess, err := p.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}

	bySpelling := make(map[string]string, len(symbols))
	spellings := make([]string, 0, len(symbols)+1)
	for _, s := range symbols {
		sp := symbol.ForChart(s)
		if _, dup := bySpelling[sp]; !dup {
			spellings = append(spellings, sp)
		}
		bySpelling[sp] = s
	}
	spellings = append(spellings, FXPair)

	q := url.Values{}
	q.Set("symbols", strings.Join(spellings, ","))
	q.Set("crumb", sess.Crumb)
	u := hostURL(p.cfg.Hosts[0]) + "/v7/finance/quote?" + q.Encode()

	resp, err := p.client.Get(ctx, u, map[string]string{"Cookie": sess.Cookie})
	if err != nil {
		return nil, 0, proverr.New(market.Yahoo, proverr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
		return nil, 0, proverr.Newf(market.Yahoo, proverr.KindStatus, "batch quote -> %d", resp.StatusCode)
	}
	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, proverr.Newf(market.Yahoo, proverr.KindPayload, "decode: %v", err)
	}
	if len(body.QuoteResponse.Result) == 0 {
		return nil, 0, proverr.Newf(market.Yahoo, proverr.KindPayload, "no quoteResponse result")
	}

	out := make(map[string]market.Quote, len(symbols))
	var fxRate float64
	for _, r := range body.QuoteResponse.Result {
		if r.Symbol == FXPair {
			fxRate = r.RegularMarketPrice
			continue
		}
		requested, ok := bySpelling[r.Symbol]
		if !ok || r.RegularMarketPrice == 0 {
			continue
		}
		name := r.ShortName
		if name == "" {
			name = r.LongName
		}
		if name == "" {
			name = requested
		}
		prev := r.RegularMarketPreviousClose
		if prev == 0 {
			prev = r.RegularMarketPrice
		}
		quote := market.Quote{
			Symbol:        requested,
			Price:         r.RegularMarketPrice,
			PreviousClose: prev,
			DayHigh:       orElse(r.RegularMarketDayHigh, r.RegularMarketPrice),
			DayLow:        orElse(r.RegularMarketDayLow, r.RegularMarketPrice),
			Volume:        r.RegularMarketVolume,
			Name:          name,
			Currency:      r.Currency,
			Source:        market.Yahoo,
		}
		quote.Recompute()
		out[requested] = quote
	}
	p.log.Debug().Int("requested", len(symbols)).Int("resolved", len(out)).Float64("fx", fxRate).Msg("batch quotes")
	return out, fxRate, nil
}

func orElse(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func at(s []*float64, i int) *float64 {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func deref(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

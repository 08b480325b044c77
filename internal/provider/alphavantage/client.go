package alphavantage

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultInterCallDelay paces sequential calls under the free-tier
// ceiling of 5 calls per minute.
const DefaultInterCallDelay = 300 * time.Millisecond

type Config struct {
	APIKey  string
	BaseURL string
	// InterCallDelay is the minimum gap between two calls to this
	// provider. It gates only Alpha Vantage traffic, never other
	// providers' concurrent work.
	InterCallDelay time.Duration
}

// Provider serves single-symbol quotes and daily/weekly history.
// All calls share one pacing limiter.
type Provider struct {
	cfg     Config
	client  HTTPClient
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(cfg Config, hc HTTPClient, log zerolog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co/query"
	}
	if cfg.InterCallDelay <= 0 {
		cfg.InterCallDelay = DefaultInterCallDelay
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Provider{
		cfg:     cfg,
		client:  hc,
		limiter: rate.NewLimiter(rate.Every(cfg.InterCallDelay), 1),
		log:     log.With().Str("component", "alphavantage").Logger(),
	}
}

func (p *Provider) ID() market.ProviderID { return market.AlphaVantage }

// call issues one paced query and screens the body for the provider's
// soft-failure sentinels, which arrive inside a 2xx response: an
// explicit error message field and the rate-limit notice fields.
func (p *Provider) call(ctx context.Context, params url.Values) ([]byte, error) {
	if p.cfg.APIKey == "" {
		return nil, proverr.Newf(market.AlphaVantage, proverr.KindCredential, "no api key configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, proverr.New(market.AlphaVantage, proverr.KindTransport, err)
	}
	params.Set("apikey", p.cfg.APIKey)
	u := p.cfg.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, proverr.New(market.AlphaVantage, proverr.KindTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, proverr.New(market.AlphaVantage, proverr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
		return nil, proverr.Newf(market.AlphaVantage, proverr.KindStatus, "GET %s -> %d", params.Get("function"), resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, proverr.New(market.AlphaVantage, proverr.KindTransport, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, proverr.Newf(market.AlphaVantage, proverr.KindPayload, "invalid JSON body")
	}
	if msg := gjson.GetBytes(body, "Error Message"); msg.Exists() {
		return nil, proverr.Newf(market.AlphaVantage, proverr.KindSentinel, "%s", msg.String())
	}
	for _, field := range []string{"Note", "Information"} {
		if note := gjson.GetBytes(body, field); note.Exists() {
			return nil, proverr.Newf(market.AlphaVantage, proverr.KindSentinel, "rate limit: %s", note.String())
		}
	}
	return body, nil
}

func fmtQuery(function, sym string, extra map[string]string) url.Values {
	params := url.Values{}
	params.Set("function", function)
	if sym != "" {
		params.Set("symbol", sym)
	}
	for k, v := range extra {
		params.Set(k, v)
	}
	return params
}

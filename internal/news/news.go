package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"quotefeed/internal/httpx"
)

// maxTickers caps the ticker filter the upstream accepts comfortably.
const maxTickers = 5

// Item is one normalized news entry.
type Item struct {
	Title          string   `json:"title"`
	Link           string   `json:"link"`
	Publisher      string   `json:"publisher"`
	PublishedAt    string   `json:"publishedAt"`
	Summary        string   `json:"summary"`
	Sentiment      string   `json:"sentiment"`
	SentimentScore float64  `json:"sentimentScore"`
	RelatedTickers []string `json:"relatedTickers"`
	Thumbnail      string   `json:"thumbnail,omitempty"`
}

// ErrRateLimited signals the upstream's soft rate-limit notice.
var ErrRateLimited = fmt.Errorf("news: rate limit reached")

type Config struct {
	APIKey  string
	BaseURL string
	Limit   int
	// MaxRetryTime bounds the exponential backoff across transient
	// failures. Rate-limit notices are terminal, not retried.
	MaxRetryTime time.Duration
}

// Client fetches market news with sentiment from the Alpha Vantage
// NEWS_SENTIMENT endpoint. Unlike the quote resolution core, transient
// failures here are retried with backoff; news is not chained across
// providers.
type Client struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger
}

func NewClient(cfg Config, hc *httpx.Client, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co/query"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 15
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 8 * time.Second
	}
	return &Client{cfg: cfg, client: hc, log: log.With().Str("component", "news").Logger()}
}

// Fetch returns the latest news for up to maxTickers tickers.
func (c *Client) Fetch(ctx context.Context, tickers []string) ([]Item, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("news: no api key configured")
	}
	if len(tickers) > maxTickers {
		tickers = tickers[:maxTickers]
	}
	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	q.Set("function", "NEWS_SENTIMENT")
	q.Set("tickers", strings.Join(tickers, ","))
	q.Set("limit", fmt.Sprint(c.cfg.Limit))
	q.Set("sort", "LATEST")
	u := c.cfg.BaseURL + "?" + q.Encode()

	var body []byte
	op := func() error {
		resp, err := c.client.Get(ctx, u, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
			return fmt.Errorf("news: HTTP %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if gjson.GetBytes(body, "Note").Exists() || gjson.GetBytes(body, "Information").Exists() {
			return backoff.Permanent(ErrRateLimited)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	var feed struct {
		Feed []struct {
			Title                 string  `json:"title"`
			URL                   string  `json:"url"`
			Source                string  `json:"source"`
			TimePublished         string  `json:"time_published"`
			Summary               string  `json:"summary"`
			OverallSentimentLabel string  `json:"overall_sentiment_label"`
			OverallSentimentScore float64 `json:"overall_sentiment_score"`
			BannerImage           string  `json:"banner_image"`
			TickerSentiment       []struct {
				Ticker string `json:"ticker"`
			} `json:"ticker_sentiment"`
		} `json:"feed"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("news: decode: %w", err)
	}
	out := make([]Item, 0, len(feed.Feed))
	for _, f := range feed.Feed {
		related := make([]string, 0, len(f.TickerSentiment))
		for _, t := range f.TickerSentiment {
			related = append(related, t.Ticker)
		}
		out = append(out, Item{
			Title:          f.Title,
			Link:           f.URL,
			Publisher:      f.Source,
			PublishedAt:    formatTime(f.TimePublished),
			Summary:        f.Summary,
			Sentiment:      f.OverallSentimentLabel,
			SentimentScore: f.OverallSentimentScore,
			RelatedTickers: related,
			Thumbnail:      f.BannerImage,
		})
	}
	c.log.Debug().Int("items", len(out)).Msg("news fetched")
	return out, nil
}

// formatTime converts the upstream's compact stamp ("20240102T153000")
// to RFC 3339. Unparsable input yields "".
func formatTime(s string) string {
	t, err := time.Parse("20060102T150405", s)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

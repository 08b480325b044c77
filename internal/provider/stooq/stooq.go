package stooq

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
	"quotefeed/internal/symbol"
)

// noData is the literal sentinel Stooq puts in place of every field it
// has no value for. A quote whose close is noData is a failure.
const noData = "N/D"

type Config struct {
	BaseURL string
}

// Provider is the equities-only last-resort fallback. No auth, latest
// quote only, no history.
type Provider struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger
}

func New(cfg Config, hc *httpx.Client, log zerolog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://stooq.com"
	}
	return &Provider{cfg: cfg, client: hc, log: log.With().Str("component", "stooq").Logger()}
}

func (p *Provider) ID() market.ProviderID { return market.Stooq }

type payload struct {
	Symbols []map[string]json.RawMessage `json:"symbols"`
}

// FetchQuote reads the latest OHLCV row for one symbol. The response
// carries no previous close; the day's open stands in so the change
// fields reflect the intraday move.
func (p *Provider) FetchQuote(ctx context.Context, sym string) (market.Quote, error) {
	stooqSym := symbol.ForStooq(sym)
	q := url.Values{}
	q.Set("s", stooqSym)
	q.Set("f", "sd2t2ohlcv")
	q.Set("e", "json")
	u := p.cfg.BaseURL + "/q/l/?" + q.Encode() + "&h"

	resp, err := p.client.Get(ctx, u, nil)
	if err != nil {
		return market.Quote{}, proverr.New(market.Stooq, proverr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
		return market.Quote{}, proverr.Newf(market.Stooq, proverr.KindStatus, "GET q/l -> %d", resp.StatusCode)
	}
	var body payload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return market.Quote{}, proverr.Newf(market.Stooq, proverr.KindPayload, "decode: %v", err)
	}
	if len(body.Symbols) == 0 {
		return market.Quote{}, proverr.Newf(market.Stooq, proverr.KindPayload, "empty symbols for %s", sym)
	}
	row := body.Symbols[0]
	closePx, ok := field(row, "close")
	if !ok || closePx == 0 {
		return market.Quote{}, proverr.Newf(market.Stooq, proverr.KindSentinel, "no data for %s", stooqSym)
	}
	open, haveOpen := field(row, "open")
	high, _ := field(row, "high")
	low, _ := field(row, "low")
	volume, _ := field(row, "volume")
	prev := closePx
	if haveOpen && open != 0 {
		prev = open
	}

	quote := market.Quote{
		Symbol:        sym,
		Price:         closePx,
		PreviousClose: prev,
		DayHigh:       orElse(high, closePx),
		DayLow:        orElse(low, closePx),
		Volume:        volume,
		Name:          sym,
		Currency:      symbol.StooqCurrency(stooqSym),
		Source:        market.Stooq,
	}
	quote.Recompute()
	return quote, nil
}

// field reads a numeric cell that Stooq may deliver as a number, a
// quoted number, or the noData sentinel.
func field(row map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := row[key]
	if !ok {
		return 0, false
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, noData) {
		return 0, false
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

func orElse(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

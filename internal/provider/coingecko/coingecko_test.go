package coingecko_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
	"quotefeed/internal/provider/coingecko"
)

func newProvider(t *testing.T, handler http.HandlerFunc) *coingecko.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return coingecko.New(coingecko.Config{BaseURL: srv.URL}, httpx.New(2*time.Second), zerolog.Nop())
}

func TestFetchQuotes_BackComputesPreviousClose(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/simple/price", r.URL.Path)
		require.Contains(t, r.URL.Query().Get("ids"), "bitcoin")
		require.Contains(t, r.URL.Query().Get("vs_currencies"), "eur")
		w.Write([]byte(`{"bitcoin":{"eur":50000,"eur_24h_change":25.0,"eur_24h_vol":1234.5}}`))
	})

	quotes, err := p.FetchQuotes(context.Background(), []string{"BTC-EUR"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	q := quotes["BTC-EUR"]
	require.Equal(t, market.CoinGecko, q.Source)
	require.InDelta(t, 50000, q.Price, 1e-9)
	// prevClose = price / (1 + change/100) = 50000 / 1.25
	require.InDelta(t, 40000, q.PreviousClose, 1e-6)
	require.InDelta(t, q.Price-q.PreviousClose, q.Change, 1e-6)
	require.InDelta(t, 25.0, q.ChangePercent, 1e-9)
	require.Equal(t, "EUR", q.Currency)
	require.Equal(t, "Bitcoin", q.Name)
}

func TestFetchQuotes_MissingSymbolAbsentFromMap(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"eur":50000,"eur_24h_change":1.0}}`))
	})

	quotes, err := p.FetchQuotes(context.Background(), []string{"BTC-EUR", "ETH-EUR"})
	require.NoError(t, err)
	require.Contains(t, quotes, "BTC-EUR")
	require.NotContains(t, quotes, "ETH-EUR")
}

func TestFetchQuotes_UpstreamStatusIsFailure(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	})

	_, err := p.FetchQuotes(context.Background(), []string{"BTC-EUR"})
	var pe *proverr.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, market.CoinGecko, pe.Provider)
	require.Equal(t, proverr.KindStatus, pe.Kind)
}

func TestFetchHistory_ClosesOnlyAscendingDedup(t *testing.T) {
	t.Parallel()

	day := func(d string) int64 {
		ts, err := time.Parse("2006-01-02", d)
		require.NoError(t, err)
		return ts.UnixMilli()
	}
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/coins/bitcoin/market_chart", r.URL.Path)
		require.Equal(t, "eur", r.URL.Query().Get("vs_currency"))
		require.Equal(t, "180", r.URL.Query().Get("days"))
		// two samples on the last day: the later one wins
		body := `{"prices":[` +
			`[` + itoa(day("2025-03-01")) + `,100],` +
			`[` + itoa(day("2025-03-02")) + `,101],` +
			`[` + itoa(day("2025-03-02")+7200000) + `,102]]}`
		w.Write([]byte(body))
	})

	points, err := p.FetchHistory(context.Background(), "BTC-EUR", market.Period6M)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2025-03-01", points[0].Date)
	require.Equal(t, "2025-03-02", points[1].Date)
	require.InDelta(t, 102, points[1].Close, 1e-9)
	// close-only feed: OHLC collapse, volume zero
	require.Equal(t, points[1].Close, points[1].Open)
	require.Equal(t, points[1].Close, points[1].High)
	require.Zero(t, points[1].Volume)
}

func TestFetchHistory_EmptyIsFailure(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	})
	_, err := p.FetchHistory(context.Background(), "BTC-EUR", market.Period1M)
	var pe *proverr.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, proverr.KindPayload, pe.Kind)
}

func TestFetchHistory_UnknownSymbol(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := p.FetchHistory(context.Background(), "URTH", market.Period1M)
	require.True(t, errors.As(err, new(*proverr.Error)))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

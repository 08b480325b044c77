package stooq_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
	"quotefeed/internal/provider/stooq"
)

func newServer(t *testing.T, body string) *stooq.Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/q/l/", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("e"))
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return stooq.New(stooq.Config{BaseURL: srv.URL}, httpx.New(2*time.Second), zerolog.Nop())
}

func TestFetchQuote_USListing(t *testing.T) {
	t.Parallel()

	p := newServer(t, `{"symbols":[{"symbol":"urth.us","date":"2026-08-28","time":"21:59:47",
		"open":168,"high":171.2,"low":167.5,"close":"170.00","volume":123456}]}`)

	q, err := p.FetchQuote(context.Background(), "URTH")
	require.NoError(t, err)
	require.Equal(t, market.Stooq, q.Source)
	require.Equal(t, "URTH", q.Symbol)
	require.Equal(t, "USD", q.Currency)
	require.InDelta(t, 170, q.Price, 1e-9)
	// no previous close on the wire: the open stands in
	require.InDelta(t, 168, q.PreviousClose, 1e-9)
	require.InDelta(t, 2, q.Change, 1e-9)
	require.InDelta(t, 100*2.0/168.0, q.ChangePercent, 1e-9)
}

func TestFetchQuote_EuropeanListingKeepsEUR(t *testing.T) {
	t.Parallel()

	p := newServer(t, `{"symbols":[{"symbol":"rhm.de","close":500,"open":490,
		"high":505,"low":488,"volume":1000}]}`)

	q, err := p.FetchQuote(context.Background(), "RHM.DE")
	require.NoError(t, err)
	require.Equal(t, "EUR", q.Currency)
	require.InDelta(t, 500, q.Price, 1e-9)
}

func TestFetchQuote_NoDataSentinel(t *testing.T) {
	t.Parallel()

	p := newServer(t, `{"symbols":[{"symbol":"zzzz-invalid.us","date":"N/D","time":"N/D",
		"open":"N/D","high":"N/D","low":"N/D","close":"N/D","volume":"N/D"}]}`)

	_, err := p.FetchQuote(context.Background(), "ZZZZ-INVALID")
	var pe *proverr.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, proverr.KindSentinel, pe.Kind)
}

func TestFetchQuote_EmptySymbolsRow(t *testing.T) {
	t.Parallel()

	p := newServer(t, `{"symbols":[]}`)

	_, err := p.FetchQuote(context.Background(), "URTH")
	var pe *proverr.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, proverr.KindPayload, pe.Kind)
}

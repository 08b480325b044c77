package yahoo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
	"quotefeed/internal/provider/yahoo"
)

const chartBody = `{"chart":{"result":[{
	"meta":{"currency":"EUR","shortName":"Rheinmetall AG","regularMarketPrice":500,
		"chartPreviousClose":480,"regularMarketDayHigh":505,"regularMarketDayLow":495,
		"regularMarketVolume":12345},
	"timestamp":[1735689600,1735776000],
	"indicators":{"quote":[{"open":[490,496],"high":[500,505],"low":[488,494],
		"close":[495,500],"volume":[1000,2000]}]}
}],"error":null}}`

func TestFetchQuote_ParsesChartMeta(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v8/finance/chart/RHM.DE", r.URL.Path)
		w.Write([]byte(chartBody))
	}))
	t.Cleanup(srv.Close)

	p := yahoo.New(yahoo.Config{Hosts: []string{srv.URL}}, httpx.New(2*time.Second), zerolog.Nop())
	q, err := p.FetchQuote(context.Background(), "RHM.DE")
	require.NoError(t, err)
	require.Equal(t, market.Yahoo, q.Source)
	require.InDelta(t, 500, q.Price, 1e-9)
	require.InDelta(t, 480, q.PreviousClose, 1e-9)
	require.InDelta(t, 20, q.Change, 1e-9)
	require.InDelta(t, 100*20.0/480.0, q.ChangePercent, 1e-9)
	require.Equal(t, "Rheinmetall AG", q.Name)
	require.Equal(t, "EUR", q.Currency)
}

func TestFetchQuote_SecondMirrorAfterFirstFails(t *testing.T) {
	t.Parallel()

	var firstHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	t.Cleanup(bad.Close)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartBody))
	}))
	t.Cleanup(good.Close)

	p := yahoo.New(yahoo.Config{Hosts: []string{bad.URL, good.URL}}, httpx.New(2*time.Second), zerolog.Nop())
	q, err := p.FetchQuote(context.Background(), "RHM.DE")
	require.NoError(t, err)
	require.InDelta(t, 500, q.Price, 1e-9)
	require.Equal(t, int32(1), firstHits.Load())
}

func TestFetchQuote_MissingResultNodeIsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":"Not Found"}}`))
	}))
	t.Cleanup(srv.Close)

	p := yahoo.New(yahoo.Config{Hosts: []string{srv.URL}}, httpx.New(2*time.Second), zerolog.Nop())
	_, err := p.FetchQuote(context.Background(), "ZZZZ-INVALID")
	var pe *proverr.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, proverr.KindPayload, pe.Kind)
}

func TestFetchHistory_AscendingNoNulls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// middle close is null and must be skipped
		w.Write([]byte(`{"chart":{"result":[{
			"meta":{"currency":"USD","regularMarketPrice":1},
			"timestamp":[1735689600,1735776000,1735862400],
			"indicators":{"quote":[{"open":[10,null,12],"high":[11,null,13],
				"low":[9,null,11],"close":[10.5,null,12.5],"volume":[100,null,300]}]}
		}],"error":null}}`))
	}))
	t.Cleanup(srv.Close)

	p := yahoo.New(yahoo.Config{Hosts: []string{srv.URL}}, httpx.New(2*time.Second), zerolog.Nop())
	points, err := p.FetchHistory(context.Background(), "URTH", market.Period1M)
	require.NoError(t, err)
	require.Len(t, points, 2)
	for i := 1; i < len(points); i++ {
		require.Less(t, points[i-1].Date, points[i].Date)
	}
	require.InDelta(t, 12.5, points[1].Close, 1e-9)
	require.InDelta(t, 300, points[1].Volume, 1e-9)
}

func batchServer(t *testing.T, crumbStatus int, crumb string, quoteBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session-token"})
		w.WriteHeader(http.StatusNotFound) // the landing page itself 404s; only the cookie matters
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Cookie"), "A3=session-token")
		w.WriteHeader(crumbStatus)
		w.Write([]byte(crumb))
	})
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, crumb, r.URL.Query().Get("crumb"))
		w.Write([]byte(quoteBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchQuotesFX_BatchWithReferencePair(t *testing.T) {
	t.Parallel()

	body := `{"quoteResponse":{"result":[
		{"symbol":"URTH","regularMarketPrice":170,"regularMarketPreviousClose":168,
		 "shortName":"iShares MSCI World ETF","currency":"USD"},
		{"symbol":"EURUSD=X","regularMarketPrice":1.1,"currency":"USD"}
	],"error":null}}`
	srv := batchServer(t, http.StatusOK, "AbCdEf123", body)

	p := yahoo.New(yahoo.Config{
		Hosts:      []string{srv.URL},
		LandingURL: srv.URL + "/landing",
		CrumbURL:   srv.URL + "/v1/test/getcrumb",
	}, httpx.New(2*time.Second), zerolog.Nop())

	quotes, rate, err := p.FetchQuotesFX(context.Background(), []string{"URTH"})
	require.NoError(t, err)
	require.InDelta(t, 1.1, rate, 1e-9)
	require.Len(t, quotes, 1)
	require.InDelta(t, 170, quotes["URTH"].Price, 1e-9)
	// the FX pair never leaks into the result map
	require.NotContains(t, quotes, "EURUSD=X")
}

func TestFetchQuotesFX_CrumbValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		crumb string
	}{
		{"empty", ""},
		{"json payload", `{"error":"unauthorized"}`},
		{"html payload", "<html>blocked</html>"},
		{"oversized", strings.Repeat("x", 200)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := batchServer(t, http.StatusOK, tc.crumb, `{}`)
			p := yahoo.New(yahoo.Config{
				Hosts:      []string{srv.URL},
				LandingURL: srv.URL + "/landing",
				CrumbURL:   srv.URL + "/v1/test/getcrumb",
			}, httpx.New(2*time.Second), zerolog.Nop())

			_, _, err := p.FetchQuotesFX(context.Background(), []string{"URTH"})
			var pe *proverr.Error
			require.ErrorAs(t, err, &pe)
			require.Equal(t, proverr.KindCredential, pe.Kind)
		})
	}
}

func TestFetchQuotesFX_MissingResultNode(t *testing.T) {
	t.Parallel()

	srv := batchServer(t, http.StatusOK, "AbCdEf123", `{"quoteResponse":{"result":[],"error":null}}`)
	p := yahoo.New(yahoo.Config{
		Hosts:      []string{srv.URL},
		LandingURL: srv.URL + "/landing",
		CrumbURL:   srv.URL + "/v1/test/getcrumb",
	}, httpx.New(2*time.Second), zerolog.Nop())

	_, _, err := p.FetchQuotesFX(context.Background(), []string{"URTH"})
	var pe *proverr.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, proverr.KindPayload, pe.Kind)
}

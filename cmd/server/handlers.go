package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quotefeed/internal/market"
	"quotefeed/internal/news"
	"quotefeed/internal/resolve"
)

// maxSymbols caps one request's fan-out.
const maxSymbols = 100

// resolver is the slice of the resolution engine the handlers need;
// narrowed to an interface so handler tests can fake it.
type resolver interface {
	Quotes(ctx context.Context, symbols []string) (*resolve.QuoteResult, error)
	History(ctx context.Context, sym string, period market.Period) (*resolve.HistoryResult, error)
	Indices(ctx context.Context, period market.Period) (*resolve.IndexResult, error)
}

type server struct {
	rs   resolver
	news *news.Client
	log  zerolog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{"symbols parameter required"})
		return
	}
	if len(symbols) > maxSymbols {
		writeJSON(w, http.StatusBadRequest, errorBody{"too many symbols"})
		return
	}
	res, err := s.rs.Quotes(r.Context(), symbols)
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{err.Error()})
		return
	}
	if len(res.Quotes) == 0 && len(res.Errors) > 0 {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sym := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if sym == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{"symbol parameter required"})
		return
	}
	period, err := market.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
		return
	}
	res, err := s.rs.History(r.Context(), sym, period)
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleIndices(w http.ResponseWriter, r *http.Request) {
	period, err := market.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
		return
	}
	res, err := s.rs.Indices(r.Context(), period)
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type newsResponse struct {
	News      []news.Item `json:"news"`
	Timestamp string      `json:"timestamp"`
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	if s.news == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{"news feed not configured"})
		return
	}
	tickers := splitCSV(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		tickers = []string{"URTH", "SPY", "EEM"}
	}
	items, err := s.news.Fetch(r.Context(), tickers)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, news.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, errorBody{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newsResponse{News: items, Timestamp: nowRFC3339()})
}

func statusFor(err error) int {
	var chainErr *resolve.ChainError
	switch {
	case errors.Is(err, market.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &chainErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

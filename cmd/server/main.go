package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quotefeed/internal/config"
	"quotefeed/internal/fx"
	"quotefeed/internal/httpx"
	"quotefeed/internal/news"
	"quotefeed/internal/provider/alphavantage"
	"quotefeed/internal/provider/coingecko"
	"quotefeed/internal/provider/stooq"
	"quotefeed/internal/provider/yahoo"
	"quotefeed/internal/resolve"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "quotefeed").Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey == "" {
		logger.Warn().Msg("alphavantage.enabled=true but ALPHAVANTAGE_KEY not set")
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	rs, newsClient := build(cfg, timeout, logger)

	srv := &server{rs: rs, news: newsClient, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(withJSONHeaders)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`"ok"`))
	})
	r.Get("/api/quotes", srv.handleQuotes)
	r.Get("/api/history", srv.handleHistory)
	r.Get("/api/indices", srv.handleIndices)
	r.Get("/api/news", srv.handleNews)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// build wires the provider chains out of the configuration. Priority
// order is fixed here, not data: crypto resolves through CoinGecko,
// equities walk Yahoo -> Alpha Vantage -> Stooq.
func build(cfg config.Config, timeout time.Duration, logger zerolog.Logger) (*resolve.Resolver, *news.Client) {
	hc := httpx.New(timeout)

	var chains resolve.Chains
	var fxSource fx.RateSource

	if cfg.CoinGecko.Enabled {
		gecko := coingecko.New(coingecko.Config{BaseURL: cfg.CoinGecko.BaseURL}, hc, logger)
		chains.CryptoQuotes = gecko
		chains.CryptoHistory = append(chains.CryptoHistory, gecko)
	}
	if cfg.Yahoo.Enabled {
		y := yahoo.New(yahoo.Config{
			Hosts:      cfg.Yahoo.Hosts,
			LandingURL: cfg.Yahoo.LandingURL,
			CrumbURL:   cfg.Yahoo.CrumbURL,
		}, hc, logger)
		fxSource = y
		if cfg.Yahoo.BatchEnabled {
			chains.EquityBatch = y
		} else {
			// chart-only mode: Yahoo leads the per-symbol chain instead
			chains.EquityQuotes = append(chains.EquityQuotes, y)
		}
		chains.EquityHistory = append(chains.EquityHistory, y)
		chains.CryptoHistory = append(chains.CryptoHistory, y)
	}
	var newsClient *news.Client
	if cfg.AlphaVantage.Enabled {
		av := alphavantage.New(alphavantage.Config{
			APIKey:         cfg.AlphaVantage.APIKey,
			BaseURL:        cfg.AlphaVantage.BaseURL,
			InterCallDelay: time.Duration(cfg.AlphaVantage.InterCallDelayMS) * time.Millisecond,
		}, hc.HTTP, logger)
		chains.EquityQuotes = append(chains.EquityQuotes, av)
		chains.EquityHistory = append(chains.EquityHistory, av)
		if cfg.News.Enabled && cfg.AlphaVantage.APIKey != "" {
			newsClient = news.NewClient(news.Config{
				APIKey:  cfg.AlphaVantage.APIKey,
				BaseURL: cfg.AlphaVantage.BaseURL,
				Limit:   cfg.News.Limit,
			}, hc, logger)
		}
	}
	if cfg.Stooq.Enabled {
		chains.EquityQuotes = append(chains.EquityQuotes, stooq.New(stooq.Config{BaseURL: cfg.Stooq.BaseURL}, hc, logger))
	}

	normalizer := fx.NewNormalizer(fxSource, logger)
	return resolve.New(chains, normalizer, timeout, logger), newsClient
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"quotefeed/internal/config"
	"quotefeed/internal/fx"
	"quotefeed/internal/httpx"
	"quotefeed/internal/market"
	"quotefeed/internal/provider/alphavantage"
	"quotefeed/internal/provider/coingecko"
	"quotefeed/internal/provider/stooq"
	"quotefeed/internal/provider/yahoo"
	"quotefeed/internal/resolve"
)

// One-shot resolution for manual inspection: resolve a symbol set (or
// one symbol's history, or the index table) and print the aggregate as
// JSON on stdout.
func main() {
	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var symbolsCSV, mode, periodStr, configPath string
	var timeoutSec int
	flag.StringVar(&symbolsCSV, "symbols", "BTC-EUR,URTH", "comma-separated symbols")
	flag.StringVar(&mode, "mode", "quotes", "quotes | history | indices")
	flag.StringVar(&periodStr, "period", "", "history/index period (1w 1m 3m 6m 1y 3y max)")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.IntVar(&timeoutSec, "timeout", 0, "request timeout seconds (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if timeoutSec > 0 {
		cfg.Server.RequestTimeoutSec = timeoutSec
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	rs := build(cfg, timeout, logger)

	period, err := market.ParsePeriod(periodStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("period")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out any
	switch mode {
	case "quotes":
		out, err = rs.Quotes(ctx, splitCSV(symbolsCSV))
	case "history":
		syms := splitCSV(symbolsCSV)
		if len(syms) != 1 {
			logger.Fatal().Msg("history mode takes exactly one symbol")
		}
		out, err = rs.History(ctx, syms[0], period)
	case "indices":
		out, err = rs.Indices(ctx, period)
	default:
		logger.Fatal().Str("mode", mode).Msg("unknown mode")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(out)
}

func build(cfg config.Config, timeout time.Duration, logger zerolog.Logger) *resolve.Resolver {
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
			chains.EquityQuotes = append(chains.EquityQuotes, y)
		}
		chains.EquityHistory = append(chains.EquityHistory, y)
		chains.CryptoHistory = append(chains.CryptoHistory, y)
	}
	if cfg.AlphaVantage.Enabled {
		av := alphavantage.New(alphavantage.Config{
			APIKey:         cfg.AlphaVantage.APIKey,
			BaseURL:        cfg.AlphaVantage.BaseURL,
			InterCallDelay: time.Duration(cfg.AlphaVantage.InterCallDelayMS) * time.Millisecond,
		}, hc.HTTP, logger)
		chains.EquityQuotes = append(chains.EquityQuotes, av)
		chains.EquityHistory = append(chains.EquityHistory, av)
	}
	if cfg.Stooq.Enabled {
		chains.EquityQuotes = append(chains.EquityQuotes, stooq.New(stooq.Config{BaseURL: cfg.Stooq.BaseURL}, hc, logger))
	}
	return resolve.New(chains, fx.NewNormalizer(fxSource, logger), timeout, logger)
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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type CoinGecko struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`
}

type Yahoo struct {
	Enabled bool `json:"enabled"`
	// BatchEnabled gates the crumb-authenticated batch quote endpoint;
	// the unauthenticated chart endpoint stays available regardless.
	BatchEnabled bool     `json:"batch_enabled"`
	Hosts        []string `json:"hosts"`
	LandingURL   string   `json:"landing_url"`
	CrumbURL     string   `json:"crumb_url"`
}

type AlphaVantage struct {
	Enabled          bool   `json:"enabled"`
	APIKey           string `json:"api_key"`
	BaseURL          string `json:"base_url"`
	InterCallDelayMS int    `json:"inter_call_delay_ms"`
}

type Stooq struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`
}

type News struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit"`
}

type Config struct {
	Server       Server       `json:"server"`
	CoinGecko    CoinGecko    `json:"coingecko"`
	Yahoo        Yahoo        `json:"yahoo"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
	Stooq        Stooq        `json:"stooq"`
	News         News         `json:"news"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15},
		CoinGecko: CoinGecko{
			Enabled: true,
		},
		Yahoo: Yahoo{
			Enabled:      true,
			BatchEnabled: true,
			Hosts:        []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"},
		},
		AlphaVantage: AlphaVantage{
			Enabled:          true,
			InterCallDelayMS: 300,
		},
		Stooq: Stooq{
			Enabled: true,
		},
		News: News{Enabled: true, Limit: 15},
	}
}

// Load reads JSON config from path. If path is empty or file does not
// exist, it returns defaults. Environment variables override select
// fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("ALPHAVANTAGE_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_DELAY_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.AlphaVantage.InterCallDelayMS = x
		}
	}
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		cfg.CoinGecko.BaseURL = v
	}
	if v := os.Getenv("YAHOO_HOSTS"); v != "" {
		cfg.Yahoo.Hosts = splitCSV(v)
	}
	if v := os.Getenv("YAHOO_BATCH_ENABLED"); v != "" {
		cfg.Yahoo.BatchEnabled = isTrue(v)
	}
	if v := os.Getenv("STOOQ_ENABLED"); v != "" {
		cfg.Stooq.Enabled = isTrue(v)
	}
	if v := os.Getenv("NEWS_ENABLED"); v != "" {
		cfg.News.Enabled = isTrue(v)
	}
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
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

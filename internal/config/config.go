// Package config loads databrowser service configuration from environment
// variables (optionally bootstrapped from a .env file), mirroring §6's
// environment variable surface.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the API and worker binaries need.
type Config struct {
	// Port is the HTTP surface's listen port (API_PORT).
	Port int
	// Workers is read from API_WORKER and logged by `databrowser-worker` at
	// startup; the worker pool consumes bus messages one at a time and does
	// not size anything by it.
	Workers int
	// Services is the comma-separated API_SERVICES list; "zarr-stream"
	// gates the chunk-store front-end and worker pool (§4.6/§4.7).
	Services []string

	Debug bool

	OIDC        OIDCConfig
	Doc         DocStoreConfig
	Solr        SolrConfig
	Redis       RedisConfig
	Bus         BusConfig
	CacheExpiry time.Duration
}

// OIDCConfig configures the Auth Gate's provider discovery.
type OIDCConfig struct {
	DiscoveryURL string
	ClientID     string
	ClientSecret string
}

// DocStoreConfig configures the document store connection (API_MONGO_* in
// the original naming; backed here by Postgres, see DESIGN.md).
type DocStoreConfig struct {
	DSN string
}

// SolrConfig configures the external search index client.
type SolrConfig struct {
	LatestURL     string
	HistoricalURL string
}

// RedisConfig configures the shared chunk/load-status cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BusConfig configures the pub/sub bus carrying data-portal messages.
type BusConfig struct {
	Brokers []string
	Topic   string
}

// Load reads Config from the environment. .env is loaded first (without
// overriding variables already set in the process environment), so a
// developer's shell always wins over the repo's example file.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("example.env")

	cfg := Config{
		Port:        intFromEnv("API_PORT", 8080),
		Workers:     intFromEnv("API_WORKER", 4),
		Services:    parseCommaSeparatedList(os.Getenv("API_SERVICES")),
		Debug:       boolFromEnv("DEBUG", false),
		CacheExpiry: durationFromEnv("API_CACHE_EXP", 360*time.Second),
		OIDC: OIDCConfig{
			DiscoveryURL: strings.TrimSpace(os.Getenv("API_OIDC_DISCOVERY_URL")),
			ClientID:     strings.TrimSpace(os.Getenv("API_OIDC_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("API_OIDC_CLIENT_SECRET")),
		},
		Doc: DocStoreConfig{
			DSN: firstNonEmpty(
				strings.TrimSpace(os.Getenv("API_MONGO_DSN")),
				strings.TrimSpace(os.Getenv("API_MONGO_URL")),
			),
		},
		Solr: SolrConfig{
			LatestURL:     strings.TrimSpace(os.Getenv("API_SOLR_LATEST_URL")),
			HistoricalURL: strings.TrimSpace(os.Getenv("API_SOLR_HISTORICAL_URL")),
		},
		Redis: RedisConfig{
			Addr:     firstNonEmpty(strings.TrimSpace(os.Getenv("API_REDIS_ADDR")), "localhost:6379"),
			Password: os.Getenv("API_REDIS_PASSWORD"),
			DB:       intFromEnv("API_REDIS_DB", 0),
		},
		Bus: BusConfig{
			Brokers: parseCommaSeparatedList(firstNonEmpty(os.Getenv("API_BUS_BROKERS"), "localhost:9092")),
			Topic:   firstNonEmpty(os.Getenv("API_BUS_TOPIC"), "data-portal"),
		},
	}
	return cfg, nil
}

// HasService reports whether name appears in the API_SERVICES list.
func (c Config) HasService(name string) bool {
	for _, s := range c.Services {
		if s == name {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

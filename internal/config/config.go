package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Shopify struct {
	Shop        string
	AccessToken string
	APIVersion  string
	BaseURL     string
	Timeout     time.Duration
	ListLimit   int
	BulkLimit   int
}

// Endpoint is the admin API root, BaseURL when set or the shop's
// myshopify.com host otherwise.
func (s Shopify) Endpoint() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "https://" + s.Shop + ".myshopify.com"
}

type Cache struct {
	Backend string
	Path    string
	Cap     int
	Warm    int
}

type Tables struct {
	Schema string
	Cache  string
}

type Kafka struct {
	Brokers      []string
	EventsTopic  string
	RefreshTopic string
	Group        string
	Workers      int
}

// Enabled is false when no brokers are configured.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Postgres struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

type Batch struct {
	Days  int
	Delay time.Duration
}

type Config struct {
	HTTPAddr string
	LogLevel string
	TZOffset string

	FetchWorkers         int
	DeliveryLookbackDays int

	Shopify Shopify
	Cache   Cache
	Pg      Postgres
	Tables  Tables
	Kafka   Kafka
	Breaker Breaker
	Retry   Retry
	Batch   Batch
}

// Load keeps the original API and fatals on error for simplicity in main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

// LoadErr is Load without the fatal, for callers that report errors themselves.
func LoadErr() (Config, error) {
	return load()
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")
	_ = godotenv.Load(".env")

	cfg := Config{
		HTTPAddr: envDefault("HTTP_ADDR", ":3002"),
		LogLevel: envDefault("LOG_LEVEL", "info"),
		TZOffset: envDefault("TZ_OFFSET", "+10:00"),

		FetchWorkers:         envInt("FETCH_WORKERS", 1),
		DeliveryLookbackDays: envInt("DELIVERY_LOOKBACK_DAYS", 30),

		Shopify: Shopify{
			Shop:        strings.TrimSpace(os.Getenv("SHOPIFY_SHOP")),
			AccessToken: strings.TrimSpace(os.Getenv("SHOPIFY_ADMIN_ACCESS_TOKEN")),
			APIVersion:  strings.TrimSpace(os.Getenv("SHOPIFY_API_VERSION")),
			BaseURL:     strings.TrimSpace(os.Getenv("SHOPIFY_BASE_URL")),
			Timeout:     envDurationMS("SHOPIFY_TIMEOUT", 60*time.Second),
			ListLimit:   envInt("SHOPIFY_LIST_LIMIT", 50),
			BulkLimit:   envInt("SHOPIFY_BULK_LIMIT", 250),
		},

		Cache: Cache{
			Backend: strings.ToLower(envDefault("CACHE_BACKEND", BackendFile)),
			Path:    envDefault("CACHE_PATH", "cache/orders-cache.json"),
			Cap:     envInt("CACHE_CAP", 256),
			Warm:    envInt("CACHE_WARM", 64),
		},

		Pg: Postgres{
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
		},

		Tables: Tables{
			Schema: envDefault("DB_SCHEMA", "public"),
			Cache:  envDefault("TBL_CACHE", "order_cache"),
		},

		Kafka: Kafka{
			Brokers:      splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			EventsTopic:  envDefault("KAFKA_EVENTS_TOPIC", "orders.fetched"),
			RefreshTopic: envDefault("KAFKA_REFRESH_TOPIC", "orders.refresh"),
			Group:        envDefault("KAFKA_GROUP", "shop-orders"),
			Workers:      envInt("KAFKA_WORKERS", 4),
		},

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts:     envInt("RETRY_ATTEMPTS", 3),
			Base:         envDurationMS("RETRY_BASE", 250*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", 5*time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},

		Batch: Batch{
			Days:  envInt("BATCH_DAYS", 60),
			Delay: envDurationMS("BATCH_DELAY", 500*time.Millisecond),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	req := map[string]string{
		"SHOPIFY_ADMIN_ACCESS_TOKEN": c.Shopify.AccessToken,
		"SHOPIFY_API_VERSION":        c.Shopify.APIVersion,
	}
	if c.Shopify.BaseURL == "" {
		req["SHOPIFY_SHOP"] = c.Shopify.Shop
	}
	if c.Cache.Backend == BackendPostgres {
		req["PG_HOST"] = c.Pg.Host
		req["PG_DB"] = c.Pg.DB
		req["PG_USER"] = c.Pg.User
		req["PG_PASSWORD"] = c.Pg.Password
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	switch c.Cache.Backend {
	case BackendFile, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Shopify.ListLimit <= 0 || c.Shopify.BulkLimit <= 0 {
		return fmt.Errorf("page limits must be positive, got list=%d bulk=%d", c.Shopify.ListLimit, c.Shopify.BulkLimit)
	}
	return nil
}

func (c *Config) normalize() {
	if c.Cache.Cap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", c.Cache.Cap)
		c.Cache.Cap = 1
	}
	if c.Retry.Attempts < 1 {
		log.Printf("RETRY_ATTEMPTS is %d, adjusting to 1", c.Retry.Attempts)
		c.Retry.Attempts = 1
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 100ms", c.Retry.Base)
		c.Retry.Base = 100 * time.Millisecond
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
		c.Retry.Max = c.Retry.Base
	}
	if c.FetchWorkers < 1 {
		c.FetchWorkers = 1
	}
	if c.Kafka.Workers < 1 {
		c.Kafka.Workers = 1
	}
	if c.Batch.Days < 1 {
		c.Batch.Days = 1
	}
	if c.DeliveryLookbackDays < 1 {
		c.DeliveryLookbackDays = 30
	}
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Config) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

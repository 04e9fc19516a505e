// Package config loads the walletd configuration from a TOML file with
// WALLETD_* environment overrides. The option set is closed; unknown keys
// in the file are a startup error.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/naoina/toml"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
)

type Config struct {
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Parser   ParserConfig
	Consumer ConsumerConfig
	Pusher   PusherConfig
	Pricer   PricerConfig
	API      APIConfig
	Dynode   DynodeConfig
	Chains   map[string]ChainConfig
}

type PostgresConfig struct {
	URL  string
	Pool int
}

type RedisConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers  []string
	Replicas int16
}

type ParserConfig struct {
	// Timeout is the base upstream timeout for provider calls.
	Timeout time.Duration
}

type ConsumerConfig struct {
	MaxConcurrent int
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

type PusherConfig struct {
	URL      string
	IOSTopic string
}

type PricerConfig struct {
	CoinGeckoKey   string
	UpdateInterval time.Duration
	// MinNotifyUSD is the transfer value floor for notifications.
	MinNotifyUSD float64
}

type APIConfig struct {
	Addr string
	// NftImageURL is the base endpoint of the NFT image preview service.
	NftImageURL string
}

type DynodeConfig struct {
	Addr string
	// HeaderAllowList are the inbound headers forwarded upstream.
	HeaderAllowList []string
	Timeout         time.Duration
	LocalCacheBytes int
	// CacheRules maps per-chain request patterns to response TTLs.
	// Rules are evaluated in order; the first match wins.
	CacheRules map[string][]CacheRuleConfig
}

type CacheRuleConfig struct {
	Path      string
	Method    string
	RpcMethod string
	TTL       time.Duration
}

type ChainConfig struct {
	URL string
}

// Default returns the configuration defaults applied before the file and
// environment are read.
func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{Pool: 10},
		Kafka:    KafkaConfig{Brokers: []string{"localhost:9092"}, Replicas: 1},
		Parser:   ParserConfig{Timeout: 5 * time.Second},
		Consumer: ConsumerConfig{
			MaxConcurrent: 8,
			MaxRetries:    3,
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
		},
		Pricer: PricerConfig{
			UpdateInterval: 60 * time.Second,
			MinNotifyUSD:   0.01,
		},
		API: APIConfig{Addr: ":8080"},
		Dynode: DynodeConfig{
			Addr:            ":8081",
			HeaderAllowList: []string{"content-type", "accept", "user-agent"},
			Timeout:         30 * time.Second,
			LocalCacheBytes: 64 << 20,
		},
		Chains: map[string]ChainConfig{},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open config")
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, errors.Wrapf(err, "decode config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WALLETD_POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("WALLETD_POSTGRES_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Postgres.Pool = n
		}
	}
	if v := os.Getenv("WALLETD_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("WALLETD_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WALLETD_PUSHER_URL"); v != "" {
		c.Pusher.URL = v
	}
	if v := os.Getenv("WALLETD_COINGECKO_KEY_SECRET"); v != "" {
		c.Pricer.CoinGeckoKey = v
	}
}

func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return errors.New("postgres.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Consumer.MaxConcurrent <= 0 {
		return errors.New("consumer.max_concurrent must be positive")
	}
	if c.Consumer.BaseDelay <= 0 || c.Consumer.MaxDelay < c.Consumer.BaseDelay {
		return errors.New("consumer delays misconfigured")
	}
	for name := range c.Chains {
		if _, err := types.ParseChain(name); err != nil {
			return errors.Wrap(err, "chains section")
		}
	}
	for name := range c.Dynode.CacheRules {
		if _, err := types.ParseChain(name); err != nil {
			return errors.Wrap(err, "dynode.cache_rules section")
		}
	}
	return nil
}

// NodeURL returns the configured node endpoint for a chain, if any.
func (c *Config) NodeURL(chain types.Chain) (string, bool) {
	cc, ok := c.Chains[chain.String()]
	if !ok || cc.URL == "" {
		return "", false
	}
	return cc.URL, true
}

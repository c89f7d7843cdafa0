package configloader

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/ratelimit"
	"wallet_aggregator/internal/infrastructure/retry"
	"wallet_aggregator/internal/pkg/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Provider identities known to the loader defaults.
const (
	ProviderMoralis     = "moralis"
	ProviderAlchemy     = "alchemy"
	ProviderEVMRPC      = "evmrpc"
	ProviderDEXScreener = "dexscreener"
	ProviderCoinGecko   = "coingecko"
)

const defaultRequestTimeoutMillis = 10000

// ServerConfig holds the HTTP server configuration. Timeouts are in seconds.
type ServerConfig struct {
	Port               string   `yaml:"port"`
	ReadTimeout        int      `yaml:"readTimeout"`
	WriteTimeout       int      `yaml:"writeTimeout"`
	IdleTimeout        int      `yaml:"idleTimeout"`
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

// NetworksConfig selects the active chains and their RPC endpoints.
type NetworksConfig struct {
	Enabled               []string          `yaml:"enabled"`
	RPCOverrides          map[string]string `yaml:"rpcOverrides"`
	RPCCallTimeoutSeconds int               `yaml:"rpcCallTimeoutSeconds"`
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	Enabled                  *bool    `yaml:"enabled"`
	APIKey                   string   `yaml:"apiKey"`
	BaseURL                  string   `yaml:"baseURL"`
	RequestTimeoutMillis     int64    `yaml:"requestTimeoutMillis"`
	RequestsPerSecond        float64  `yaml:"requestsPerSecond"`
	BurstSize                int      `yaml:"burstSize"`
	MaxTokensPerBatchRequest int      `yaml:"maxTokensPerBatchRequest"`
	Chains                   []string `yaml:"chains"` // optional subset of the chains the provider supports
}

// IsEnabled reports whether the provider should be wired. Providers are enabled unless
// explicitly disabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Timeout returns the finite request timeout of the provider.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.RequestTimeoutMillis) * time.Millisecond
}

// Budget returns the token-bucket budget of the provider.
func (p ProviderConfig) Budget() ratelimit.Budget {
	return ratelimit.Budget{RequestsPerSecond: p.RequestsPerSecond, BurstSize: p.BurstSize}
}

// RetryConfig holds the backoff schedule shared by all provider calls.
type RetryConfig struct {
	MaxRetries         *int    `yaml:"maxRetries"`
	InitialDelayMillis int64   `yaml:"initialDelayMillis"`
	MaxDelayMillis     int64   `yaml:"maxDelayMillis"`
	BackoffFactor      float64 `yaml:"backoffFactor"`
}

// Executor converts the section into a retry.Config.
func (r RetryConfig) Executor() retry.Config {
	cfg := retry.Config{
		InitialDelay:  time.Duration(r.InitialDelayMillis) * time.Millisecond,
		MaxDelay:      time.Duration(r.MaxDelayMillis) * time.Millisecond,
		BackoffFactor: r.BackoffFactor,
	}
	if r.MaxRetries != nil {
		cfg.MaxRetries = *r.MaxRetries
	}
	return cfg
}

// CapabilityCacheConfig is the cache policy of one capability.
type CapabilityCacheConfig struct {
	Enabled    *bool `yaml:"enabled"`
	TTLSeconds int   `yaml:"ttlSeconds"`
}

// CacheConfig holds the router cache configuration keyed by capability name.
type CacheConfig struct {
	MaxEntries   int                              `yaml:"maxEntries"`
	Capabilities map[string]CapabilityCacheConfig `yaml:"capabilities"`
}

// SnapshotConfig holds the wallet snapshot defaults.
type SnapshotConfig struct {
	DefaultChains       []string `yaml:"defaultChains"`
	MaxConcurrentChains int      `yaml:"maxConcurrentChains"`
}

// SubscriptionConfig holds the background refresh policy.
type SubscriptionConfig struct {
	IntervalSeconds int  `yaml:"intervalSeconds"`
	MaxRetries      int  `yaml:"maxRetries"`
	AutoReconnect   bool `yaml:"autoReconnect"`
}

// WatchConfig points at the tracked wallets and the token watch lists.
type WatchConfig struct {
	WalletsFile string `yaml:"walletsFile"`
	TokensDir   string `yaml:"tokensDir"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig                   `yaml:"server"`
	Logging      LoggingConfig                  `yaml:"logging"`
	Networks     NetworksConfig                 `yaml:"networks"`
	Providers    map[string]ProviderConfig      `yaml:"providers"`
	Retry        RetryConfig                    `yaml:"retry"`
	Cache        CacheConfig                    `yaml:"cache"`
	Routing      map[string]map[string][]string `yaml:"routing"`
	Snapshot     SnapshotConfig                 `yaml:"snapshot"`
	Subscription SubscriptionConfig             `yaml:"subscription"`
	Watch        WatchConfig                    `yaml:"watch"`
}

// Load reads the YAML file at path, applies environment overrides and then defaults.
// A missing file is not an error: the configuration then comes from env and defaults.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logrus.Warnf("Config file %s not found, using environment and defaults", path)
	case err != nil:
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
			return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for id, envKey := range map[string]string{
		ProviderMoralis:   "MORALIS_API_KEY",
		ProviderAlchemy:   "ALCHEMY_API_KEY",
		ProviderCoinGecko: "COINGECKO_API_KEY",
	} {
		if v, ok := os.LookupEnv(envKey); ok {
			pc := cfg.Providers[id]
			pc.APIKey = v
			cfg.Providers[id] = pc
		}
	}
	for _, id := range providerIDs(cfg) {
		prefix := strings.ToUpper(id)
		pc := cfg.Providers[id]
		if v, ok := os.LookupEnv(prefix + "_RPS"); ok {
			if rps, err := strconv.ParseFloat(v, 64); err == nil {
				pc.RequestsPerSecond = rps
			} else {
				logrus.Warnf("Ignoring %s_RPS=%q: %v", prefix, v, err)
			}
		}
		if v, ok := os.LookupEnv(prefix + "_BURST"); ok {
			if burst, err := strconv.Atoi(v); err == nil {
				pc.BurstSize = burst
			} else {
				logrus.Warnf("Ignoring %s_BURST=%q: %v", prefix, v, err)
			}
		}
		cfg.Providers[id] = pc
	}

	if v, ok := os.LookupEnv("CACHE_MAX_ENTRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		} else {
			logrus.Warnf("Ignoring CACHE_MAX_ENTRIES=%q: %v", v, err)
		}
	}
	if v, ok := os.LookupEnv("SNAPSHOT_DEFAULT_CHAINS"); ok {
		cfg.Snapshot.DefaultChains = utils.SplitCSV(v)
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
}

var defaultBudgets = map[string]ratelimit.Budget{
	ProviderMoralis:     {RequestsPerSecond: 25, BurstSize: 25},
	ProviderAlchemy:     {RequestsPerSecond: 25, BurstSize: 50},
	ProviderEVMRPC:      {RequestsPerSecond: 10, BurstSize: 10},
	ProviderDEXScreener: {RequestsPerSecond: 5, BurstSize: 5},
	ProviderCoinGecko:   {RequestsPerSecond: 0.5, BurstSize: 1},
}

var defaultRouting = map[string]map[string][]string{
	entity.CapabilityNativeBalance.String(): {"default": {ProviderMoralis, ProviderAlchemy, ProviderEVMRPC}},
	entity.CapabilityTokenBalances.String(): {"default": {ProviderMoralis, ProviderAlchemy, ProviderEVMRPC}},
	entity.CapabilityNFTs.String():          {"default": {ProviderMoralis, ProviderAlchemy}},
	entity.CapabilityTransactions.String():  {"default": {ProviderMoralis, ProviderAlchemy}},
	entity.CapabilityPrices.String():        {"default": {ProviderDEXScreener, ProviderCoinGecko}},
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
		logrus.Infof("Server.Port not set, defaulting to %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Networks.RPCCallTimeoutSeconds <= 0 {
		cfg.Networks.RPCCallTimeoutSeconds = 10
		logrus.Infof("Networks.RPCCallTimeoutSeconds not set, defaulting to %d", cfg.Networks.RPCCallTimeoutSeconds)
	}

	for id, budget := range defaultBudgets {
		if _, ok := cfg.Providers[id]; !ok {
			cfg.Providers[id] = ProviderConfig{}
		}
		pc := cfg.Providers[id]
		if pc.RequestsPerSecond == 0 && pc.BurstSize == 0 {
			pc.RequestsPerSecond, pc.BurstSize = budget.RequestsPerSecond, budget.BurstSize
			logrus.Infof("Rate limit for %s not set, defaulting to %.2f rps burst %d", id, pc.RequestsPerSecond, pc.BurstSize)
		}
		cfg.Providers[id] = pc
	}
	for id, pc := range cfg.Providers {
		if pc.RequestTimeoutMillis <= 0 {
			pc.RequestTimeoutMillis = defaultRequestTimeoutMillis
			logrus.Infof("%s.RequestTimeoutMillis not set, defaulting to %d ms", id, pc.RequestTimeoutMillis)
		}
		if pc.BurstSize <= 0 && pc.RequestsPerSecond > 0 {
			pc.BurstSize = 1
		}
		cfg.Providers[id] = pc
	}
	if pc := cfg.Providers[ProviderDEXScreener]; pc.MaxTokensPerBatchRequest <= 0 {
		pc.MaxTokensPerBatchRequest = 30
		cfg.Providers[ProviderDEXScreener] = pc
		logrus.Infof("dexscreener.MaxTokensPerBatchRequest not set, defaulting to %d", pc.MaxTokensPerBatchRequest)
	}

	if cfg.Retry.MaxRetries == nil {
		n := 2
		cfg.Retry.MaxRetries = &n
		logrus.Infof("Retry.MaxRetries not set, defaulting to %d", n)
	}
	if cfg.Retry.InitialDelayMillis <= 0 {
		cfg.Retry.InitialDelayMillis = 500
	}
	if cfg.Retry.MaxDelayMillis <= 0 {
		cfg.Retry.MaxDelayMillis = 5000
	}
	if cfg.Retry.BackoffFactor < 1 {
		cfg.Retry.BackoffFactor = 2
	}

	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = 10000
		logrus.Infof("Cache.MaxEntries not set, defaulting to %d", cfg.Cache.MaxEntries)
	}

	if len(cfg.Routing) == 0 {
		cfg.Routing = make(map[string]map[string][]string, len(defaultRouting))
		for capability, routes := range defaultRouting {
			cfg.Routing[capability] = routes
		}
		logrus.Info("Routing not set, using the default provider priorities")
	}

	if len(cfg.Snapshot.DefaultChains) == 0 {
		cfg.Snapshot.DefaultChains = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism", "base"}
		logrus.Infof("Snapshot.DefaultChains not set, defaulting to %v", cfg.Snapshot.DefaultChains)
	}
	if cfg.Snapshot.MaxConcurrentChains <= 0 {
		cfg.Snapshot.MaxConcurrentChains = 8
	}

	if cfg.Subscription.IntervalSeconds <= 0 {
		cfg.Subscription.IntervalSeconds = 60
		logrus.Infof("Subscription.IntervalSeconds not set, defaulting to %d", cfg.Subscription.IntervalSeconds)
	}
	if cfg.Subscription.MaxRetries <= 0 {
		cfg.Subscription.MaxRetries = 3
	}

	if cfg.Watch.TokensDir == "" {
		cfg.Watch.TokensDir = "data/tokens"
	}
	if cfg.Watch.WalletsFile == "" {
		cfg.Watch.WalletsFile = "data/wallets.txt"
	}
}

// Validate checks the cross-field constraints defaults cannot fix.
func (c *Config) Validate() error {
	if _, err := c.RoutingTable(); err != nil {
		return err
	}
	if _, err := c.CachePolicies(); err != nil {
		return err
	}
	for id, pc := range c.Providers {
		if pc.RequestsPerSecond < 0 {
			return fmt.Errorf("providers.%s.requestsPerSecond must not be negative", id)
		}
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return errors.New("retry.maxRetries must not be negative")
	}
	return nil
}

// RoutingTable parses the routing section into capability -> chain|default -> identities.
func (c *Config) RoutingTable() (map[entity.Capability]map[string][]string, error) {
	table := make(map[entity.Capability]map[string][]string, len(c.Routing))
	for name, routes := range c.Routing {
		capability, ok := entity.ParseCapability(name)
		if !ok {
			return nil, fmt.Errorf("routing: unknown capability %q", name)
		}
		byChain := make(map[string][]string, len(routes))
		for chain, ids := range routes {
			key := chain
			if key != "default" {
				key = string(entity.NormalizeChain(chain))
			}
			byChain[key] = ids
		}
		table[capability] = byChain
	}
	return table, nil
}

// CachePolicy is a parsed capability cache policy.
type CachePolicy struct {
	Enabled bool
	TTL     time.Duration
}

// CachePolicies parses the per-capability cache overrides. Capabilities absent from the
// file are left to the router defaults.
func (c *Config) CachePolicies() (map[entity.Capability]CachePolicy, error) {
	out := make(map[entity.Capability]CachePolicy, len(c.Cache.Capabilities))
	for name, cc := range c.Cache.Capabilities {
		capability, ok := entity.ParseCapability(name)
		if !ok {
			return nil, fmt.Errorf("cache: unknown capability %q", name)
		}
		out[capability] = CachePolicy{
			Enabled: cc.Enabled == nil || *cc.Enabled,
			TTL:     time.Duration(cc.TTLSeconds) * time.Second,
		}
	}
	return out, nil
}

// Budgets returns the rate-limit budget of every configured provider.
func (c *Config) Budgets() map[string]ratelimit.Budget {
	out := make(map[string]ratelimit.Budget, len(c.Providers))
	for id, pc := range c.Providers {
		out[id] = pc.Budget()
	}
	return out
}

// DefaultChains returns the snapshot default chains normalized.
func (c *Config) DefaultChains() []entity.Chain {
	out := make([]entity.Chain, 0, len(c.Snapshot.DefaultChains))
	for _, s := range c.Snapshot.DefaultChains {
		out = append(out, entity.NormalizeChain(s))
	}
	return out
}

// providerIDs returns the configured identities plus the known defaults, sorted.
func providerIDs(cfg *Config) []string {
	seen := make(map[string]struct{})
	for id := range cfg.Providers {
		seen[id] = struct{}{}
	}
	for id := range defaultBudgets {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

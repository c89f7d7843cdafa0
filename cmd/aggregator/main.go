package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/app/provider"
	"wallet_aggregator/internal/app/service"
	"wallet_aggregator/internal/app/subscription"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/configloader"
	"wallet_aggregator/internal/infrastructure/memcache"
	"wallet_aggregator/internal/infrastructure/network/client"
	networkdefinition "wallet_aggregator/internal/infrastructure/network/definition"
	"wallet_aggregator/internal/infrastructure/provider/alchemy"
	"wallet_aggregator/internal/infrastructure/provider/coingecko"
	"wallet_aggregator/internal/infrastructure/provider/dexscreener"
	"wallet_aggregator/internal/infrastructure/provider/evmrpc"
	"wallet_aggregator/internal/infrastructure/provider/moralis"
	"wallet_aggregator/internal/infrastructure/ratelimit"
	"wallet_aggregator/internal/infrastructure/restapi"
	"wallet_aggregator/internal/infrastructure/tokenloader"
	"wallet_aggregator/internal/infrastructure/walletloader"
	"wallet_aggregator/internal/pkg/logger"
	"wallet_aggregator/internal/pkg/metrics"
	"wallet_aggregator/internal/pkg/utils"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

func main() {
	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yml")
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync() // flushes buffer, if any
	logger.InstallSlog(zapLogger)
	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	networks := networkdefinition.NewNetworkDefinitionProvider(zapLogger, cfg.Networks.Enabled, cfg.Networks.RPCOverrides)
	defs := networks.GetAllNetworkDefinitions()

	watch, err := tokenloader.NewTokenLoader(cfg.Watch.TokensDir, zapLogger).GetTokensByNetwork(defs)
	if err != nil {
		zapLogger.Fatal("Failed to load token watch lists", zap.Error(err))
	}

	rpcTimeout := time.Duration(cfg.Networks.RPCCallTimeoutSeconds) * time.Second
	clientProvider := client.NewEVMClientProvider(evmrpc.Identity, rpcTimeout, zapLogger)
	defer clientProvider.Close()

	limiter := ratelimit.NewRegistry(cfg.Budgets(), ratelimit.Budget{}, zapLogger)
	limiter.OnWait(metrics.ObserveLimiterWait)

	registry := provider.NewRegistry(zapLogger)
	registerProviders(registry, cfg, defs, watch, clientProvider, limiter, zapLogger)

	cache := memcache.New(cfg.Cache.MaxEntries)
	cache.OnEvict(func(string) { metrics.CacheEvictions.Inc() })

	routing, err := cfg.RoutingTable()
	if err != nil {
		zapLogger.Fatal("Invalid routing configuration", zap.Error(err))
	}
	policies, err := cachePolicies(cfg)
	if err != nil {
		zapLogger.Fatal("Invalid cache configuration", zap.Error(err))
	}
	router := service.NewRouter(service.RouterConfig{
		Routing: routing,
		Cache:   policies,
		Retry:   cfg.Retry.Executor(),
	}, registry, limiter, cache, zapLogger)

	snapshots := service.NewSnapshotService(router, networks, service.SnapshotConfig{
		DefaultChains:       cfg.DefaultChains(),
		MaxConcurrentChains: cfg.Snapshot.MaxConcurrentChains,
	}, zapLogger)
	aggregator := service.NewAggregator(router, snapshots, zapLogger)

	subOpts := subscription.Options{
		Interval:      time.Duration(cfg.Subscription.IntervalSeconds) * time.Second,
		AutoReconnect: cfg.Subscription.AutoReconnect,
		MaxRetries:    cfg.Subscription.MaxRetries,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscriptions := subscription.NewManager(zapLogger)
	startWalletRefresh(ctx, subscriptions, aggregator, cfg.Watch.WalletsFile, subOpts, zapLogger)

	engine := restapi.SetupRouter(
		restapi.NewWalletHandler(aggregator, zapLogger),
		restapi.NewSnapshotStream(aggregator, subOpts, cfg.Server.CORSAllowedOrigins, zapLogger),
		cfg.Server.CORSAllowedOrigins,
		zapLogger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info(fmt.Sprintf("Server starting on port %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	subscriptions.Close()

	zapLogger.Info("Server exiting")
}

func registerProviders(
	registry *provider.Registry,
	cfg *configloader.Config,
	defs []entity.NetworkDefinition,
	watch map[entity.Chain][]entity.TokenInfo,
	clients port.BlockchainClientProvider,
	limiter *ratelimit.Registry,
	logger *zap.Logger,
) {
	enabled := func(id string) (configloader.ProviderConfig, bool) {
		pc := cfg.Providers[id]
		if !pc.IsEnabled() {
			logger.Info("Provider disabled by configuration", zap.String("provider", id))
			return pc, false
		}
		return pc, true
	}

	if pc, ok := enabled(moralis.Identity); ok {
		if pc.APIKey == "" {
			logger.Warn("Moralis API key not set, provider skipped")
		} else {
			registry.MustRegister(moralis.New(moralis.Config{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: pc.Timeout(),
				Admit:   limiter.Admitter(moralis.Identity),
			}, chainSubset(defs, pc.Chains), logger))
		}
	}
	if pc, ok := enabled(alchemy.Identity); ok {
		if pc.APIKey == "" {
			logger.Warn("Alchemy API key not set, provider skipped")
		} else {
			registry.MustRegister(alchemy.New(alchemy.Config{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: pc.Timeout(),
				Admit:   limiter.Admitter(alchemy.Identity),
			}, chainSubset(defs, pc.Chains), logger))
		}
	}
	if pc, ok := enabled(evmrpc.Identity); ok {
		registry.MustRegister(evmrpc.New(clients, chainSubset(defs, pc.Chains), watch, logger))
	}
	if pc, ok := enabled(dexscreener.Identity); ok {
		registry.MustRegister(dexscreener.New(dexscreener.Config{
			BaseURL:             pc.BaseURL,
			Timeout:             pc.Timeout(),
			MaxTokensPerRequest: pc.MaxTokensPerBatchRequest,
			Admit:               limiter.Admitter(dexscreener.Identity),
		}, chainSubset(defs, pc.Chains), logger))
	}
	if pc, ok := enabled(coingecko.Identity); ok {
		registry.MustRegister(coingecko.New(coingecko.Config{
			BaseURL:             pc.BaseURL,
			APIKey:              pc.APIKey,
			Timeout:             pc.Timeout(),
			MaxTokensPerRequest: pc.MaxTokensPerBatchRequest,
			Admit:               limiter.Admitter(coingecko.Identity),
		}, chainSubset(defs, pc.Chains), logger))
	}

	logger.Info("Providers registered", zap.Strings("providers", registry.Identities()))
}

// chainSubset narrows defs to the listed chains; an empty list keeps all of them.
func chainSubset(defs []entity.NetworkDefinition, chains []string) []entity.NetworkDefinition {
	if len(chains) == 0 {
		return defs
	}
	wanted := make([]entity.Chain, 0, len(chains))
	for _, c := range chains {
		wanted = append(wanted, entity.NormalizeChain(c))
	}
	out := make([]entity.NetworkDefinition, 0, len(chains))
	for _, def := range defs {
		if slices.Contains(wanted, def.Identifier) {
			out = append(out, def)
		}
	}
	return out
}

// cachePolicies overlays the configured policies on the router defaults. An override
// without a TTL keeps the default TTL.
func cachePolicies(cfg *configloader.Config) (map[entity.Capability]service.CachePolicy, error) {
	overrides, err := cfg.CachePolicies()
	if err != nil {
		return nil, err
	}
	policies := service.DefaultCachePolicies()
	for c, o := range overrides {
		p := policies[c]
		p.Enabled = o.Enabled
		if o.TTL > 0 {
			p.TTL = o.TTL
		}
		policies[c] = p
	}
	return policies, nil
}

// startWalletRefresh keeps the snapshots of the tracked wallets warm in the router cache.
func startWalletRefresh(ctx context.Context, manager *subscription.Manager, svc port.WalletService, walletsFile string, opts subscription.Options, logger *zap.Logger) {
	wallets, err := walletloader.NewWalletFileLoader(walletsFile, logger).GetWallets()
	if err != nil {
		logger.Error("Failed to load tracked wallets, background refresh disabled", zap.Error(err))
		return
	}
	for _, address := range wallets {
		manager.Track(subscription.Subscribe(ctx,
			func(ctx context.Context) (*entity.WalletSnapshot, error) {
				return svc.GetSnapshot(ctx, address, nil)
			},
			func(snapshot *entity.WalletSnapshot, err error) {
				if err != nil {
					logger.Warn("Wallet refresh failed", zap.String("address", address), zap.Error(err))
					return
				}
				logger.Debug("Wallet refreshed",
					zap.String("address", address),
					zap.Int("chains", snapshot.TotalChains),
					zap.Float64("totalValueUsd", snapshot.TotalValueUsd))
			},
			opts, logger))
	}
	logger.Info("Background wallet refresh started", zap.Int("wallets", len(wallets)), zap.Duration("interval", opts.Interval))
}

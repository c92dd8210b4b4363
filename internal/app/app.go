package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/handlers"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
	"github.com/ternarybob/pretium/internal/providers/eastmoney"
	"github.com/ternarybob/pretium/internal/providers/tusharepro"
	"github.com/ternarybob/pretium/internal/services/dispatch"
	"github.com/ternarybob/pretium/internal/services/quotecache"
	"github.com/ternarybob/pretium/internal/services/registry"
	"github.com/ternarybob/pretium/internal/services/scheduler"
	"github.com/ternarybob/pretium/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Calendar       *common.Calendar

	// Quote pipeline
	Registry     interfaces.SourceRegistry
	QuoteCache   interfaces.QuoteCache
	QuoteService interfaces.QuoteService

	// Background maintenance
	SchedulerService interfaces.SchedulerService

	// Providers
	Eastmoney *eastmoney.Client
	Tushare   *tusharepro.Client

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	QuoteHandler      *handlers.QuoteHandler
	IndicatorsHandler *handlers.IndicatorsHandler
	SourcesHandler    *handlers.SourcesHandler
	CacheHandler      *handlers.CacheHandler
	KVHandler         *handlers.KVHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if cfg.Scheduler.Enabled {
		if err := app.SchedulerService.Start(cfg.Scheduler.SweepSchedule); err != nil {
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logger.Info().Msg("Cache sweep scheduler disabled by configuration")
	}

	logger.Info().
		Int("providers", len(app.Registry.Descriptors())).
		Str("cache_dir", cfg.Cache.Dir).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the credential store and the market calendar.
func (a *App) initStorage() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	a.seedDefaultKVValues()

	calendar, err := common.LoadCalendar(a.Config.Calendar.Path)
	if err != nil {
		return fmt.Errorf("failed to load market calendar: %w", err)
	}
	a.Calendar = calendar
	a.Logger.Debug().
		Strs("markets", calendar.Markets()).
		Str("path", a.Config.Calendar.Path).
		Msg("Market calendar loaded")

	return nil
}

// seedDefaultKVValues writes the documented default keys when absent so
// operators can discover which credentials the app expects. Existing values
// are never overwritten.
func (a *App) seedDefaultKVValues() {
	ctx := context.Background()
	kv := a.StorageManager.KeyValueStorage()
	for _, def := range common.GetDefaultKVValues() {
		_, err := kv.Get(ctx, def.Key)
		if err == nil {
			continue
		}
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			a.Logger.Warn().Str("key", def.Key).Err(err).Msg("Failed to check default KV value")
			continue
		}
		if err := kv.Set(ctx, def.Key, def.Value, def.Description); err != nil {
			a.Logger.Warn().Str("key", def.Key).Err(err).Msg("Failed to seed default KV value")
		}
	}
}

// initServices initializes the quote pipeline in dependency order: registry
// and providers first, then the cache, then the dispatcher over both.
func (a *App) initServices() error {
	a.Registry = registry.NewService(a.Logger)

	if err := a.registerProviders(); err != nil {
		return fmt.Errorf("failed to register providers: %w", err)
	}

	cache, err := quotecache.NewService(a.Config.Cache, a.Calendar, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize quote cache: %w", err)
	}
	a.QuoteCache = cache

	timeouts := map[string]time.Duration{
		a.Eastmoney.Name(): a.Config.EastmoneyTimeout(),
		a.Tushare.Name():   a.Config.TushareTimeout(),
	}
	a.QuoteService = dispatch.NewService(a.Registry, a.QuoteCache, timeouts, a.Logger)

	a.SchedulerService = scheduler.NewService(a.QuoteCache, a.Logger)

	return nil
}

// registerProviders creates the upstream clients and registers each
// (market, capability) pair it serves. Eastmoney needs no credential and is
// ready immediately; Tushare starts unready and flips ready once its token
// resolves from the environment or the credential store.
func (a *App) registerProviders() error {
	a.Eastmoney = eastmoney.NewClientFromConfig(a.Config.Providers.Eastmoney, a.Logger)
	a.Tushare = tusharepro.NewClientFromConfig(a.Config.Providers.Tushare, a.Logger)

	for _, market := range []string{"cn", "hk", "us"} {
		for _, capability := range []models.Capability{models.CapabilityHistory, models.CapabilityRealtime} {
			descriptor := models.ProviderDescriptor{
				Name:       a.Eastmoney.Name(),
				Market:     market,
				Capability: capability,
				Priority:   1,
				Ready:      true,
			}
			if err := a.Registry.Register(descriptor, a.Eastmoney); err != nil {
				return err
			}
		}
	}
	// The F10 profile pages only cover mainland listings
	if err := a.Registry.Register(models.ProviderDescriptor{
		Name:       a.Eastmoney.Name(),
		Market:     "cn",
		Capability: models.CapabilityProfile,
		Priority:   1,
		Ready:      true,
	}, a.Eastmoney); err != nil {
		return err
	}

	for _, capability := range []models.Capability{
		models.CapabilityHistory,
		models.CapabilityFactors,
		models.CapabilityFinancials,
		models.CapabilityProfile,
	} {
		descriptor := models.ProviderDescriptor{
			Name:       a.Tushare.Name(),
			Market:     "cn",
			Capability: capability,
			Priority:   2,
			Ready:      false,
		}
		if err := a.Registry.Register(descriptor, a.Tushare); err != nil {
			return err
		}
	}

	a.resolveTushareToken()

	return nil
}

// resolveTushareToken loads the Tushare credential and marks the provider
// ready when found. A missing token is not fatal; the provider simply stays
// out of every fallback chain until a token is supplied.
func (a *App) resolveTushareToken() {
	tokenKey := a.Config.Providers.Tushare.TokenKey
	token, err := common.ResolveProviderToken(context.Background(), a.StorageManager.KeyValueStorage(), tokenKey)
	if err != nil {
		a.Registry.MarkUnready(a.Tushare.Name())
		a.Logger.Warn().
			Str("provider", a.Tushare.Name()).
			Str("token_key", tokenKey).
			Msg("Tushare token not configured, provider unready")
		return
	}

	a.Tushare.SetToken(token)
	a.Registry.MarkReady(a.Tushare.Name())
	a.Logger.Info().
		Str("provider", a.Tushare.Name()).
		Msg("Tushare token resolved, provider marked ready")
}

// onCredentialChange re-checks provider readiness after a credential is
// written or deleted through the API, so a token supplied at runtime takes
// effect without a restart.
func (a *App) onCredentialChange(key string) {
	if strings.EqualFold(key, a.Config.Providers.Tushare.TokenKey) {
		a.resolveTushareToken()
	}
}

// initHandlers initializes the HTTP handlers over the assembled services.
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.QuoteHandler = handlers.NewQuoteHandler(a.QuoteService, a.Logger)
	a.IndicatorsHandler = handlers.NewIndicatorsHandler(a.QuoteService, a.Logger)
	a.SourcesHandler = handlers.NewSourcesHandler(a.Registry, a.Logger)
	a.CacheHandler = handlers.NewCacheHandler(a.QuoteCache, a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.StorageManager.KeyValueStorage(), a.onCredentialChange, a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

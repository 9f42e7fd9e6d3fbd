// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/tidyquote/internal/alerts"
	"github.com/codr1/tidyquote/internal/cache"
	"github.com/codr1/tidyquote/internal/config"
	"github.com/codr1/tidyquote/internal/db"
	"github.com/codr1/tidyquote/internal/pricing"
	"github.com/codr1/tidyquote/internal/ratelimit"
	"github.com/codr1/tidyquote/internal/scheduler"
	"github.com/codr1/tidyquote/internal/snapshot"
	"github.com/codr1/tidyquote/internal/staging"
)

const startupTimeout = 30 * time.Second

// app holds the long-lived collaborators the routes are built from.
type app struct {
	config     *config.Config
	database   *db.DB
	store      *snapshot.Store
	loader     *snapshot.Loader
	calculator *pricing.Calculator
	quoteCache cache.QuoteCache
	limiter    *ratelimit.Limiter
	staging    *staging.Manager
}

func setupLogger(environment string, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment, cfg.Features.EnableDebug)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()
	startupCtx = log.Logger.WithContext(startupCtx)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	collector := alerts.NewCollector()
	store := snapshot.NewStore(nil)
	loader := snapshot.NewLoader(database.Queries, store, collector)
	if _, err := loader.Reload(startupCtx); err != nil {
		log.Error().Err(err).Msg("Initial snapshot load failed, serving with empty configuration")
	}

	calcConfig, err := pricingConfig(cfg, collector)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pricing configuration")
	}

	a := &app{
		config:     cfg,
		database:   database,
		store:      store,
		loader:     loader,
		calculator: pricing.New(calcConfig),
		staging:    staging.NewManager(database, loader),
	}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(startupCtx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Quote cache unavailable, continuing without it")
		} else {
			defer func(c *redis.Client) { _ = c.Close() }(client)
			a.quoteCache = cache.NewRedisQuoteCache(client, cfg.Cache.TTL)
		}
	}

	if cfg.RateLimit.Enabled {
		a.limiter = ratelimit.New(&ratelimit.Config{
			MaxPerWindow:  cfg.RateLimit.QuotesPerIP,
			Window:        cfg.RateLimit.Window,
			CleanupPeriod: cfg.RateLimit.CleanupPeriod,
		})
		defer a.limiter.Close()
	}

	if err := startScheduler(startupCtx, cfg, loader, collector); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown failed")
		}
	}()

	// Create server instance
	server := newServer(a)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

// pricingConfig maps the pricing section onto calculator settings.
func pricingConfig(cfg *config.Config, reporter pricing.Reporter) (*pricing.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pc := pricing.DefaultConfig()
	pc.Strategy = cfg.Pricing.Strategy
	if pc.Strategy == "" {
		pc.Strategy = pricing.StrategyStandard
	}
	pc.Location = loc
	pc.OverrideEpsilon = cfg.Pricing.OverrideEpsilon
	pc.Reporter = reporter

	if len(cfg.Pricing.ShortNoticeTiers) > 0 {
		pc.ShortNoticeTiers = make([]pricing.Tier, 0, len(cfg.Pricing.ShortNoticeTiers))
		for _, t := range cfg.Pricing.ShortNoticeTiers {
			pc.ShortNoticeTiers = append(pc.ShortNoticeTiers, pricing.Tier{WithinHours: t.WithinHours, Charge: t.Charge})
		}
	}

	if len(cfg.Pricing.DisabledContributions) > 0 {
		pc.Disabled = make(map[pricing.Contribution]bool, len(cfg.Pricing.DisabledContributions))
		for _, name := range cfg.Pricing.DisabledContributions {
			c, err := pricing.ParseContribution(name)
			if err != nil {
				return nil, err
			}
			pc.Disabled[c] = true
		}
	}
	return pc, nil
}

// startScheduler registers the snapshot refresh and, when alerts are on, the
// failure digest, then starts the scheduler singleton.
func startScheduler(ctx context.Context, cfg *config.Config, loader *snapshot.Loader, collector *alerts.Collector) error {
	if err := scheduler.Init(); err != nil {
		return err
	}
	svc, err := scheduler.ServiceInstance()
	if err != nil {
		return err
	}

	if cfg.Snapshot.RefreshCron != "" {
		if err := svc.RegisterSnapshotRefresh(loader, cfg.Snapshot.RefreshCron); err != nil {
			return fmt.Errorf("register snapshot refresh: %w", err)
		}
	}

	if cfg.Alerts.Enabled {
		sender, err := alerts.NewSESClient(ctx,
			cfg.Alerts.AWSAccessKeyID,
			cfg.Alerts.AWSSecretAccessKey,
			cfg.Alerts.AWSRegion,
			cfg.Alerts.FromEmail,
		)
		if err != nil {
			return fmt.Errorf("create SES client: %w", err)
		}
		digest := alerts.NewDigest(collector, sender, cfg.Alerts.ToEmail)
		if err := svc.RegisterAlertDigest(digest, cfg.Alerts.DigestCron); err != nil {
			return fmt.Errorf("register alert digest: %w", err)
		}
	}

	return scheduler.Start()
}

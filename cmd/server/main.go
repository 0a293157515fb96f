package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pscankit/autotag/internal/api"
	"github.com/pscankit/autotag/internal/cache"
	"github.com/pscankit/autotag/internal/config"
	"github.com/pscankit/autotag/internal/conftree"
	"github.com/pscankit/autotag/internal/domain"
	"github.com/pscankit/autotag/internal/engine"
	"github.com/pscankit/autotag/internal/health"
	"github.com/pscankit/autotag/internal/params"

	docs "github.com/pscankit/autotag/docs"
)

// @title Auto Tag Service API
// @version 1.0
// @description Passive auto-tagging service: regex rules matched against HTTP message transcripts, persisted in a hierarchical configuration tree
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http https

// @tag.name Rules
// @tag.description Auto tag rule management operations

// @tag.name Options
// @tag.description Policy flag operations

// @tag.name Scan
// @tag.description Message scanning operations

// @tag.name System
// @tag.description System health and metrics operations

func main() {
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	flag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	setupLogger()

	log.Info().Msg("Auto Tag Service starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create required directories")
	}

	docs.SwaggerInfo.Host = os.Getenv("DOMAIN")

	logStartupConfig(cfg)

	tree := conftree.NewFileTree(cfg.Storage.ConfigFile)
	if err := tree.Load(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.ConfigFile).Msg("Failed to load configuration tree")
	}

	paramSet := params.New(tree, log.Logger)
	paramSet.Load()

	lruCache := cache.NewLRUCache(cfg.Cache.MaxSize)

	tagEngine := engine.New(lruCache)

	ctx := context.Background()
	if err := tagEngine.SetRules(ctx, paramSet.Rules()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load rules into engine")
	}

	validator := domain.NewValidator()

	healthChecker := health.NewSystemHealthChecker(paramSet, tagEngine, lruCache)

	routerConfig := api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}

	router := api.SetupRouter(api.RouterDependencies{
		Params:        paramSet,
		Engine:        tagEngine,
		Cache:         lruCache,
		Validator:     validator,
		HealthChecker: healthChecker,
		Persister:     tree,
	}, routerConfig)

	router.App.Server().ReadTimeout = cfg.Server.ReadTimeout
	router.App.Server().WriteTimeout = cfg.Server.WriteTimeout

	setupGracefulShutdown(router.App, router.Cleanup)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("addr", serverAddr).
		Msg("Starting HTTP server")

	if err := router.App.Listen(serverAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func logStartupConfig(cfg *config.Config) {
	log.Info().
		Int("server_port", cfg.Server.Port).
		Dur("server_read_timeout", cfg.Server.ReadTimeout).
		Dur("server_write_timeout", cfg.Server.WriteTimeout).
		Int("server_body_limit", cfg.Server.BodyLimit).
		Int("rate_limit_rps", cfg.Server.RateLimitRPS).
		Int("cache_max_size", cfg.Cache.MaxSize).
		Str("storage_data_dir", cfg.Storage.DataDir).
		Str("storage_config_file", cfg.Storage.ConfigFile).
		Strs("security_cors_origins", cfg.Security.CORSOrigins).
		Str("logging_level", cfg.Logging.Level).
		Str("logging_format", cfg.Logging.Format).
		Msg("Configuration loaded successfully")
}

func setupGracefulShutdown(app *fiber.App, cleanup func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		log.Info().Msg("Received shutdown signal, initiating graceful shutdown")

		if cleanup != nil {
			cleanup()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Info().Msg("Stopping HTTP server...")
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during HTTP server shutdown")
		}

		log.Info().Msg("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func performHealthCheck() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{
		Timeout: 3 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}

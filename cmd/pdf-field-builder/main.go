package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/bridge"
	"github.com/a3tai/pdf-field-builder/internal/config"
	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/httpapi"
	"github.com/a3tai/pdf-field-builder/internal/logging"
	"github.com/a3tai/pdf-field-builder/internal/mcp"
	"github.com/a3tai/pdf-field-builder/internal/session"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newCache builds the page geometry cache selected by the configuration.
// The returned closer releases the Redis connection pool, if any.
func newCache(cfg *config.Config) (document.Cache, io.Closer) {
	switch cfg.Cache {
	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return document.NewRedisCache(rdb, cfg.CacheTTL), rdb
	case config.CacheNone:
		return nil, nil
	default:
		return document.NewMemoryCache(document.DefaultCacheEntries, cfg.CacheTTL), nil
	}
}

// newManager wires the template API client, document inspection and the
// session manager
func newManager(cfg *config.Config, cache document.Cache, logger *zap.Logger) (*session.Manager, error) {
	client, err := bridge.NewClient(cfg.APIURL, cfg.Timeout,
		bridge.WithToken(cfg.APIToken),
		bridge.WithMaxDocumentSize(cfg.MaxFileSize),
	)
	if err != nil {
		return nil, fmt.Errorf("template API client: %w", err)
	}

	inspector := document.NewInspector(cfg.MaxFileSize, logger)
	backend := bridge.New(client, inspector, cache, logger)

	return session.NewManager(session.Options{
		Backend:    backend,
		Logger:     logger,
		Zoom:       geometry.ZoomPolicy{Min: cfg.ZoomMin, Max: cfg.ZoomMax, Step: cfg.ZoomStep},
		FitPadding: cfg.FitPadding,
	}, cfg.SessionTTL), nil
}

// run serves until ctx is cancelled or the stdio client goes away
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	cache, closer := newCache(cfg)
	if closer != nil {
		defer closer.Close()
	}

	manager, err := newManager(cfg, cache, logger)
	if err != nil {
		return err
	}
	go manager.Run(ctx)

	if cfg.IsServerMode() {
		return httpapi.New(manager, httpapi.NewHub(logger), logger).Run(ctx, cfg.Address())
	}

	server, err := mcp.NewServer(cfg, manager, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if version != "dev" {
		cfg.Version = version
	}

	// In stdio mode stdout carries the MCP protocol, so logs go to stderr
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.IsStdioMode())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Debug("Starting with configuration", zap.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", zap.Error(err))
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Field Builder\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}

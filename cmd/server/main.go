// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"gorm.io/gorm"

	apiconnect "github.com/osa030/19deck/internal/api/connect"
	"github.com/osa030/19deck/internal/app/filter"
	"github.com/osa030/19deck/internal/app/keymap"
	"github.com/osa030/19deck/internal/app/loader"
	"github.com/osa030/19deck/internal/app/playback"
	"github.com/osa030/19deck/internal/app/player"
	"github.com/osa030/19deck/internal/app/source"
	"github.com/osa030/19deck/internal/infra/cache"
	"github.com/osa030/19deck/internal/infra/catalog"
	"github.com/osa030/19deck/internal/infra/config"
	"github.com/osa030/19deck/internal/infra/logger"
	"github.com/osa030/19deck/internal/infra/media"
	"github.com/osa030/19deck/internal/infra/spotify"
	"github.com/osa030/19deck/internal/infra/storage"
)

var (
	app        = kingpin.New("19deck-server", "19deck playback session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
	// list-keys command
	listKeysCmd = app.Command("list-keys", "List keyboard shortcuts and exit")
	// migrate command
	migrateCmd = app.Command("migrate", "Create or update the catalog schema and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	case listKeysCmd.FullCommand():
		printKeys()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == migrateCmd.FullCommand() {
		if err := migrate(cfg); err != nil {
			zlog.Error().Msgf("Migration failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := validateFilterConfig(cfg); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	ctx := context.Background()

	deps, closers, err := buildDependencies(ctx, cfg)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				zlog.Warn().Msgf("Failed to close dependency: %v", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	sources, err := source.NewChainFromConfig(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create sources: %w", err)
	}
	filters, err := filter.NewChainFromConfig(cfg, cfg.Spotify.Market)
	if err != nil {
		return fmt.Errorf("failed to create filters: %w", err)
	}

	clock := media.NewClock(media.Config{
		TickInterval: cfg.Media.TickInterval(),
		EventBuffer:  cfg.Playback.EventBuffer,
	})
	svc := player.New(clock, sources, filters, player.Config{
		Session: playback.Config{
			InitialVolume:    cfg.Playback.InitialVolume,
			RestartThreshold: cfg.Playback.RestartThreshold(),
			EventBuffer:      cfg.Playback.EventBuffer,
		},
		Loader: loader.Config{Timeout: cfg.Playback.LoadTimeout()},
	})

	// Create RPC service with token auth
	auth := apiconnect.NewAuthenticator(cfg.AuthTokens(), cfg.Auth.JWTSecret)
	path, handler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(svc),
		connect.WithInterceptors(apiconnect.NewAuthInterceptor(auth)),
	)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)

	// Start player
	runCtx, stopPlayer := context.WithCancel(ctx)
	playerDone := make(chan struct{})
	go func() {
		defer close(playerDone)
		if err := svc.Run(runCtx); err != nil {
			zlog.Error().Msgf("Player stopped: %v", err)
		}
	}()

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s session_id=%s", cfg.Server.Addr, svc.ID())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received shutdown signal: %s", sig)
	case err := <-serverErrCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	// Close the player first so notification streams end
	svc.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	stopPlayer()
	<-playerDone

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// buildDependencies connects the clients the configured sources need.
// The returned closers must be closed even when an error is returned.
func buildDependencies(ctx context.Context, cfg *config.Config) (source.Dependencies, []io.Closer, error) {
	var (
		deps    source.Dependencies
		closers []io.Closer
	)

	if cfg.HasSource(config.SourceSpotify) || cfg.HasSource(config.SourceLastFm) {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return deps, closers, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		zlog.Info().Msgf("Spotify client ready: market=%s", client.Market())
		deps.Spotify = client
	}

	if cfg.HasSource(config.SourceCatalog) {
		db, err := catalog.Open(catalogConfig(cfg))
		if err != nil {
			return deps, closers, fmt.Errorf("failed to open catalog: %w", err)
		}
		closers = append(closers, dbCloser{db})
		deps.Catalog = catalog.NewRepository(db)

		store, err := storage.New(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			URLExpiry: time.Duration(cfg.Storage.URLExpirySec) * time.Second,
		})
		if err != nil {
			return deps, closers, fmt.Errorf("failed to create storage client: %w", err)
		}
		// A missing bucket only breaks playback of catalog tracks
		if err := store.CheckBucket(ctx); err != nil {
			zlog.Warn().Msgf("Storage check failed: %v", err)
		}
		deps.Presigner = store
	}

	if cfg.Cache.Enabled {
		client := cache.New(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
		})
		closers = append(closers, client)
		// Cache failures fall through to the sources
		if err := client.Ping(ctx); err != nil {
			zlog.Warn().Msgf("Cache unavailable, collections will not be cached: %v", err)
		}
		deps.Store = client
	}

	return deps, closers, nil
}

func catalogConfig(cfg *config.Config) catalog.Config {
	return catalog.Config{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Catalog.ConnMaxLifetimeSec) * time.Second,
		SlowThreshold:   time.Duration(cfg.Catalog.SlowThresholdMs) * time.Millisecond,
	}
}

// dbCloser adapts a GORM handle to io.Closer.
type dbCloser struct {
	db *gorm.DB
}

func (c dbCloser) Close() error {
	return catalog.Close(c.db)
}

// migrate creates the catalog schema.
func migrate(cfg *config.Config) error {
	if cfg.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is not configured")
	}
	db, err := catalog.Open(catalogConfig(cfg))
	if err != nil {
		return err
	}
	defer catalog.Close(db)

	if err := catalog.AutoMigrate(db); err != nil {
		return err
	}
	zlog.Info().Msg("Catalog schema is up to date")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.RegisteredNames() {
		f := filter.GetRegistered()[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// printKeys prints keyboard shortcuts.
func printKeys() {
	fmt.Println("Keyboard Shortcuts:")
	for _, b := range keymap.Bindings {
		fmt.Printf("  %-15s - %s\n", strings.Join(b.Keys, ", "), b.Action)
	}
}

// validateFilterConfig rejects enabled filters that do not exist.
// Settings are validated when the filter chain is built.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}
		if _, exists := registry[filterName]; !exists {
			return fmt.Errorf("unknown filter %s (see list-filters)", filterName)
		}
	}
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}

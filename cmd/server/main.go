package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/calvinwijaya/blackjack-engine/internal/api"
	"github.com/calvinwijaya/blackjack-engine/internal/config"
	"github.com/calvinwijaya/blackjack-engine/internal/db"
	"github.com/calvinwijaya/blackjack-engine/internal/game"
	"github.com/calvinwijaya/blackjack-engine/internal/store"
)

var CLI struct {
	Config   string `short:"c" default:"blackjack.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Host to bind to (overrides config)"`
	Port     int    `short:"p" help:"Server port (overrides config)"`
	LogLevel string `short:"l" help:"Log level: debug, info, warn, error (overrides config)"`
	DB       string `help:"Database path (overrides config)"`
	Frontend string `help:"Frontend URL for CORS (overrides config)"`
	Decks    int    `help:"Decks per shoe for new sessions (overrides config)"`
	Seed     int64  `help:"Shuffle seed for new sessions, 0 for random (overrides config)"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("blackjack-server"),
		kong.Description("HTTP and WebSocket server for single-player blackjack sessions"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	ctx.FatalIfErrorf(err)
	applyOverrides(cfg)
	ctx.FatalIfErrorf(cfg.Validate())

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "blackjack",
	})
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	ctx.FatalIfErrorf(err)
	logger.SetLevel(level)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}

func applyOverrides(cfg *config.Config) {
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.Port != 0 {
		cfg.Server.Port = CLI.Port
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.DB != "" {
		cfg.Server.DBPath = CLI.DB
	}
	if CLI.Frontend != "" {
		cfg.Server.FrontendURL = CLI.Frontend
	}
	if CLI.Decks != 0 {
		cfg.Table.Decks = CLI.Decks
	}
	if CLI.Seed != 0 {
		cfg.Table.Seed = CLI.Seed
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the store
	sessionStore := store.NewMemoryStore()
	logger.Info("in-memory session store initialized")

	// The round ledger is optional; play continues without it
	var ledger store.Ledger
	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0o755); err != nil {
		logger.Warn("failed to create data directory", "err", err)
	}
	database, err := db.NewDatabase(cfg.Server.DBPath)
	if err != nil {
		logger.Warn("failed to initialize database, continuing without round ledger", "err", err)
	} else {
		logger.Info("database initialized", "path", cfg.Server.DBPath)
		defer database.Close()
		ledger = store.NewDatabaseStore(database)
	}

	hub := api.NewHub(logger.WithPrefix("ws"))

	handlers := api.NewHandlers(sessionStore, ledger, hub, api.SessionDefaults{
		Decks:           cfg.Table.Decks,
		StartingBalance: game.Units(cfg.Table.StartingBalance),
		Seed:            cfg.Table.Seed,
	}, nil, logger)

	// Set up router
	r := mux.NewRouter()
	handlers.RegisterRoutes(r)

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Server.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "decks", cfg.Table.Decks)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"riskbot/internal/audit"
	"riskbot/internal/authz"
	"riskbot/internal/bot"
	"riskbot/internal/config"
	"riskbot/internal/gateway"
	"riskbot/internal/metrics"
	"riskbot/internal/purge"
	"riskbot/internal/scheduler"
	"riskbot/internal/storage"
	"riskbot/internal/storage/badgerdb"
	"riskbot/internal/storage/ch"
	"riskbot/internal/storage/jsonfile"
	"riskbot/internal/storage/stubs"
)

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      storage.Storage
	journal audit.Journal
	sched   *scheduler.Scheduler
	bot     *bot.Bot
	server  *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting risk bot...", zap.Int64("owner_id", cfg.OwnerID))

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// Initialize moderation journal
	if err := app.initJournal(); err != nil {
		return nil, err
	}

	// Initialize bot
	if err := app.initBot(); err != nil {
		return nil, err
	}

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initDatabase opens the configured storage backend
func (a *App) initDatabase() error {
	var db storage.Storage
	switch {
	case a.config.UseMockDB:
		a.logger.Info("Using mock database")
		db = stubs.NewMockDB()
	case a.config.StorageBackend == config.BackendBadger:
		a.logger.Info("Using Badger storage", zap.String("dir", a.config.DataDir))
		db = badgerdb.NewStore(a.config.DataDir, a.logger)
	default:
		a.logger.Info("Using JSON file storage", zap.String("dir", a.config.DataDir))
		db = jsonfile.NewStore(a.config.DataDir, a.logger)
	}

	// Initialize database schema and default data
	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initJournal selects where moderation events are recorded
func (a *App) initJournal() error {
	if a.config.AuditBackend != config.AuditClickHouse {
		a.journal = audit.NewLogJournal(a.logger)
		return nil
	}

	tlsStatus := "without TLS"
	if a.config.ClickHouseUseTLS {
		tlsStatus = "with TLS"
	}
	a.logger.Info("Connecting to ClickHouse audit journal",
		zap.String("host", a.config.ClickHouseHost),
		zap.Int("port", a.config.ClickHousePort),
		zap.String("database", a.config.ClickHouseDatabase),
		zap.String("user", a.config.ClickHouseUser),
		zap.String("tls", tlsStatus),
	)
	journal, err := ch.NewJournal(
		a.config.ClickHouseHost,
		a.config.ClickHousePort,
		a.config.ClickHouseDatabase,
		a.config.ClickHouseUser,
		a.config.ClickHousePassword,
		a.config.ClickHouseUseTLS,
	)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	a.journal = journal
	return nil
}

// initBot initializes the Telegram bot and its collaborators
func (a *App) initBot() error {
	api, err := tgbotapi.NewBotAPI(a.config.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	gw := gateway.NewTelegram(api, a.logger)
	auth := authz.New(a.config.OwnerID, gw, a.db, a.config.AdminCacheTTL, a.logger)
	workflow := purge.NewWorkflow(a.db, gw, auth, purge.NewSessions(a.config.PurgeSessionTTL), a.journal, a.logger)
	a.sched = scheduler.New(gw, a.logger)

	a.bot = bot.NewBot(api, bot.Deps{
		Gateway:    gw,
		Storage:    a.db,
		Authorizer: auth,
		Purge:      workflow,
		Scheduler:  a.sched,
		Journal:    a.journal,
	}, a.logger)
	return nil
}

// initHTTPServer initializes the HTTP server for health checks, metrics and webhook
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		fmt.Fprintf(w, "Risk bot is running (mode: %s)", mode)
	})

	mux.Handle("/metrics", metrics.Handler())

	// Webhook endpoint (only used in webhook mode)
	mux.HandleFunc("/telegram-webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			a.logger.Warn("Error decoding webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		go a.bot.HandleWebhookUpdate(update)

		w.WriteHeader(http.StatusOK)
	})

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in appropriate mode
	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("webhook_url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
		a.logger.Info("Webhook configured. Bot will receive updates via HTTP endpoint /telegram-webhook")
	} else {
		go func() {
			a.logger.Info("Starting bot in POLLING mode...")
			if err := a.bot.Start(); err != nil {
				a.logger.Fatal("Failed to start bot", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	<-sigChan

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	defer a.logger.Sync() //nolint:errcheck

	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	a.bot.Stop()
	a.sched.Stop()

	if err := a.journal.Close(); err != nil {
		a.logger.Warn("Error closing audit journal", zap.Error(err))
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}

// verax - real-time claim verification with safety-gated actuation
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akoval/verax/internal/actuate"
	"github.com/akoval/verax/internal/api"
	"github.com/akoval/verax/internal/config"
	"github.com/akoval/verax/internal/factcheck"
	"github.com/akoval/verax/internal/middleware"
	"github.com/akoval/verax/internal/monitor"
	"github.com/akoval/verax/internal/safety"
	"github.com/akoval/verax/internal/store"
	"github.com/akoval/verax/internal/transcribe"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	resetEmergencyStop := flag.Bool("reset-emergency-stop", false,
		"clear the persisted emergency stop at startup (administrative use only)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	ledger, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	governor, err := safety.New(context.Background(), ledger, safety.Config{
		Cooldown:   cfg.ActuationCooldown,
		MaxPerHour: cfg.MaxActuationsPerHour,
	})
	if err != nil {
		slog.Error("Failed to initialize safety governor", "error", err)
		os.Exit(1)
	}

	// Out-of-band administrative reset, deliberately not reachable from any
	// connection control path.
	if *resetEmergencyStop {
		if err := governor.ResetEmergencyStop(context.Background()); err != nil {
			slog.Error("Failed to reset emergency stop", "error", err)
			os.Exit(1)
		}
	}

	checker, err := factcheck.New(context.Background(), factcheck.Options{
		Provider:          cfg.FactCheckProvider,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		PerplexityAPIKey:  cfg.PerplexityAPIKey,
		Model:             cfg.FactCheckModel,
		CacheTTL:          cfg.FactCheckCacheTTL,
		RequestsPerSecond: cfg.FactCheckQPS,
	})
	if err != nil {
		slog.Error("Failed to initialize fact checker", "error", err)
		os.Exit(1)
	}
	slog.Info("Fact checker initialized", "provider", cfg.FactCheckProvider)

	actuator, err := actuate.NewPavlok(cfg.PavlokAPIToken, cfg.ActuationTimeout)
	if err != nil {
		slog.Error("Failed to initialize actuation client", "error", err)
		os.Exit(1)
	}

	stt, err := transcribe.NewDeepgram(cfg.DeepgramAPIKey)
	if err != nil {
		slog.Error("Failed to initialize transcription client", "error", err)
		os.Exit(1)
	}

	var speaker *transcribe.Speaker
	if cfg.SpeakVerdicts {
		speaker, err = transcribe.NewSpeaker(cfg.DeepgramAPIKey)
		if err != nil {
			slog.Error("Failed to initialize speech renderer", "error", err)
			os.Exit(1)
		}
	}

	// Initialize handlers.
	orchCfg := monitor.Config{
		BaseIntensity:      cfg.BaseIntensity,
		MinClientIntensity: cfg.MinClientIntensity,
		MaxClientIntensity: cfg.MaxClientIntensity,
		FactCheckTimeout:   cfg.FactCheckTimeout,
		ActuationTimeout:   cfg.ActuationTimeout,
		SpeakVerdicts:      cfg.SpeakVerdicts,
	}
	wsHandler := monitor.NewWebSocketHandler(ledger, governor, checker, actuator,
		stt, speaker, orchCfg, cfg.FrontendURL, cfg.IsDevelopment())
	historyHandler := api.NewHistoryHandler(ledger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	historyHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/monitor", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

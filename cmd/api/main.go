package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/domuslabs/domus/internal/advisor"
	"github.com/domuslabs/domus/internal/analyzer"
	"github.com/domuslabs/domus/internal/api/handlers"
	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/bank"
	"github.com/domuslabs/domus/internal/config"
	"github.com/domuslabs/domus/internal/jobs"
	"github.com/domuslabs/domus/internal/jobs/inmemory"
	"github.com/domuslabs/domus/internal/logger"
	"github.com/domuslabs/domus/internal/store"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.APIKey == "" {
		log.Warn().Msg("API_SECRET_KEY not set - all requests will be accepted")
	}
	if cfg.SimulationMode {
		log.Warn().Msg("Aggregator credentials not set - running in simulation mode")
	}

	ctx := context.Background()

	// Storage
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer db.Close()

	// Bank data sources
	client := bank.NewClient(cfg.BankHost(), cfg.BankClientID, cfg.BankSecret, log)
	sim := bank.NewSimulator(50)
	bankResolver := handlers.NewBank(db, client, sim, cfg.SimulationMode)

	// AI advisor
	gen := advisor.Disabled()
	if cfg.GeminiAPIKey != "" {
		gemini, err := advisor.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		gen = gemini
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set - AI features disabled")
	}
	adv := advisor.New(gen, log)

	// Background sweep infrastructure
	sweeper := analyzer.New(db, log)
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)
	defer jobQueue.Close()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		sweepJob, ok := job.(*jobs.SweepJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		txs, err := bankResolver.Transactions(ctx, sweepJob.UserID, sweepJob.PeriodDays)
		if err != nil {
			return fmt.Errorf("fetch transactions for sweep: %w", err)
		}

		result, err := sweeper.Sweep(ctx, sweepJob.UserID, txs)
		if err != nil {
			return err
		}

		log.Info().
			Str("job_id", sweepJob.JobID).
			Str("user_id", sweepJob.UserID).
			Int("budget_alerts", result.BudgetAlerts).
			Int("stat_alerts", result.StatAlerts).
			Msg("Sweep job completed")
		return nil
	}

	go func() {
		log.Info().Msg("Starting sweep worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Sweep worker stopped with error")
		}
	}()

	// Handlers
	linkHandler := handlers.NewLinkHandler(db, client, cfg.SimulationMode, log)
	insightsHandler := handlers.NewInsightsHandler(bankResolver, db, adv, sim, log)
	budgetsHandler := handlers.NewBudgetsHandler(bankResolver, db, adv, log)
	alertsHandler := handlers.NewAlertsHandler(db, jobQueue, jobStore, log)

	mux := http.NewServeMux()

	post := func(h http.HandlerFunc) http.HandlerFunc {
		return methodOnly(http.MethodPost, h)
	}
	get := func(h http.HandlerFunc) http.HandlerFunc {
		return methodOnly(http.MethodGet, h)
	}

	// Linking
	mux.HandleFunc("/create_link_token", post(linkHandler.CreateLinkToken))
	mux.HandleFunc("/exchange_token", post(linkHandler.ExchangeToken))
	mux.HandleFunc("/sandbox/init", post(linkHandler.SandboxInit))
	mux.HandleFunc("/reset", post(linkHandler.Reset))

	// Data and insights
	mux.HandleFunc("/accounts", get(insightsHandler.Accounts))
	mux.HandleFunc("/transactions", get(insightsHandler.Transactions))
	mux.HandleFunc("/report", get(insightsHandler.Report))
	mux.HandleFunc("/alert", get(insightsHandler.Alert))
	mux.HandleFunc("/recurring", get(insightsHandler.Recurring))
	mux.HandleFunc("/anomalies", get(insightsHandler.Anomalies))
	mux.HandleFunc("/chat", post(insightsHandler.Chat))
	mux.HandleFunc("/history", get(insightsHandler.History))
	mux.HandleFunc("/simulate", post(insightsHandler.Simulate))

	// Budgets
	mux.HandleFunc("/budgets", get(budgetsHandler.List))
	mux.HandleFunc("/budgets/set", post(budgetsHandler.Set))
	mux.HandleFunc("/budgets/auto", post(budgetsHandler.Auto))

	// Alerts
	mux.HandleFunc("/alerts", get(alertsHandler.List))
	mux.HandleFunc("/alerts/sweep", post(alertsHandler.Sweep))
	mux.HandleFunc("/alerts/sweep/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/alerts/sweep/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		alertsHandler.SweepStatus(w, r, jobID)
	})

	// Service info and health
	geminiStatus := "disabled"
	if cfg.GeminiAPIKey != "" {
		geminiStatus = "ok"
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"app":             "Domus",
			"simulation_mode": cfg.SimulationMode,
			"endpoints": []string{
				"POST /create_link_token", "POST /exchange_token", "POST /sandbox/init", "GET /accounts",
				"GET /transactions", "GET /report", "GET /alert", "GET /recurring",
				"GET /anomalies", "POST /budgets/auto", "POST /budgets/set",
				"GET /budgets", "POST /chat", "GET /history", "GET /alerts",
				"POST /alerts/sweep", "POST /simulate", "POST /reset", "GET /health",
			},
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, dbStatus, health := http.StatusOK, "ok", "ok"
		if err := db.Ping(r.Context()); err != nil {
			status, dbStatus, health = http.StatusServiceUnavailable, "error", "degraded"
		}
		middleware.WriteJSON(w, status, map[string]any{
			"status":          health,
			"db":              dbStatus,
			"simulation_mode": cfg.SimulationMode,
			"gemini":          geminiStatus,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(cfg.AllowedOrigins)(
					middleware.Auth(cfg.APIKey)(
						middleware.BodyLimit(mux),
					),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Bool("simulation", cfg.SimulationMode).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cancelWorker()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shut down")
	}

	log.Info().Msg("Server stopped")
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// Package main is the entry point for the support console daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-console/internal/bus"
	"github.com/capitalize-ai/support-console/internal/config"
	"github.com/capitalize-ai/support-console/internal/engine"
	"github.com/capitalize-ai/support-console/internal/handler"
	"github.com/capitalize-ai/support-console/internal/middleware"
	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/internal/push"
	"github.com/capitalize-ai/support-console/internal/sla"
	"github.com/capitalize-ai/support-console/internal/store"
	"github.com/capitalize-ai/support-console/internal/upstream"
	"github.com/capitalize-ai/support-console/pkg/logger"
	"github.com/capitalize-ai/support-console/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	sessionID := uuid.NewString()
	log = log.WithSession(sessionID, cfg.OperatorID)
	log.Info("starting support console")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-console", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Connect the session bus
	sessionBus, err := bus.Connect(bus.Config{URL: cfg.NATSURL, Token: cfg.NATSToken}, sessionID, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer sessionBus.Close()

	// Upstream REST client
	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamToken, nil)

	// Engine
	operator := model.Agent{ID: cfg.OperatorID, Name: cfg.OperatorName}
	eng := engine.New(engine.Options{
		Store:         store.New(),
		Upstream:      upstreamClient,
		Bus:           sessionBus,
		Operator:      operator,
		Logger:        log,
		PollInterval:  cfg.PollInterval,
		DeleteTimeout: cfg.DeleteTimeout,
		Budgets: sla.Budgets{
			FirstResponse: cfg.FirstResponseBudget,
			Resolution:    cfg.ResolutionBudget,
		},
	})

	// Push channel driver feeding the engine
	driver := push.NewDriver(cfg.StreamURL, cfg.UpstreamToken, eng.HandlePushEvent, log)
	go driver.Run(ctx)
	eng.SetPush(driver)

	// Peer removals converge through the same removal path
	removedSub, err := sessionBus.SubscribeRemoved(eng.HandleRemoteRemoval)
	if err != nil {
		log.Error("failed to subscribe to session bus", zap.Error(err))
		os.Exit(1)
	}
	defer removedSub.Unsubscribe()

	// Snapshot poll loop
	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Error("engine stopped", zap.Error(err))
		}
	}()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(sessionBus)
	conversationHandler := handler.NewConversationHandler(eng, log)
	statsHandler := handler.NewStatsHandler(upstreamClient, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/queue", conversationHandler.Queue)
		r.Get("/stats", statsHandler.Get)

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", conversationHandler.Get)
			r.Delete("/", conversationHandler.Delete)
			r.Post("/select", conversationHandler.Select)
			r.Post("/messages", conversationHandler.SendMessage)
			r.Put("/assignee", conversationHandler.Assign)
			r.Put("/status", conversationHandler.UpdateStatus)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pixelmint/api"
	"pixelmint/config"
	"pixelmint/database"
	"pixelmint/events"
	"pixelmint/fx"
	"pixelmint/models"
	"pixelmint/provider"
	"pixelmint/realtime"
	"pixelmint/repository"
	"pixelmint/service"
	"pixelmint/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()

	log.WithField("environment", cfg.Environment).Info("Starting pixelmint core")

	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	providers := provider.NewRegistry()
	providers.Register(string(models.GenerationKindImage),
		provider.NewFluxClient(cfg.FluxAPIURL, cfg.FluxAPIKey),
		provider.NewTurboClient(cfg.TurboAPIURL, cfg.TurboAPIKey),
	)
	providers.Register(string(models.GenerationKindVideo),
		provider.NewKlingClient(cfg.KlingAPIURL, cfg.KlingAPIKey),
	)

	rates := fx.NewService(cfg.FxAPIURL, cfg.TokensPerUSD)

	ledgerService := service.NewLedgerService(uowFactory, cfg.SignupBonus)
	rewardService := service.NewRewardService(uowFactory)
	generationService := service.NewGenerationService(uowFactory, providers, service.GenerationConfig{
		ImageCost:    cfg.ImageCost,
		VideoCost:    cfg.VideoCost,
		PollAttempts: cfg.PollAttempts,
		PollDelay:    cfg.PollDelay,
	})
	paymentService := service.NewPaymentService(uowFactory, rates)

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry)
	dispatcher.SubscribeTo(eventBus)

	poller := service.NewJobPoller(uowFactory, providers, service.PollerConfig{
		Interval:    cfg.PollInterval,
		SubmitGrace: cfg.SubmitGrace,
		MaxJobAge:   cfg.MaxJobAge,
	})
	stopPoller := poller.Start(ctx)
	defer stopPoller()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	api.NewHandler(ledgerService, rewardService, generationService, paymentService, cfg.DailyRewardAmount).Register(router)
	router.Handle("/webhooks/payments", webhook.NewHandler(paymentService, cfg.WebhookSecret, cfg.IsProduction()))
	router.Handle("/realtime", realtime.NewHandler(registry))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("HTTP listener started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown failed")
	}

	return nil
}

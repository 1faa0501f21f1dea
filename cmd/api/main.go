package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/loopwear/api/internal/analytics"
	"github.com/loopwear/api/internal/handlers"
	"github.com/loopwear/api/internal/payments"
	"github.com/loopwear/api/internal/platform/config"
	pfirestore "github.com/loopwear/api/internal/platform/firestore"
	"github.com/loopwear/api/internal/platform/idempotency"
	"github.com/loopwear/api/internal/platform/observability"
	"github.com/loopwear/api/internal/platform/secrets"
	firestoreRepo "github.com/loopwear/api/internal/repositories/firestore"
	"github.com/loopwear/api/internal/services"
	"github.com/loopwear/api/internal/webhooks"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	settingsRepo, err := firestoreRepo.NewShopSettingsRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise shop settings repository", zap.Error(err))
	}
	usageRepo, err := firestoreRepo.NewSubscriptionUsageRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise subscription usage repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	tracker, trackerCleanup, err := newOrderTracker(ctx, logger, cfg.Analytics)
	if err != nil {
		logger.Fatal("failed to initialise analytics tracker", zap.Error(err))
	}
	defer trackerCleanup()

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: eventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       orderRepo,
		ShopSettings: settingsRepo,
		Usage:        usageRepo,
		Analytics:    tracker,
		Clock:        time.Now,
		Logger:       eventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}
	statusService, err := services.NewStatusService(services.StatusServiceDeps{
		Orders: orderRepo,
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("status")),
	})
	if err != nil {
		logger.Fatal("failed to initialise status service", zap.Error(err))
	}
	refundService, err := services.NewRefundService(services.RefundServiceDeps{
		Orders:   orderRepo,
		Provider: stripeProvider,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("refunds")),
	})
	if err != nil {
		logger.Fatal("failed to initialise refund service", zap.Error(err))
	}
	riskService, err := services.NewRiskService(services.RiskServiceDeps{
		Orders: orderRepo,
		Logger: eventLogger(logger.Named("risk")),
	})
	if err != nil {
		logger.Fatal("failed to initialise risk service", zap.Error(err))
	}
	subscriptionService, err := services.NewSubscriptionService(services.SubscriptionServiceDeps{
		Users:  userRepo,
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("subscriptions")),
	})
	if err != nil {
		logger.Fatal("failed to initialise subscription service", zap.Error(err))
	}

	eventHandlers, err := webhooks.NewHandlers(webhooks.HandlersDeps{
		Orders:        orderService,
		Refunds:       refundService,
		Risk:          riskService,
		Subscriptions: subscriptionService,
		Settings:      settingsRepo,
		Provider:      stripeProvider,
		Logger:        eventLogger(logger.Named("webhooks")),
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook handlers", zap.Error(err))
	}
	dispatcher := webhooks.NewDispatcher(eventHandlers)

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider, "")
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}

	webhookHandlers, err := handlers.NewWebhookHandlers(handlers.WebhookHandlersDeps{
		Dispatcher:    dispatcher,
		Store:         idempotencyStore,
		SigningSecret: cfg.Stripe.WebhookSecret,
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook endpoint", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(orderService, statusService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(buildVersion()),
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		}),
	)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("loopwear api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// eventLogger adapts a zap logger to the event/fields callback the services accept.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if projectID := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")); projectID != "" {
		opts = append(opts, secrets.WithProject(projectID))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// newOrderTracker wires the Pub/Sub analytics topic; an unset topic id
// disables publishing.
func newOrderTracker(ctx context.Context, logger *zap.Logger, cfg config.AnalyticsConfig) (analytics.Tracker, func(), error) {
	if strings.TrimSpace(cfg.TopicID) == "" {
		return analytics.NopTracker{}, func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	topic := client.Topic(cfg.TopicID)
	tracker, err := analytics.NewPubSubTracker(topic, logger.Named("analytics"))
	if err != nil {
		topic.Stop()
		_ = client.Close()
		return nil, nil, err
	}

	cleanup := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return tracker, cleanup, nil
}

func buildVersion() string {
	if version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION")); version != "" {
		return version
	}
	return "dev"
}

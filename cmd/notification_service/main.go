package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcadapter "github.com/aradsms/notification_service/internal/notification_service/adapters/grpc"
	"github.com/aradsms/notification_service/internal/notification_service/app"
	"github.com/aradsms/notification_service/internal/notification_service/middleware"
	"github.com/aradsms/notification_service/internal/notification_service/provider"
	"github.com/aradsms/notification_service/internal/notification_service/throttle"
	httptransport "github.com/aradsms/notification_service/internal/notification_service/transport/http"
	"github.com/aradsms/notification_service/internal/platform/config"
	"github.com/aradsms/notification_service/internal/platform/logger"
	"github.com/aradsms/notification_service/internal/platform/messagebroker"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const serviceName = "notification_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Notification service starting...", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort, "store", cfg.StoreDriver, "provider", cfg.ProviderName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize message log store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	// NATS is optional. publisher stays a nil interface when it is disabled.
	var natsClient *messagebroker.NatsClient
	var publisher messagebroker.Publisher
	if cfg.NATSUrl != "" {
		natsClient, err = messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = natsClient
		appLogger.Info("Successfully connected to NATS")
	} else {
		appLogger.Warn("NATS_URL not set, async alerts and status events are disabled")
	}

	smsProvider := newProvider(cfg, appLogger)
	if !smsProvider.IsConfigured() {
		appLogger.Warn("SMS provider is not configured, sends will fail", "provider", smsProvider.GetName())
	}

	dispatcher := app.NewDispatcher(st.messages, smsProvider, app.DispatcherConfig{
		ProviderTimeout:   cfg.ProviderTimeout,
		StatusCallbackURL: cfg.StatusCallbackURL,
		MaxRPS:            cfg.ProviderMaxRPS,
	}, appLogger)
	bulkSender := app.NewBulkSender(dispatcher, cfg.BulkPacingInterval, appLogger)
	reconciler := app.NewReconciler(st.messages, st.events, publisher, appLogger)
	challenges := app.NewChallengeService(dispatcher, app.ChallengeConfig{
		TTL:         cfg.ChallengeTTL,
		CodeLength:  cfg.ChallengeCodeLength,
		MaxAttempts: cfg.ChallengeMaxAttempts,
	}, appLogger)
	challengeGuard := throttle.New(cfg.ThrottleLimit, cfg.ThrottleWindow)
	alertGuard := throttle.New(cfg.ThrottleLimit, cfg.ThrottleWindow)
	validate := validator.New()

	// gRPC health
	health := grpcadapter.NewHealthService(appLogger)
	health.AddProbe("store", st.ping)
	if natsClient != nil {
		health.AddProbe("nats", natsClient.Ping)
	}
	health.Refresh(ctx)

	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	reflection.Register(grpcServer)

	housekeeper := app.NewHousekeeper(appLogger)
	if err := housekeeper.AddJob("throttle_sweep", cfg.ThrottleSweepSchedule, func(context.Context) {
		challengeGuard.Sweep()
		alertGuard.Sweep()
	}); err != nil {
		appLogger.Error("Failed to schedule throttle sweep", "error", err)
		os.Exit(1)
	}
	if err := housekeeper.AddJob("health_probe", cfg.HealthProbeSchedule, func(jobCtx context.Context) {
		health.Refresh(jobCtx)
	}); err != nil {
		appLogger.Error("Failed to schedule health probe", "error", err)
		os.Exit(1)
	}

	var consumer *app.AlertConsumer
	if natsClient != nil {
		consumer = app.NewAlertConsumer(natsClient, publisher, bulkSender, cfg.AlertSubject, cfg.AlertResultSubject, cfg.AlertQueueGroup, appLogger)
		if err := consumer.Start(ctx); err != nil {
			appLogger.Error("Failed to start alert consumer", "error", err)
			os.Exit(1)
		}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httptransport.PrometheusMetricsMiddleware)

	// Synchronous alerts run to the end of the recipient list, so only the
	// other route groups get a request timeout.
	requestTimeout := chimiddleware.Timeout(60 * time.Second)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if failing := health.Refresh(r.Context()); len(failing) > 0 {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status, "service": serviceName})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Provider callbacks authenticate by signature, not operator JWT.
	webhookHandler := httptransport.NewWebhookHandler(reconciler, cfg.WebhookMaxBodyBytes, appLogger)
	r.Group(func(wr chi.Router) {
		wr.Use(requestTimeout)
		if cfg.WebhookSigningSecret != "" {
			wr.Use(middleware.WebhookSignatureMiddleware(cfg.WebhookSigningSecret, cfg.WebhookMaxBodyBytes, appLogger))
		} else {
			appLogger.Warn("WEBHOOK_SIGNING_SECRET not set, webhook callbacks are unauthenticated")
		}
		webhookHandler.RegisterRoutes(wr)
	})

	alertHandler := httptransport.NewAlertHandler(bulkSender, publisher, cfg.AlertSubject, validate, appLogger)
	messageHandler := httptransport.NewMessageHandler(dispatcher, st.messages, validate, appLogger)
	if cfg.JWTAccessSecret == "" {
		appLogger.Warn("JWT_ACCESS_SECRET not set, operator routes are unauthenticated")
	}
	r.Group(func(or chi.Router) {
		if cfg.JWTAccessSecret != "" {
			or.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		}
		or.Group(func(ar chi.Router) {
			ar.Use(middleware.ThrottleMiddleware(alertGuard, middleware.OperatorOrClientIP, appLogger))
			alertHandler.RegisterRoutes(ar)
		})
		or.Group(func(mr chi.Router) {
			mr.Use(requestTimeout)
			messageHandler.RegisterRoutes(mr)
		})
	})

	challengeHandler := httptransport.NewChallengeHandler(challenges, validate, appLogger)
	r.Group(func(cr chi.Router) {
		cr.Use(requestTimeout)
		cr.Use(middleware.ThrottleMiddleware(challengeGuard, middleware.ClientIP, appLogger))
		challengeHandler.RegisterRoutes(cr)
	})

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: r}
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		appLogger.Error("Failed to listen for gRPC", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}

	housekeeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("HTTP server listening on port %d", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("gRPC server listening on port %d", cfg.GRPCPort))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down notification service...")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if consumer != nil {
			consumer.Stop()
		}
		if err := housekeeper.Stop(shutdownCtx); err != nil {
			appLogger.Warn("Housekeeper did not stop in time", "error", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Notification service stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Notification service stopped gracefully")
}

func newProvider(cfg *config.Config, logger *slog.Logger) provider.SMSSenderProvider {
	switch cfg.ProviderName {
	case "twilio":
		return provider.NewTwilioSMSProvider(logger, provider.TwilioConfig{
			AccountSID:        cfg.TwilioAccountSID,
			AuthToken:         cfg.TwilioAuthToken,
			SenderAddress:     cfg.SMSSenderAddress,
			BaseURL:           cfg.TwilioBaseURL,
			StatusCallbackURL: cfg.StatusCallbackURL,
		}, &http.Client{Timeout: cfg.ProviderTimeout})
	default:
		p := provider.NewMockSMSProvider(logger, false, 0)
		if cfg.SMSSenderAddress != "" {
			p.Sender = cfg.SMSSenderAddress
		}
		return p
	}
}

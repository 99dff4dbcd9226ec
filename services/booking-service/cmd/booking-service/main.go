package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/proofline/booking/libs/config"
	"github.com/proofline/booking/libs/grpcx"
	"github.com/proofline/booking/libs/httpx"
	otelx "github.com/proofline/booking/libs/otel"
	"github.com/proofline/booking/libs/runtime"
	"github.com/proofline/booking/services/booking-service/internal/availability"
	"github.com/proofline/booking/services/booking-service/internal/booking"
	"github.com/proofline/booking/services/booking-service/internal/handlers"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Load("booking", ".", "/etc/booking"); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var ready []runtime.ReadyCheck
	deps, err := setupInfra(ctx, logger)
	if err != nil {
		logger.Error("infrastructure setup failed", "err", err)
		panic(err)
	}
	defer deps.Close()
	ready = append(ready, deps.readyChecks...)

	public := []func(http.Handler) http.Handler{
		httpx.WithCORS(httpx.WidgetCORSPolicy(config.List("WIDGET_ORIGINS"))),
		deps.rateLimit,
	}

	routerCfg := handlers.RouterConfig{PublicMiddleware: public, Logger: logger}
	store, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store setup failed", "err", err)
		panic(err)
	}
	if store == nil {
		loc, err := time.LoadLocation(config.String("DEMO_TIMEZONE", "UTC"))
		if err != nil {
			panic(err)
		}
		logger.Warn("no store configured; serving demo availability")
		demo := booking.NewDemo(availability.SystemClock{}, loc, config.Duration("DEMO_DELAY", 800*time.Millisecond))
		routerCfg.Public = handlers.NewPublicHandler(demo, logger)
	} else {
		defer store.Close()
		ready = append(ready, runtime.ReadyCheck{Name: "db", Check: store.Ping})
		if store.publisher != nil {
			go store.publisher.Run(ctx)
		}

		svc := booking.NewService(store, availability.SystemClock{}, newProvisioner(logger), deps.dispatcher, logger, booking.Config{
			ProvisionTimeout: config.Duration("MEETING_PROVISION_TIMEOUT", booking.DefaultProvisionTimeout),
			IdempotencyTTL:   config.Duration("IDEMPOTENCY_TTL", booking.DefaultIdempotencyTTL),
		})
		routerCfg.Public = handlers.NewPublicHandler(svc, logger)
		if secret := config.String("ADMIN_JWT_SECRET", ""); secret != "" {
			routerCfg.Admin = handlers.NewAdminHandler(svc, secret, logger)
		} else {
			logger.Warn("ADMIN_JWT_SECRET not set; admin API disabled")
		}
	}
	routerCfg.ReadyChecks = ready

	var httpHandler http.Handler = handlers.NewRouter(routerCfg)
	httpHandler = httpx.Chain(httpHandler,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var grpcSrv *grpcx.Server
	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			panic(err)
		}
		grpcSrv = grpcx.NewServer()
		grpcSrv.SetServing(service, true)
		go grpcSrv.Serve(lis, logger)
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

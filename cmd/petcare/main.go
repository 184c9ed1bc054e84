// Package main запускает HTTP-сервер сервиса записи на услуги и заказов зоомагазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/petcare-system/internal/config"
	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/handler"
	"github.com/mmeshcher/petcare-system/internal/middleware"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/paymentgw"
	"github.com/mmeshcher/petcare-system/internal/repository"
	"github.com/mmeshcher/petcare-system/internal/service"
)

// store объединяет хранилище сервиса и outbox событий.
type store interface {
	service.Repository
	events.Outbox
}

func openStore(dsn string, sugar *zap.SugaredLogger) (store, error) {
	if dsn == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	if cfg.MintAdmin != "" {
		fmt.Println(authMiddleware.IssueToken(model.Actor{ID: cfg.MintAdmin, Role: model.RoleAdmin}))
		return
	}

	repo, err := openStore(cfg.DatabaseURI, sugar)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.PaymentGatewayAddress != "" {
		opts = append(opts, service.WithGateway(paymentgw.NewClient(cfg.PaymentGatewayAddress)))
	}

	svc := service.NewService(repo, service.Config{
		ShippingFee:           cfg.ShippingFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		Location:              loc,
	}, opts...)
	defer svc.Close()

	var writer events.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		kw := events.NewKafkaWriter(cfg.KafkaBrokers)
		defer kw.Close()
		writer = kw
	}
	relay := events.NewRelay(repo, writer, logger, events.RelayConfig{PollEvery: cfg.OutboxPollInterval})

	var limiter *middleware.RateLimiter
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		limiter = middleware.NewRateLimiter(middleware.NewRedisCounter(rdb), cfg.RateLimitPerMinute, time.Minute, logger, true)
		sugar.Infow("rate limiting enabled", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddress)
	}

	h := handler.NewHandler(svc, logger, authMiddleware, limiter)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           otelhttp.NewHandler(h.SetupRouter(), "petcare"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Опрос платёжного шлюза по заказам, ожидающим оплаты картой или кошельком
	g.Go(func() error {
		svc.RunPaymentSync(ctx)
		return nil
	})

	// Доставка событий из outbox в Kafka
	g.Go(func() error {
		relay.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting petcare server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

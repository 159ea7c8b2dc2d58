// Payment Service — сервис оплаты бронирований.
// Принимает callback платёжных провайдеров (Stripe, Alipay), ведёт статусы
// оплат и публикует invoice.events в Kafka через Outbox Pattern.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"example.com/travel-booking/pkg/config"
	dbpkg "example.com/travel-booking/pkg/db"
	"example.com/travel-booking/pkg/healthcheck"
	"example.com/travel-booking/pkg/jwt"
	"example.com/travel-booking/pkg/kafka"
	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/pkg/metrics"
	"example.com/travel-booking/pkg/outbox"
	"example.com/travel-booking/pkg/tracing"
	"example.com/travel-booking/services/payment/internal/dedup"
	"example.com/travel-booking/services/payment/internal/gateway"
	"example.com/travel-booking/services/payment/internal/handler"
	"example.com/travel-booking/services/payment/internal/middleware"
	"example.com/travel-booking/services/payment/internal/processor"
	"example.com/travel-booking/services/payment/internal/repository"
	"example.com/travel-booking/services/payment/internal/service"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализируем логгер
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})

	log := logger.With().Str("service", "payment-service").Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Int("port", cfg.HTTP.Port).
		Msg("Запуск Payment Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "payment-service",
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	rdb := dbpkg.ConnectRedis(cfg.Redis)
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	cancel()
	log.Info().Msg("Подключение к Redis установлено")

	// ReadinessChecker для /readyz — проверяет MySQL и Redis
	readinessCheck := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, db) },
		func(ctx context.Context) error { return healthcheck.CheckRedis(ctx, rdb) },
	)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			"payment-service",
			metrics.WithReadinessCheck(readinessCheck),
		)
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Платёжные провайдеры ===

	registry := gateway.NewRegistry()

	if cfg.Stripe.APIKey != "" {
		stripeStrategy := gateway.NewStripeStrategy(gateway.StripeConfig{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
		if err := registry.Register(stripeStrategy); err != nil {
			log.Fatal().Err(err).Msg("Ошибка регистрации Stripe")
		}
		log.Info().Msg("Провайдер Stripe зарегистрирован")
	}

	if cfg.Alipay.AppID != "" {
		alipayStrategy, err := gateway.NewAlipayStrategy(gateway.AlipayConfig{
			AppID:        cfg.Alipay.AppID,
			PrivateKey:   cfg.Alipay.PrivateKey,
			PublicCert:   cfg.Alipay.PublicCert,
			IsProduction: cfg.Alipay.IsProduction,
			NotifyURL:    cfg.Alipay.NotifyURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Alipay стратегии")
		}
		if err := registry.Register(alipayStrategy); err != nil {
			log.Fatal().Err(err).Msg("Ошибка регистрации Alipay")
		}
		log.Info().Msg("Провайдер Alipay зарегистрирован")
	}

	if len(registry.Providers()) == 0 {
		log.Warn().Msg("Ни один платёжный провайдер не настроен")
	}

	// === JWT ===

	if cfg.JWT.PublicKeyPath == "" {
		log.Fatal().Msg("JWT_PUBLIC_KEY_PATH обязателен: API платежей защищён токенами")
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		PublicKeyPath: cfg.JWT.PublicKeyPath,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации JWT")
	}
	jwtManager.SetBlacklist(jwt.NewBlacklist(rdb))

	// === Инициализация бизнес-логики ===

	requestRepo := repository.NewPaymentRequestRepository(db)
	paymentRepo := repository.NewBookingPaymentRepository(db)
	stateMachine := service.NewStateMachine(paymentRepo)
	paymentService := service.NewPaymentService(registry, requestRepo, paymentRepo, stateMachine)

	dedupStore := dedup.NewStore(rdb, dedup.Config{
		ReserveTTL: cfg.Dedup.ReserveTTL,
		ResultTTL:  cfg.Dedup.ResultTTL,
	})
	callbackProcessor := processor.NewProcessor(registry, requestRepo, stateMachine, dedupStore)

	// Контекст для graceful shutdown
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	// === Kafka: Outbox Worker ===

	var kafkaProducer *kafka.Producer
	var workersWg sync.WaitGroup

	if len(cfg.Kafka.Brokers) > 0 {
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Инициализация Kafka")

		topicCtx, topicCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := kafka.EnsureTopics(topicCtx, cfg.Kafka.Brokers, kafka.DefaultTopics()); err != nil {
			log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
		}
		topicCancel()

		kafkaProducer, err = kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
		}

		// Outbox Worker: читает invoice.created из outbox → отправляет в Kafka
		outboxRepo := outbox.NewOutboxRepository(db, repository.AggregateTypeBookingPayment)
		outboxWorker := outbox.NewOutboxWorker(outboxRepo, kafkaProducer, outbox.DefaultWorkerConfig(), repository.AggregateTypeBookingPayment)
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Паника в Payment Outbox Worker")
				}
			}()
			outboxWorker.Run(ctx)
		}()

		log.Info().Msg("Payment Outbox Worker запущен")
	} else {
		log.Warn().Msg("Kafka не настроена — публикация invoice.events отключена")
	}

	// === HTTP сервер ===

	router := handler.NewRouter(handler.RouterConfig{
		WebhookHandler: handler.NewWebhookHandler(callbackProcessor),
		PaymentHandler: handler.NewPaymentHandler(paymentService),
		AuthMW:         middleware.NewAuthMiddleware(jwtManager),
		TracingMW:      middleware.NewTracingMiddleware(),
		ReadinessCheck: handler.ReadinessChecker(readinessCheck),
		Debug:          cfg.IsDevelopment(),
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr()).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	// Останавливаем HTTP сервер — даём активным запросам завершиться
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}

	// Отменяем контекст — останавливаем Outbox Worker
	cancel()
	workersWg.Wait()

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}

	// Закрываем подключение к MySQL
	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment Service остановлен")
}

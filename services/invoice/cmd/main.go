// Invoice Service — сервис выставления счетов.
// Слушает события оплаты из Kafka (invoice.events), выставляет счета
// с генерацией PDF и добирает зависшие счета sweep-воркером.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"example.com/travel-booking/pkg/config"
	dbpkg "example.com/travel-booking/pkg/db"
	"example.com/travel-booking/pkg/healthcheck"
	"example.com/travel-booking/pkg/kafka"
	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/pkg/metrics"
	"example.com/travel-booking/pkg/tracing"
	"example.com/travel-booking/services/invoice/internal/listener"
	"example.com/travel-booking/services/invoice/internal/renderer"
	"example.com/travel-booking/services/invoice/internal/repository"
	"example.com/travel-booking/services/invoice/internal/sweep"
)

// consumerGroupID — consumer group сервиса инвойсов.
// Несколько инстансов распределяют партиции invoice.events между собой.
const consumerGroupID = "invoice-service-consumer"

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

	log := logger.With().Str("service", "invoice-service").Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Msg("Запуск Invoice Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "invoice-service",
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

	// Redis сервису не нужен: идемпотентность обеспечивает
	// уникальный индекс (booking_id, type) в MySQL
	readinessCheck := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, db) },
	)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			"invoice-service",
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

	// === Kafka ===

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal().Msg("Kafka не настроена — Invoice Service не может работать без событий оплаты")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topicCtx, topicCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := kafka.EnsureTopics(topicCtx, cfg.Kafka.Brokers, kafka.DefaultTopics()); err != nil {
		log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
	}
	topicCancel()

	consumer, err := kafka.NewConsumer(kafka.Config{Brokers: cfg.Kafka.Brokers}, kafka.TopicInvoiceEvents, consumerGroupID)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka Consumer")
	}

	// DLQ producer: сообщения, не обработанные после повторов,
	// уходят в dlq.invoice
	dlqProducer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer для DLQ")
	}
	consumer.SetDLQProducer(dlqProducer)

	// === Инициализация бизнес-логики ===

	invoiceRepo := repository.NewInvoiceRepository(db)

	pdfRenderer := renderer.NewHTTPRenderer(cfg.Invoice.RendererURL, cfg.Invoice.RendererTimeout)
	artifactStore, err := renderer.NewFileArtifactStore(cfg.Invoice.ArtifactDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации хранилища артефактов")
	}

	invoiceListener := listener.NewListener(consumer, invoiceRepo, pdfRenderer, artifactStore)

	// === Воркеры ===

	var workersWg sync.WaitGroup

	// Обработчик событий оплаты
	workersWg.Add(1)
	go func() {
		defer workersWg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Паника в обработчике событий оплаты")
			}
		}()
		if err := invoiceListener.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Обработчик событий оплаты завершился с ошибкой")
		}
	}()

	// Sweep-воркер: добирает счета, зависшие в PENDING_PDF
	sweepWorker := sweep.NewWorker(invoiceRepo, invoiceListener, sweep.Config{
		Interval:  cfg.Invoice.SweepInterval,
		Grace:     cfg.Invoice.SweepGrace,
		BatchSize: cfg.Invoice.SweepBatchSize,
	})
	workersWg.Add(1)
	go func() {
		defer workersWg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Паника в sweep-воркере")
			}
		}()
		sweepWorker.Run(ctx)
	}()

	log.Info().Msg("Invoice Service запущен")

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервис...")

	// Отменяем контекст — останавливаем listener и sweep
	cancel()
	workersWg.Wait()

	if err := invoiceListener.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Consumer")
	}
	if err := dlqProducer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
	}

	// Закрываем подключение к MySQL
	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

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

	log.Info().Msg("Invoice Service остановлен")
}

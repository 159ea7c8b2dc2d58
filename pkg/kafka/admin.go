package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"example.com/travel-booking/pkg/logger"
)

// TopicSpec описывает топик, который должен существовать при старте сервиса.
type TopicSpec struct {
	Topic             string
	NumPartitions     int
	ReplicationFactor int
}

// DefaultTopics возвращает набор топиков канала событий инвойсов.
// Используется сервисами при старте для авто-создания топиков в dev/staging.
func DefaultTopics() []TopicSpec {
	return []TopicSpec{
		{Topic: TopicInvoiceEvents, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: TopicDLQ, NumPartitions: 1, ReplicationFactor: 1},
	}
}

// EnsureTopics создаёт отсутствующие топики через контроллер кластера.
// Уже существующие топики не трогает (CreateTopics идемпотентен на стороне брокера).
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec) error {
	if len(brokers) == 0 {
		return fmt.Errorf("не указаны брокеры Kafka")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("ошибка подключения к брокеру %s: %w", brokers[0], err)
	}
	defer conn.Close()

	// Создание топиков возможно только через контроллер кластера.
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("ошибка получения контроллера кластера: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("ошибка подключения к контроллеру %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		configs = append(configs, kafka.TopicConfig{
			Topic:             s.Topic,
			NumPartitions:     s.NumPartitions,
			ReplicationFactor: s.ReplicationFactor,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("ошибка создания топиков: %w", err)
	}

	for _, s := range specs {
		logger.Info().
			Str("topic", s.Topic).
			Int("partitions", s.NumPartitions).
			Msg("Топик Kafka готов")
	}

	return nil
}

// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию приложения.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	MySQL   MySQLConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	JWT     JWTConfig
	Jaeger  JaegerConfig
	Metrics MetricsConfig
	Stripe  StripeConfig
	Alipay  AlipayConfig
	Dedup   DedupConfig
	Invoice InvoiceConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"travel-booking"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig содержит настройки HTTP сервера сервиса.
type HTTPConfig struct {
	Port            int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr возвращает адрес для HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"travel_booking"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"travel-booking"`
}

// JWTConfig содержит настройки валидации JWT токенов (RS256).
// Токены выдаёт внешний сервис аутентификации, поэтому нужен лишь публичный
// ключ. Обязательность проверяет сервис с защищённым API (payment).
type JWTConfig struct {
	PublicKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`                    // Путь к публичному ключу (PEM)
	Issuer        string `env:"JWT_ISSUER" envDefault:"travel-booking"` // Ожидаемый издатель токена
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
// В K8s все сервисы могут использовать один порт (разные pods).
// Локально — каждый сервис переопределяет METRICS_PORT.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"` // Включить metrics endpoint
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`    // Порт для /metrics
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// StripeConfig содержит настройки провайдера Stripe.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY"`        // Секретный API ключ (sk_...)
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"` // Секрет подписи webhook (whsec_...)
}

// AlipayConfig содержит настройки провайдера Alipay.
type AlipayConfig struct {
	AppID        string `env:"ALIPAY_APP_ID"`
	PrivateKey   string `env:"ALIPAY_PRIVATE_KEY"`    // Приватный ключ приложения (PEM)
	PublicCert   string `env:"ALIPAY_PUBLIC_CERT"`    // Публичный сертификат Alipay для проверки подписи
	IsProduction bool   `env:"ALIPAY_PRODUCTION" envDefault:"false"`
	NotifyURL    string `env:"ALIPAY_NOTIFY_URL"`     // URL, на который Alipay шлёт callback
}

// DedupConfig содержит настройки дедупликации платёжных callback.
type DedupConfig struct {
	// ReserveTTL ограничивает время, на которое одна доставка callback
	// удерживает транзакцию в обработке.
	ReserveTTL time.Duration `env:"DEDUP_RESERVE_TTL" envDefault:"30s"`
	// ResultTTL задаёт срок хранения финального результата обработки.
	// Повторная доставка в пределах этого срока распознаётся как дубликат.
	ResultTTL time.Duration `env:"DEDUP_RESULT_TTL" envDefault:"720h"`
}

// InvoiceConfig содержит настройки сервиса инвойсов.
type InvoiceConfig struct {
	RendererURL     string        `env:"INVOICE_RENDERER_URL" envDefault:"http://localhost:8090/render"` // Внешний PDF рендерер
	RendererTimeout time.Duration `env:"INVOICE_RENDERER_TIMEOUT" envDefault:"15s"`
	ArtifactDir     string        `env:"INVOICE_ARTIFACT_DIR" envDefault:"/var/lib/invoices"` // Каталог для PDF артефактов
	SweepInterval   time.Duration `env:"INVOICE_SWEEP_INTERVAL" envDefault:"1m"`              // Период повторного рендеринга
	SweepGrace      time.Duration `env:"INVOICE_SWEEP_GRACE" envDefault:"5m"`                 // Возраст PENDING_PDF до повтора
	SweepBatchSize  int           `env:"INVOICE_SWEEP_BATCH_SIZE" envDefault:"50"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файл не найден)
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

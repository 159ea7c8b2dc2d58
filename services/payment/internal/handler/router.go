package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/travel-booking/pkg/metrics"
	"example.com/travel-booking/services/payment/internal/middleware"
)

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — конфигурация роутера Payment Service.
type Router struct {
	engine         *gin.Engine
	webhookHandler *WebhookHandler
	paymentHandler *PaymentHandler
	authMW         *middleware.AuthMiddleware
	tracingMW      *middleware.TracingMiddleware
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	WebhookHandler *WebhookHandler
	PaymentHandler *PaymentHandler
	AuthMW         *middleware.AuthMiddleware
	TracingMW      *middleware.TracingMiddleware
	ReadinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
	Debug          bool             // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// OpenTelemetry tracing — создаёт spans для Jaeger
	engine.Use(otelgin.Middleware("payment"))

	// Prometheus метрики — requests_total, request_duration_seconds
	engine.Use(metrics.GinMetricsMiddleware("payment"))

	r := &Router{
		engine:         engine,
		webhookHandler: cfg.WebhookHandler,
		paymentHandler: cfg.PaymentHandler,
		authMW:         cfg.AuthMW,
		tracingMW:      cfg.TracingMW,
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes()
	return r
}

// setupRoutes настраивает все маршруты API.
func (r *Router) setupRoutes() {
	if r.tracingMW != nil {
		r.engine.Use(r.tracingMW.Handle())
	}

	// Health endpoints (без auth)
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	// === Webhook routes (публичные, подлинность проверяет стратегия провайдера) ===
	r.engine.POST("/webhooks/:provider", r.webhookHandler.HandleWebhook)

	// === Payment routes (защищённые) ===
	v1 := r.engine.Group("/api/v1")
	payments := v1.Group("/payments")
	if r.authMW != nil {
		payments.Use(r.authMW.Handle())
	}
	{
		payments.POST("", r.paymentHandler.CreatePayment)
		payments.GET("/:bookingID", r.paymentHandler.GetStatus)
		payments.POST("/:bookingID/refund", r.paymentHandler.Refund)
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// healthCheck — проверка работоспособности сервиса (legacy).
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "payment",
	})
}

// livenessCheck — liveness probe для Kubernetes.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe для Kubernetes.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

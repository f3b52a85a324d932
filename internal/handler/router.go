package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/middleware"
	"github.com/ledgerline/ledgerlog/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Config  *config.Config
	Logging *service.LoggingService
	Errors  *service.ErrorService
	Limiter *middleware.IPRateLimiter
	Replays *middleware.IdempotencyStore
	Clock   clockwork.Clock
}

// NewRouter builds the engine. The request logger wraps the error handler, and recovery
// sits inside it so a recovered panic is reported on the way out.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(d.Logging, d.Clock),
		middleware.ErrorHandler(d.Errors),
		middleware.Recovery(),
		middleware.Authenticate(d.Config),
	)
	r.NoRoute(middleware.NotFound())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "ledgerlog"})
	})
	if d.Config.Metrics.Enabled {
		r.GET(d.Config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	logs := r.Group("/api/logs")
	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewIPRateLimiter(d.Config.Ingestion.RatePerSecond, d.Config.Ingestion.Burst, d.Clock)
	}
	replays := d.Replays
	if replays == nil {
		replays = middleware.NewIdempotencyStore(time.Duration(d.Config.Ingestion.IdempotencyTTLMinutes)*time.Minute, d.Clock)
	}
	NewFrontendHandler(d.Logging).Register(logs,
		middleware.RateLimitMiddleware(limiter),
		middleware.IdempotencyMiddleware(replays),
	)

	admin := logs.Group("", middleware.AdminMiddleware(d.Config))
	NewLogHandler(d.Logging, d.Errors).Register(admin)
	NewExportHandler(d.Logging).Register(admin)
	return r
}

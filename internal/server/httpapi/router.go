package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/transport"
	"github.com/gin-gonic/gin"
)

// Pinger reports storage liveness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterOptions struct {
	Auth        AuthFlow
	Transport   transport.Transport
	Metrics     *metrics.Metrics
	Storage     Pinger
	Logger      logging.Logger
	CORSOrigins []string
}

// NewRouter assembles the gin engine with middleware and routes.
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = false

	// Recovery sits inside AccessLog and Metrics so recovered panics are
	// logged and counted as 500s.
	r.Use(RequestID(), AccessLog(opts.Logger))
	if opts.Metrics != nil {
		r.Use(Metrics(opts.Metrics))
	}
	r.Use(Recovery(opts.Logger), CORS(opts.CORSOrigins))

	h := NewHandler(opts.Auth, opts.Transport, opts.Metrics, opts.Logger)

	api := r.Group("/api/auth")
	api.POST("/signup", h.Signup)
	api.POST("/signin", h.Signin)
	api.POST("/refresh", h.Refresh)
	api.POST("/signout", h.Signout)
	api.GET("/user", h.CurrentUser)

	r.GET("/healthz", healthz(opts.Storage, opts.Logger))
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	r.NoRoute(h.NotFound)

	return r
}

func healthz(p Pinger, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			log.Warn(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

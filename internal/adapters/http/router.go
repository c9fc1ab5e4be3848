package http

import (
	"context"
	"net/http"

	"github.com/dkeye/meshcall/internal/adapters/signal"
	"github.com/dkeye/meshcall/internal/app/broker"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser or peer process a stable token,
// used only to correlate log lines of reconnecting clients.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, b *broker.Broker, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeshcallSessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(b, cfg.ReadLimit, cfg.PingPeriod)
	h := &handlers{broker: b}

	r.GET("/healthz", h.health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/peers", h.listPeers)
	api.GET("/peers/:id", h.peerStatus)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

type handlers struct {
	broker *broker.Broker
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

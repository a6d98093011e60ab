package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicegate/internal/adapters/signal"
	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/app/sfu"
	"github.com/dkeye/voicegate/internal/config"
)

// ChannelControl is the operator view of the SFU control channel.
type ChannelControl interface {
	Status() sfu.Status
	Connect(ctx context.Context) error
}

const (
	clientTokenCookie = "ct"
	clientTokenMaxAge = 7 * 24 * 3600
	operatorUser      = "operator"
)

// ClientTokenMiddleware gives every browser a stable anonymous id, which is
// also its default voice user id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(clientTokenCookie)
		if err != nil || token == "" {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, clientTokenMaxAge, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, broker *app.Broker, channel ChannelControl, metrics http.Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &voiceHandlers{broker: broker, channel: channel}
	r.GET("/healthz", h.health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")

	voice := api.Group("/voice")
	voice.GET("/status", h.status)
	voice.GET("/whoami", h.whoami)
	voice.POST("/rooms/:room/join", h.join)

	// room teardown and forced reconnects are for operators only
	if cfg.AdminToken != "" {
		ops := voice.Group("", gin.BasicAuthForRealm(gin.Accounts{operatorUser: cfg.AdminToken}, "voice operator"))
		ops.POST("/reconnect", h.reconnect)
		ops.DELETE("/rooms/:room", h.release)
	} else {
		log.Warn().Str("module", "adapters.http").Msg("admin_token not set, operator endpoints disabled")
	}

	limiter := signal.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateBurst)
	ctrl := signal.NewSignalWSController(broker, limiter, cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

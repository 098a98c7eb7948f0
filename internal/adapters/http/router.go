package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/adapters/auth"
	"github.com/dkeye/StudyRoom/internal/adapters/signal"
	"github.com/dkeye/StudyRoom/internal/app/orch"
	"github.com/dkeye/StudyRoom/internal/config"
	"github.com/dkeye/StudyRoom/internal/store"
)

const sessionName = "StudyRoomSessions"

// Services are the collaborators the HTTP surface needs beyond the coordinator.
// Store may be nil, in which case the account and focus routes are not mounted.
type Services struct {
	Tokens         *auth.JWT
	Store          *store.SQLiteStore
	ICE            webrtc.Configuration
	ConnectLimiter *auth.RateLimiter
	LoginLimiter   *auth.RateLimiter
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, svc Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	sessStore := cookie.NewStore([]byte(cfg.Secret))
	sessStore.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TokenTTL.Seconds()), HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, sessStore))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.GET("/healthz", healthz(svc.Store))
	r.GET("/metrics", gin.WrapH(o.Metrics.Handler()))

	gate := &Admission{Auth: svc.Tokens, Limiter: svc.ConnectLimiter, Metrics: o.Metrics}

	api := r.Group("/api")
	api.GET("/rooms", listRooms(o))
	api.GET("/rooms/:id", roomSnapshot(o))
	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": svc.ICE.ICEServers})
	})

	ctrl := signal.NewSignalWSController(o)
	ctrl.ReadLimit = cfg.ReadLimit
	if cfg.SendBuffer > 0 {
		ctrl.SendBuffer = cfg.SendBuffer
	}
	if cfg.PingPeriod > 0 {
		ctrl.PingPeriod = cfg.PingPeriod
	}
	api.GET("/ws", gate.Connect(), func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	if svc.Store != nil {
		accounts := &accountHandlers{store: svc.Store, tokens: svc.Tokens, ttl: cfg.Auth.TokenTTL, limiter: svc.LoginLimiter}
		authGroup := api.Group("/auth")
		authGroup.POST("/register", accounts.register)
		authGroup.POST("/login", accounts.login)
		authGroup.POST("/logout", accounts.logout)

		focus := &focusHandlers{store: svc.Store}
		focusGroup := api.Group("/focus", gate.Require())
		focusGroup.GET("/today", focus.today)
		focusGroup.GET("/month/:month", focus.month)
		focusGroup.POST("", focus.add)
	}

	return r
}

func healthz(st *store.SQLiteStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st != nil {
			if err := st.Ping(c.Request.Context()); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("store ping")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

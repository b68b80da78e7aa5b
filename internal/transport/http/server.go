package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/relay"
	"github.com/vovakirdan/wirecall/internal/rtc"
	"github.com/vovakirdan/wirecall/internal/store"
)

// NewServer builds the relay HTTP server: account endpoints, RTC credential
// endpoints, call history, and the signaling websocket.
func NewServer(hub *relay.Hub, authService *auth.Service, st store.Store, tokens rtc.TokenProvider, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	rtcHandlers := NewRTCHandlers(tokens, logger)
	callsHandlers := NewCallsHandlers(st, logger)
	wsHandler := NewWSHandler(hub, authService, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authorized := api.Group("", AuthMiddleware(authService, logger))
	authorized.POST("/rtc/token", rtcHandlers.Token)
	authorized.POST("/rtc/usermap", rtcHandlers.UserMap)
	authorized.POST("/calls/report", callsHandlers.Report)
	authorized.GET("/calls/history", callsHandlers.History)

	router.GET("/ws", wsHandler.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

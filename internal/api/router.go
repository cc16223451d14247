// Package api is the HTTP boundary: routing, middleware, payload validation
// and the mapping of service errors onto responses.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roster/internal/metrics"
	"roster/internal/registry"
	"roster/internal/roster"
)

type Options struct {
	Dev         bool // include internal error text in responses
	CORSOrigins []string
	RateLimit   float64 // requests per second per client; 0 disables
	RateBurst   int
}

func NewRouter(svcs *roster.Services, reg *registry.Registry, log *zap.Logger, opts Options) (*gin.Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := setupValidator(); err != nil {
		return nil, err
	}
	corsCfg, err := corsConfig(opts.CORSOrigins)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		recovery(log, opts.Dev),
		requestID(newIDSource()),
		requestLogger(log),
		instrument(),
		cors.New(corsCfg),
	)
	if opts.RateLimit > 0 {
		r.Use(newRateLimiter(opts.RateLimit, opts.RateBurst).handler(log))
	}
	r.Use(errorBoundary(log, opts.Dev))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/meta", MetaListHandler(reg))

	teams := v1.Group("/teams")
	{
		teams.GET("", ListHandler(svcs.Teams.Service, "teams"))
		teams.POST("", CreateTeamHandler(svcs.Teams))
		teams.GET("/:id", GetTeamHandler(svcs.Teams))
		teams.PATCH("/:id", UpdateHandler[roster.UpdateTeamInput](svcs.Teams.Service, "team"))
		teams.DELETE("/:id", DeleteHandler(svcs.Teams.Service))
		teams.GET("/:id/stats", TeamStatsHandler(svcs.Teams))
		teams.GET("/:id/salary", TeamSalaryHandler(svcs.Teams))
	}

	players := v1.Group("/players")
	{
		players.GET("", ListHandler(svcs.Players, "players"))
		players.POST("", CreateHandler[roster.CreatePlayerInput](svcs.Players, "player"))
		players.GET("/:id", GetOneHandler(svcs.Players, "player"))
		players.PATCH("/:id", UpdateHandler[roster.UpdatePlayerInput](svcs.Players, "player"))
		players.DELETE("/:id", DeleteHandler(svcs.Players))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{
			Status:    statusFail,
			Message:   "Route " + c.Request.URL.Path + " not found",
			Timestamp: time.Now().UTC(),
		})
	})
	return r, nil
}

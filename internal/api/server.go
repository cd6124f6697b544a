// Package api is the operator-facing HTTP surface: health, link status,
// journaled orders, positions and balance.
package api

import (
	"net/http"
	"time"

	"ig-gateway/internal/gateway"
	"ig-gateway/internal/monitor"
	"ig-gateway/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the gateway facade.
type Server struct {
	Router          *gin.Engine
	Gateway         *gateway.Gateway
	DB              *db.Database
	Metrics         *monitor.Metrics
	JWTSecret       string
	OpsPasswordHash string
	Meta            SystemMeta
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	Demo      bool
	AccountID string
	Version   string
}

// NewServer builds the router with the full middleware stack.
func NewServer(gw *gateway.Gateway, database *db.Database, metrics *monitor.Metrics, meta SystemMeta, jwtSecret, opsPasswordHash string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:          r,
		Gateway:         gw,
		DB:              database,
		Metrics:         metrics,
		JWTSecret:       jwtSecret,
		OpsPasswordHash: opsPasswordHash,
		Meta:            meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/metrics", s.getMetrics)
			protected.GET("/orders", s.getOrders)
			protected.GET("/orders/:id/fills", s.getOrderFills)
			protected.GET("/positions", s.getPositions)
			protected.GET("/balance", s.getBalance)
			protected.GET("/markets", s.searchMarkets)
			protected.POST("/mappings", s.addMapping)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"link":   s.Gateway.State().String(),
	})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

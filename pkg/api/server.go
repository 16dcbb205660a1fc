package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/service"
)

type Server struct {
	config *config.Config
	auth   *service.AuthService
	carts  *service.CartService
	orders *service.OrderService
	logger *zap.Logger
	router *gin.Engine
}

func NewServer(cfg *config.Config, auth *service.AuthService, carts *service.CartService, orders *service.OrderService, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		config: cfg,
		auth:   auth,
		carts:  carts,
		orders: orders,
		logger: logger,
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	v1.Use(s.identityMiddleware())
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", s.register)
			auth.POST("/login", s.login)
			auth.POST("/logout", s.logout)
		}

		cart := v1.Group("/cart")
		cart.Use(s.guestMiddleware())
		{
			cart.GET("", s.getCart)
			cart.POST("/items", s.addCartItem)
			cart.PUT("/items", s.updateCartItem)
			cart.POST("/associate", s.requireAuth(), s.associateCart)
		}

		orders := v1.Group("/orders")
		orders.Use(s.guestMiddleware())
		{
			orders.POST("", s.placeOrder)
			orders.GET("", s.requireAuth(), s.listOrders)
			orders.GET("/:id", s.getOrder)
			orders.PUT("/:id/status", s.requireAdmin(), s.updateOrderStatus)
			orders.GET("/:id/audit", s.requireAdmin(), s.orderAudit)
		}
	}
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("HTTP server starting", zap.String("address", addr))
	return s.router.Run(addr)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

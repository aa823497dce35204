package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/esiclivre/esic-api/internal/api/handlers"
	"github.com/esiclivre/esic-api/internal/api/middleware"
	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/services"
)

// Server represents the HTTP server
type Server struct {
	Router   *gin.Engine
	config   *config.Config
	logger   *logrus.Logger
	services *services.Container
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, logger *logrus.Logger, services *services.Container) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		services: services,
	}

	server.setupRouter()
	return server
}

// setupRouter configures the router with all routes and middleware
func (s *Server) setupRouter() {
	if s.config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.Router = gin.New()

	// Global middleware
	s.Router.Use(middleware.RequestID())
	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))
	s.Router.Use(middleware.CORS(s.config.Security.CORS))
	s.Router.Use(middleware.Security())

	rateLimiter := middleware.NewRateLimiter(s.config.Security.RateLimit)
	s.Router.Use(rateLimiter.Middleware())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(s.services, s.logger)
	s.Router.GET("/health", healthHandler.GetHealth)
	s.Router.GET("/health/ready", healthHandler.GetReadiness)
	s.Router.GET("/health/live", healthHandler.GetLiveness)

	// Swagger documentation
	if s.config.Server.Environment != "production" {
		s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		s.Router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})
	}

	// API v1 routes
	v1 := s.Router.Group("/api/v1")
	{
		pedidoHandler := handlers.NewPedidoHandler(s.services.Store, s.config.Portal, s.logger)
		pedidos := v1.Group("/pedidos")
		{
			pedidos.POST("", pedidoHandler.CreatePedido)
			pedidos.GET("/protocolo/:protocolo", pedidoHandler.GetByProtocol)
			pedidos.GET("/id/:id", pedidoHandler.GetByID)
		}
		v1.GET("/prepedidos", pedidoHandler.ListPrePedidos)

		catalogHandler := handlers.NewCatalogHandler(s.services.Store, s.services.CacheService, s.logger)
		v1.GET("/orgaos", catalogHandler.ListOrgaos)
		v1.GET("/messages", catalogHandler.ListMessages)
		v1.GET("/keywords", catalogHandler.ListKeywords)
		v1.GET("/keywords/:name", catalogHandler.GetKeyword)
		v1.GET("/authors", catalogHandler.ListAuthors)
		v1.GET("/authors/:name", catalogHandler.GetAuthor)

		workerHandler := handlers.NewWorkerHandler(s.services.WorkerState, s.services.Coordinator, s.logger)
		worker := v1.Group("/worker")
		{
			worker.POST("/start", workerHandler.Start)
			worker.POST("/stop", workerHandler.Stop)
			worker.POST("/run-once", workerHandler.RunOnce)
			worker.GET("/status", workerHandler.Status)
		}
		v1.POST("/captcha/:value", workerHandler.SetCaptcha)
	}

	// 404 handler
	s.Router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Not Found",
			"message":   "The requested resource was not found",
			"timestamp": time.Now(),
			"path":      c.Request.URL.Path,
		})
	})

	// 405 handler
	s.Router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":     "Method Not Allowed",
			"message":   "The requested method is not allowed for this resource",
			"timestamp": time.Now(),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		})
	})
}

package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/archive"
	"github.com/esiclivre/esic-api/internal/browser"
	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/esic"
	"github.com/esiclivre/esic-api/internal/speech"
	"github.com/esiclivre/esic-api/internal/storage"
)

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client

	Store        *storage.Store
	CacheService CacheServiceInterface
	WorkerState  *esic.State
	Coordinator  *esic.Coordinator
}

// NewContainer creates a new service container
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	if err := container.initRedis(); err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	if err := container.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

// initRedis initializes Redis client
func (c *Container) initRedis() error {
	c.redisClient = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.Warn("Redis connection failed, running without cache")
		c.redisClient = nil
	} else {
		c.logger.Info("Redis connection established")
	}

	return nil
}

// initServices initializes all services
func (c *Container) initServices() error {
	c.CacheService = NewCacheService(c.redisClient, c.config.Redis.CacheTTL, c.logger)

	store, err := storage.Connect(c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	c.WorkerState = &esic.State{}

	transcriber := speech.NewGoogleTranscriber(c.config.Speech, c.logger)
	uploader := archive.NewIAUploader(c.config.Archive, c.logger)
	parser := esic.NewParser(c.logger)

	newSession := func() (browser.RemoteSession, error) {
		return browser.NewChromeSession(c.config.Browser, c.logger)
	}

	// Each worker run gets a fresh browser; the portal, solver, and
	// engine are rebuilt around it because they hold per-tab state.
	build := func(session browser.RemoteSession) (esic.Authenticator, esic.Ticker) {
		solver := esic.NewSolver(session, transcriber,
			c.config.Portal.BaseURL, c.config.Browser.DownloadDir,
			c.config.Worker.DownloadPoll, c.config.Worker.DownloadMaxRetries,
			c.logger)
		portal := esic.NewPortal(session, solver, c.WorkerState,
			c.config.Portal, c.config.Worker.LoginMaxAttempts, c.logger)
		engine := esic.NewEngine(c.Store, portal, parser, uploader,
			c.config.Browser.DownloadDir, c.config.Archive.ItemPrefix,
			c.config.Portal.DefaultAuthor,
			c.config.Worker.DownloadPoll, c.config.Worker.DownloadMaxRetries,
			c.logger)
		return portal, engine
	}

	c.Coordinator = esic.NewCoordinator(c.WorkerState, newSession, build,
		c.config.Worker.PollInterval, c.logger)

	return nil
}

// Close closes all service connections
func (c *Container) Close() error {
	var errs []error

	if c.Coordinator != nil && c.Coordinator.Running() {
		c.Coordinator.Stop()
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// Health checks the health of all services
func (c *Container) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if c.redisClient != nil {
		ctx := context.Background()
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			health["redis"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health["redis"] = map[string]interface{}{
				"status": "healthy",
			}
		}
	} else {
		health["redis"] = map[string]interface{}{
			"status": "disabled",
		}
	}

	if c.Store != nil {
		if err := c.Store.Ping(); err != nil {
			health["database"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health["database"] = map[string]interface{}{
				"status": "healthy",
			}
		}
	}

	if c.Coordinator != nil {
		status := "stopped"
		if c.Coordinator.Running() {
			status = "running"
		}
		health["worker"] = map[string]interface{}{
			"status": status,
		}
	}

	return health
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/esiclivre/esic-api/docs"
	"github.com/esiclivre/esic-api/internal/api"
	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/logger"
	"github.com/esiclivre/esic-api/internal/services"
)

// @title EsicLivre API
// @version 1.0
// @description A service for eSIC interaction: queues pedidos, drives the portal session, and serves the synchronized data.
// @BasePath /
func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.WithField("environment", cfg.Server.Environment).Info("Starting eSIC API")

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.WithError(err).Error("Error during service shutdown")
		}
	}()

	server := api.NewServer(cfg, log, container)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start the portal worker with the process lifetime, not a request.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.AutoStart {
		container.Coordinator.Start(workerCtx)
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// Stop the worker first so the browser session closes cleanly.
	workerCancel()
	container.Coordinator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Server stopped")
}

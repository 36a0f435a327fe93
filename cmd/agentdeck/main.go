// Package main is the entry point for the Agentdeck controller. The single
// binary runs the session manager and the WebSocket gateway together.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/internal/agent/locate"
	"github.com/agentdeck/agentdeck/internal/agent/proc"
	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	gateway "github.com/agentdeck/agentdeck/internal/gateway/websocket"
	"github.com/agentdeck/agentdeck/internal/session"
	"github.com/agentdeck/agentdeck/pkg/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadWithPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Agentdeck...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize event bus (in-memory by default, NATS if configured)
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
		natsEventBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsEventBus
		defer natsEventBus.Close()
		log.Info("Connected to NATS event bus")
	} else {
		log.Info("Using in-memory event bus")
		memoryBus := bus.NewMemoryEventBus(log)
		eventBus = memoryBus
		defer memoryBus.Close()
	}

	// 4. Session manager
	locator := locate.NewLocator(cfg.Agents, log)
	launcher := proc.NewExecLauncher(log)
	manager := session.NewManager(session.NewRegistry(), eventBus, locator, launcher, cfg.Agents, log)

	for _, status := range locator.List() {
		log.Info("agent type",
			zap.String("agent", status.ID),
			zap.Bool("available", status.Available),
			zap.String("path", status.Path))
	}

	// 5. WebSocket gateway
	dispatcher := ws.NewDispatcher()
	gateway.RegisterHealthHandler(dispatcher)
	gateway.RegisterSessionHandlers(dispatcher, manager, locator, log)

	hub := gateway.NewHub(dispatcher, cfg.Gateway.AuthToken, log)
	go hub.Run(ctx)
	gateway.RegisterSessionNotifications(ctx, eventBus, hub, log)

	if cfg.Gateway.AuthToken == "" {
		log.Warn("Gateway auth token not configured; all connections are trusted")
	}

	// 6. HTTP server
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	wsHandler := gateway.NewHandler(hub, log)
	router.GET("/ws", wsHandler.HandleConnection)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  "agentdeck",
			"sessions": len(manager.List()),
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			log.Info("Received signal", zap.String("signal", sig.String()))
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server error", zap.Error(err))
	}

	log.Info("Shutting down Agentdeck...")
	manager.Shutdown()
	log.Info("Agentdeck stopped")
}

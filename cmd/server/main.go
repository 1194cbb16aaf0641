package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/go-code-retriever/internal/bootstrap"
	"github.com/arturoeanton/go-code-retriever/internal/handler"
	"github.com/arturoeanton/go-code-retriever/internal/mcp"
	"github.com/arturoeanton/go-code-retriever/internal/middleware"
	"github.com/arturoeanton/go-code-retriever/pkg/config"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("🚀 Starting "+cfg.AppName,
		"port", cfg.Port,
		"vector_backend", cfg.VectorBackend,
		"embed_provider", cfg.EmbedProvider,
		"mcp_enabled", cfg.MCPEnabled,
	)
	if cfg.VectorBackend == "postgres" {
		slog.Info("using postgres", "dsn", cfg.DSN())
	}

	// ── Store + Services ─────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := bootstrap.New(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("failed to initialise retrieval core", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ragService := app.RAG

	// ── Fiber App ────────────────────────────────────────────────────────
	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
	})

	// Global middleware
	server.Use(recover.New())
	server.Use(fiberlogger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))
	server.Use(middleware.AccessLog())

	// ── Routes ───────────────────────────────────────────────────────────
	api := server.Group("/api/v1")

	handler.NewHealthHandler(cfg.AppName, cfg.VectorBackend, ragService.ModelName()).Register(api)
	handler.NewSessionHandler(ragService).Register(api)
	handler.NewRAGHandler(ragService).Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	var mcpServer *mcp.Server
	if cfg.MCPEnabled {
		mcpServer = mcp.NewServer(ragService, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Shutdown ─────────────────────────────────────────────────────────
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if mcpServer != nil {
			if err := mcpServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("MCP shutdown failed", "error", err)
			}
		}
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Warn("fiber shutdown failed", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}

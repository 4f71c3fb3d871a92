package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"SmartIMS/app/api"
	"SmartIMS/app/config"
	"SmartIMS/app/database"
	"SmartIMS/app/llm"
	"SmartIMS/app/mcp"
	"SmartIMS/app/services"
	"SmartIMS/app/websocket"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App holds every long-lived component of a running process
type App struct {
	Config           *config.AppConfig
	LoggerService    *services.LoggerService
	DB               *gorm.DB
	InventoryService *services.InventoryService
	QueryService     *services.QueryService
	Translator       llm.Translator
	Redis            *redis.Client
	MCPService       *services.MCPService
	StockMonitor     *services.StockMonitorService
	WSServer         *websocket.Server
	APIServer        *api.Server
}

// NewApp creates the logger for cfg. console receives the human-readable side
// of the log.
func NewApp(cfg *config.AppConfig, console io.Writer) *App {
	return &App{
		Config:        cfg,
		LoggerService: services.NewLoggerServiceWithConsole(cfg.Log, console),
	}
}

// ConnectDatabase opens the configured store and runs migrations
func (a *App) ConnectDatabase() error {
	conn, err := database.Initialize(a.Config.Database, a.LoggerService.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = conn
	return nil
}

// InitializeServices builds the domain services, the translator and the MCP
// layer. ConnectDatabase must have succeeded.
func (a *App) InitializeServices(ctx context.Context) error {
	log := a.LoggerService.Logger()

	a.InventoryService = services.NewInventoryService(a.DB, log)
	a.QueryService = services.NewQueryService(a.DB, log)

	ollama := llm.NewOllamaClient(a.Config.LLM.BaseURL, a.Config.LLM.Model, a.Config.LLM.Timeout, log)
	a.Translator = ollama

	rdb, err := llm.InitRedis(ctx, a.Config.Redis)
	switch {
	case err != nil:
		a.LoggerService.LogWarning("Translation cache disabled", err.Error())
	case rdb != nil:
		a.Redis = rdb
		a.Translator = llm.NewCachedTranslator(ollama, rdb, ollama.Model(), a.Config.Query.CacheTTL, log)
		a.LoggerService.LogInfo("Translation cache enabled", "Redis: "+a.Config.Redis.Addr)
	}

	deps := &mcp.ServiceDependencies{
		Inventory:  a.InventoryService,
		Query:      a.QueryService,
		Translator: a.Translator,
	}
	if a.WSServer != nil {
		deps.Events = a.WSServer
	}

	a.MCPService, err = services.NewMCPService(a.Config.MCP, deps, log)
	if err != nil {
		return err
	}
	if a.WSServer != nil {
		a.StockMonitor = services.NewStockMonitorService(a.InventoryService, a.WSServer, a.Config.Monitor.Interval, log)
	}
	a.LoggerService.LogInfo("MCP Service initialized", "Transport: "+a.Config.MCP.Transport)
	return nil
}

// InitializeAPI wires the REST API on top of the MCP client
func (a *App) InitializeAPI() {
	deps := api.Dependencies{
		Tools:      a.MCPService,
		Translator: a.Translator,
		Products:   a.InventoryService,
		Catalog:    a.MCPService,
		Ping: func(ctx context.Context) error {
			return database.Ping(a.DB)
		},
	}
	var stream services.StreamStatus
	if a.WSServer != nil {
		deps.Events = a.WSServer
		deps.PublishEvents = !a.MCPService.InProcess()
		deps.Stream = a.WSServer
		stream = a.WSServer
	}
	deps.Status = services.NewStatusService(stream, a.StockMonitor, a.MCPService)
	a.APIServer = api.NewServer(a.Config, deps, a.LoggerService.Logger())
}

// Shutdown stops the MCP layer and closes every connection
func (a *App) Shutdown(ctx context.Context) {
	a.LoggerService.LogInfo("Application closing")

	if a.MCPService != nil {
		a.LoggerService.LogInfo("Stopping MCP server")
		if err := a.MCPService.Stop(ctx); err != nil {
			a.LoggerService.LogWarning("MCP server stop error", err.Error())
		}
	}

	if a.Redis != nil {
		a.Redis.Close()
	}

	if err := database.Close(); err != nil {
		a.LoggerService.LogError("Error closing database", err)
	} else {
		a.LoggerService.LogInfo("Database connection closed successfully")
	}

	a.LoggerService.LogInfo("Application shutdown complete")
	a.LoggerService.Close()
}

// listen runs srv until ctx is done and then shuts it down gracefully
func listen(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasklog/app/config"
	"tasklog/app/controllers"
	"tasklog/app/events"
	"tasklog/app/routes"
	"tasklog/app/services"
	"tasklog/app/views"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task API server",
	Long: `Run the HTTP server.

Endpoints:
  GET    /tasks              list tasks, newest first
  POST   /tasks              create a task {"text", "remarks"}
  GET    /tasks/{id}         fetch a task
  PATCH  /tasks/{id}         update any of {"text", "remarks", "completed"}
  DELETE /tasks/{id}         delete a task
  GET    /                   records log page
  GET    /ws                 WebSocket stream of invalidation events
  GET    /health             health check

Example usage:
  tasklog serve
  tasklog serve --driver postgres --dsn postgres://localhost/tasks
  tasklog serve --driver neo4j --addr :9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().String("driver", "", "store driver: sqlite, postgres or neo4j (overrides store.driver)")
	serveCmd.Flags().String("dsn", "", "sqlite path or postgres connection string (overrides store.dsn)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
			cfg.Store.Driver = driver
		}
		if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
			cfg.Store.DSN = dsn
		}
	})
	if err != nil {
		return err
	}

	logger, logCloser, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("opening store", "driver", cfg.Store.Driver)
	store, err := config.OpenStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close(context.Background())

	hub := events.NewHub(logger)
	defer hub.Close()

	taskService := services.NewTaskService(store, hub, logger)
	page := views.NewRecordsPage(taskService)
	hub.OnInvalidate(func(ev events.Event) { page.Invalidate(ev.Route) })

	router := routes.NewRouter(logger,
		controllers.NewTaskController(taskService, logger),
		controllers.NewPageController(page, hub.ClientCount, logger),
		hub,
	)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

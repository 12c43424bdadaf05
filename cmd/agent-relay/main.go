// Command agent-relay serves tmux-backed agent sessions to a dashboard:
// REST for session management, WebSocket for live terminals, plus the
// status classifier fed by hooks, heartbeats and output heuristics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asheshgoplani/agent-relay/internal/api"
	"github.com/asheshgoplani/agent-relay/internal/config"
	"github.com/asheshgoplani/agent-relay/internal/gateway"
	"github.com/asheshgoplani/agent-relay/internal/launchcfg"
	"github.com/asheshgoplani/agent-relay/internal/registry"
	"github.com/asheshgoplani/agent-relay/internal/status"
	"github.com/asheshgoplani/agent-relay/internal/store"
	"github.com/asheshgoplani/agent-relay/internal/tmux"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("agent-relay: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	basePath, err := expandHome(cfg.Projects.BasePath)
	if err != nil {
		return err
	}
	dbPath, err := expandHome(cfg.Store.Path)
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	launch, err := launchcfg.Load(filepath.Dir(dbPath))
	if err != nil {
		return fmt.Errorf("load launch config: %w", err)
	}

	executor := tmux.NewLocalExecutor()
	hub := gateway.NewHub()

	tracker := status.NewTracker(st, hub, status.Options{
		HookFreshness:    cfg.Status.HookFreshness,
		HeartbeatTimeout: cfg.Status.HeartbeatTimeout,
	})
	monitor := status.NewMonitor(tracker, cfg.Status.MonitorInterval)
	poller := status.NewPoller(tracker, executor, 0)

	reg := registry.New(st, executor, tracker, registry.Options{
		SessionMaxAge:   cfg.Retention.SessionMaxAge,
		ArchivedMaxAge:  cfg.Retention.ArchivedMaxAge,
		HistoryMaxAge:   cfg.Retention.HistoryMaxAge,
		CleanupInterval: cfg.Retention.CleanupInterval,
	})

	gw := gateway.New(hub, reg, st, executor, launch, gateway.Options{
		BasePath:       basePath,
		Whitelist:      cfg.Projects.Whitelist,
		LaunchDebounce: cfg.Gateway.LaunchDebounce,
		TrustModeDelay: cfg.Gateway.TrustModeDelay,
	})

	rest := api.New(reg, st, tracker, executor, api.Options{
		BasePath:     basePath,
		Whitelist:    cfg.Projects.Whitelist,
		PreviewLines: cfg.Gateway.HistoryLines,
	})

	if cfg.Server.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())

	rest.Register(router)
	router.GET("/terminal", gw.HandleTerminal)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go monitor.Run(ctx)
	go poller.Run(ctx)
	go reg.Run(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// expandHome resolves a leading ~/ against the current user's home.
func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

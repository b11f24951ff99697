package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatbridge/internal/bridge"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/mattermost"
	"github.com/opencode-ai/chatbridge/internal/config"
	"github.com/opencode-ai/chatbridge/internal/httpapi"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge daemon: connect every configured platform and serve the operator HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := directory
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = wd
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	clients, err := buildClients(cfg)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	mgr := bridge.New(cfg, clients, st)

	hub := httpapi.NewHub()
	mgr.SetEventSink(hub.Publish)

	srv := httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr, RedactPaths: true}, mgr, hub)

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()

	go func() {
		logging.Info().Str("addr", cfg.HTTP.Addr).Msg("httpapi listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("httpapi server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logging.Info().Msg("shutting down")
		cancelRun()
		if err := <-runErr; err != nil {
			logging.Warn().Err(err).Msg("bridge manager shutdown error")
		}
	case err := <-runErr:
		if err != nil {
			logging.Error().Err(err).Msg("bridge manager exited")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("httpapi shutdown error")
	}
	if err := hub.Close(); err != nil {
		logging.Warn().Err(err).Msg("event hub shutdown error")
	}

	logging.Info().Msg("bridge stopped")
	return nil
}

// buildClients constructs one chatplatform.Client per configured platform.
// mattermost is the only adapter this binary ships; an unrecognized Kind is
// a configuration error rather than a silently dropped platform.
func buildClients(cfg *config.Config) (map[string]chatplatform.Client, error) {
	clients := make(map[string]chatplatform.Client, len(cfg.Platforms))
	for _, pc := range cfg.Platforms {
		switch pc.Kind {
		case "mattermost", "":
			clients[pc.PlatformID] = mattermost.New(pc.URL, pc.Token)
		default:
			return nil, fmt.Errorf("config: platform %q has unsupported kind %q", pc.PlatformID, pc.Kind)
		}
	}
	return clients, nil
}

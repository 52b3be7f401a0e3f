package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/llm-council/internal/api"
	"github.com/hugo-lorenzo-mato/llm-council/internal/config"
	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
	"github.com/hugo-lorenzo-mato/llm-council/internal/logging"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
	"github.com/hugo-lorenzo-mato/llm-council/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a master or worker node",
	Long: `Start the HTTP server.

A master runs deliberations and exposes /api/council. It forwards every
generation to the worker at --worker-url, or uses its local Ollama when
the URL is empty. A worker exposes /api/generate on top of its local Ollama.

Examples:
  # Worker on the inference host
  council serve --role worker --port 8001

  # Master dispatching to that worker
  council serve --role master --worker-url http://gpu-box:8001

  # Single host, no worker
  council serve --role master --worker-url ""`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("role", config.RoleWorker, "node role (master, worker)")
	serveCmd.Flags().String("host", "0.0.0.0", "host address to bind to")
	serveCmd.Flags().IntP("port", "p", 8000, "port to listen on")
	serveCmd.Flags().String("worker-url", "", "worker a master forwards generations to")
	serveCmd.Flags().StringSlice("cors-origin", nil, "allowed CORS origins")

	_ = viper.BindPFlag("server.role", serveCmd.Flags().Lookup("role"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("worker.url", serveCmd.Flags().Lookup("worker-url"))
	_ = viper.BindPFlag("server.cors_origins", serveCmd.Flags().Lookup("cors-origin"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     appVersion,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	server, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	if err := server.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildServer wires one node from the configuration.
func buildServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*api.Server, error) {
	local := council.NewLocalGateway(cfg)
	bus := events.New(100)

	opts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithRole(cfg.Server.Role),
		api.WithBackend(local),
		api.WithEventBus(bus),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithVersion(appVersion),
	}

	if err := local.Ping(ctx); err != nil {
		logger.Warn("ollama is not reachable yet", "url", local.BaseURL(), "error", err)
	}

	if cfg.IsMaster() {
		store, err := state.NewSessionStore(state.BackendMemory)
		if err != nil {
			return nil, err
		}
		orch, err := council.NewFromConfig(cfg, store, council.GatewaysFor(cfg, local),
			council.WithEventPublisher(bus),
			council.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithCouncil(store, orch))
		logger.Info("master node configured",
			"worker_url", cfg.Worker.URL,
			"chairman", cfg.Council.ChairmanModel,
			"protocol", cfg.Council.Protocol,
		)
	} else {
		opts = append(opts, api.WithGenerator(telemetry.Instrument(local, "ollama")))
		logger.Info("worker node configured", "ollama_url", local.BaseURL())
	}

	return api.NewServer(opts...), nil
}

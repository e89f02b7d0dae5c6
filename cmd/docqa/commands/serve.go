package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/orchestrator"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing document loading and question answering.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server.

Endpoints:
  POST /load/url      index a web page or remote PDF
  POST /load/file     index an uploaded PDF, image, text or Markdown file
  POST /query         answer a question from the indexed documents
  GET  /status        collection name, chunk count, metric and structure
  GET  /history       recent questions from the query log
  GET  /api/health    liveness
  GET  /api/ready     readiness of the index, embedder and chat model
  GET  /metrics       Prometheus metrics

Examples:
  docqa serve
  docqa serve --port 9090
  INDEX_BACKEND=sqlite MODEL_PROVIDER=ollama docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			// Flags beat env, which the config file may have populated.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			chatModel, providerCfg, err := buildChatModel(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			loader, err := buildLoader(st, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)

			deps := server.Deps{Loader: loader, Index: st.index}
			var rec orchestrator.Recorder
			if hs := openHistory(log); hs != nil {
				defer func() { _ = hs.Close() }()
				rec = hs
				deps.History = hs
			}

			orch, err := buildOrchestrator(st, chatModel, providerCfg.ModelName(), rec, metrics)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise orchestrator: %w", err)
			}
			deps.Answerer = orch

			srv, err := server.New(deps, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         buildPingers(st, chatModel, providerCfg.HealthCheck(), string(providerCfg.Backend)),
				RateLimit:       getEnvFloat64("SERVER_RATE_LIMIT", 0),
				RateBurst:       getEnvInt("SERVER_RATE_BURST", 0),
				Metrics:         metrics,
				MetricsGatherer: prometheus.DefaultGatherer,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting", slog.String("addr", srv.Addr()))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: SERVER_PORT)")

	return cmd
}

// buildPingers returns the readiness probes: the index when it can be
// reached over the network or disk, the embedding backend, and the chat model.
func buildPingers(st *stack, chatModel model.BaseChatModel, hc provider.HealthCheckConfig, backend string) []server.Pinger {
	var pingers []server.Pinger
	if p, ok := st.index.(interface {
		Ping(ctx context.Context) error
	}); ok {
		pingers = append(pingers, server.NewPinger("index", p))
	}
	pingers = append(pingers,
		server.NewPinger("embedder", st.engine),
		server.NewLLMPinger(chatModel, hc, backend),
	)
	return pingers
}

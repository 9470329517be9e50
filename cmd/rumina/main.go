package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rumina-ai/rumina-go/internal/server"
	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
	llmfake "github.com/rumina-ai/rumina-go/pkg/ai/llm/fake"
	"github.com/rumina-ai/rumina-go/pkg/ai/registry"
	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
	sttfake "github.com/rumina-ai/rumina-go/pkg/ai/stt/fake"
	"github.com/rumina-ai/rumina-go/pkg/ai/tts"
	ttsfake "github.com/rumina-ai/rumina-go/pkg/ai/tts/fake"
	"github.com/rumina-ai/rumina-go/pkg/telemetry"
	"github.com/rumina-ai/rumina-go/pkg/version"
	openaiplugin "github.com/rumina-ai/rumina-go/plugins/openai"
)

var rootCmd = &cobra.Command{
	Use:          "rumina",
	Short:        "Rumina - real-time voice and vision conversation server",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		models, _ := cmd.Flags().GetString("models")
		dsn, _ := cmd.Flags().GetString("db-dsn")
		historyTurns, _ := cmd.Flags().GetInt("history")
		useFakes, _ := cmd.Flags().GetBool("fake-providers")

		logger := setupLogger()
		logger.Info("starting server",
			slog.String("service", "rumina"),
			slog.String("version", version.Version),
			slog.String("addr", addr))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		reg := registry.New()
		if useFakes {
			registerFakeBundle(reg)
		} else {
			if err := openaiplugin.Register(reg, openaiplugin.Config{}, splitModels(models)...); err != nil {
				return fmt.Errorf("provider setup failed: %w", err)
			}
		}
		logger.Info("models registered", slog.Any("models", reg.Models()))

		var (
			sink   telemetry.Sink = telemetry.NopSink{}
			health server.Pinger
		)
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn != "" {
			pg, err := telemetry.NewPostgresSink(ctx, dsn)
			if err != nil {
				return fmt.Errorf("telemetry store setup failed: %w", err)
			}
			defer pg.Close()
			sink = pg
			health = pg
			logger.Info("telemetry store connected")
		} else {
			logger.Warn("no database configured, telemetry disabled")
		}

		srv := server.New(server.Config{
			Addr:            addr,
			Registry:        reg,
			Telemetry:       sink,
			Health:          health,
			MaxHistoryTurns: historyTurns,
			Logger:          logger,
		})
		return srv.Run(ctx)
	},
}

// registerFakeBundle wires the scripted providers for local development
// without API keys.
func registerFakeBundle(reg *registry.Registry) {
	_ = reg.Register("fake", &registry.Bundle{
		NewTranscriber: func() stt.Transcriber { return sttfake.NewFakeTranscriber() },
		NewGenerator: func() llm.ResponseGenerator {
			gen := llmfake.NewFakeGenerator("This is a fake response. It has two sentences.")
			gen.Fragments = []string{"This is a fake response. ", "It has two sentences."}
			return gen
		},
		NewSynthesizer: func() tts.Synthesizer { return ttsfake.NewFakeSynthesizer() },
	})
}

func splitModels(models string) []string {
	if models == "" {
		return nil
	}
	var out []string
	for _, m := range strings.Split(models, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch os.Getenv("RUMINA_LOG_LEVEL") {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if os.Getenv("RUMINA_LOG_FORMAT") == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	serveCmd.Flags().String("addr", ":8000", "listen address")
	serveCmd.Flags().String("models", "", "comma-separated generation models to register (default: gpt-4o)")
	serveCmd.Flags().String("db-dsn", "", "Postgres DSN for telemetry (default: DATABASE_URL)")
	serveCmd.Flags().Int("history", 0, "retained conversation turns per session (default 5)")
	serveCmd.Flags().Bool("fake-providers", false, "register scripted fake providers instead of OpenAI")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

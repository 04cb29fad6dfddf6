package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kernelapi/pkg/channels/web"
	"kernelapi/pkg/config"
	"kernelapi/pkg/gateway"
	"kernelapi/pkg/handler"
	"kernelapi/pkg/kernel"
	"kernelapi/pkg/llm"
	_ "kernelapi/pkg/llm/autoload" // registers the LLM providers
	"kernelapi/pkg/memory"
	"kernelapi/pkg/metrics"
	"kernelapi/pkg/monitor"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

type options struct {
	port        int
	pluginsDir  string
	systemPath  string
	settingsDir string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "kernelapi",
		Short: "HTTP API over semantic functions, a sequential planner and a memory store",
		Long: `kernelapi serves prompt functions loaded from a plugins directory.

Routes:
  GET  /                                          greeting
  POST /plugins/{pluginName}/invoke/{functionName} run one function with {"ask": ...}
  GET  /planner?query=...                         plan and run over the planner plugin
  GET  /memory?query=...                          plan with the memory plugin as well
  GET  /ws                                        the same requests over WebSocket
  GET  /prometheus                                metrics

model and apiKey are read from the environment, then from the "Values"
section of appsettings.json and appsettings.Development.json.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := run(ctx, opts)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "kernelapi: %v\n", err)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP listen port (overrides system.json)")
	cmd.Flags().StringVar(&opts.pluginsDir, "plugins", "", "plugins directory (overrides system.json)")
	cmd.Flags().StringVar(&opts.systemPath, "system", "system.json", "path to system.json")
	cmd.Flags().StringVar(&opts.settingsDir, "settings-dir", ".", "directory holding appsettings.json")
	return cmd
}

// run starts the server and blocks until ctx is done. Settings are
// validated before anything else is built, so a missing model or apiKey
// never binds a port.
func run(ctx context.Context, opts *options) error {
	sys := config.LoadSystemConfig(opts.systemPath)
	if opts.port > 0 {
		sys.Port = opts.port
	}
	if opts.pluginsDir != "" {
		sys.PluginsDir = opts.pluginsDir
	}

	monitor.SetupSlog(sys.LogLevel)

	// --- 0. Settings gate ---
	settings, err := config.LoadSettings(opts.settingsDir)
	if err != nil {
		slog.Error("Startup aborted: set model and apiKey in the environment or appsettings.json", "error", err)
		return err
	}
	monitor.PrintBanner(os.Stdout, version)
	slog.Info("Settings loaded", "model", settings.Model, "provider", settings.Provider, "qdrant", settings.Qdrant, "embedder", settings.EmbeddingProvider)

	// --- 1. Kernel ---
	client, err := llm.NewFromSettings(settings, sys)
	if err != nil {
		return fmt.Errorf("failed to init LLM client: %w", err)
	}
	k := kernel.New(client,
		kernel.WithTimeout(time.Duration(sys.LLMTimeoutMs)*time.Millisecond),
		kernel.WithObserver(metrics.ObserveLLMCall),
	)

	// --- 2. Memory, seeded before the listener binds ---
	mem := newMemory(ctx, settings, sys)
	if mem != nil {
		defer mem.Close()
	}

	// --- 3. Gateway ---
	mon := monitor.NewCLIMonitor()
	gw, err := gateway.NewGatewayBuilder().
		WithSystemConfig(sys).
		WithMonitor(mon).
		WithExecutor(handler.NewService(k, mem, mon, sys)).
		WithChannel(web.NewWebChannel()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	if err := gw.Listen(); err != nil {
		return err
	}

	go func() {
		for name := range config.WatchSettings(ctx, opts.settingsDir) {
			slog.Warn("Settings file changed, restart to apply", "file", name)
		}
	}()

	<-ctx.Done()
	slog.Info("Received shutdown signal. Stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		slog.Error("Shutdown incomplete", "error", err)
	}
	slog.Info("Bye!")
	return nil
}

// newMemory builds and seeds the memory store. Failures are logged and
// leave the memory route unavailable; the other routes still serve.
func newMemory(ctx context.Context, settings config.Settings, sys *config.SystemConfig) *memory.Memory {
	embedder, err := memory.NewEmbedder(ctx, settings)
	if err != nil {
		slog.Error("Memory disabled: embedder unavailable", "error", err)
		return nil
	}
	store, err := memory.NewStore(settings.Qdrant, settings.QdrantAPIKey, sys.MemoryCollection)
	if err != nil {
		slog.Error("Memory disabled: vector store unavailable", "error", err)
		return nil
	}

	docs, err := memory.Corpus()
	if err != nil {
		slog.Error("Failed to read built-in corpus", "error", err)
	}
	if len(sys.MemoryDocs) > 0 {
		extra, err := memory.LoadDocuments(sys.MemoryDocs)
		if err != nil {
			slog.Error("Failed to load memory_docs", "error", err)
		}
		docs = append(docs, extra...)
	}

	mem := memory.New(store, embedder, sys.MemoryTopK)
	start := time.Now()
	n, err := mem.Seed(ctx, docs)
	if err != nil {
		slog.Error("Memory seeding failed, answers will have no stored facts", "error", err)
		return mem
	}
	slog.Info("Memory ready", "records", n, "collection", sys.MemoryCollection, "duration", time.Since(start).String())
	return mem
}

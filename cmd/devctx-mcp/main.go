// Command devctx-mcp runs the developer-assistance JSON-RPC server: the
// code analyzer, project-context store, quality guardian, and error
// firewall, exposed over stdio, HTTP, and HTTP+SSE (spec §4.G).
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

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordigilh/devctx-mcp/internal/admission"
	"github.com/jordigilh/devctx-mcp/internal/ai"
	"github.com/jordigilh/devctx-mcp/internal/analyzer"
	"github.com/jordigilh/devctx-mcp/internal/config"
	"github.com/jordigilh/devctx-mcp/internal/contextstore"
	"github.com/jordigilh/devctx-mcp/internal/firewall"
	"github.com/jordigilh/devctx-mcp/internal/mcp"
	"github.com/jordigilh/devctx-mcp/internal/quality"
	"github.com/jordigilh/devctx-mcp/internal/storage"
	"github.com/jordigilh/devctx-mcp/internal/transport"
)

const serverName = "devctx-mcp"

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the server config file")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	zapLog, err := newZapLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("building storage logger: %w", err)
	}
	defer zapLog.Sync() //nolint:errcheck

	if cfg.Storage.URL == "" {
		return fmt.Errorf("no storage configured: set DB_URL or DB_PASSWORD, or storage.url in %s", *configPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage.URL, zapLog)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close() //nolint:errcheck

	deps := mcp.Deps{
		Store:    store,
		Analyzer: analyzer.New(store, log),
		Context:  contextstore.New(store, log),
		Quality:  quality.New(store, log),
		Firewall: firewall.New(store, log),
		AI:       buildAICapability(cfg.AI, log),
		Log:      log,
	}

	registry := mcp.NewRegistry()
	mcp.RegisterAll(registry, deps)

	info := mcp.ServerInfo{Name: serverName, Version: version}
	server := mcp.NewServer(registry, info, log, cfg.Admission.RequestTimeout())

	metrics := admission.NewMetrics()
	gate := admission.New(cfg.Admission, log, metrics)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.StdioEnabled {
		stdio := transport.NewStdio(server, os.Stdin, os.Stdout, log)
		g.Go(func() error {
			log.Info("stdio transport ready")
			return stdio.Serve(gctx)
		})
	}

	if cfg.Server.HTTPPort != "" {
		httpTransport := transport.NewHTTP(server, info, gate, log)
		addr := ":" + cfg.Server.HTTPPort
		g.Go(func() error {
			log.WithField("addr", addr).Info("http transport listening")
			if err := httpTransport.Serve(gctx, addr); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http transport: %w", err)
			}
			return nil
		})
	}

	if cfg.Server.SSEPort != "" {
		sseTransport := transport.NewSSE(server, gate, log)
		addr := ":" + cfg.Server.SSEPort
		g.Go(func() error {
			log.WithField("addr", addr).Info("sse transport listening")
			srv := &http.Server{Addr: addr, Handler: sseTransport.Router()}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("sse transport: %w", err)
				}
				return nil
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		})
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func buildAICapability(cfg config.AIConfig, log *logrus.Logger) ai.Capability {
	if cfg.Provider == "" || cfg.APIKey == "" {
		log.Info("no AI provider configured, AI-backed tools will return Unavailable")
		return ai.Null{}
	}
	switch cfg.Provider {
	case "anthropic":
		return ai.NewAnthropic(cfg, log)
	default:
		log.WithField("provider", cfg.Provider).Warn("unknown AI provider, AI-backed tools will return Unavailable")
		return ai.Null{}
	}
}

func newLogger(level, format string) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	log.SetOutput(os.Stderr)
	return log
}

func newZapLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// Package main provides the entry point for the mcp-sql-gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mcpserver "github.com/txn2/mcp-sql-gateway/internal/server"
	"github.com/txn2/mcp-sql-gateway/pkg/gateway"
	"github.com/txn2/mcp-sql-gateway/pkg/health"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	transport   string
	address     string
	logLevel    string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to database configuration file")
	flag.StringVar(&opts.transport, "transport", "stdio", "Transport type: stdio, http")
	flag.StringVar(&opts.address, "address", ":8080", "Server address for HTTP transport")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	// stdout carries the stdio transport, so logs go to stderr.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("mcp-sql-gateway version %s\n", mcpserver.Version)
		return nil
	}

	logger := newLogger(opts.logLevel)
	slog.SetDefault(logger)

	configPath, err := gateway.FindConfigFile(opts.configPath)
	if err != nil {
		return err
	}

	ctx := setupSignalHandler()

	mcpServer, manager, err := mcpserver.New(configPath, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("closing database pools", "error", err)
		}
	}()

	logger.Info("starting mcp-sql-gateway",
		"version", mcpserver.Version,
		"transport", opts.transport,
		"config", configPath,
		"databases", len(manager.DatabaseNames()))

	return startServer(ctx, mcpServer, manager, opts, logger)
}

func startServer(ctx context.Context, mcpServer *mcp.Server, manager *gateway.Manager, opts serverOptions, logger *slog.Logger) error {
	switch opts.transport {
	case "stdio":
		return mcpServer.Run(ctx, &mcp.StdioTransport{})
	case "http":
		return serveHTTP(ctx, mcpServer, manager, opts.address, logger)
	default:
		return fmt.Errorf("unknown transport: %s", opts.transport)
	}
}

func serveHTTP(ctx context.Context, mcpServer *mcp.Server, manager *gateway.Manager, address string, logger *slog.Logger) error {
	checker := health.NewChecker(manager)

	mux := http.NewServeMux()
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil))
	mux.HandleFunc("/healthz", checker.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	checker.SetReady()

	select {
	case <-ctx.Done():
		checker.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/s1natex/classtasks-api/internal/config"
	"github.com/s1natex/classtasks-api/internal/middleware"
	"github.com/s1natex/classtasks-api/internal/tasks"
	"github.com/s1natex/classtasks-api/internal/telemetry"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "classtasks",
		Short:        "Per-student class task list API",
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if v == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
					v = strings.TrimPrefix(info.Main.Version, "v")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	var port int
	var dataDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the task HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// flag > env > default
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if err := cfg.Normalize(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file (env vars still apply)")
	cmd.Flags().IntVar(&port, "port", 5055, "port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "task data directory (overrides DATA_DIR)")

	return cmd
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger := newLogger(cfg.LogLevel, out)
	slog.SetDefault(logger) // for third-party packages that use slog

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.TraceExporter, cfg.OTLPEndpoint, out)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing_shutdown_error", slog.String("error", err.Error()))
		}
	}()

	repo := tasks.NewFileRepo(tasks.NewResolver(cfg.DataDir), tasks.NewDocumentStore(logger))

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           newRouter(repo, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen",
			slog.String("addr", srv.Addr),
			slog.String("data_dir", cfg.DataDir),
			slog.Bool("write_key_required", cfg.APIKey != ""),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("server_error", slog.String("error", err.Error()))
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newRouter wires health, metrics, task routes and the middleware stack
func newRouter(repo tasks.Repository, cfg config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// RequestID first so downstream can include it (logger, errors, traces)
	r.Use(chimw.RequestID)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	r.Use(chimw.Timeout(15 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			middleware.HeaderAPIKey, tasks.HeaderClassCode, tasks.HeaderStudentID,
		},
		ExposedHeaders:   []string{"X-Request-ID", "Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RequestLogger(logger))

	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		})

		tasks.RegisterRoutes(r, repo, logger,
			middleware.RateLimitMiddleware(middleware.NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)),
			middleware.WriteGate(cfg.APIKey),
		)
	})

	return r
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: l,
	})
	return slog.New(handler)
}

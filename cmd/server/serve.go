package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitsession/internal/auth"
	"github.com/mmynk/splitsession/internal/config"
	"github.com/mmynk/splitsession/internal/metrics"
	"github.com/mmynk/splitsession/internal/middleware"
	"github.com/mmynk/splitsession/internal/receipt"
	"github.com/mmynk/splitsession/internal/service"
	"github.com/mmynk/splitsession/internal/storage"
	"github.com/mmynk/splitsession/internal/storage/memory"
	"github.com/mmynk/splitsession/internal/storage/sqlite"
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the Connect API and serves the frontend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().Int("port", 0, "port to listen on, overriding the config")
	return cmd
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		slog.Warn("Using in-memory storage; sessions are lost on restart")
		return memory.New(), nil
	default:
		store, err := sqlite.New(ctx, cfg.Storage.DatabasePath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "database", cfg.Storage.DatabasePath)
		return store, nil
	}
}

func newAnalyzer(cfg *config.Config) receipt.Analyzer {
	apiKey := cfg.GetAPIKey(cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	if apiKey == "" {
		slog.Warn("OPENAI_API_KEY not set, receipt analysis disabled")
		return nil
	}
	return receipt.NewOpenAIAnalyzer(receipt.OpenAIConfig{
		APIKey:  apiKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.OpenAITimeout(),
	})
}

func serve(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jwtManager := auth.NewJWTManager(cfg.Auth.TokenSecret, cfg.TokenTTL())
	svc := service.NewSessionService(store, jwtManager, newAnalyzer(cfg), m, service.Options{
		DefaultExpiry: time.Duration(cfg.Session.DefaultExpiryMinutes) * time.Minute,
		MaxExpiry:     time.Duration(cfg.Session.MaxExpiryMinutes) * time.Minute,
		Payment:       cfg.Payment,
	})
	defer svc.Close()

	restored, err := svc.RestoreTimers(ctx)
	if err != nil {
		return err
	}
	slog.Info("Lock timers restored", "sessions", restored)

	mux := http.NewServeMux()

	// OrganizerAuth must run before logging so the session id is in context.
	interceptors := connect.WithInterceptors(
		middleware.OrganizerAuth(jwtManager),
		middleware.LoggingInterceptor(),
		middleware.MetricsInterceptor(m),
	)
	sessionPath, sessionHandler := service.NewSessionServiceHandler(svc, interceptors)
	mux.Handle(sessionPath, sessionHandler)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle(cfg.Observability.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	if cfg.Server.StaticDir != "" {
		staticDir, err := filepath.Abs(cfg.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("failed to resolve static path: %w", err)
		}
		slog.Info("Serving static files", "path", staticDir)
		mux.Handle("/", staticHandler(staticDir, sessionPath))
	}

	handler := loggingMiddleware(corsMiddleware(cfg.Server.AllowedOrigin, mux))

	// h2c gives Connect HTTP/2 without TLS.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// staticHandler serves the frontend. Unknown paths such as /session/<id> get
// index.html so the client router can take over.
func staticHandler(staticDir, apiPrefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, apiPrefix) {
			http.NotFound(w, r)
			return
		}

		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}
		filePath := filepath.Join(staticDir, filepath.Clean(urlPath))

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		http.ServeFile(w, r, filePath)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

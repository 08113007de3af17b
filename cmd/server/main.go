// linknotes server: REST API and MCP endpoint over the backlinked note store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/linknotes/internal/api"
	"github.com/kuitang/linknotes/internal/app"
	"github.com/kuitang/linknotes/internal/config"
	"github.com/kuitang/linknotes/internal/mcp"
	"github.com/kuitang/linknotes/internal/obs"
	"github.com/kuitang/linknotes/internal/ratelimit"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	obs.Init()
	flags := config.ParseFlags()
	cfg := config.MustLoadConfig(flags)
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	cfg.PrintStartupSummary(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Pkg("server").Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := obs.Pkg("server")

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newHandler(a, limiter),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server_stopped")
	return nil
}

// newHandler builds the full middleware chain around the API and MCP routes.
func newHandler(a *app.App, limiter *ratelimit.RateLimiter) http.Handler {
	mux := http.NewServeMux()
	api.NewHandler(a.Notes, a.Exporter, a.DB).RegisterRoutes(mux)
	mountMCPRoute(mux, "/mcp", mcp.NewServer(a.Notes))

	var h http.Handler = mux
	h = ratelimit.RateLimitMiddleware(limiter, rateLimitKey)(h)
	h = obs.AccessLogMiddleware("http", h)
	h = obs.RequestContextMiddleware(h)
	return h
}

// rateLimitKey exempts probes so a busy client cannot fail health checks.
func rateLimitKey(r *http.Request) string {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return ""
	}
	return ratelimit.ClientIP(r)
}

// mountMCPRoute sends every Streamable HTTP method on path to handler; the
// handler itself answers methods it does not serve.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}

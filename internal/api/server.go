package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/trawlhq/trawl/internal/service"
)

// Server wraps the HTTP server and mux for the trawl API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a new API server wired with all routes.
func NewServer(listenAddress string, port int, cp *service.ControlPlaneService, apiMaxBodyBytes int64) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())

	mux.Handle("POST /proxies/scrape", HandleScrapeProxies(cp))
	mux.Handle("POST /proxies/validate", HandleValidateProxies(cp))
	mux.Handle("GET /proxies", HandleListProxies(cp))
	mux.Handle("GET /proxies/random", HandleRandomProxy(cp))
	mux.Handle("GET /proxies/stats", HandleProxyStats(cp))
	mux.Handle("GET /proxies/export", HandleExportProxies(cp))
	mux.Handle("GET /proxies/{id}", HandleGetProxy(cp))
	mux.Handle("PATCH /proxies/{id}", HandlePatchProxy(cp))
	mux.Handle("DELETE /proxies", HandleDeleteProxies(cp))
	mux.Handle("POST /proxies/import", HandleImportProxies(cp))

	mux.Handle("POST /proxies/schedule", HandleScheduleJob(cp))
	mux.Handle("GET /jobs/{id}", HandleGetJob(cp))
	mux.Handle("GET /proxies/scheduler/status", HandleSchedulerStatus(cp))
	mux.Handle("POST /proxies/scheduler/update", HandleSchedulerUpdate(cp))

	mux.Handle("POST /webhooks/register", HandleRegisterWebhook(cp))
	mux.Handle("GET /webhooks", HandleListWebhooks(cp))
	mux.Handle("DELETE /webhooks/{id}", HandleDeleteWebhook(cp))

	handler := RequestBodyLimitMiddleware(apiMaxBodyBytes, mux)
	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

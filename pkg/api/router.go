package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capmd/capmd/pkg/models"
)

// NewRouter assembles the full HTTP surface.
//
// Capability routes live under /r, /a, and /w; the admin surface under
// /api/v1; owner claim operators under /workspaces. Unmatched routes get
// the same 404 an invalid key would, so probing the URL space reveals
// nothing about it.
func NewRouter(cfg Config, svc Services) chi.Router {
	cfg.applyDefaults()
	h := &handlers{cfg: cfg, svc: svc, metrics: newMetrics()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(clientContext(cfg.Proxy))
	r.Use(requestLogger)
	r.Use(h.measure)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeCodeError(w, http.StatusNotFound, models.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeCodeError(w, http.StatusNotFound, models.CodeNotFound, "not found")
	})

	r.Get("/health", h.handleHealth)
	r.Get("/health/ready", h.handleReady)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{}))
	}

	r.Post("/bootstrap", h.handleBootstrap)

	r.Group(func(r chi.Router) {
		r.Use(rawPathGuard)

		r.Route("/r/{key}", func(r chi.Router) {
			r.Get("/", h.handleRead)
			r.Get("/*", h.handleRead)
		})

		r.Route("/a/{key}", func(r chi.Router) {
			r.Get("/", h.handleAppendRead)
			r.Get("/claims", h.handleClaims)
			r.Post("/bulk", h.handleBulk)
			r.Post("/copy", h.handleCopy)
			r.Get("/*", h.handleAppendRead)
			r.Post("/*", h.handleAppend)
		})

		r.Route("/w/{key}", func(r chi.Router) {
			r.Get("/webhooks", h.handleWebhookList)
			r.Post("/webhooks", h.handleWebhookCreate)
			r.Delete("/webhooks/{webhookID}", h.handleWebhookDelete)

			r.Post("/recover", h.handleRecover)
			r.Post("/move", h.handleMove)
			r.Post("/rotate", h.handleRotate)
			r.With(h.ownerAuth).Post("/claim", h.handleClaimWorkspace)

			// The write tier covers read; the same listing and read
			// handlers serve GET on the write surface.
			r.Get("/", h.handleRead)
			r.Get("/*", h.handleRead)
			r.Put("/*", h.handlePut)
			r.Patch("/*", h.handlePatch)
			r.Delete("/*", h.handleDelete)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/refresh", h.handleRefresh)

		r.With(h.apiKeyAuth("search")).Get("/search", h.handleSearch)
		r.With(h.apiKeyAuth("export")).Get("/export", h.handleExport)
		r.With(h.apiKeyAuth("read")).Get("/stats", h.handleStats)
		r.With(h.apiKeyAuth("read")).Get("/audit", h.handleAudit)
	})

	r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
		r.Use(h.ownerAuth)
		r.Get("/orchestration/tasks", h.handleTasks)
		r.Post("/orchestration/claims/{claimID}/{op}", h.handleClaimOp)
		r.Post("/api-keys", h.handleAPIKeyCreate)
	})

	return r
}

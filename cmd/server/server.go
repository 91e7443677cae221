package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taotao0/jitsi-autoscaler/internal/audit"
	"github.com/taotao0/jitsi-autoscaler/internal/group"
	"github.com/taotao0/jitsi-autoscaler/internal/report"
	"github.com/taotao0/jitsi-autoscaler/internal/status"
	"github.com/taotao0/jitsi-autoscaler/internal/tracker"
)

type APIServer struct {
	groups  *group.Registry
	audit   *audit.Store
	status  *status.Store
	tracker *tracker.Store
	reports *report.Generator
	router  chi.Router
}

func NewAPIServer(groups *group.Registry, auditStore *audit.Store, statusStore *status.Store, trackerStore *tracker.Store, reports *report.Generator) *APIServer {
	api := &APIServer{
		groups:  groups,
		audit:   auditStore,
		status:  statusStore,
		tracker: trackerStore,
		reports: reports,
		router:  chi.NewRouter(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	api.router.Use(loggingMiddleware)

	api.router.Get("/health", api.handleHealth)

	api.router.Route("/groups", func(r chi.Router) {
		r.Get("/", api.handleListGroups)
		r.Route("/{name}", func(r chi.Router) {
			r.Put("/", api.handleUpsertGroup)
			r.Delete("/", api.handleDeleteGroup)
			r.Get("/report", api.handleReport)
			r.Get("/audit/instances", api.handleInstanceAudit)
			r.Get("/audit/group", api.handleGroupAudit)
			r.Post("/instances/{id}/launch", api.handleLaunchEvent)
			r.Post("/audit/launcher-run", api.handleLauncherRun)
			r.Post("/audit/autoscaler-run", api.handleAutoScalerRun)
			r.Post("/audit/launcher-action", api.handleLauncherAction)
			r.Post("/audit/autoscaler-action", api.handleAutoScalerAction)
		})
	})

	api.router.Post("/instances/status", api.handleInstanceStatus)
	api.router.Post("/instances/shutdown", api.handleShutdownInstances)
}

func (api *APIServer) Handler() http.Handler {
	return api.router
}

func (api *APIServer) Start(addr string) error {
	log.Printf("Starting API server on %s", addr)
	return http.ListenAndServe(addr, api.router)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

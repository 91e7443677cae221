package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taotao0/jitsi-autoscaler/internal/audit"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
	"github.com/taotao0/jitsi-autoscaler/internal/report"
)

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondError maps the error taxonomy onto status codes: absent groups are
// client errors, untyped groups are bad requests, dependency and
// persistence failures are server errors. No partial payload accompanies
// an error.
func (api *APIServer) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrGroupNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, report.ErrUnsupportedGroupType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// resolveGroup 404s requests against groups that were never configured.
func (api *APIServer) resolveGroup(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	_, ok, err := api.groups.Get(r.Context(), name)
	if err != nil {
		api.respondError(w, err)
		return "", false
	}
	if !ok {
		http.Error(w, report.ErrGroupNotFound.Error(), http.StatusNotFound)
		return "", false
	}
	return name, true
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.respondJSON(w, map[string]string{"status": "healthy"})
}

// GET /groups
func (api *APIServer) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := api.groups.List(r.Context())
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, groups)
}

// PUT /groups/{name}
func (api *APIServer) handleUpsertGroup(w http.ResponseWriter, r *http.Request) {
	var g model.InstanceGroup
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		http.Error(w, "invalid group body", http.StatusBadRequest)
		return
	}
	g.Name = chi.URLParam(r, "name")
	if err := api.groups.Upsert(r.Context(), g); err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, g)
}

// DELETE /groups/{name}
func (api *APIServer) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := api.groups.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /groups/{name}/report
func (api *APIServer) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := api.reports.GenerateReport(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, rep)
}

// GET /groups/{name}/audit/instances
func (api *APIServer) handleInstanceAudit(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	events, err := api.audit.GetInstanceAudit(r.Context(), name)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, audit.ProjectInstanceAudit(events))
}

// GET /groups/{name}/audit/group
func (api *APIServer) handleGroupAudit(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	events, err := api.audit.GetGroupAudit(r.Context(), name)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, audit.ProjectGroupAudit(events))
}

// POST /groups/{name}/instances/{id}/launch
func (api *APIServer) handleLaunchEvent(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	if err := api.audit.SaveLaunchEvent(r.Context(), name, chi.URLParam(r, "id")); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /groups/{name}/audit/launcher-run
func (api *APIServer) handleLauncherRun(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	if err := api.audit.UpdateLastLauncherRun(r.Context(), name); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /groups/{name}/audit/autoscaler-run
func (api *APIServer) handleAutoScalerRun(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	if err := api.audit.UpdateLastAutoScalerRun(r.Context(), name); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type actionRequest struct {
	Action string `json:"action"`
}

// POST /groups/{name}/audit/launcher-action
func (api *APIServer) handleLauncherAction(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid action body", http.StatusBadRequest)
		return
	}
	if err := api.audit.SaveLauncherActionItem(r.Context(), name, req.Action); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /groups/{name}/audit/autoscaler-action
func (api *APIServer) handleAutoScalerAction(w http.ResponseWriter, r *http.Request) {
	name, ok := api.resolveGroup(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid action body", http.StatusBadRequest)
		return
	}
	if err := api.audit.SaveAutoScalerActionItem(r.Context(), name, req.Action); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /instances/status
// Sidecar heartbeat: records the latest status event, updates the tracked
// state (or opaque stats blob), and tells the instance whether it has been
// flagged for shutdown.
func (api *APIServer) handleInstanceStatus(w http.ResponseWriter, r *http.Request) {
	var rep model.StatsReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, "invalid stats report", http.StatusBadRequest)
		return
	}
	if rep.Instance.InstanceID == "" || rep.Instance.Group == "" {
		http.Error(w, "instanceId and group are required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	state := api.tracker.StateFrom(rep)
	if err := api.status.ReportStats(ctx, rep); err != nil {
		api.respondError(w, err)
		return
	}
	// Types with a dedicated tracker were tracked through ReportStats;
	// everything else still has to enter the tracked view so reports see it.
	if !api.status.HasTracker(rep.Instance.InstanceType) {
		if err := api.tracker.Record(ctx, state); err != nil {
			api.respondError(w, err)
			return
		}
	}
	if err := api.audit.SaveLatestStatus(ctx, rep.Instance.Group, rep.Instance.InstanceID, &state); err != nil {
		api.respondError(w, err)
		return
	}

	down, err := api.status.GetShutdownStatus(ctx, rep.Instance.InstanceID)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, map[string]bool{"shutdown": down})
}

type shutdownRequest struct {
	Instances []model.InstanceDetails `json:"instances"`
}

// POST /instances/shutdown
// Flags every instance as shutting down and records the terminate events in
// one batched audit write.
func (api *APIServer) handleShutdownInstances(w http.ResponseWriter, r *http.Request) {
	var req shutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid shutdown body", http.StatusBadRequest)
		return
	}
	if len(req.Instances) == 0 {
		http.Error(w, "instances are required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	for _, inst := range req.Instances {
		if err := api.status.SetShutdownStatus(ctx, inst); err != nil {
			api.respondError(w, err)
			return
		}
	}
	if err := api.audit.SaveShutdownEvents(ctx, req.Instances); err != nil {
		api.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package scheduler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/httputil"
	"github.com/stackgate/admind/pkg/observability"
)

// Handlers provides HTTP handlers for scheduled job management
type Handlers struct {
	service *Service
	tracker *Tracker
	logger  *observability.Logger
}

// NewHandlers creates scheduler handlers
func NewHandlers(service *Service, tracker *Tracker, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		tracker: tracker,
		logger:  logger,
	}
}

// RegisterRoutes registers all scheduler routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/jobs", h.CreateJob).Methods("POST")
	router.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.UpdateJob).Methods("PUT")
	router.HandleFunc("/jobs/{id}", h.DeleteJob).Methods("DELETE")

	router.HandleFunc("/jobs/{id}/toggle", h.ToggleJob).Methods("POST")
	router.HandleFunc("/jobs/{id}/execute", h.ExecuteJob).Methods("POST")
	router.HandleFunc("/jobs/{id}/executions", h.ListExecutions).Methods("GET")

	router.HandleFunc("/scheduler/repeatable", h.ListRepeatable).Methods("GET")
	router.HandleFunc("/scheduler/repeatable", h.ClearRepeatable).Methods("DELETE")
	router.HandleFunc("/scheduler/reconcile", h.Reconcile).Methods("POST")
	router.HandleFunc("/scheduler/handlers", h.ListHandlers).Methods("GET")
}

// CreateJob creates a scheduled job in the caller's domain
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}

	var req CreateJobRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	job, err := h.service.CreateJob(r.Context(), domain, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, job)
}

// ListJobs lists the caller's domain jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), domain)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*Job{}
	}
	httputil.WriteSuccess(w, jobs)
}

// GetJob returns a single job with its run statistics
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	jobID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), domain, jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, job)
}

// UpdateJob updates job fields and restarts its registration
func (h *Handlers) UpdateJob(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	jobID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateJobRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	job, err := h.service.UpdateJob(r.Context(), domain, jobID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, job)
}

// DeleteJob removes a job and its execution history
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	jobID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteJob(r.Context(), domain, jobID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ToggleJob moves a job to the requested status
func (h *Handlers) ToggleJob(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	jobID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	job, err := h.service.ToggleJob(r.Context(), domain, jobID, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, job)
}

// ExecuteJob runs a job immediately, outside its schedule
func (h *Handlers) ExecuteJob(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	jobID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	runID, err := h.service.ExecuteNow(r.Context(), domain, jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// ListExecutions returns a job's run history, newest first
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	jobID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	logs, err := h.tracker.ListExecutions(r.Context(), domain, jobID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*ExecutionLog{}
	}
	httputil.WriteSuccess(w, logs)
}

// ListRepeatable returns the keys currently registered in the runner
func (h *Handlers) ListRepeatable(w http.ResponseWriter, r *http.Request) {
	keys := h.service.GetRepeatableJobs()
	if keys == nil {
		keys = []string{}
	}
	httputil.WriteSuccess(w, keys)
}

// ClearRepeatable deregisters every runner entry
func (h *Handlers) ClearRepeatable(w http.ResponseWriter, r *http.Request) {
	cleared := h.service.ClearAllRepeatableJobs()
	httputil.WriteSuccess(w, map[string]int{"cleared": cleared})
}

// Reconcile repairs drift between job rows and runner registrations
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// ListHandlers returns the registered handler names
func (h *Handlers) ListHandlers(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.service.registry.Names())
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && errdefs.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("scheduler operation failed")
	}
	httputil.WriteError(w, err)
}

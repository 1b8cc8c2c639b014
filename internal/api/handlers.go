package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/httputil"
	"github.com/ignite/adpulse/internal/service/insight"
)

// Handlers holds the HTTP handlers over the insight service.
type Handlers struct {
	svc    *insight.Service
	health *HealthChecker
}

// NewHandlers creates the handler set.
func NewHandlers(svc *insight.Service, health *HealthChecker) *Handlers {
	return &Handlers{svc: svc, health: health}
}

// writeServiceError maps the service's sentinel errors onto HTTP codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, insight.ErrNotFound):
		httputil.NotFound(w, "not found")
	case errors.Is(err, insight.ErrJobActive):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, insight.ErrInvalidStatus),
		errors.Is(err, insight.ErrInvalidJob),
		errors.Is(err, insight.ErrEmptyBatch):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// ingestRequest is the weekly push payload from the sync collaborator.
type ingestRequest struct {
	AccountID string                 `json:"account_id"`
	Insights  []domain.WeeklyInsight `json:"insights"`
}

// ingestResponse acknowledges an accepted batch. Job is null when an
// identical pipeline run is already pending for the account.
type ingestResponse struct {
	Job     *domain.SyncJob      `json:"job"`
	Summary domain.ResultSummary `json:"summary"`
}

// IngestWeekly accepts a batch of raw weekly rows and enqueues the
// processing pipeline.
//
//	POST /api/insights/weekly
func (h *Handlers) IngestWeekly(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		httputil.BadRequest(w, "account_id is required")
		return
	}

	job, sum, err := h.svc.IngestWeekly(r.Context(), req.AccountID, req.Insights, time.Now().UTC())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Accepted(w, ingestResponse{Job: job, Summary: sum})
}

// RefreshMappings replaces the classification mapping tables.
//
//	PUT /api/mappings
func (h *Handlers) RefreshMappings(w http.ResponseWriter, r *http.Request) {
	var t domain.MappingTables
	if !httputil.Decode(w, r, &t) {
		return
	}
	if len(t.Actions) == 0 && len(t.Goals) == 0 {
		httputil.BadRequest(w, "mapping tables are empty")
		return
	}
	if err := h.svc.RefreshMappings(r.Context(), t, time.Now().UTC()); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "updated"})
}

// GetMappings returns the active classification mapping tables.
//
//	GET /api/mappings
func (h *Handlers) GetMappings(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Mappings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, t)
}

// ListFeatures returns baselined feature rows for an account.
//
//	GET /api/features?account_id=...&ad_id=...&week_from=...&week_to=...
func (h *Handlers) ListFeatures(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	f := insight.FeatureFilter{
		AccountID: accountID,
		AdID:      r.URL.Query().Get("ad_id"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if f.WeekFrom, ok = queryWeek(w, r, "week_from"); !ok {
		return
	}
	if f.WeekTo, ok = queryWeek(w, r, "week_to"); !ok {
		return
	}

	rows, err := h.svc.Features(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"features": rows, "count": len(rows)})
}

// ListAnomalies returns detected anomalies, most severe first.
//
//	GET /api/anomalies?account_id=...&status=...&type=...&min_score=...
func (h *Handlers) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	f := insight.AnomalyFilter{
		AccountID: accountID,
		AdID:      r.URL.Query().Get("ad_id"),
		Status:    r.URL.Query().Get("status"),
		Type:      r.URL.Query().Get("type"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid min_score")
			return
		}
		f.MinScore = score
	}
	if f.WeekFrom, ok = queryWeek(w, r, "week_from"); !ok {
		return
	}
	if f.WeekTo, ok = queryWeek(w, r, "week_to"); !ok {
		return
	}

	rows, err := h.svc.Anomalies(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"anomalies": rows, "count": len(rows)})
}

type anomalyStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// UpdateAnomalyStatus moves an anomaly through its review lifecycle.
//
//	PUT /api/anomalies/{id}/status
func (h *Handlers) UpdateAnomalyStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req anomalyStatusRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	a, err := h.svc.UpdateAnomalyStatus(r.Context(), id, domain.AnomalyStatus(req.Status), req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, a)
}

// requireAccount reads the account_id query param all analysis
// endpoints need.
func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		httputil.BadRequest(w, "account_id is required")
		return "", false
	}
	return accountID, true
}

// GetPareto returns the spend-concentration snapshot.
//
//	GET /api/analysis/pareto?account_id=...
func (h *Handlers) GetPareto(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Pareto(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"stats": stats, "count": len(stats)})
}

// GetLifecycle returns the creative lifecycle snapshot.
//
//	GET /api/analysis/lifecycle?account_id=...
func (h *Handlers) GetLifecycle(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Lifecycle(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"stats": stats, "count": len(stats)})
}

// GetResponseCurve returns the spend-response buckets.
//
//	GET /api/analysis/response-curve?account_id=...
func (h *Handlers) GetResponseCurve(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	buckets, err := h.svc.ResponseCurve(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"buckets": buckets, "count": len(buckets)})
}

// GetTrackingHealth returns detected tracking issues.
//
//	GET /api/analysis/tracking-health?account_id=...
func (h *Handlers) GetTrackingHealth(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	issues, err := h.svc.TrackingHealth(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"issues": issues, "count": len(issues)})
}

// GetLagDependencies returns the learned lag-dependency bins.
//
//	GET /api/analysis/lag-deps?account_id=...
func (h *Handlers) GetLagDependencies(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.LagDependencies(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"stats": stats, "count": len(stats)})
}

// GetCreativeRisk returns per-creative risk scores.
//
//	GET /api/analysis/creative-risk?account_id=...
func (h *Handlers) GetCreativeRisk(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.CreativeRisk(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"stats": stats, "count": len(stats)})
}

type createJobRequest struct {
	AccountID   string `json:"account_id"`
	Type        string `json:"job_type"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

// CreateJob enqueues a manual sync job.
//
//	POST /api/jobs
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		httputil.BadRequest(w, "account_id is required")
		return
	}
	windowStart, err := time.Parse("2006-01-02", req.WindowStart)
	if err != nil {
		httputil.BadRequest(w, "invalid window_start, want YYYY-MM-DD")
		return
	}
	windowEnd, err := time.Parse("2006-01-02", req.WindowEnd)
	if err != nil {
		httputil.BadRequest(w, "invalid window_end, want YYYY-MM-DD")
		return
	}

	job, err := h.svc.CreateJob(r.Context(), req.AccountID, domain.JobType(req.Type), windowStart, windowEnd, time.Now().UTC())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Accepted(w, job)
}

// ListJobs returns sync jobs, newest first.
//
//	GET /api/jobs?account_id=...&status=...&job_type=...
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	f := insight.JobFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Status:    r.URL.Query().Get("status"),
		Type:      r.URL.Query().Get("job_type"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	jobs, err := h.svc.Jobs(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// GetJob returns one sync job by id.
//
//	GET /api/jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, job)
}

// HealthCheck reports dependency health.
//
//	GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.health.Handle(w, r)
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// queryWeek parses an optional YYYY-MM-DD query param. Writes a 400 and
// returns ok=false on malformed input.
func queryWeek(w http.ResponseWriter, r *http.Request, key string) (*time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		httputil.BadRequest(w, "invalid "+key+", want YYYY-MM-DD")
		return nil, false
	}
	return &t, true
}

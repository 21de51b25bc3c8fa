package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rich1707/Customer-Churn/pkg/derive"
	"github.com/rich1707/Customer-Churn/pkg/explore"
	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/auth"
	"github.com/rich1707/Customer-Churn/server/internal/config"
	"github.com/rich1707/Customer-Churn/server/internal/history"
	"github.com/rich1707/Customer-Churn/server/internal/receiver"
	"github.com/rich1707/Customer-Churn/server/internal/store"
)

// Paging and request limits.
const (
	defaultPageLimit  = 100
	maxPageLimit      = 1000
	maxDeriveBodySize = 10 << 20
)

// ReceiverStatus is the view of the broker consumer exposed on /health.
type ReceiverStatus interface {
	Consuming() bool
	Counts() receiver.Counts
}

// Options wires the handler to the server's state. Only Store is required.
type Options struct {
	Store    *store.Store
	History  history.Repository
	Alerts   *alerts.Engine
	Receiver ReceiverStatus
	Auth     config.AuthConfig
}

// Handler serves the /api/v1/* endpoints from the batch store.
type Handler struct {
	store    *store.Store
	history  history.Repository
	alerts   *alerts.Engine
	receiver ReceiverStatus
}

// New builds the REST router. /api/v1/health is open; every other route
// requires the configured API key. The returned router can be extended
// (the server mounts the WebSocket hub on it).
func New(o Options) chi.Router {
	h := &Handler{
		store:    o.Store,
		history:  o.History,
		alerts:   o.Alerts,
		receiver: o.Receiver,
	}
	if h.history == nil {
		h.history = history.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Group(func(r chi.Router) {
			r.Use(auth.APIKeyMiddleware(o.Auth.Mode, o.Auth.EffectiveHeader(), o.Auth.Key()))

			r.Get("/sources", h.listSources)
			r.Get("/sources/{id}", h.getSource)
			r.Get("/sources/{id}/records", h.sourceRecords)
			r.Get("/summary", h.summary)
			r.Get("/history/{id}", h.sourceHistory)
			r.Get("/alerts", h.listAlerts)
			r.Get("/snapshot", h.snapshot)
			r.Post("/derive", h.derive)
		})
	})
	return r
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: source counts, the pooled churn rate of
// all live labelled records, and broker consumer state.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	resp := HealthResponse{SourceCount: len(entries)}

	var eligible int
	for _, e := range entries {
		b := e.Batch
		if b.Status == types.StatusFailed {
			resp.FailedCount++
			continue
		}
		resp.OKCount++
		resp.Records += b.Stats.Rows
		resp.Labelled += b.Stats.Labelled
		resp.Churned += b.Stats.Churned
		eligible += b.Stats.AbleToChurn[types.ChurnYes]
	}
	resp.ChurnRate = types.Pct(resp.Churned, resp.Labelled)
	resp.AbleToChurnPct = types.Pct(eligible, resp.Records)

	switch {
	case len(entries) == 0:
		resp.State = StateUnknown
	case resp.FailedCount == len(entries):
		resp.State = StateFailing
	case resp.FailedCount > 0:
		resp.State = StateDegraded
	default:
		resp.State = StateOK
	}

	if h.alerts != nil {
		resp.AlertCount = h.alerts.Firing()
	}
	if h.receiver != nil {
		resp.Consuming = h.receiver.Consuming()
		c := h.receiver.Counts()
		resp.Messages = &c
	}
	jsonResp(w, http.StatusOK, resp)
}

// listSources returns GET /api/v1/sources: all live sources.
func (h *Handler) listSources(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	out := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSourceResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSource returns GET /api/v1/sources/{id}; stale entries are not found.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	e, ok := h.store.Live(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}
	jsonResp(w, http.StatusOK, toSourceResponse(e))
}

// sourceRecords returns GET /api/v1/sources/{id}/records?page=&limit=.
func (h *Handler) sourceRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.store.Live(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	all := e.Batch.Records
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	jsonResp(w, http.StatusOK, RecordsResponse{
		SourceID: id,
		Page:     page,
		Limit:    limit,
		Total:    len(all),
		Records:  append([]types.DerivedRecord{}, all[start:end]...),
	})
}

// summary returns GET /api/v1/summary?by=&source= grouped over all live
// records, or over one source's records when source is set.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	by := r.URL.Query().Get("by")
	if by == "" {
		by = explore.KeyContract
	}

	var entries []*store.Entry
	if id := r.URL.Query().Get("source"); id != "" {
		e, ok := h.store.Live(id)
		if !ok {
			jsonErr(w, http.StatusNotFound, "source not found")
			return
		}
		entries = []*store.Entry{e}
	} else {
		entries = h.store.List()
	}

	resp := SummaryResponse{By: by, Sources: []string{}, Groups: []explore.Group{}}
	var records []types.DerivedRecord
	for _, e := range entries {
		if e.Batch.Status == types.StatusFailed {
			continue
		}
		resp.Sources = append(resp.Sources, e.Batch.SourceID)
		records = append(records, e.Batch.Records...)
	}

	groups, err := explore.GroupBy(records, by)
	if err != nil {
		if errors.Is(err, explore.ErrUnknownKey) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if groups != nil {
		resp.Groups = groups
	}
	resp.Totals = explore.Overview(records)
	jsonResp(w, http.StatusOK, resp)
}

// sourceHistory returns GET /api/v1/history/{id}?limit=: persisted runs,
// newest first.
func (h *Handler) sourceHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", history.DefaultListLimit)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := h.history.List(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	jsonResp(w, http.StatusOK, runs)
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, activeAlerts(h.alerts))
}

// snapshot returns GET /api/v1/snapshot: all live sources plus alerts.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.alerts))
}

// derive returns POST /api/v1/derive: features for a posted JSON array of
// customer rows. Nothing is stored.
func (h *Handler) derive(w http.ResponseWriter, r *http.Request) {
	var in []types.Customer
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDeriveBodySize)).Decode(&in); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out := make([]types.DerivedRecord, 0, len(in))
	for i, c := range in {
		if c.TenureMonths < 0 || c.MonthlyCharges < 0 || c.TotalCharges < 0 {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("record %d: negative value", i))
			return
		}
		out = append(out, derive.Record(c))
	}

	jsonResp(w, http.StatusOK, DeriveResponse{
		Records: out,
		Stats:   derive.Summarize(out, 0, 0, nil),
	})
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot assembles the snapshot payload from the store and alert
// engine. al may be nil.
func BuildSnapshot(st *store.Store, al *alerts.Engine) SnapshotResponse {
	entries := st.List()
	sources := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, toSourceResponse(e))
	}
	return SnapshotResponse{
		Sources:     sources,
		Alerts:      activeAlerts(al),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func activeAlerts(al *alerts.Engine) []*alerts.Alert {
	if al == nil {
		return []*alerts.Alert{}
	}
	return al.Active()
}

// toSourceResponse maps a store.Entry to its JSON representation.
func toSourceResponse(e *store.Entry) SourceResponse {
	b := e.Batch
	return SourceResponse{
		SourceID:    b.SourceID,
		SourceType:  b.SourceType,
		Status:      b.Status,
		BatchID:     b.ID,
		DerivedAt:   b.DerivedAt.UTC().Format(time.RFC3339),
		LastSeen:    e.UpdatedAt.UTC().Format(time.RFC3339),
		Received:    e.Received,
		Error:       b.Error,
		Stats:       b.Stats,
		Cert:        b.Cert,
		Diagnostics: computeDiagnostics(b),
	}
}

// queryInt reads a positive integer query parameter, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

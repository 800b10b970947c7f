package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"cpeconnect.org/internal/audit"
	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/obs"
	"cpeconnect.org/internal/stream"
)

// ReadyProbe reports whether the service can take traffic. With a nil DB
// the probe always passes (in-memory mode).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the grants service.
type API struct {
	svc        *grants.Service
	store      grants.Store
	events     *stream.Stream
	readyProbe ReadyProbe
	version    string
}

// New wires the HTTP layer. events may be nil to disable SSE.
func New(svc *grants.Service, store grants.Store, events *stream.Stream, rp ReadyProbe, version string) *API {
	return &API{
		svc:        svc,
		store:      store,
		events:     events,
		readyProbe: rp,
		version:    version,
	}
}

// Handler builds the full middleware chain and route table.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, 50, 25) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, 1<<20) })

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Get("/v1/info", a.info)
	r.Handle("/metrics", obs.Handler())
	r.Post("/v1/auth/token", a.issueToken)

	r.Group(func(pr chi.Router) {
		pr.Use(a.withAuth)

		pr.Post("/v1/organizations", a.createOrganization)
		pr.Get("/v1/organizations", a.listOrganizations)
		pr.Get("/v1/organizations/{id}", a.getOrganization)
		pr.Post("/v1/organizations/{id}/users", a.createUser)
		pr.Get("/v1/organizations/{id}/users", a.listTeam)

		pr.Post("/v1/projects", a.createProject)
		pr.Get("/v1/projects", a.listProjects)
		pr.Get("/v1/projects/{id}", a.getProject)
		pr.Patch("/v1/projects/{id}", a.updateProject)
		pr.Post("/v1/projects/{id}/submit", a.submitProject)
		pr.Post("/v1/projects/{id}/review", a.startReview)
		pr.Post("/v1/projects/{id}/approve", a.approveProject)
		pr.Post("/v1/projects/{id}/request-changes", a.requestChanges)
		pr.Post("/v1/projects/{id}/start", a.startProject)
		pr.Post("/v1/projects/{id}/complete", a.completeProject)
		pr.Post("/v1/projects/{id}/close", a.closeProject)

		pr.Post("/v1/projects/{id}/costs", a.addCostLine)
		pr.Get("/v1/projects/{id}/costs", a.listCostLines)
		pr.Delete("/v1/cost-lines/{id}", a.deleteCostLine)

		pr.Post("/v1/projects/{id}/claims", a.createClaim)
		pr.Get("/v1/projects/{id}/claims", a.listClaims)
		pr.Get("/v1/claims/{id}", a.getClaim)
		pr.Post("/v1/claims/{id}/approve", a.approveClaim)
		pr.Post("/v1/claims/{id}/reject", a.rejectClaim)
		pr.Post("/v1/claims/{id}/pay", a.payClaim)

		pr.Post("/v1/projects/{id}/milestones", a.addMilestone)
		pr.Get("/v1/projects/{id}/milestones", a.listMilestones)
		pr.Post("/v1/milestones/{id}/complete", a.completeMilestone)
		pr.Post("/v1/milestones/{id}/approve", a.approveMilestone)
		pr.Post("/v1/milestones/{id}/reject", a.rejectMilestone)
		pr.Delete("/v1/milestones/{id}", a.deleteMilestone)

		pr.Post("/v1/projects/{id}/comments", a.addComment)
		pr.Get("/v1/projects/{id}/comments", a.listComments)

		pr.Post("/v1/projects/{id}/documents", a.addDocument)
		pr.Get("/v1/projects/{id}/documents", a.listDocuments)
		pr.Delete("/v1/documents/{id}", a.deleteDocument)

		pr.Get("/v1/reports/funding", a.fundingReport)

		pr.Get("/v1/notifications", a.listNotifications)
		pr.Post("/v1/notifications/{id}/read", a.markNotificationRead)
		pr.Get("/v1/notifications/stream", a.notificationStream)
	})

	return obs.Instrument(r)
}

// --- health / info ---

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "cpeconnect-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "cpeconnect-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps the domain sentinels onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, grants.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, grants.ErrForbidden):
		obs.CountAuthzDenial(denialAction(err))
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, grants.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, grants.ErrConflict), errors.Is(err, grants.ErrIllegalTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// denialAction pulls the action name out of a wrapped ErrForbidden, if
// one was recorded, to keep the denial metric label small.
func denialAction(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if len(msg) > 40 {
		return "other"
	}
	return msg
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}

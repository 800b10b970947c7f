package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/obs"
)

// --- milestones ---

type milestoneRequest struct {
	NameFR  string `json:"name_fr,omitempty"`
	NameEN  string `json:"name_en,omitempty"`
	DueDate string `json:"due_date"`
	Notes   string `json:"notes,omitempty"`
}

func (a *API) addMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req milestoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	due, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DueDate))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "due_date must be RFC 3339")
		return
	}
	m, err := a.svc.AddMilestone(r.Context(), actor, chi.URLParam(r, "id"), grants.MilestoneInput{
		NameFR:  req.NameFR,
		NameEN:  req.NameEN,
		DueDate: due,
		Notes:   req.Notes,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "milestone.create", map[string]any{"milestone_id": m.ID, "project_id": m.ProjectID})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) listMilestones(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	ms, err := a.svc.ListMilestones(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ms})
}

func (a *API) milestoneTransition(w http.ResponseWriter, r *http.Request, event string,
	op func(*grants.User, string) (grants.ProjectMilestone, error)) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	m, err := op(actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.CountTransition("milestone", string(m.Status))
	a.audit(r.Context(), event, map[string]any{"milestone_id": m.ID, "status": string(m.Status)})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) completeMilestone(w http.ResponseWriter, r *http.Request) {
	a.milestoneTransition(w, r, "milestone.complete", func(u *grants.User, id string) (grants.ProjectMilestone, error) {
		return a.svc.CompleteMilestone(r.Context(), u, id)
	})
}

func (a *API) approveMilestone(w http.ResponseWriter, r *http.Request) {
	a.milestoneTransition(w, r, "milestone.approve", func(u *grants.User, id string) (grants.ProjectMilestone, error) {
		return a.svc.ApproveMilestone(r.Context(), u, id)
	})
}

func (a *API) rejectMilestone(w http.ResponseWriter, r *http.Request) {
	a.milestoneTransition(w, r, "milestone.reject", func(u *grants.User, id string) (grants.ProjectMilestone, error) {
		return a.svc.RejectMilestone(r.Context(), u, id)
	})
}

func (a *API) deleteMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.svc.DeleteMilestone(r.Context(), actor, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "milestone.delete", map[string]any{"milestone_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- comments ---

type commentRequest struct {
	Body string `json:"body"`
}

func (a *API) addComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.svc.AddComment(r.Context(), actor, chi.URLParam(r, "id"), req.Body)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cs, err := a.svc.ListComments(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cs})
}

// --- documents ---

type documentRequest struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url,omitempty"`
}

func (a *API) addDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.svc.AddDocument(r.Context(), actor, chi.URLParam(r, "id"), grants.DocumentInput{
		FileName: req.FileName,
		FileURL:  req.FileURL,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "document.create", map[string]any{"document_id": d.ID, "project_id": d.ProjectID})
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	ds, err := a.svc.ListDocuments(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ds})
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.svc.DeleteDocument(r.Context(), actor, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "document.delete", map[string]any{"document_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- reports ---

func (a *API) fundingReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	report, err := a.svc.FundingReport(r.Context(), actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": report, "as_of": time.Now().UTC().Format(time.RFC3339)})
}

// --- notifications ---

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	ns, err := a.svc.ListNotifications(r.Context(), actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ns})
}

func (a *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if err := a.svc.MarkNotificationRead(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

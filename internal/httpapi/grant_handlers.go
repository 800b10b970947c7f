package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/obs"
)

// --- organizations ---

type createOrganizationRequest struct {
	Name     string `json:"name"`
	NEQ      string `json:"neq,omitempty"`
	Sector   string `json:"sector,omitempty"`
	SizeBand string `json:"size_band,omitempty"`
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.CreateOrganization(r.Context(), actor, grants.CreateOrganizationInput{
		Name:     req.Name,
		NEQ:      req.NEQ,
		Sector:   req.Sector,
		SizeBand: req.SizeBand,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "organization.create", map[string]any{"organization_id": org.ID, "name": org.Name})
	w.Header().Set("Location", "/v1/organizations/"+org.ID)
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	orgs, err := a.svc.ListOrganizations(r.Context(), actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orgs})
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	org, err := a.svc.GetOrganization(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// --- team ---

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"user_role"`
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.svc.CreateUser(r.Context(), actor, grants.CreateUserInput{
		Email:          req.Email,
		FullName:       req.FullName,
		Role:           grants.Role(strings.TrimSpace(req.Role)),
		OrganizationID: chi.URLParam(r, "id"),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "team.user.create", map[string]any{
		"user_id": u.ID, "email": u.Email, "role": string(u.Role), "organization_id": u.OrganizationID,
	})
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) listTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	team, err := a.svc.ListTeam(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": team})
}

// --- projects ---

type createProjectRequest struct {
	Title       string  `json:"title"`
	Stream      string  `json:"stream,omitempty"`
	Description string  `json:"description,omitempty"`
	TotalBudget float64 `json:"total_budget"`
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.CreateProject(r.Context(), actor, grants.CreateProjectInput{
		Title:       req.Title,
		Stream:      req.Stream,
		Description: req.Description,
		TotalBudget: req.TotalBudget,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "project.create", map[string]any{"project_id": p.ID, "title": p.Title})
	w.Header().Set("Location", "/v1/projects/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	status := grants.ProjectStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	projects, err := a.svc.ListProjects(r.Context(), actor, status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": projects})
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	p, err := a.svc.GetProject(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProjectRequest struct {
	Title       *string  `json:"title,omitempty"`
	Stream      *string  `json:"stream,omitempty"`
	Description *string  `json:"description,omitempty"`
	TotalBudget *float64 `json:"total_budget,omitempty"`
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.UpdateProject(r.Context(), actor, chi.URLParam(r, "id"), grants.ProjectUpdate{
		Title:       req.Title,
		Stream:      req.Stream,
		Description: req.Description,
		TotalBudget: req.TotalBudget,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "project.update", map[string]any{"project_id": p.ID})
	writeJSON(w, http.StatusOK, p)
}

// projectTransition wraps the shared transition handler plumbing: run the
// service call, count and audit the status change, return the project.
func (a *API) projectTransition(w http.ResponseWriter, r *http.Request, event string,
	op func(*grants.User, string) (grants.Project, error)) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	p, err := op(actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.CountTransition("project", string(p.Status))
	a.audit(r.Context(), event, map[string]any{"project_id": p.ID, "status": string(p.Status)})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) submitProject(w http.ResponseWriter, r *http.Request) {
	a.projectTransition(w, r, "project.submit", func(u *grants.User, id string) (grants.Project, error) {
		return a.svc.SubmitProject(r.Context(), u, id)
	})
}

func (a *API) startReview(w http.ResponseWriter, r *http.Request) {
	a.projectTransition(w, r, "project.review.start", func(u *grants.User, id string) (grants.Project, error) {
		return a.svc.StartReview(r.Context(), u, id)
	})
}

func (a *API) approveProject(w http.ResponseWriter, r *http.Request) {
	a.projectTransition(w, r, "project.approve", func(u *grants.User, id string) (grants.Project, error) {
		return a.svc.ApproveProject(r.Context(), u, id)
	})
}

type requestChangesRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (a *API) requestChanges(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req requestChangesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.RequestChanges(r.Context(), actor, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.CountTransition("project", string(p.Status))
	a.audit(r.Context(), "project.request_changes", map[string]any{"project_id": p.ID})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) startProject(w http.ResponseWriter, r *http.Request) {
	a.projectTransition(w, r, "project.start", func(u *grants.User, id string) (grants.Project, error) {
		return a.svc.StartProject(r.Context(), u, id)
	})
}

func (a *API) completeProject(w http.ResponseWriter, r *http.Request) {
	a.projectTransition(w, r, "project.complete", func(u *grants.User, id string) (grants.Project, error) {
		return a.svc.CompleteProject(r.Context(), u, id)
	})
}

func (a *API) closeProject(w http.ResponseWriter, r *http.Request) {
	a.projectTransition(w, r, "project.close", func(u *grants.User, id string) (grants.Project, error) {
		return a.svc.CloseProject(r.Context(), u, id)
	})
}

// --- cost lines ---

type costLineRequest struct {
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
}

func (a *API) addCostLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req costLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	line, err := a.svc.AddCostLine(r.Context(), actor, chi.URLParam(r, "id"), grants.CostLineInput{
		Category:    req.Category,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "cost_line.create", map[string]any{
		"cost_line_id": line.ID, "project_id": line.ProjectID, "reimbursable": line.Reimbursable,
	})
	writeJSON(w, http.StatusCreated, line)
}

func (a *API) listCostLines(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	lines, err := a.svc.ListCostLines(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (a *API) deleteCostLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.svc.DeleteCostLine(r.Context(), actor, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "cost_line.delete", map[string]any{"cost_line_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- claims ---

type createClaimRequest struct {
	CostLineIDs []string `json:"cost_line_ids"`
}

func (a *API) createClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req createClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claim, err := a.svc.CreateClaim(r.Context(), actor, chi.URLParam(r, "id"), req.CostLineIDs)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "claim.create", map[string]any{
		"claim_id": claim.ID, "project_id": claim.ProjectID, "total_amount": claim.TotalAmount,
	})
	w.Header().Set("Location", "/v1/claims/"+claim.ID)
	writeJSON(w, http.StatusCreated, claim)
}

func (a *API) listClaims(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	claims, err := a.svc.ListClaims(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": claims})
}

func (a *API) getClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	claim, err := a.svc.GetClaim(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (a *API) approveClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	claim, err := a.svc.ApproveClaim(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.CountTransition("claim", string(claim.Status))
	a.audit(r.Context(), "claim.approve", map[string]any{"claim_id": claim.ID})
	writeJSON(w, http.StatusOK, claim)
}

type rejectClaimRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (a *API) rejectClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req rejectClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claim, err := a.svc.RejectClaim(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.CountTransition("claim", string(claim.Status))
	a.audit(r.Context(), "claim.reject", map[string]any{"claim_id": claim.ID, "reason": claim.RejectionReason})
	writeJSON(w, http.StatusOK, claim)
}

func (a *API) payClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	claim, err := a.svc.MarkClaimPaid(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.CountTransition("claim", string(claim.Status))
	a.audit(r.Context(), "claim.pay", map[string]any{"claim_id": claim.ID, "total_amount": claim.TotalAmount})
	writeJSON(w, http.StatusOK, claim)
}

package grants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Notifier receives notifications as they are created, for live delivery
// on top of the persisted rows.
type Notifier interface {
	Publish(n Notification)
}

// Service owns the grant-management operations. Every mutation re-checks
// the authorization predicate and drives status changes through the
// lifecycle machines, so call sites cannot skip either gate.
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNotifier attaches a live notification sink.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service around a Store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// --- Organizations ---

// CreateOrganizationInput carries the fields of a new organization.
type CreateOrganizationInput struct {
	Name     string
	NEQ      string
	Sector   string
	SizeBand string
}

func (s *Service) CreateOrganization(ctx context.Context, actor *User, in CreateOrganizationInput) (Organization, error) {
	if !Can(actor, ActionManageOrganizations, nil) {
		return Organization{}, fmt.Errorf("%w: %s", ErrForbidden, ActionManageOrganizations)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	org := Organization{
		Name:      name,
		NEQ:       strings.TrimSpace(in.NEQ),
		Sector:    strings.TrimSpace(strings.ToLower(in.Sector)),
		SizeBand:  strings.TrimSpace(in.SizeBand),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateOrganization(ctx, &org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *Service) ListOrganizations(ctx context.Context, actor *User) ([]Organization, error) {
	if !Can(actor, ActionManageOrganizations, nil) && !Can(actor, ActionViewReports, nil) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, ActionManageOrganizations)
	}
	return s.store.ListOrganizations(ctx)
}

func (s *Service) GetOrganization(ctx context.Context, actor *User, id string) (Organization, error) {
	if actor == nil {
		return Organization{}, ErrForbidden
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Organization{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	if !Can(actor, ActionManageOrganizations, nil) && !Can(actor, ActionViewReports, nil) && actor.OrganizationID != id {
		return Organization{}, ErrForbidden
	}
	return s.store.GetOrganization(ctx, id)
}

// --- Team ---

// CreateUserInput carries the fields of a new team member.
type CreateUserInput struct {
	Email          string
	FullName       string
	Role           Role
	OrganizationID string
}

// CreateUser provisions an account. Org admins may only add staff to
// their own organization; platform admins may provision anywhere.
func (s *Service) CreateUser(ctx context.Context, actor *User, in CreateUserInput) (User, error) {
	orgID := strings.TrimSpace(in.OrganizationID)
	switch {
	case Can(actor, ActionManageOrganizations, nil):
		// platform admin, any organization
	case Can(actor, ActionManageTeam, nil):
		if orgID == "" {
			orgID = actor.OrganizationID
		}
		if orgID != actor.OrganizationID {
			return User{}, fmt.Errorf("%w: %s outside own organization", ErrForbidden, ActionManageTeam)
		}
	default:
		return User{}, fmt.Errorf("%w: %s", ErrForbidden, ActionManageTeam)
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return User{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, in.Role)
	}
	now := s.now().UTC()
	u := User{
		Email:          email,
		FullName:       strings.TrimSpace(in.FullName),
		OrganizationID: orgID,
		Role:           in.Role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) ListTeam(ctx context.Context, actor *User, orgID string) ([]User, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" && actor != nil {
		orgID = actor.OrganizationID
	}
	if !Can(actor, ActionManageOrganizations, nil) &&
		!(Can(actor, ActionManageTeam, nil) && orgID == actor.OrganizationID) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, ActionManageTeam)
	}
	return s.store.ListUsersByOrg(ctx, orgID)
}

// --- Projects ---

// CreateProjectInput carries the intake form fields.
type CreateProjectInput struct {
	Title       string
	Stream      string
	Description string
	TotalBudget float64
}

// CreateProject opens a new application in draft for the actor's
// organization. The funding rate is estimated from the organization
// profile and the chosen program stream.
func (s *Service) CreateProject(ctx context.Context, actor *User, in CreateProjectInput) (Project, error) {
	if !Can(actor, ActionCreateProject, nil) {
		return Project{}, fmt.Errorf("%w: %s", ErrForbidden, ActionCreateProject)
	}
	if actor.OrganizationID == "" {
		return Project{}, fmt.Errorf("%w: actor has no organization", ErrInvalidInput)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Project{}, fmt.Errorf("%w: project title is required", ErrInvalidInput)
	}
	if in.TotalBudget < 0 {
		return Project{}, fmt.Errorf("%w: total budget must not be negative", ErrInvalidInput)
	}
	org, err := s.store.GetOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return Project{}, err
	}
	now := s.now().UTC()
	p := Project{
		OrganizationID: actor.OrganizationID,
		Title:          title,
		Stream:         strings.TrimSpace(in.Stream),
		Description:    strings.TrimSpace(in.Description),
		Status:         ProjectDraft,
		FundingRate:    EstimateFundingRate(&org, strings.TrimSpace(in.Stream)),
		TotalBudget:    in.TotalBudget,
		CreatedBy:      actor.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateProject(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// ProjectUpdate carries optional edits to a draft project.
type ProjectUpdate struct {
	Title       *string
	Stream      *string
	Description *string
	TotalBudget *float64
}

func (s *Service) UpdateProject(ctx context.Context, actor *User, projectID string, upd ProjectUpdate) (Project, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return Project{}, err
	}
	if !Can(actor, ActionEditProject, &p) {
		return Project{}, fmt.Errorf("%w: %s", ErrForbidden, ActionEditProject)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return Project{}, fmt.Errorf("%w: project title is required", ErrInvalidInput)
		}
		p.Title = title
	}
	if upd.Stream != nil {
		p.Stream = strings.TrimSpace(*upd.Stream)
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.TotalBudget != nil {
		if *upd.TotalBudget < 0 {
			return Project{}, fmt.Errorf("%w: total budget must not be negative", ErrInvalidInput)
		}
		p.TotalBudget = *upd.TotalBudget
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProject(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	return s.visibleProject(ctx, actor, projectID)
}

// ListProjects returns the projects the actor may see: officers and
// platform admins see everything, organization staff only their own.
func (s *Service) ListProjects(ctx context.Context, actor *User, status ProjectStatus) ([]Project, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	filter := ProjectFilter{Status: status}
	if actor.Role != RoleOfficer && actor.Role != RolePlatformAdmin {
		if actor.OrganizationID == "" {
			return nil, ErrForbidden
		}
		filter.OrganizationID = actor.OrganizationID
	}
	return s.store.ListProjects(ctx, filter)
}

// SubmitProject moves a draft into the review queue.
func (s *Service) SubmitProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	return s.transitionProject(ctx, actor, projectID, ActionSubmitProject, ProjectSubmitted, "")
}

// StartReview flags a submitted project as being actively reviewed.
func (s *Service) StartReview(ctx context.Context, actor *User, projectID string) (Project, error) {
	return s.transitionProject(ctx, actor, projectID, ActionApproveProject, ProjectUnderReview, "")
}

// ApproveProject grants the funding and fixes the approved amount.
func (s *Service) ApproveProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	p, err := s.transitionProject(ctx, actor, projectID, ActionApproveProject, ProjectApproved, "")
	if err != nil {
		return Project{}, err
	}
	p.ApprovedFunding = p.TotalBudget * p.FundingRate
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProject(ctx, &p); err != nil {
		return Project{}, err
	}
	s.notify(ctx, p.CreatedBy,
		fmt.Sprintf("Votre projet « %s » a été approuvé.", p.Title),
		fmt.Sprintf("Your project %q has been approved.", p.Title),
		"/projects/"+p.ID, "CheckCircle2")
	return p, nil
}

// RequestChanges sends the project back to draft with reviewer notes.
func (s *Service) RequestChanges(ctx context.Context, actor *User, projectID, notes string) (Project, error) {
	p, err := s.transitionProject(ctx, actor, projectID, ActionRequestProjectChanges, ProjectDraft, notes)
	if err != nil {
		return Project{}, err
	}
	s.notify(ctx, p.CreatedBy,
		fmt.Sprintf("Des modifications sont demandées pour le projet « %s ».", p.Title),
		fmt.Sprintf("Changes have been requested for project %q.", p.Title),
		"/projects/"+p.ID, "AlertCircle")
	return p, nil
}

// StartProject marks an approved engagement as underway.
func (s *Service) StartProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	return s.workTransition(ctx, actor, projectID, ProjectInProgress, false)
}

// CompleteProject marks the work as finished.
func (s *Service) CompleteProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	return s.workTransition(ctx, actor, projectID, ProjectCompleted, false)
}

// CloseProject is the final officer sign-off.
func (s *Service) CloseProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	return s.workTransition(ctx, actor, projectID, ProjectClosed, true)
}

func (s *Service) transitionProject(ctx context.Context, actor *User, projectID string, action Action, to ProjectStatus, notes string) (Project, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return Project{}, err
	}
	if !Can(actor, action, &p) {
		return Project{}, fmt.Errorf("%w: %s", ErrForbidden, action)
	}
	if err := p.Transition(to); err != nil {
		return Project{}, err
	}
	if notes != "" {
		p.Notes = strings.TrimSpace(notes)
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProject(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// workTransition drives the post-approval stages, which have no entry of
// their own in the action catalog: organization admin/finance staff move
// their project forward, officers may always drive it, and closing is
// officer-only.
func (s *Service) workTransition(ctx context.Context, actor *User, projectID string, to ProjectStatus, officerOnly bool) (Project, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return Project{}, err
	}
	allowed := actor.Role == RoleOfficer
	if !officerOnly && !allowed {
		allowed = orgFinanceRole(actor.Role) && actor.OrganizationID == p.OrganizationID
	}
	if !allowed {
		return Project{}, fmt.Errorf("%w: project transition to %s", ErrForbidden, to)
	}
	if err := p.Transition(to); err != nil {
		return Project{}, err
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProject(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Service) visibleProject(ctx context.Context, actor *User, projectID string) (Project, error) {
	if actor == nil {
		return Project{}, ErrForbidden
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Project{}, fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if actor.Role == RoleOfficer || actor.Role == RolePlatformAdmin {
		return p, nil
	}
	if actor.OrganizationID != p.OrganizationID {
		// Hide other organizations' projects entirely.
		return Project{}, ErrNotFound
	}
	return p, nil
}

// --- Cost lines ---

// CostLineInput carries the fields of a budgeted expense item.
type CostLineInput struct {
	Category    string
	Description string
	Quantity    float64
	UnitCost    float64
}

// AddCostLine records an expense item. Total and reimbursable amounts
// are derived here, never trusted from the caller.
func (s *Service) AddCostLine(ctx context.Context, actor *User, projectID string, in CostLineInput) (CostLine, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return CostLine{}, err
	}
	if !Can(actor, ActionManageCosts, &p) {
		return CostLine{}, fmt.Errorf("%w: %s", ErrForbidden, ActionManageCosts)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return CostLine{}, fmt.Errorf("%w: cost category is required", ErrInvalidInput)
	}
	if in.Quantity <= 0 || in.UnitCost < 0 {
		return CostLine{}, fmt.Errorf("%w: quantity must be > 0 and unit cost >= 0", ErrInvalidInput)
	}
	rate := p.FundingRate
	if rate == 0 {
		rate = baseFundingRate
	}
	total := in.Quantity * in.UnitCost
	line := CostLine{
		ProjectID:    p.ID,
		Category:     category,
		Description:  strings.TrimSpace(in.Description),
		Quantity:     in.Quantity,
		UnitCost:     in.UnitCost,
		Total:        total,
		FundingRate:  rate,
		Reimbursable: total * rate,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateCostLine(ctx, &line); err != nil {
		return CostLine{}, err
	}
	return line, nil
}

func (s *Service) ListCostLines(ctx context.Context, actor *User, projectID string) ([]CostLine, error) {
	if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListCostLines(ctx, projectID)
}

// DeleteCostLine removes an expense item; lines already attached to a
// claim cannot be removed.
func (s *Service) DeleteCostLine(ctx context.Context, actor *User, lineID string) error {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return fmt.Errorf("%w: cost_line_id is required", ErrInvalidInput)
	}
	line, err := s.store.GetCostLine(ctx, lineID)
	if err != nil {
		return err
	}
	p, err := s.visibleProject(ctx, actor, line.ProjectID)
	if err != nil {
		return err
	}
	if !Can(actor, ActionManageCosts, &p) {
		return fmt.Errorf("%w: %s", ErrForbidden, ActionManageCosts)
	}
	if line.Claimed() {
		return fmt.Errorf("%w: cost line is attached to claim %s", ErrConflict, line.PaymentClaimID)
	}
	return s.store.DeleteCostLine(ctx, lineID)
}

// --- Claims ---

// CreateClaim bundles unclaimed cost lines of an approved or in-progress
// project into a reimbursement claim. The claim total is the sum of the
// reimbursable amounts of the selected lines.
func (s *Service) CreateClaim(ctx context.Context, actor *User, projectID string, lineIDs []string) (PaymentClaim, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return PaymentClaim{}, err
	}
	if !Can(actor, ActionCreateClaim, &p) {
		return PaymentClaim{}, fmt.Errorf("%w: %s", ErrForbidden, ActionCreateClaim)
	}
	if len(lineIDs) == 0 {
		return PaymentClaim{}, fmt.Errorf("%w: at least one cost line is required", ErrInvalidInput)
	}
	var total float64
	seen := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return PaymentClaim{}, fmt.Errorf("%w: empty cost_line_id", ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return PaymentClaim{}, fmt.Errorf("%w: duplicate cost_line_id %s", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		line, err := s.store.GetCostLine(ctx, id)
		if err != nil {
			return PaymentClaim{}, err
		}
		if line.ProjectID != p.ID {
			return PaymentClaim{}, fmt.Errorf("%w: cost line %s belongs to another project", ErrInvalidInput, id)
		}
		if line.Claimed() {
			return PaymentClaim{}, fmt.Errorf("%w: cost line %s is already claimed", ErrConflict, id)
		}
		total += line.Reimbursable
	}
	claim := PaymentClaim{
		ProjectID:      p.ID,
		OrganizationID: p.OrganizationID,
		Status:         ClaimSubmitted,
		TotalAmount:    total,
		SubmittedAt:    s.now().UTC(),
	}
	if err := s.store.CreateClaim(ctx, &claim, lineIDs); err != nil {
		return PaymentClaim{}, err
	}
	return claim, nil
}

func (s *Service) GetClaim(ctx context.Context, actor *User, claimID string) (PaymentClaim, error) {
	return s.visibleClaim(ctx, actor, claimID)
}

func (s *Service) ListClaims(ctx context.Context, actor *User, projectID string) ([]PaymentClaim, error) {
	if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListClaimsByProject(ctx, projectID)
}

// ApproveClaim accepts a submitted claim for payment.
func (s *Service) ApproveClaim(ctx context.Context, actor *User, claimID string) (PaymentClaim, error) {
	claim, err := s.visibleClaim(ctx, actor, claimID)
	if err != nil {
		return PaymentClaim{}, err
	}
	if !Can(actor, ActionApproveClaim, &claim) {
		return PaymentClaim{}, fmt.Errorf("%w: %s", ErrForbidden, ActionApproveClaim)
	}
	if err := claim.Transition(ClaimApproved); err != nil {
		return PaymentClaim{}, err
	}
	now := s.now().UTC()
	claim.ApprovedAt = &now
	if err := s.store.UpdateClaim(ctx, &claim); err != nil {
		return PaymentClaim{}, err
	}
	s.notifyClaimDecision(ctx, claim, true)
	return claim, nil
}

// RejectClaim refuses a submitted claim and releases its cost lines back
// into the unclaimed pool so they can be re-claimed later.
func (s *Service) RejectClaim(ctx context.Context, actor *User, claimID, reason string) (PaymentClaim, error) {
	claim, err := s.visibleClaim(ctx, actor, claimID)
	if err != nil {
		return PaymentClaim{}, err
	}
	if !Can(actor, ActionRejectClaim, &claim) {
		return PaymentClaim{}, fmt.Errorf("%w: %s", ErrForbidden, ActionRejectClaim)
	}
	if err := claim.Transition(ClaimRejected); err != nil {
		return PaymentClaim{}, err
	}
	claim.RejectionReason = strings.TrimSpace(reason)
	if err := s.store.RejectClaim(ctx, &claim); err != nil {
		return PaymentClaim{}, err
	}
	s.notifyClaimDecision(ctx, claim, false)
	return claim, nil
}

// MarkClaimPaid records disbursement of an approved claim.
func (s *Service) MarkClaimPaid(ctx context.Context, actor *User, claimID string) (PaymentClaim, error) {
	claim, err := s.visibleClaim(ctx, actor, claimID)
	if err != nil {
		return PaymentClaim{}, err
	}
	if !Can(actor, ActionMarkClaimPaid, &claim) {
		return PaymentClaim{}, fmt.Errorf("%w: %s", ErrForbidden, ActionMarkClaimPaid)
	}
	if err := claim.Transition(ClaimPaid); err != nil {
		return PaymentClaim{}, err
	}
	now := s.now().UTC()
	claim.PaidAt = &now
	if err := s.store.UpdateClaim(ctx, &claim); err != nil {
		return PaymentClaim{}, err
	}
	return claim, nil
}

func (s *Service) visibleClaim(ctx context.Context, actor *User, claimID string) (PaymentClaim, error) {
	if actor == nil {
		return PaymentClaim{}, ErrForbidden
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return PaymentClaim{}, fmt.Errorf("%w: claim_id is required", ErrInvalidInput)
	}
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return PaymentClaim{}, err
	}
	if actor.Role == RoleOfficer || actor.Role == RolePlatformAdmin {
		return claim, nil
	}
	if actor.OrganizationID != claim.OrganizationID {
		return PaymentClaim{}, ErrNotFound
	}
	return claim, nil
}

func (s *Service) notifyClaimDecision(ctx context.Context, claim PaymentClaim, approved bool) {
	p, err := s.store.GetProject(ctx, claim.ProjectID)
	if err != nil || p.CreatedBy == "" {
		return
	}
	if approved {
		s.notify(ctx, p.CreatedBy,
			fmt.Sprintf("Votre demande de paiement pour le projet « %s » a été approuvée.", p.Title),
			fmt.Sprintf("Your payment claim for project %q has been approved.", p.Title),
			"/projects/"+p.ID, "CheckCircle2")
		return
	}
	s.notify(ctx, p.CreatedBy,
		fmt.Sprintf("Votre demande de paiement pour le projet « %s » a été rejetée.", p.Title),
		fmt.Sprintf("Your payment claim for project %q has been rejected.", p.Title),
		"/projects/"+p.ID, "AlertCircle")
}

// --- Milestones ---

// MilestoneInput carries the fields of a new milestone.
type MilestoneInput struct {
	NameFR  string
	NameEN  string
	DueDate time.Time
	Notes   string
}

func (s *Service) AddMilestone(ctx context.Context, actor *User, projectID string, in MilestoneInput) (ProjectMilestone, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return ProjectMilestone{}, err
	}
	if !Can(actor, ActionManageMilestones, &p) {
		return ProjectMilestone{}, fmt.Errorf("%w: %s", ErrForbidden, ActionManageMilestones)
	}
	if strings.TrimSpace(in.NameFR) == "" && strings.TrimSpace(in.NameEN) == "" {
		return ProjectMilestone{}, fmt.Errorf("%w: milestone name is required", ErrInvalidInput)
	}
	m := ProjectMilestone{
		ProjectID: p.ID,
		NameFR:    strings.TrimSpace(in.NameFR),
		NameEN:    strings.TrimSpace(in.NameEN),
		DueDate:   in.DueDate,
		Notes:     strings.TrimSpace(in.Notes),
		Status:    MilestonePending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateMilestone(ctx, &m); err != nil {
		return ProjectMilestone{}, err
	}
	return m, nil
}

func (s *Service) ListMilestones(ctx context.Context, actor *User, projectID string) ([]ProjectMilestone, error) {
	if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMilestones(ctx, projectID)
}

// CompleteMilestone is the organization's declaration that the work behind
// a pending milestone is done.
func (s *Service) CompleteMilestone(ctx context.Context, actor *User, milestoneID string) (ProjectMilestone, error) {
	return s.transitionMilestone(ctx, actor, milestoneID, MilestoneCompleted, false)
}

// ApproveMilestone is the officer's acceptance of a completed milestone.
func (s *Service) ApproveMilestone(ctx context.Context, actor *User, milestoneID string) (ProjectMilestone, error) {
	return s.transitionMilestone(ctx, actor, milestoneID, MilestoneApproved, true)
}

// RejectMilestone sends a completed milestone back for rework.
func (s *Service) RejectMilestone(ctx context.Context, actor *User, milestoneID string) (ProjectMilestone, error) {
	return s.transitionMilestone(ctx, actor, milestoneID, MilestoneRejected, true)
}

func (s *Service) transitionMilestone(ctx context.Context, actor *User, milestoneID string, to MilestoneStatus, officerOnly bool) (ProjectMilestone, error) {
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return ProjectMilestone{}, fmt.Errorf("%w: milestone_id is required", ErrInvalidInput)
	}
	m, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return ProjectMilestone{}, err
	}
	p, err := s.visibleProject(ctx, actor, m.ProjectID)
	if err != nil {
		return ProjectMilestone{}, err
	}
	if officerOnly {
		if actor.Role != RoleOfficer {
			return ProjectMilestone{}, fmt.Errorf("%w: milestone review is officer-only", ErrForbidden)
		}
	} else if !Can(actor, ActionManageMilestones, &p) {
		return ProjectMilestone{}, fmt.Errorf("%w: %s", ErrForbidden, ActionManageMilestones)
	}
	if err := m.Transition(to); err != nil {
		return ProjectMilestone{}, err
	}
	if err := s.store.UpdateMilestone(ctx, &m); err != nil {
		return ProjectMilestone{}, err
	}
	return m, nil
}

func (s *Service) DeleteMilestone(ctx context.Context, actor *User, milestoneID string) error {
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return fmt.Errorf("%w: milestone_id is required", ErrInvalidInput)
	}
	m, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	p, err := s.visibleProject(ctx, actor, m.ProjectID)
	if err != nil {
		return err
	}
	if !Can(actor, ActionManageMilestones, &p) {
		return fmt.Errorf("%w: %s", ErrForbidden, ActionManageMilestones)
	}
	return s.store.DeleteMilestone(ctx, milestoneID)
}

// --- Comments ---

func (s *Service) AddComment(ctx context.Context, actor *User, projectID, body string) (Comment, error) {
	if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
		return Comment{}, err
	}
	if !Can(actor, ActionCreateComments, nil) {
		return Comment{}, fmt.Errorf("%w: %s", ErrForbidden, ActionCreateComments)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, fmt.Errorf("%w: comment body is required", ErrInvalidInput)
	}
	c := Comment{
		ProjectID:   projectID,
		AuthorEmail: actor.Email,
		AuthorName:  actor.FullName,
		Body:        body,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateComment(ctx, &c); err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, actor *User, projectID string) ([]Comment, error) {
	if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, projectID)
}

// --- Documents ---

// DocumentInput carries the metadata of an uploaded file.
type DocumentInput struct {
	FileName string
	FileURL  string
}

func (s *Service) AddDocument(ctx context.Context, actor *User, projectID string, in DocumentInput) (Document, error) {
	p, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return Document{}, err
	}
	if !Can(actor, ActionUploadDocuments, &p) {
		return Document{}, fmt.Errorf("%w: %s", ErrForbidden, ActionUploadDocuments)
	}
	name := strings.TrimSpace(in.FileName)
	if name == "" {
		return Document{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	d := Document{
		ProjectID:  p.ID,
		FileName:   name,
		FileURL:    strings.TrimSpace(in.FileURL),
		UploadedBy: actor.Email,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, &d); err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *Service) ListDocuments(ctx context.Context, actor *User, projectID string) ([]Document, error) {
	if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, projectID)
}

func (s *Service) DeleteDocument(ctx context.Context, actor *User, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return fmt.Errorf("%w: document_id is required", ErrInvalidInput)
	}
	d, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	p, err := s.visibleProject(ctx, actor, d.ProjectID)
	if err != nil {
		return err
	}
	if !Can(actor, ActionDeleteDocuments, &p) {
		return fmt.Errorf("%w: %s", ErrForbidden, ActionDeleteDocuments)
	}
	return s.store.DeleteDocument(ctx, documentID)
}

// --- Reports ---

// SectorFunding aggregates approved funding per organization sector.
type SectorFunding struct {
	Sector          string  `json:"sector"`
	Projects        int     `json:"projects"`
	ApprovedFunding float64 `json:"approved_funding"`
}

// FundingReport sums approved funding across all organizations, grouped
// by sector.
func (s *Service) FundingReport(ctx context.Context, actor *User) ([]SectorFunding, error) {
	if !Can(actor, ActionViewReports, nil) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, ActionViewReports)
	}
	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	sectorByOrg := make(map[string]string, len(orgs))
	for _, org := range orgs {
		sector := org.Sector
		if sector == "" {
			sector = "other"
		}
		sectorByOrg[org.ID] = sector
	}
	projects, err := s.store.ListProjects(ctx, ProjectFilter{})
	if err != nil {
		return nil, err
	}
	agg := make(map[string]*SectorFunding)
	for _, p := range projects {
		if p.ApprovedFunding <= 0 {
			continue
		}
		sector := sectorByOrg[p.OrganizationID]
		if sector == "" {
			sector = "other"
		}
		entry, ok := agg[sector]
		if !ok {
			entry = &SectorFunding{Sector: sector}
			agg[sector] = entry
		}
		entry.Projects++
		entry.ApprovedFunding += p.ApprovedFunding
	}
	out := make([]SectorFunding, 0, len(agg))
	for _, entry := range agg {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sector < out[j].Sector })
	return out, nil
}

// --- Notifications ---

func (s *Service) ListNotifications(ctx context.Context, actor *User) ([]Notification, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	return s.store.ListNotifications(ctx, actor.Email)
}

func (s *Service) MarkNotificationRead(ctx context.Context, actor *User, notificationID string) error {
	if actor == nil {
		return ErrForbidden
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return fmt.Errorf("%w: notification_id is required", ErrInvalidInput)
	}
	return s.store.MarkNotificationRead(ctx, notificationID, actor.Email)
}

func (s *Service) notify(ctx context.Context, email, messageFR, messageEN, link, icon string) {
	if email == "" {
		return
	}
	n := Notification{
		UserEmail: email,
		MessageFR: messageFR,
		MessageEN: messageEN,
		LinkURL:   link,
		Icon:      icon,
		CreatedAt: s.now().UTC(),
	}
	// Notification delivery is best-effort; a failed insert must not fail
	// the decision that triggered it.
	if err := s.store.CreateNotification(ctx, &n); err != nil {
		return
	}
	if s.notifier != nil {
		s.notifier.Publish(n)
	}
}

package grants

import "time"

// Role is the closed set of user roles recognised by the portal.
// Roles are assigned at provisioning time and are immutable from the
// point of view of this package.
type Role string

const (
	RoleOrgAdmin      Role = "org_admin"
	RoleOrgFinance    Role = "org_finance"
	RoleOrgHR         Role = "org_hr"
	RoleOfficer       Role = "officer"
	RolePlatformAdmin Role = "platform_admin"
	RoleConsultant    Role = "consultant"
	RolePartner       Role = "partner"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleOrgAdmin, RoleOrgFinance, RoleOrgHR, RoleOfficer, RolePlatformAdmin, RoleConsultant, RolePartner:
		return true
	}
	return false
}

// ProjectStatus tracks a funding application through its lifecycle.
type ProjectStatus string

const (
	ProjectDraft       ProjectStatus = "draft"
	ProjectSubmitted   ProjectStatus = "submitted"
	ProjectUnderReview ProjectStatus = "under_review"
	ProjectApproved    ProjectStatus = "approved"
	ProjectInProgress  ProjectStatus = "in_progress"
	ProjectCompleted   ProjectStatus = "completed"
	ProjectClosed      ProjectStatus = "closed"
)

// Mutable reports whether cost lines, documents and milestones of the
// project may still be edited by organization staff.
func (s ProjectStatus) Mutable() bool {
	return s == ProjectDraft || s == ProjectApproved || s == ProjectInProgress
}

// ClaimStatus tracks a reimbursement claim.
type ClaimStatus string

const (
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimPaid      ClaimStatus = "paid"
)

// MilestoneStatus tracks a project milestone.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneApproved  MilestoneStatus = "approved"
	MilestoneRejected  MilestoneStatus = "rejected"
)

// Organization is an applicant employer registered in the program.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NEQ       string    `json:"neq,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	SizeBand  string    `json:"size_band,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a portal account. Organization staff carry an organization id;
// officers and platform admins do not.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Role           Role      `json:"user_role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Project is a funding application and, once approved, the engagement
// under which costs are incurred and claimed.
type Project struct {
	ID              string        `json:"id"`
	OrganizationID  string        `json:"organization_id"`
	Title           string        `json:"title"`
	Stream          string        `json:"stream,omitempty"`
	Description     string        `json:"description,omitempty"`
	Status          ProjectStatus `json:"status"`
	FundingRate     float64       `json:"funding_rate"`
	TotalBudget     float64       `json:"total_budget"`
	ApprovedFunding float64       `json:"approved_funding"`
	Notes           string        `json:"notes,omitempty"`
	CreatedBy       string        `json:"created_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CostLine is a single budgeted expense item within a project.
// PaymentClaimID is empty until the line is bundled into a claim; a
// rejected claim releases its lines back into the unclaimed pool.
type CostLine struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Category       string    `json:"category"`
	Description    string    `json:"description,omitempty"`
	Quantity       float64   `json:"quantity"`
	UnitCost       float64   `json:"unit_cost"`
	Total          float64   `json:"total"`
	FundingRate    float64   `json:"funding_rate"`
	Reimbursable   float64   `json:"reimbursable"`
	PaymentClaimID string    `json:"payment_claim_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Claimed reports whether the line is attached to a claim.
func (l CostLine) Claimed() bool { return l.PaymentClaimID != "" }

// PaymentClaim bundles cost lines submitted for reimbursement.
type PaymentClaim struct {
	ID              string      `json:"id"`
	ProjectID       string      `json:"project_id"`
	OrganizationID  string      `json:"organization_id"`
	Status          ClaimStatus `json:"status"`
	TotalAmount     float64     `json:"total_amount"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time   `json:"submitted_date"`
	ApprovedAt      *time.Time  `json:"approved_date,omitempty"`
	PaidAt          *time.Time  `json:"paid_date,omitempty"`
}

// ProjectMilestone is a deliverable tracked against a project.
type ProjectMilestone struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	NameFR    string          `json:"name_fr"`
	NameEN    string          `json:"name_en"`
	DueDate   time.Time       `json:"due_date"`
	Notes     string          `json:"notes,omitempty"`
	Status    MilestoneStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Comment is a discussion entry on a project.
type Comment struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	AuthorEmail string    `json:"author_email"`
	AuthorName  string    `json:"author_name,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is the metadata record for an uploaded file. File bytes live
// in external storage; only the reference is tracked here.
type Document struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	FileName   string    `json:"file_name"`
	FileURL    string    `json:"file_url"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is an in-app message addressed to a user by email.
type Notification struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"user_email"`
	MessageFR string    `json:"message_fr"`
	MessageEN string    `json:"message_en"`
	LinkURL   string    `json:"link_url,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

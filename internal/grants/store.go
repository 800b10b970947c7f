package grants

import "context"

// ProjectFilter narrows project listings.
type ProjectFilter struct {
	OrganizationID string
	Status         ProjectStatus
}

// Store describes persistence operations required by the grants service.
// Implementations: the Postgres store in internal/store/pg and the
// in-memory store in this package.
type Store interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsersByOrg(ctx context.Context, orgID string) ([]User, error)

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	UpdateProject(ctx context.Context, p *Project) error

	CreateCostLine(ctx context.Context, l *CostLine) error
	GetCostLine(ctx context.Context, id string) (CostLine, error)
	ListCostLines(ctx context.Context, projectID string) ([]CostLine, error)
	DeleteCostLine(ctx context.Context, id string) error

	// CreateClaim persists the claim and attaches the given cost lines to
	// it in a single atomic step.
	CreateClaim(ctx context.Context, c *PaymentClaim, lineIDs []string) error
	GetClaim(ctx context.Context, id string) (PaymentClaim, error)
	ListClaimsByProject(ctx context.Context, projectID string) ([]PaymentClaim, error)
	UpdateClaim(ctx context.Context, c *PaymentClaim) error
	// RejectClaim persists the rejected claim and releases all of its cost
	// lines back into the unclaimed pool, atomically.
	RejectClaim(ctx context.Context, c *PaymentClaim) error

	CreateMilestone(ctx context.Context, m *ProjectMilestone) error
	GetMilestone(ctx context.Context, id string) (ProjectMilestone, error)
	ListMilestones(ctx context.Context, projectID string) ([]ProjectMilestone, error)
	UpdateMilestone(ctx context.Context, m *ProjectMilestone) error
	DeleteMilestone(ctx context.Context, id string) error

	CreateComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, projectID string) ([]Comment, error)

	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, projectID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userEmail string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, userEmail string) error
}

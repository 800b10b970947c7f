package grants

// Action identifies a single user-facing capability. The catalog is the
// shared vocabulary between the authorization predicate and its callers;
// actions without a rule in Can are denied.
type Action string

const (
	// Navigation
	ActionViewReports Action = "view:reports"

	// Project lifecycle
	ActionCreateProject         Action = "create:project"
	ActionEditProject           Action = "edit:project"
	ActionSubmitProject         Action = "submit:project"
	ActionApproveProject        Action = "approve:project"
	ActionRequestProjectChanges Action = "request-changes:project"

	// Cost and claim management
	ActionManageCosts   Action = "manage:costs"
	ActionCreateClaim   Action = "create:claim"
	ActionApproveClaim  Action = "approve:claim"
	ActionRejectClaim   Action = "reject:claim"
	ActionMarkClaimPaid Action = "mark-paid:claim"

	// Project details
	ActionManageMilestones Action = "manage:milestones"
	ActionUploadDocuments  Action = "upload:documents"
	ActionDeleteDocuments  Action = "delete:documents"
	ActionCreateComments   Action = "create:comments"

	// Administration
	ActionManageOrganizations Action = "manage:organizations"
	ActionManageTeam          Action = "manage:team"
)

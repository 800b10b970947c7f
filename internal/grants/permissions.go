package grants

// Resource is the optional status-bearing object a permission check is
// scoped to. Project-scoped actions expect *Project, claim actions
// *PaymentClaim. Passing nil, or the wrong entity for the action, denies.
type Resource interface {
	isResource()
}

func (*Project) isResource()      {}
func (*PaymentClaim) isResource() {}

// Can reports whether user may perform action on resource.
//
// The predicate is pure and never panics: a nil user denies, an action
// without a rule denies, and resource-scoped actions deny when the
// resource is absent. Role and resource status jointly decide the
// outcome; role alone is never enough for lifecycle-gated actions.
func Can(user *User, action Action, resource Resource) bool {
	if user == nil {
		return false
	}
	role := user.Role

	switch action {
	case ActionViewReports:
		return role == RoleOfficer || role == RolePlatformAdmin

	case ActionCreateProject:
		return orgFinanceRole(role)

	case ActionEditProject, ActionSubmitProject:
		p, ok := resource.(*Project)
		return ok && orgFinanceRole(role) && p.Status == ProjectDraft

	case ActionApproveProject, ActionRequestProjectChanges:
		p, ok := resource.(*Project)
		return ok && role == RoleOfficer &&
			(p.Status == ProjectSubmitted || p.Status == ProjectUnderReview)

	case ActionManageCosts:
		if role == RoleOfficer {
			return true
		}
		p, ok := resource.(*Project)
		return ok && orgFinanceRole(role) && p.Status.Mutable()

	case ActionCreateClaim:
		p, ok := resource.(*Project)
		return ok && orgFinanceRole(role) &&
			(p.Status == ProjectApproved || p.Status == ProjectInProgress)

	case ActionApproveClaim, ActionRejectClaim:
		c, ok := resource.(*PaymentClaim)
		return ok && role == RoleOfficer && c.Status == ClaimSubmitted

	case ActionMarkClaimPaid:
		c, ok := resource.(*PaymentClaim)
		return ok && role == RoleOfficer && c.Status == ClaimApproved

	case ActionManageMilestones, ActionUploadDocuments, ActionDeleteDocuments:
		if role == RoleOfficer {
			return true
		}
		p, ok := resource.(*Project)
		return ok && orgStaffRole(role) && p.Status.Mutable()

	case ActionCreateComments:
		// Page-level access is the guard; any authenticated user may comment.
		return true

	case ActionManageOrganizations:
		return role == RolePlatformAdmin

	case ActionManageTeam:
		return role == RoleOrgAdmin

	default:
		// New catalog entries stay denied until a rule is added here.
		return false
	}
}

func orgFinanceRole(r Role) bool {
	return r == RoleOrgAdmin || r == RoleOrgFinance
}

func orgStaffRole(r Role) bool {
	return r == RoleOrgAdmin || r == RoleOrgFinance || r == RoleOrgHR
}

package grants

import "testing"

func userWith(role Role) *User {
	return &User{ID: "u-1", Email: "u@example.org", OrganizationID: "org-1", Role: role}
}

func projectIn(status ProjectStatus) *Project {
	return &Project{ID: "p-1", OrganizationID: "org-1", Status: status}
}

func claimIn(status ClaimStatus) *PaymentClaim {
	return &PaymentClaim{ID: "c-1", ProjectID: "p-1", OrganizationID: "org-1", Status: status}
}

func TestCanNilAndUnknownDeny(t *testing.T) {
	if Can(nil, ActionViewReports, nil) {
		t.Fatal("nil user must be denied")
	}
	if Can(userWith(RolePlatformAdmin), Action("launch:rockets"), nil) {
		t.Fatal("unknown action must be denied")
	}
	if Can(userWith(RoleOrgAdmin), ActionEditProject, nil) {
		t.Fatal("resource-scoped action without a resource must be denied")
	}
	// Wrong resource type for the action also denies.
	if Can(userWith(RoleOfficer), ActionApproveClaim, projectIn(ProjectSubmitted)) {
		t.Fatal("claim action with a project resource must be denied")
	}
}

func TestCanIsIdempotent(t *testing.T) {
	u := userWith(RoleOrgFinance)
	p := projectIn(ProjectDraft)
	first := Can(u, ActionSubmitProject, p)
	for i := 0; i < 3; i++ {
		if Can(u, ActionSubmitProject, p) != first {
			t.Fatal("repeated identical checks must agree")
		}
	}
	if !first {
		t.Fatal("org_finance must be able to submit a draft project")
	}
}

func TestCanDecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		action   Action
		resource Resource
		want     bool
	}{
		{"officer views reports", RoleOfficer, ActionViewReports, nil, true},
		{"platform admin views reports", RolePlatformAdmin, ActionViewReports, nil, true},
		{"org admin cannot view reports", RoleOrgAdmin, ActionViewReports, nil, false},

		{"org finance creates project", RoleOrgFinance, ActionCreateProject, nil, true},
		{"org admin creates project", RoleOrgAdmin, ActionCreateProject, nil, true},
		{"org hr cannot create project", RoleOrgHR, ActionCreateProject, nil, false},
		{"officer cannot create project", RoleOfficer, ActionCreateProject, nil, false},

		{"org finance edits draft", RoleOrgFinance, ActionEditProject, projectIn(ProjectDraft), true},
		{"org finance cannot edit submitted", RoleOrgFinance, ActionEditProject, projectIn(ProjectSubmitted), false},
		{"org finance submits draft", RoleOrgFinance, ActionSubmitProject, projectIn(ProjectDraft), true},
		{"org finance cannot resubmit approved", RoleOrgFinance, ActionSubmitProject, projectIn(ProjectApproved), false},
		{"org hr cannot submit draft", RoleOrgHR, ActionSubmitProject, projectIn(ProjectDraft), false},

		{"officer approves submitted", RoleOfficer, ActionApproveProject, projectIn(ProjectSubmitted), true},
		{"officer approves under review", RoleOfficer, ActionApproveProject, projectIn(ProjectUnderReview), true},
		{"officer cannot approve draft", RoleOfficer, ActionApproveProject, projectIn(ProjectDraft), false},
		{"org admin cannot approve", RoleOrgAdmin, ActionApproveProject, projectIn(ProjectSubmitted), false},
		{"officer requests changes under review", RoleOfficer, ActionRequestProjectChanges, projectIn(ProjectUnderReview), true},
		{"officer cannot request changes on approved", RoleOfficer, ActionRequestProjectChanges, projectIn(ProjectApproved), false},

		{"officer manages costs regardless of status", RoleOfficer, ActionManageCosts, projectIn(ProjectClosed), true},
		{"officer manages costs without resource", RoleOfficer, ActionManageCosts, nil, true},
		{"org finance manages costs in draft", RoleOrgFinance, ActionManageCosts, projectIn(ProjectDraft), true},
		{"org finance manages costs in progress", RoleOrgFinance, ActionManageCosts, projectIn(ProjectInProgress), true},
		{"org finance cannot manage costs when submitted", RoleOrgFinance, ActionManageCosts, projectIn(ProjectSubmitted), false},
		{"org hr cannot manage costs", RoleOrgHR, ActionManageCosts, projectIn(ProjectDraft), false},

		{"org finance claims on approved", RoleOrgFinance, ActionCreateClaim, projectIn(ProjectApproved), true},
		{"org finance claims in progress", RoleOrgFinance, ActionCreateClaim, projectIn(ProjectInProgress), true},
		{"org finance cannot claim on draft", RoleOrgFinance, ActionCreateClaim, projectIn(ProjectDraft), false},
		{"officer cannot create claim", RoleOfficer, ActionCreateClaim, projectIn(ProjectApproved), false},

		{"officer approves submitted claim", RoleOfficer, ActionApproveClaim, claimIn(ClaimSubmitted), true},
		{"officer cannot approve paid claim", RoleOfficer, ActionApproveClaim, claimIn(ClaimPaid), false},
		{"officer rejects submitted claim", RoleOfficer, ActionRejectClaim, claimIn(ClaimSubmitted), true},
		{"org admin cannot reject claim", RoleOrgAdmin, ActionRejectClaim, claimIn(ClaimSubmitted), false},
		{"officer pays approved claim", RoleOfficer, ActionMarkClaimPaid, claimIn(ClaimApproved), true},
		{"officer cannot pay submitted claim", RoleOfficer, ActionMarkClaimPaid, claimIn(ClaimSubmitted), false},

		{"org hr manages milestones in draft", RoleOrgHR, ActionManageMilestones, projectIn(ProjectDraft), true},
		{"org hr cannot manage milestones under review", RoleOrgHR, ActionManageMilestones, projectIn(ProjectUnderReview), false},
		{"officer manages milestones anytime", RoleOfficer, ActionManageMilestones, projectIn(ProjectCompleted), true},
		{"org admin uploads documents in progress", RoleOrgAdmin, ActionUploadDocuments, projectIn(ProjectInProgress), true},
		{"consultant cannot upload documents", RoleConsultant, ActionUploadDocuments, projectIn(ProjectDraft), false},
		{"org hr deletes documents in draft", RoleOrgHR, ActionDeleteDocuments, projectIn(ProjectDraft), true},

		{"partner may comment", RolePartner, ActionCreateComments, nil, true},
		{"consultant may comment", RoleConsultant, ActionCreateComments, nil, true},

		{"platform admin manages organizations", RolePlatformAdmin, ActionManageOrganizations, nil, true},
		{"officer cannot manage organizations", RoleOfficer, ActionManageOrganizations, nil, false},
		{"org admin manages team", RoleOrgAdmin, ActionManageTeam, nil, true},
		{"org finance cannot manage team", RoleOrgFinance, ActionManageTeam, nil, false},
		{"platform admin cannot manage team directly", RolePlatformAdmin, ActionManageTeam, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Can(userWith(tc.role), tc.action, tc.resource)
			if got != tc.want {
				t.Fatalf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
			}
		})
	}
}

// The officer walk-through: deny on draft, allow once submitted, deny
// again after approval. Status changes flip decisions without any role
// change.
func TestCanFollowsProjectLifecycle(t *testing.T) {
	officer := userWith(RoleOfficer)
	officer.OrganizationID = ""
	p := projectIn(ProjectDraft)

	if Can(officer, ActionApproveProject, p) {
		t.Fatal("draft must not be approvable")
	}
	if err := p.Transition(ProjectSubmitted); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !Can(officer, ActionApproveProject, p) {
		t.Fatal("submitted must be approvable")
	}
	if err := p.Transition(ProjectApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if Can(officer, ActionApproveProject, p) {
		t.Fatal("approved must not be approvable again")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleOrgAdmin, RoleOrgFinance, RoleOrgHR, RoleOfficer, RolePlatformAdmin, RoleConsultant, RolePartner} {
		if !r.Valid() {
			t.Fatalf("role %q should be valid", r)
		}
	}
	if Role("superuser").Valid() {
		t.Fatal("unknown role should be invalid")
	}
}

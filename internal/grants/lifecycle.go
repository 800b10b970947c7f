package grants

// Lifecycle transition tables. Call sites never mutate a status field
// directly; they go through the Transition methods so an illegal move
// surfaces as a typed error instead of silently doing nothing.

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectDraft:     {ProjectSubmitted},
	ProjectSubmitted: {ProjectUnderReview, ProjectApproved, ProjectDraft},
	// request-changes returns the project to draft from either review state
	ProjectUnderReview: {ProjectApproved, ProjectDraft},
	ProjectApproved:    {ProjectInProgress},
	ProjectInProgress:  {ProjectCompleted},
	ProjectCompleted:   {ProjectClosed},
}

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimSubmitted: {ClaimApproved, ClaimRejected},
	ClaimApproved:  {ClaimPaid},
}

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestonePending:   {MilestoneCompleted},
	MilestoneCompleted: {MilestoneApproved, MilestoneRejected},
}

// CanTransitionTo reports whether the project status machine allows the move.
func (s ProjectStatus) CanTransitionTo(to ProjectStatus) bool {
	return containsStatus(projectTransitions[s], to)
}

// CanTransitionTo reports whether the claim status machine allows the move.
func (s ClaimStatus) CanTransitionTo(to ClaimStatus) bool {
	return containsStatus(claimTransitions[s], to)
}

// CanTransitionTo reports whether the milestone status machine allows the move.
func (s MilestoneStatus) CanTransitionTo(to MilestoneStatus) bool {
	return containsStatus(milestoneTransitions[s], to)
}

// Transition moves the project to the target status.
func (p *Project) Transition(to ProjectStatus) error {
	if !p.Status.CanTransitionTo(to) {
		return &TransitionError{Entity: "project", From: string(p.Status), To: string(to)}
	}
	p.Status = to
	return nil
}

// Transition moves the claim to the target status.
func (c *PaymentClaim) Transition(to ClaimStatus) error {
	if !c.Status.CanTransitionTo(to) {
		return &TransitionError{Entity: "claim", From: string(c.Status), To: string(to)}
	}
	c.Status = to
	return nil
}

// Transition moves the milestone to the target status.
func (m *ProjectMilestone) Transition(to MilestoneStatus) error {
	if !m.Status.CanTransitionTo(to) {
		return &TransitionError{Entity: "milestone", From: string(m.Status), To: string(to)}
	}
	m.Status = to
	return nil
}

func containsStatus[S ~string](haystack []S, needle S) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

package grants

import (
	"errors"
	"testing"
)

func TestProjectTransitions(t *testing.T) {
	allowed := []struct{ from, to ProjectStatus }{
		{ProjectDraft, ProjectSubmitted},
		{ProjectSubmitted, ProjectUnderReview},
		{ProjectSubmitted, ProjectApproved},
		{ProjectSubmitted, ProjectDraft},
		{ProjectUnderReview, ProjectApproved},
		{ProjectUnderReview, ProjectDraft},
		{ProjectApproved, ProjectInProgress},
		{ProjectInProgress, ProjectCompleted},
		{ProjectCompleted, ProjectClosed},
	}
	for _, tc := range allowed {
		p := &Project{Status: tc.from}
		if err := p.Transition(tc.to); err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if p.Status != tc.to {
			t.Fatalf("%s -> %s: status not applied", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to ProjectStatus }{
		{ProjectDraft, ProjectApproved},
		{ProjectDraft, ProjectDraft},
		{ProjectApproved, ProjectDraft},
		{ProjectApproved, ProjectClosed},
		{ProjectInProgress, ProjectDraft},
		{ProjectClosed, ProjectDraft},
		{ProjectClosed, ProjectInProgress},
	}
	for _, tc := range denied {
		p := &Project{Status: tc.from}
		err := p.Transition(tc.to)
		if err == nil {
			t.Fatalf("%s -> %s: expected error", tc.from, tc.to)
		}
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s -> %s: error %v does not wrap ErrIllegalTransition", tc.from, tc.to, err)
		}
		if p.Status != tc.from {
			t.Fatalf("%s -> %s: status mutated on failed transition", tc.from, tc.to)
		}
	}
}

func TestClaimTransitions(t *testing.T) {
	c := &PaymentClaim{Status: ClaimSubmitted}
	if err := c.Transition(ClaimApproved); err != nil {
		t.Fatalf("submitted -> approved: %v", err)
	}
	if err := c.Transition(ClaimPaid); err != nil {
		t.Fatalf("approved -> paid: %v", err)
	}
	if err := c.Transition(ClaimRejected); err == nil {
		t.Fatal("paid claim must be terminal")
	}

	rejected := &PaymentClaim{Status: ClaimRejected}
	for _, to := range []ClaimStatus{ClaimSubmitted, ClaimApproved, ClaimPaid} {
		if err := rejected.Transition(to); err == nil {
			t.Fatalf("rejected -> %s must be denied", to)
		}
	}
}

func TestMilestoneTransitions(t *testing.T) {
	m := &ProjectMilestone{Status: MilestonePending}
	if err := m.Transition(MilestoneApproved); err == nil {
		t.Fatal("pending milestone cannot be approved before completion")
	}
	if err := m.Transition(MilestoneCompleted); err != nil {
		t.Fatalf("pending -> completed: %v", err)
	}
	if err := m.Transition(MilestoneRejected); err != nil {
		t.Fatalf("completed -> rejected: %v", err)
	}
	if err := m.Transition(MilestoneCompleted); err == nil {
		t.Fatal("rejected milestone must be terminal")
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	p := &Project{Status: ProjectClosed}
	err := p.Transition(ProjectDraft)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if te.Entity != "project" || te.From != "closed" || te.To != "draft" {
		t.Fatalf("unexpected fields: %+v", te)
	}
}

func TestEstimateFundingRate(t *testing.T) {
	tests := []struct {
		name   string
		band   string
		stream string
		want   float64
	}{
		{"base rate", "250+", "training_other", 0.50},
		{"enhanced stream", "250+", "digital_productivity", 0.75},
		{"experienced workers stream", "100-249", "experienced_workers", 0.75},
		{"priority sme bump", "6-24", "training_other", 0.60},
		{"larger priority sme bump", "25-99", "training_other", 0.60},
		{"bump capped at maximum", "6-24", "digital_productivity", 0.75},
		{"micro business gets base", "1-5", "training_other", 0.50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			org := &Organization{SizeBand: tc.band}
			got := EstimateFundingRate(org, tc.stream)
			if got != tc.want {
				t.Fatalf("EstimateFundingRate(%q, %q) = %v, want %v", tc.band, tc.stream, got, tc.want)
			}
		})
	}
	if got := EstimateFundingRate(nil, "training_other"); got != 0.50 {
		t.Fatalf("nil organization should get base rate, got %v", got)
	}
}

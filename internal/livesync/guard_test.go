package livesync

import (
	"errors"
	"testing"
	"time"
)

func TestAdmitRSVPFallsBackToWaitlistAtCapacity(t *testing.T) {
	tests := []struct {
		name       string
		requested  string
		goingCount int
		cap        int
		wantKind   DecisionKind
		wantStatus string
	}{
		{name: "under capacity", requested: StatusGoing, goingCount: 1, cap: 2, wantKind: DecisionAllowed, wantStatus: StatusGoing},
		{name: "at capacity", requested: StatusGoing, goingCount: 2, cap: 2, wantKind: DecisionFallback, wantStatus: StatusWaitlist},
		{name: "over capacity", requested: StatusGoing, goingCount: 3, cap: 2, wantKind: DecisionFallback, wantStatus: StatusWaitlist},
		{name: "uncapped", requested: StatusGoing, goingCount: 50, cap: 0, wantKind: DecisionAllowed, wantStatus: StatusGoing},
		{name: "maybe ignores capacity", requested: StatusMaybe, goingCount: 2, cap: 2, wantKind: DecisionAllowed, wantStatus: StatusMaybe},
		{name: "not going ignores capacity", requested: StatusNotGoing, goingCount: 2, cap: 2, wantKind: DecisionAllowed, wantStatus: StatusNotGoing},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := AdmitRSVP(tc.requested, tc.goingCount, tc.cap)
			if decision.Kind != tc.wantKind {
				t.Fatalf("expected kind %s, got %s", tc.wantKind, decision.Kind)
			}
			if decision.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, decision.Status)
			}
		})
	}
}

func TestAdmitJoinDeniesWhenFull(t *testing.T) {
	decision := AdmitJoin(5, 5)
	if decision.Kind != DecisionDenied {
		t.Fatalf("expected denial when full, got %s", decision.Kind)
	}
	if !errors.Is(decision.Err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", decision.Err)
	}

	if decision := AdmitJoin(4, 5); decision.Kind != DecisionAllowed {
		t.Fatalf("expected admission under cap, got %s", decision.Kind)
	}
	if decision := AdmitJoin(100, 0); decision.Kind != DecisionAllowed {
		t.Fatalf("expected admission on uncapped collection, got %s", decision.Kind)
	}
}

func TestResolveVoteSingleChoiceToggle(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	// Re-selecting the already-voted option toggles the vote off.
	plan, err := ResolveVote(VoteState{SingleChoice: true, HasVoteForOption: true}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != VoteRemoved {
		t.Fatalf("expected removal on toggle, got %s", plan.Action)
	}

	// Voting a different option clears the prior vote and adds the new one.
	plan, err = ResolveVote(VoteState{SingleChoice: true, HasVoteForOtherOpts: true}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != VoteAdded || !plan.ClearOtherVotes {
		t.Fatalf("expected add with prior votes cleared, got %#v", plan)
	}

	// Multiple-choice polls leave other votes alone.
	plan, err = ResolveVote(VoteState{HasVoteForOtherOpts: true}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != VoteAdded || plan.ClearOtherVotes {
		t.Fatalf("expected independent add on multiple choice, got %#v", plan)
	}
}

func TestResolveVoteDeniesClosedAndExpiredPolls(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if _, err := ResolveVote(VoteState{Closed: true}, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on closed poll, got %v", err)
	}
	if _, err := ResolveVote(VoteState{EndsAt: &past}, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on expired poll, got %v", err)
	}
	if _, err := ResolveVote(VoteState{EndsAt: &future}, now); err != nil {
		t.Fatalf("expected open poll to accept votes, got %v", err)
	}
}

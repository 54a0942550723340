package livesync

import "time"

// DecisionKind classifies a capacity guard outcome.
type DecisionKind string

const (
	DecisionAllowed  DecisionKind = "allowed"
	DecisionDenied   DecisionKind = "denied"
	DecisionFallback DecisionKind = "fallback"
)

// Decision is the outcome of a guarded mutation. Status carries the
// effective status to write when the kind is allowed or fallback; Err
// carries the denial reason otherwise.
type Decision struct {
	Kind   DecisionKind
	Status string
	Err    error
}

// Participant statuses shared by RSVP-style collections.
const (
	StatusGoing    = "going"
	StatusMaybe    = "maybe"
	StatusNotGoing = "not_going"
	StatusWaitlist = "waitlist"
)

// AdmitRSVP decides the effective status for an RSVP. A request for "going"
// against a full event falls back to the waitlist instead of failing.
// maxParticipants <= 0 means the event is uncapped. The count is read
// before the write without backend atomicity; two racing admissions can
// overshoot the cap by a small margin.
func AdmitRSVP(requested string, goingCount, maxParticipants int) Decision {
	if requested != StatusGoing || maxParticipants <= 0 {
		return Decision{Kind: DecisionAllowed, Status: requested}
	}
	if goingCount >= maxParticipants {
		return Decision{Kind: DecisionFallback, Status: StatusWaitlist}
	}
	return Decision{Kind: DecisionAllowed, Status: requested}
}

// AdmitJoin decides whether a member may join a capped collection such as
// an LFG post. maxMembers <= 0 means uncapped. Same best-effort read as
// AdmitRSVP.
func AdmitJoin(currentCount, maxMembers int) Decision {
	if maxMembers > 0 && currentCount >= maxMembers {
		return Decision{Kind: DecisionDenied, Err: ErrCapacityExceeded}
	}
	return Decision{Kind: DecisionAllowed}
}

// VoteAction reports how a poll vote resolved.
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteRemoved VoteAction = "removed"
)

// VoteState captures what the guard needs to know about a poll and the
// voting user before the write.
type VoteState struct {
	SingleChoice        bool
	Closed              bool
	EndsAt              *time.Time
	HasVoteForOption    bool
	HasVoteForOtherOpts bool
}

// VotePlan is what the poll service must execute for the vote.
type VotePlan struct {
	Action          VoteAction
	ClearOtherVotes bool
}

// ResolveVote decides a poll vote. Closed or expired polls deny. On a
// single-choice poll any prior vote is cleared first; re-selecting the
// option the user already voted for toggles the vote off entirely.
func ResolveVote(state VoteState, now time.Time) (VotePlan, error) {
	if state.Closed {
		return VotePlan{}, ErrConflict
	}
	if state.EndsAt != nil && state.EndsAt.Before(now) {
		return VotePlan{}, ErrConflict
	}
	if state.HasVoteForOption {
		return VotePlan{Action: VoteRemoved, ClearOtherVotes: state.SingleChoice}, nil
	}
	return VotePlan{Action: VoteAdded, ClearOtherVotes: state.SingleChoice && state.HasVoteForOtherOpts}, nil
}

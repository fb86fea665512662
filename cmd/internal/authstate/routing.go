package authstate

import "tavern/cmd/internal/profile"

// Decision is the top-level screen the UI should show.
type Decision string

const (
	DecisionWelcome         Decision = "welcome"
	DecisionLogin           Decision = "login"
	DecisionMain            Decision = "main"
	DecisionCompleteProfile Decision = "complete-profile"
)

// Routing is the engine's answer to "where should the user be right now".
type Routing struct {
	Decision  Decision `json:"decision"`
	ProfileID string   `json:"profileId,omitempty"`
}

// profileState classifies the profile lookup for a present session.
type profileState uint8

const (
	profileUnavailable profileState = iota // lookup failed (transient)
	profileMissing
	profileMismatched // row exists but belongs to another auth user
	profileIncomplete // blank username
	profileComplete
)

// sessionDecisions is the routing table for a present session.
var sessionDecisions = map[profileState]Decision{
	profileUnavailable: DecisionMain,
	profileMissing:     DecisionCompleteProfile,
	profileMismatched:  DecisionCompleteProfile,
	profileIncomplete:  DecisionCompleteProfile,
	profileComplete:    DecisionMain,
}

// signedOutDecision is the decision when there is no usable session.
func signedOutDecision(hasAccount bool) Routing {
	if hasAccount {
		return Routing{Decision: DecisionLogin}
	}
	return Routing{Decision: DecisionWelcome}
}

func classifyProfile(authUserID string, p profile.Profile) profileState {
	switch {
	case p.AuthUserID != authUserID:
		return profileMismatched
	case !p.Complete():
		return profileIncomplete
	default:
		return profileComplete
	}
}

func sessionDecision(state profileState, p profile.Profile) Routing {
	r := Routing{Decision: sessionDecisions[state]}
	if state == profileIncomplete || state == profileComplete {
		r.ProfileID = p.ID
	}
	return r
}

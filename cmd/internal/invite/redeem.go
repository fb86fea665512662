package invite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"tavern/cmd/identity"
	"tavern/cmd/internal/membership"
	"tavern/cmd/internal/metrics"
	"tavern/cmd/internal/profile"
	"tavern/cmd/internal/remote"
)

// Outcome is the terminal result of one redemption.
type Outcome string

const (
	OutcomeJoined        Outcome = "JOINED"
	OutcomeAlreadyMember Outcome = "ALREADY_MEMBER"
	OutcomeFailed        Outcome = "FAILED"
)

// User-presentable failure reasons.
const (
	ReasonMissingInput    = "invite token and world name are required"
	ReasonNotSignedIn     = "sign in required"
	ReasonInvalidInvite   = "invalid or expired"
	ReasonProfileNotFound = "profile not found"
	ReasonJoinFailed      = "failed to join"
	ReasonUnavailable     = "service unavailable"
)

// Result is what Redeem returns; Reason is set only for OutcomeFailed.
type Result struct {
	Outcome   Outcome         `json:"outcome"`
	Reason    string          `json:"reason,omitempty"`
	WorldID   string          `json:"worldId,omitempty"`
	WorldName string          `json:"worldName,omitempty"`
	Role      membership.Role `json:"role,omitempty"`
}

// State is a step of the redemption state machine.
type State string

const (
	StateValidateToken    State = "VALIDATE_TOKEN"
	StateResolveProfile   State = "RESOLVE_CALLER_PROFILE"
	StateCheckMembership  State = "CHECK_EXISTING_MEMBERSHIP"
	StateCreateMembership State = "CREATE_MEMBERSHIP"
	StateJoined           State = "JOINED"
	StateAlreadyMember    State = "ALREADY_MEMBER"
	StateFailed           State = "FAILED"
)

// IsTerminal reports whether s ends a redemption.
func (s State) IsTerminal() bool {
	return s == StateJoined || s == StateAlreadyMember || s == StateFailed
}

// transitions is the complete set of allowed edges.
var transitions = map[State][]State{
	StateValidateToken:    {StateResolveProfile, StateFailed},
	StateResolveProfile:   {StateCheckMembership, StateFailed},
	StateCheckMembership:  {StateAlreadyMember, StateCreateMembership},
	StateCreateMembership: {StateJoined, StateAlreadyMember, StateFailed},
}

// Allowed reports whether the machine may move from -> to.
func Allowed(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Validator resolves an invite token. Service implements it.
type Validator interface {
	ValidateInvite(ctx context.Context, token string, now time.Time) (Invite, error)
}

// ProfileReader resolves the caller's profile.
type ProfileReader interface {
	GetByAuthID(ctx context.Context, authUserID string) (profile.Profile, error)
}

// Redeemer turns (token, world name, session) into a membership outcome.
// Concurrent redemptions converge through the membership store's
// uniqueness constraint; Redeemer holds no locks.
type Redeemer struct {
	invites  Validator
	profiles ProfileReader
	members  membership.Store
	role     membership.Role
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics
}

type RedeemerOption func(*Redeemer)

func WithRedeemerLogger(log *slog.Logger) RedeemerOption {
	return func(r *Redeemer) {
		if log != nil {
			r.log = log
		}
	}
}

func WithRedeemerMetrics(m *metrics.Metrics) RedeemerOption {
	return func(r *Redeemer) { r.metrics = m }
}

func WithRedeemerClock(now func() time.Time) RedeemerOption {
	return func(r *Redeemer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithDefaultRole overrides the role granted to new members (default player).
func WithDefaultRole(role membership.Role) RedeemerOption {
	return func(r *Redeemer) {
		if role.Valid() {
			r.role = role
		}
	}
}

func NewRedeemer(invites Validator, profiles ProfileReader, members membership.Store, opts ...RedeemerOption) *Redeemer {
	r := &Redeemer{
		invites:  invites,
		profiles: profiles,
		members:  members,
		role:     membership.RolePlayer,
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// redemption carries the working state of one Redeem call.
type redemption struct {
	token     string
	worldName string
	authID    string

	invite  Invite
	profile profile.Profile
	member  membership.Membership
	reason  string
}

// Redeem runs the state machine to a terminal state. It never returns an
// error: every failure is a Result with OutcomeFailed and a reason.
func (r *Redeemer) Redeem(ctx context.Context, token, worldName string, session *identity.Session) Result {
	rd := &redemption{
		token:     strings.TrimSpace(token),
		worldName: strings.TrimSpace(worldName),
	}
	if session != nil {
		rd.authID = session.UserID()
	}

	switch {
	case rd.token == "" || rd.worldName == "":
		return r.finish(rd, StateFailed, ReasonMissingInput)
	case rd.authID == "":
		return r.finish(rd, StateFailed, ReasonNotSignedIn)
	}

	state := StateValidateToken
	for !state.IsTerminal() {
		next := r.step(ctx, state, rd)
		if !Allowed(state, next) {
			// Unreachable unless step and the table disagree.
			r.log.Error("invite.redeem.bad_transition", "from", state, "to", next)
			return r.finish(rd, StateFailed, ReasonJoinFailed)
		}
		state = next
	}
	return r.finish(rd, state, rd.reason)
}

func (r *Redeemer) step(ctx context.Context, state State, rd *redemption) State {
	switch state {
	case StateValidateToken:
		res := remote.Call(ctx, func(ctx context.Context) (Invite, error) {
			return r.invites.ValidateInvite(ctx, rd.token, r.now())
		})
		switch res.Kind {
		case remote.KindOK:
			rd.invite = res.Value
			return StateResolveProfile
		case remote.KindInvalid, remote.KindNotFound:
			rd.reason = ReasonInvalidInvite
		default:
			r.log.Warn("invite.redeem.validate.unavailable", "err", res.Err)
			rd.reason = ReasonUnavailable
		}
		return StateFailed

	case StateResolveProfile:
		res := remote.Call(ctx, func(ctx context.Context) (profile.Profile, error) {
			return r.profiles.GetByAuthID(ctx, rd.authID)
		})
		switch res.Kind {
		case remote.KindOK:
			if res.Value.AuthUserID != rd.authID {
				rd.reason = ReasonProfileNotFound
				return StateFailed
			}
			rd.profile = res.Value
			return StateCheckMembership
		case remote.KindNotFound:
			rd.reason = ReasonProfileNotFound
		default:
			r.log.Warn("invite.redeem.profile.unavailable", "err", res.Err)
			rd.reason = ReasonUnavailable
		}
		return StateFailed

	case StateCheckMembership:
		res := remote.Call(ctx, func(ctx context.Context) (bool, error) {
			return r.members.IsMember(ctx, rd.invite.WorldID, rd.profile.ID)
		})
		if res.OK() && res.Value {
			return StateAlreadyMember
		}
		if !res.OK() {
			// The insert below is still guarded by the uniqueness constraint.
			r.log.Warn("invite.redeem.check.unavailable", "err", res.Err)
		}
		return StateCreateMembership

	case StateCreateMembership:
		res := remote.Call(ctx, func(ctx context.Context) (membership.Membership, error) {
			return r.members.AddMember(ctx, rd.invite.WorldID, rd.profile.ID, r.role)
		})
		switch res.Kind {
		case remote.KindOK:
			rd.member = res.Value
			return StateJoined
		case remote.KindConflict:
			return StateAlreadyMember
		default:
			r.log.Warn("invite.redeem.create.fail", "err", res.Err)
			rd.reason = ReasonJoinFailed
		}
		return StateFailed
	}

	panic(fmt.Sprintf("invite: no step for state %s", state))
}

func (r *Redeemer) finish(rd *redemption, state State, reason string) Result {
	out := Result{WorldID: rd.invite.WorldID, WorldName: rd.worldName}

	switch state {
	case StateJoined:
		out.Outcome = OutcomeJoined
		out.Role = rd.member.Role
		r.log.Info("invite.redeem.joined", "world_id", out.WorldID, "profile_id", rd.profile.ID)
	case StateAlreadyMember:
		out.Outcome = OutcomeAlreadyMember
		r.log.Info("invite.redeem.already_member", "world_id", out.WorldID, "profile_id", rd.profile.ID)
	default:
		out.Outcome = OutcomeFailed
		out.Reason = reason
		r.log.Info("invite.redeem.failed", "reason", reason)
	}

	r.metrics.Redemption(string(out.Outcome), out.Reason)
	return out
}

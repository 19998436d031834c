package session

import (
	"slices"

	"github.com/jrsteele09/go-admin-client/authrpc"
)

// State is where the controller is in the sign-in lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateValidating
	StateLoggingIn
	StateAuthenticated
	// StateHoldingSelectionRequired is authenticated without a holding chosen yet.
	StateHoldingSelectionRequired
	StateUnauthenticated
)

var stateNames = map[State]string{
	StateUninitialized:            "uninitialized",
	StateValidating:               "validating",
	StateLoggingIn:                "logging_in",
	StateAuthenticated:            "authenticated",
	StateHoldingSelectionRequired: "holding_selection_required",
	StateUnauthenticated:          "unauthenticated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the signed-in user.
type Session struct {
	UserID       authrpc.ID  `json:"user_id"`
	SessionID    string      `json:"sid,omitempty"`
	RoleCode     string      `json:"role_code"`
	HoldingID    *authrpc.ID `json:"holding_id"`
	CompanyID    *authrpc.ID `json:"company_id"`
	BranchID     *authrpc.ID `json:"branch_id"`
	Capabilities []string    `json:"capabilities"`
	// Provisional is set while the session is built from the login response
	// alone and capabilities have not been fetched yet.
	Provisional bool `json:"provisional"`
}

// NeedsHoldingSelect reports whether the user still has to pick a holding.
func (s *Session) NeedsHoldingSelect() bool {
	return s.HoldingID == nil || s.HoldingID.IsZero()
}

func (s *Session) HasCapability(capability string) bool {
	return slices.Contains(s.Capabilities, capability)
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.HoldingID = cloneID(s.HoldingID)
	out.CompanyID = cloneID(s.CompanyID)
	out.BranchID = cloneID(s.BranchID)
	out.Capabilities = slices.Clone(s.Capabilities)
	return &out
}

func cloneID(id *authrpc.ID) *authrpc.ID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sessionFromLogin(resp *authrpc.TokenResponse) *Session {
	return &Session{
		UserID:      resp.UserID,
		RoleCode:    resp.RoleCode,
		HoldingID:   cloneID(resp.HoldingID),
		Provisional: true,
	}
}

func sessionFromIdentity(identity *authrpc.Identity) *Session {
	return &Session{
		UserID:       identity.UserID,
		SessionID:    identity.SessionID,
		RoleCode:     identity.RoleCode,
		HoldingID:    cloneID(identity.HoldingID),
		CompanyID:    cloneID(identity.CompanyID),
		BranchID:     cloneID(identity.BranchID),
		Capabilities: slices.Clone(identity.Capabilities),
	}
}

func stateFor(s *Session) State {
	if s == nil {
		return StateUnauthenticated
	}
	if s.NeedsHoldingSelect() {
		return StateHoldingSelectionRequired
	}
	return StateAuthenticated
}

// AuthState is a point-in-time view of the controller for display code.
type AuthState struct {
	State              State    `json:"state"`
	User               *Session `json:"user"`
	IsAuthenticated    bool     `json:"is_authenticated"`
	IsLoading          bool     `json:"is_loading"`
	NeedsHoldingSelect bool     `json:"needs_holding_select"`
}

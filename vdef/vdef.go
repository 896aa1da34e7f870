// Package vdef holds the types shared by the vsession packages: roles, the
// user identity record, session states, result envelopes and sentinel errors.
package vdef

import (
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrNoSession is returned when an operation requires a stored session identifier.
	ErrNoSession = fmt.Errorf("vsession: no session")

	// ErrEmptySession is returned when an empty session identifier is saved.
	ErrEmptySession = fmt.Errorf("vsession: empty session identifier")

	// ErrMalformedResponse is returned when a successful response lacks a required field.
	ErrMalformedResponse = fmt.Errorf("vsession: malformed response")

	// ErrTicketMissing is returned when a password reset step runs without its predecessor's ticket.
	ErrTicketMissing = fmt.Errorf("vsession: reset ticket missing")

	// ErrNotAuthenticated is returned when an operation requires an authenticated session.
	ErrNotAuthenticated = fmt.Errorf("vsession: not authenticated")

	// ErrRateLimited is returned when a throttled operation is attempted too soon.
	ErrRateLimited = fmt.Errorf("vsession: rate limited")

	// ErrInvalidTransition is returned when a session state change is not declared.
	ErrInvalidTransition = fmt.Errorf("vsession: invalid state transition")
)

// HeaderSession is the request header carrying the session identifier.
const HeaderSession = "id-session"

// Role is the closed set of storefront roles.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleClient      Role = "client"
	RoleViewer      Role = "viewer"  // Visualization only.
	RoleRetread     Role = "retread" // Retread bonus operator.
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleCoordinator, RoleClient, RoleViewer, RoleRetread}

// ParseRole returns the role named by s. Matching ignores case and surrounding space.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Known() {
		return "", fmt.Errorf("vsession: unknown role %q", s)
	}
	return r, nil
}

// Known reports whether r is one of the declared roles.
func (r Role) Known() bool {
	return slices.Contains(Roles, r)
}

func (r Role) String() string {
	return string(r)
}

// User is the identity of the authenticated account.
type User struct {
	Role         Role     `json:"role"`
	AccountID    string   `json:"accountId"`
	CompanyCodes []string `json:"companyCodes,omitempty"`
	Email        string   `json:"email"`
	Name         string   `json:"name,omitempty"`
}

// Clone returns a deep copy of u. A nil user clones to nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.CompanyCodes = slices.Clone(u.CompanyCodes)
	return &c
}

// HasRole reports whether the user's role is one of roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roles, u.Role)
}

// CanUseCompany reports whether code is one of the user's authorized company codes.
func (u *User) CanUseCompany(code string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.CompanyCodes, code)
}

func (u *User) IsAdmin() bool       { return u.HasRole(RoleAdmin) }
func (u *User) IsCoordinator() bool { return u.HasRole(RoleCoordinator) }
func (u *User) IsClient() bool      { return u.HasRole(RoleClient) }
func (u *User) IsViewer() bool      { return u.HasRole(RoleViewer) }
func (u *User) IsRetread() bool     { return u.HasRole(RoleRetread) }

func (u *User) String() string {
	if u == nil {
		return "<anonymous>"
	}
	return fmt.Sprintf("%s(%s)", u.Email, u.Role)
}

// State is the lifecycle state of the client session.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition names published on session events.
const (
	TransitionValidated        = "validated"
	TransitionNoSession        = "no-session"
	TransitionValidationFailed = "validation-failed"
	TransitionLogin            = "login"
	TransitionLogout           = "logout"
	TransitionExpired          = "expired"
	TransitionReplaced         = "replaced"
)

// Event describes a committed session state change.
// User is the identity after the change, nil unless To is StateAuthenticated.
type Event struct {
	From State
	To   State
	Name string
	User *User
}

// Result is the uniform outcome of an operation that reports expected
// failures as data rather than as an error.
type Result[T any] struct {
	Success bool
	Data    T
	Message string
	Err     error
}

// Ok returns a successful result.
func Ok[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Data: data, Message: message}
}

// Fail returns a failed result.
func Fail[T any](message string, err error) Result[T] {
	return Result[T]{Message: message, Err: err}
}

// Observer receives state changes and log lines. Implementations must not
// block and must not call back into the component that notified them.
type Observer interface {
	OnStateChange(from, to State, name string)
	Logf(format string, args ...interface{})
}

// Logf forwards to o when it is not nil.
func Logf(o Observer, format string, args ...interface{}) {
	if o != nil {
		o.Logf(format, args...)
	}
}

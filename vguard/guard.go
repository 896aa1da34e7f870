// Package vguard decides whether a route renders for the current identity
// and adapts those decisions to HTTP handlers and router navigation.
package vguard

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/viicommerce/vsession/vdef"
)

// Route declares who may view a path. An empty Roles list admits any
// signed-in identity. Public routes are for signed-out visitors only.
type Route struct {
	Path   string
	Roles  []vdef.Role
	Public bool
}

// Homes maps roles to their landing path.
type Homes struct {
	ByRole  map[vdef.Role]string
	Default string // Roles without an entry.
	Login   string
}

// DefaultHomes returns the storefront's landing paths.
func DefaultHomes() Homes {
	return Homes{
		ByRole: map[vdef.Role]string{
			vdef.RoleAdmin:       "/admin",
			vdef.RoleCoordinator: "/coordinator",
			vdef.RoleClient:      "/shop",
			vdef.RoleViewer:      "/dashboard",
			vdef.RoleRetread:     "/retreads",
		},
		Default: "/",
		Login:   "/login",
	}
}

// HomeFor returns the landing path of role. It is defined for every role,
// known or not.
func (h Homes) HomeFor(role vdef.Role) string {
	if p, ok := h.ByRole[role]; ok && p != "" {
		return p
	}
	if h.Default != "" {
		return h.Default
	}
	return "/"
}

// LoginPath returns the sign-in path.
func (h Homes) LoginPath() string {
	if h.Login != "" {
		return h.Login
	}
	return "/login"
}

// Action is the outcome of a route check.
type Action int

const (
	Render Action = iota
	Redirect
	Pending // The session has not settled yet.
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Pending:
		return "pending"
	default:
		return "action(" + strconv.Itoa(int(a)) + ")"
	}
}

// Decision is the result of a route check. From is set on redirects to the
// sign-in path and holds the path that was asked for.
type Decision struct {
	Action Action
	Target string
	From   string
}

// Decide applies the route table rules, first match wins:
//
//  1. public route, signed in: go to the role home
//  2. private route, signed out: go to sign-in, remembering path
//  3. signed in, role not admitted: go to the role home
//  4. otherwise render
//
// A redirect whose target is path itself renders instead.
func Decide(user *vdef.User, path string, route Route, homes Homes) Decision {
	switch {
	case route.Public && user != nil:
		if home := homes.HomeFor(user.Role); home != path {
			return Decision{Action: Redirect, Target: home}
		}
	case !route.Public && user == nil:
		return Decision{Action: Redirect, Target: homes.LoginPath(), From: path}
	case user != nil && len(route.Roles) > 0 && !user.HasRole(route.Roles...):
		if home := homes.HomeFor(user.Role); home != path {
			return Decision{Action: Redirect, Target: home}
		}
	}
	return Decision{Action: Render}
}

// Session reports the current state and identity together.
// *vauth.Manager implements it.
type Session interface {
	Snapshot() (vdef.State, *vdef.User)
}

// Guard checks routes against a session.
type Guard struct {
	session Session
	homes   Homes
}

// New returns a guard over session.
func New(session Session, homes Homes) *Guard {
	return &Guard{session: session, homes: homes}
}

// Homes returns the landing paths the guard redirects to.
func (g *Guard) Homes() Homes {
	return g.homes
}

// Check decides route for path. While the session is Unknown the answer is
// Pending, as no decision can be made without a settled identity.
func (g *Guard) Check(path string, route Route) Decision {
	state, user := g.session.Snapshot()
	if state == vdef.StateUnknown {
		return Decision{Action: Pending}
	}
	return Decide(user, path, route, g.homes)
}

// Middleware gates a handler behind route. Redirects answer 302, with the
// requested path in the "from" query parameter for sign-in redirects.
// Pending answers 503 with Retry-After.
func (g *Guard) Middleware(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r.URL.Path, route)
			switch d.Action {
			case Render:
				next.ServeHTTP(w, r)
			case Redirect:
				http.Redirect(w, r, redirectURL(d), http.StatusFound)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session is loading", http.StatusServiceUnavailable)
			}
		})
	}
}

// Mount registers h on r for every route, each behind its own check.
func (g *Guard) Mount(r chi.Router, routes []Route, h http.Handler) {
	for _, rt := range routes {
		r.With(g.Middleware(rt)).Handle(rt.Path, h)
	}
}

func redirectURL(d Decision) string {
	if d.From == "" {
		return d.Target
	}
	u, err := url.Parse(d.Target)
	if err != nil {
		return d.Target
	}
	q := u.Query()
	q.Set("from", d.From)
	u.RawQuery = q.Encode()
	return u.String()
}

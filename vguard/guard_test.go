package vguard

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/viicommerce/vsession/vdef"
)

func user(role vdef.Role) *vdef.User {
	return &vdef.User{Role: role, AccountID: "1", Email: "u@example.com"}
}

func TestDecide(t *testing.T) {
	homes := DefaultHomes()
	adminOnly := Route{Path: "/admin", Roles: []vdef.Role{vdef.RoleAdmin}}
	anyUser := Route{Path: "/orders"}
	login := Route{Path: "/login", Public: true}
	staff := Route{Path: "/reports", Roles: []vdef.Role{vdef.RoleAdmin, vdef.RoleCoordinator}}

	tests := []struct {
		name  string
		user  *vdef.User
		path  string
		route Route
		want  Decision
	}{
		{"public signed in", user(vdef.RoleClient), "/login", login, Decision{Action: Redirect, Target: "/shop"}},
		{"public signed out", nil, "/login", login, Decision{Action: Render}},
		{"private signed out", nil, "/orders", anyUser, Decision{Action: Redirect, Target: "/login", From: "/orders"}},
		{"restricted signed out", nil, "/admin", adminOnly, Decision{Action: Redirect, Target: "/login", From: "/admin"}},
		{"coordinator on admin route", user(vdef.RoleCoordinator), "/admin", adminOnly, Decision{Action: Redirect, Target: "/coordinator"}},
		{"admin at own home", user(vdef.RoleAdmin), "/admin", adminOnly, Decision{Action: Render}},
		{"any authenticated", user(vdef.RoleViewer), "/orders", anyUser, Decision{Action: Render}},
		{"one of several roles", user(vdef.RoleCoordinator), "/reports", staff, Decision{Action: Render}},
		{"retread not admitted", user(vdef.RoleRetread), "/reports", staff, Decision{Action: Redirect, Target: "/retreads"}},
		{"unknown role falls back", user("auditor"), "/reports", staff, Decision{Action: Redirect, Target: "/"}},
		{"misclassified home renders", user(vdef.RoleClient), "/shop", Route{Path: "/shop", Roles: []vdef.Role{vdef.RoleAdmin}}, Decision{Action: Render}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.user, tt.path, tt.route, homes); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHomeFor(t *testing.T) {
	h := DefaultHomes()
	for _, r := range vdef.Roles {
		if h.HomeFor(r) == h.Default {
			t.Errorf("HomeFor(%s) uses the default", r)
		}
	}
	if got := h.HomeFor("auditor"); got != "/" {
		t.Errorf("HomeFor(unknown) = %q", got)
	}

	var zero Homes
	if got := zero.HomeFor(vdef.RoleAdmin); got != "/" {
		t.Errorf("zero HomeFor() = %q", got)
	}
	if got := zero.LoginPath(); got != "/login" {
		t.Errorf("zero LoginPath() = %q", got)
	}
}

type fakeSession struct {
	mu    sync.Mutex
	state vdef.State
	user  *vdef.User
}

func (s *fakeSession) Snapshot() (vdef.State, *vdef.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.user.Clone()
}

func (s *fakeSession) set(state vdef.State, u *vdef.User) {
	s.mu.Lock()
	s.state, s.user = state, u
	s.mu.Unlock()
}

func TestCheckPendingWhileUnknown(t *testing.T) {
	s := &fakeSession{}
	g := New(s, DefaultHomes())
	if d := g.Check("/orders", Route{Path: "/orders"}); d.Action != Pending {
		t.Fatalf("Check() = %+v, want pending", d)
	}
	s.set(vdef.StateAnonymous, nil)
	if d := g.Check("/orders", Route{Path: "/orders"}); d.Action != Redirect {
		t.Fatalf("Check() = %+v, want redirect", d)
	}
}

func TestMiddleware(t *testing.T) {
	s := &fakeSession{}
	g := New(s, DefaultHomes())
	routes := []Route{
		{Path: "/login", Public: true},
		{Path: "/admin", Roles: []vdef.Role{vdef.RoleAdmin}},
		{Path: "/orders"},
	}
	r := chi.NewRouter()
	g.Mount(r, routes, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page " + r.URL.Path))
	}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	hc := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	get := func(path string) *http.Response {
		t.Helper()
		resp, err := hc.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := get("/orders"); resp.StatusCode != http.StatusServiceUnavailable || resp.Header.Get("Retry-After") == "" {
		t.Errorf("unknown: status %d", resp.StatusCode)
	}

	s.set(vdef.StateAnonymous, nil)
	resp := get("/admin")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("anonymous /admin: status %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Path != "/login" || loc.Query().Get("from") != "/admin" {
		t.Errorf("Location = %q", resp.Header.Get("Location"))
	}
	if resp := get("/login"); resp.StatusCode != http.StatusOK {
		t.Errorf("anonymous /login: status %d", resp.StatusCode)
	}

	s.set(vdef.StateAuthenticated, user(vdef.RoleCoordinator))
	if resp := get("/admin"); resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/coordinator" {
		t.Errorf("coordinator /admin: status %d location %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if resp := get("/login"); resp.Header.Get("Location") != "/coordinator" {
		t.Errorf("coordinator /login: location %q", resp.Header.Get("Location"))
	}
	if resp := get("/orders"); resp.StatusCode != http.StatusOK {
		t.Errorf("coordinator /orders: status %d", resp.StatusCode)
	}
	if resp := get("/unlisted"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unlisted: status %d", resp.StatusCode)
	}
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vguard"
)

const demoPassword = "demo-password"

func startMock(t *testing.T, ctx context.Context) *MockResult {
	t.Helper()
	resultCh := make(chan *MockResult, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunMockWithResult(ctx, &MockOptions{
			ListenAddr: "127.0.0.1:0",
			Password:   demoPassword,
			Domain:     "example.com",
		}, resultCh)
	}()
	select {
	case res := <-resultCh:
		return res
	case err := <-errCh:
		t.Fatalf("mock failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("mock startup timeout")
	}
	return nil
}

func TestIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	mock := startMock(t, ctx)
	storePath := filepath.Join(t.TempDir(), "session.db")
	common := func() CommonOptions {
		return CommonOptions{BaseURL: mock.URL, StoreKind: "bolt", StorePath: storePath}
	}

	// 1. Not signed in yet.
	c := common()
	if _, err := RunMe(ctx, &c); err == nil {
		t.Fatal("me before login should fail")
	}

	// 2. Sign in as the coordinator.
	user, err := RunLogin(ctx, &LoginOptions{
		Common:   common(),
		Email:    "coordinator@example.com",
		Password: demoPassword,
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.Role != vdef.RoleCoordinator {
		t.Errorf("role = %s", user.Role)
	}

	// 3. A new process sees the stored session.
	c = common()
	me, err := RunMe(ctx, &c)
	if err != nil {
		t.Fatalf("me failed: %v", err)
	}
	if me.Email != "coordinator@example.com" {
		t.Errorf("me = %+v", me)
	}

	// 4. Wrong password leaves the session alone.
	if _, err := RunLogin(ctx, &LoginOptions{Common: common(), Email: "admin@example.com", Password: "wrong-password"}); err == nil {
		t.Error("login with a wrong password succeeded")
	}
	c = common()
	if me, err := RunMe(ctx, &c); err != nil || me.Role != vdef.RoleCoordinator {
		t.Errorf("session changed by failed login: %+v, %v", me, err)
	}

	// 5. Logout twice.
	for i := 0; i < 2; i++ {
		c = common()
		if err := RunLogout(ctx, &c); err != nil {
			t.Fatalf("logout #%d failed: %v", i+1, err)
		}
	}
	if mock.Backend.Sessions() != 0 {
		t.Errorf("backend sessions = %d", mock.Backend.Sessions())
	}
	c = common()
	if _, err := RunMe(ctx, &c); err == nil {
		t.Error("me after logout should fail")
	}
}

func TestIntegrationReset(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	mock := startMock(t, ctx)
	storeDir := t.TempDir()
	reset := func(step, email, code, password string) error {
		return RunReset(ctx, &ResetOptions{
			Common:   CommonOptions{BaseURL: mock.URL, StoreKind: "file", StorePath: storeDir},
			Step:     step,
			Email:    email,
			Code:     code,
			Password: password,
		})
	}

	if err := reset("verify", "", "000000", ""); err == nil {
		t.Fatal("verify without a request should fail")
	}
	if err := reset("request", "client@example.com", "", ""); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := mock.Backend.OTP("client@example.com")
	if err := reset("verify", "", code, ""); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := reset("set", "", "", "fresh-password"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !mock.Backend.CheckPassword("client@example.com", "fresh-password") {
		t.Error("password not changed")
	}
	if err := reset("set", "", "", "fresh-password"); err == nil {
		t.Error("set after completion should fail")
	}
	if err := reset("sideways", "", "", ""); err == nil {
		t.Error("unknown step should fail")
	}
}

func TestIntegrationServe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	mock := startMock(t, ctx)
	dir := t.TempDir()
	profile := filepath.Join(dir, "vsession.toml")
	err := os.WriteFile(profile, []byte(`
base_url = "`+mock.URL+`"
timeout = "5s"

[store]
kind = "file"
path = "`+filepath.ToSlash(filepath.Join(dir, "store"))+`"

[homes]
login = "/signin"
by_role = { viewer = "/view" }

[[routes]]
path = "/signin"
public = true

[[routes]]
path = "/view"
roles = ["viewer"]

[[routes]]
path = "/admin"
roles = ["admin"]
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := RunLogin(ctx, &LoginOptions{
		Common:   CommonOptions{ConfigPath: profile},
		Email:    "viewer@example.com",
		Password: demoPassword,
	}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	resultCh := make(chan *ServeResult, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunServeWithResult(ctx, &ServeOptions{
			Common:     CommonOptions{ConfigPath: profile},
			ListenAddr: "127.0.0.1:0",
		}, resultCh)
	}()
	var served *ServeResult
	select {
	case served = <-resultCh:
	case err := <-errCh:
		t.Fatalf("serve failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve startup timeout")
	}
	if served.State != vdef.StateAuthenticated {
		t.Fatalf("serve state = %s", served.State)
	}

	hc := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	base := "http://" + served.Addr

	resp, err := hc.Get(base + "/admin")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/view" {
		t.Errorf("/admin: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = hc.Get(base + "/view")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "viewer@example.com") {
		t.Errorf("/view: %d %q", resp.StatusCode, body)
	}

	resp, err = hc.Get(base + "/_session")
	if err != nil {
		t.Fatal(err)
	}
	var info sessionInfo
	json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if info.State != "authenticated" || info.User == nil || info.User.Role != vdef.RoleViewer {
		t.Errorf("/_session = %+v", info)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Error("serve did not stop")
	}
}

func TestProfileRoutes(t *testing.T) {
	p := &Profile{
		Homes: HomesProfile{ByRole: map[string]string{"Admin": "/root"}},
		Routes: []RouteProfile{
			{Path: "/a", Roles: []string{"admin", " Viewer "}},
			{Path: "/login", Public: true},
		},
	}
	routes, err := p.routes()
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 || len(routes[0].Roles) != 2 || routes[0].Roles[1] != vdef.RoleViewer || !routes[1].Public {
		t.Errorf("routes = %+v", routes)
	}
	homes, err := p.homes()
	if err != nil {
		t.Fatal(err)
	}
	if homes.HomeFor(vdef.RoleAdmin) != "/root" || homes.HomeFor(vdef.RoleClient) != vguard.DefaultHomes().HomeFor(vdef.RoleClient) {
		t.Errorf("homes = %+v", homes)
	}

	bad := &Profile{Routes: []RouteProfile{{Path: "/x", Roles: []string{"superuser"}}}}
	if _, err := bad.routes(); err == nil {
		t.Error("unknown role accepted")
	}
	if routes, _ := (&Profile{}).routes(); len(routes) == 0 {
		t.Error("no default routes")
	}
}

func TestResolveRequiresBaseURL(t *testing.T) {
	o := &CommonOptions{}
	if _, err := o.resolve(); err == nil {
		t.Fatal("resolve() without a base URL should fail")
	}
}

package vdef

import (
	"encoding/json"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{" Coordinator ", RoleCoordinator, false},
		{"RETREAD", RoleRetread, false},
		{"viewer", RoleViewer, false},
		{"", "", true},
		{"root", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUserClone(t *testing.T) {
	var nilUser *User
	if nilUser.Clone() != nil {
		t.Fatal("nil Clone() != nil")
	}

	u := &User{Role: RoleClient, AccountID: "1", CompanyCodes: []string{"A", "B"}, Email: "x@y.z"}
	c := u.Clone()
	c.CompanyCodes[0] = "Z"
	c.Role = RoleAdmin
	if u.CompanyCodes[0] != "A" || u.Role != RoleClient {
		t.Errorf("Clone shares state: %+v", u)
	}
}

func TestUserFlags(t *testing.T) {
	u := &User{Role: RoleRetread, CompanyCodes: []string{"C1"}}
	if !u.IsRetread() || u.IsAdmin() || u.IsClient() || u.IsCoordinator() || u.IsViewer() {
		t.Errorf("flags wrong for %s", u.Role)
	}
	if !u.HasRole(RoleAdmin, RoleRetread) || u.HasRole() {
		t.Error("HasRole")
	}
	if !u.CanUseCompany("C1") || u.CanUseCompany("C2") {
		t.Error("CanUseCompany")
	}

	var anon *User
	if anon.IsAdmin() || anon.CanUseCompany("C1") || anon.String() != "<anonymous>" {
		t.Error("nil user should have no rights")
	}
}

func TestUserJSON(t *testing.T) {
	const body = `{"role":"coordinator","accountId":"42","companyCodes":["C01"],"email":"a@b.com","name":"Ann"}`
	var u User
	if err := json.Unmarshal([]byte(body), &u); err != nil {
		t.Fatal(err)
	}
	if u.Role != RoleCoordinator || u.AccountID != "42" || len(u.CompanyCodes) != 1 || u.Name != "Ann" {
		t.Errorf("decoded %+v", u)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateUnknown:       "unknown",
		StateAnonymous:     "anonymous",
		StateAuthenticated: "authenticated",
		State(9):           "state(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

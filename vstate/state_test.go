package vstate

import (
	"errors"
	"testing"
)

type testState int

const (
	stateUnknown testState = iota
	stateAnonymous
	stateAuthenticated
)

func (s testState) String() string {
	switch s {
	case stateUnknown:
		return "unknown"
	case stateAnonymous:
		return "anonymous"
	case stateAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

var testTransitions = []Transition[testState]{
	{From: stateUnknown, To: stateAuthenticated, Name: "validated"},
	{From: stateUnknown, To: stateAnonymous, Name: "no-session"},
	{From: stateUnknown, To: stateAnonymous, Name: "validation-failed"},
	{From: stateAnonymous, To: stateAuthenticated, Name: "login"},
	{From: stateAuthenticated, To: stateAnonymous, Name: "logout"},
	{From: stateAuthenticated, To: stateAuthenticated, Name: "replaced"},
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		name        string
		initial     testState
		to          testState
		wantErr     bool
		wantCanMove bool
	}{
		{"valid: unknown -> authenticated", stateUnknown, stateAuthenticated, false, true},
		{"valid: unknown -> anonymous", stateUnknown, stateAnonymous, false, true},
		{"valid: anonymous -> authenticated", stateAnonymous, stateAuthenticated, false, true},
		{"valid: authenticated self loop", stateAuthenticated, stateAuthenticated, false, true},
		{"invalid: anonymous -> unknown", stateAnonymous, stateUnknown, true, false},
		{"invalid: anonymous self loop", stateAnonymous, stateAnonymous, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.initial, testTransitions, nil)
			if got := m.CanTransitionTo(tt.to); got != tt.wantCanMove {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.wantCanMove)
			}
			err := m.TransitionTo(tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			want := tt.to
			if tt.wantErr {
				want = tt.initial
			}
			if m.Current() != want {
				t.Errorf("Current() = %v, want %v", m.Current(), want)
			}
		})
	}
}

func TestTransitionAs(t *testing.T) {
	var gotName string
	m := New(stateUnknown, testTransitions, func(from, to testState, name string) {
		gotName = name
	})

	from, err := m.TransitionAs(stateAnonymous, "validation-failed")
	if err != nil {
		t.Fatal(err)
	}
	if from != stateUnknown {
		t.Errorf("from = %v, want unknown", from)
	}
	if gotName != "validation-failed" {
		t.Errorf("onChange name = %q, want validation-failed", gotName)
	}

	_, err = m.TransitionAs(stateAuthenticated, "validated")
	var ite *InvalidTransitionError[testState]
	if !errors.As(err, &ite) {
		t.Fatalf("TransitionAs(undeclared name) error = %v, want InvalidTransitionError", err)
	}
	if ite.From != stateAnonymous || ite.To != stateAuthenticated {
		t.Errorf("error = %+v", ite)
	}
	if m.Current() != stateAnonymous {
		t.Errorf("state changed after rejected transition: %v", m.Current())
	}
}

func TestDefaultTransitionName(t *testing.T) {
	var names []string
	m := New(stateUnknown, testTransitions, func(_, _ testState, name string) {
		names = append(names, name)
	})
	m.MustTransitionTo(stateAnonymous)
	m.MustTransitionTo(stateAuthenticated)
	m.MustTransitionTo(stateAuthenticated)

	want := []string{"no-session", "login", "replaced"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMustTransitionToPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustTransitionTo() should panic on an undeclared transition")
		}
	}()
	New(stateAnonymous, testTransitions, nil).MustTransitionTo(stateUnknown)
}

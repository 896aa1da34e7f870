// Package vstate provides a declared-transition state machine and a small
// subscription feed used to publish the resulting changes.
package vstate

import (
	"fmt"
	"sync"
)

type State interface {
	comparable
	fmt.Stringer
}

// Transition declares a permitted change of state.
type Transition[S State] struct {
	From S
	To   S
	Name string // Reported to observers and subscribers.
}

type edge[S State] struct {
	From, To S
}

// InvalidTransitionError reports a change that was not declared.
type InvalidTransitionError[S State] struct {
	From, To S
}

func (e *InvalidTransitionError[S]) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// Machine holds the current state and rejects undeclared transitions.
// More than one transition may be declared for the same pair of states;
// callers pick the name with TransitionAs.
type Machine[S State] struct {
	mu      sync.RWMutex
	current S

	allowed  map[edge[S]][]string
	onChange func(from, to S, name string)
}

// New creates a state machine starting at initial. onChange, when set, is
// called with the machine locked after every committed transition and must
// not call back into the machine.
func New[S State](initial S, transitions []Transition[S], onChange func(from, to S, name string)) *Machine[S] {
	m := &Machine[S]{
		current:  initial,
		allowed:  make(map[edge[S]][]string),
		onChange: onChange,
	}
	for _, t := range transitions {
		k := edge[S]{From: t.From, To: t.To}
		m.allowed[k] = append(m.allowed[k], t.Name)
	}
	return m
}

func (m *Machine[S]) lookup(from, to S, name string) (string, bool) {
	names, ok := m.allowed[edge[S]{From: from, To: to}]
	if !ok {
		return "", false
	}
	if name == "" {
		return names[0], true
	}
	for _, n := range names {
		if n == name {
			return n, true
		}
	}
	return "", false
}

// CanTransitionTo reports whether a transition to the target state is declared.
func (m *Machine[S]) CanTransitionTo(to S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(m.current, to, "")
	return ok
}

// TransitionTo moves to the target state using the first transition declared
// for the pair.
func (m *Machine[S]) TransitionTo(to S) error {
	_, err := m.TransitionAs(to, "")
	return err
}

// TransitionAs moves to the target state through the transition with the
// given name and returns the state that was left.
func (m *Machine[S]) TransitionAs(to S, name string) (from S, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from = m.current
	name, ok := m.lookup(from, to, name)
	if !ok {
		return from, &InvalidTransitionError[S]{From: from, To: to}
	}
	m.current = to
	if m.onChange != nil {
		m.onChange(from, to, name)
	}
	return from, nil
}

// MustTransitionTo transitions or panics. Use where an invalid transition is
// a programming error.
func (m *Machine[S]) MustTransitionTo(to S) {
	if err := m.TransitionTo(to); err != nil {
		panic(err)
	}
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

package vguard

import (
	"sync"
	"time"

	"github.com/viicommerce/vsession/vdef"
)

// Navigator moves the application to a path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Subscriber publishes session events. *vauth.Manager implements it.
type Subscriber interface {
	Subscribe(fn func(vdef.Event)) (cancel func())
}

// Options configures Follow.
type Options struct {
	// Homes are the navigation targets. The zero value uses DefaultHomes.
	Homes Homes

	// LoginDelay postpones the navigation that follows a login. Zero
	// navigates from inside the event.
	LoginDelay time.Duration
}

// Follow navigates on session events: to the role home after a login and
// to sign-in after a logout, an expiry or a failed validation. A pending
// delayed navigation is dropped when another event arrives first.
// The returned function stops following.
func Follow(sub Subscriber, nav Navigator, opt Options) (cancel func()) {
	if opt.Homes.ByRole == nil && opt.Homes.Default == "" && opt.Homes.Login == "" {
		opt.Homes = DefaultHomes()
	}
	f := &follower{nav: nav, opt: opt}
	unsub := sub.Subscribe(f.onEvent)
	return func() {
		unsub()
		f.stop()
	}
}

type follower struct {
	nav Navigator
	opt Options

	mu      sync.Mutex
	pending *time.Timer
	stopped bool
}

func (f *follower) onEvent(ev vdef.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}

	switch ev.Name {
	case vdef.TransitionLogin:
		var role vdef.Role
		if ev.User != nil {
			role = ev.User.Role
		}
		target := f.opt.Homes.HomeFor(role)
		if f.opt.LoginDelay <= 0 {
			f.nav.Navigate(target)
			return
		}
		var t *time.Timer
		t = time.AfterFunc(f.opt.LoginDelay, func() {
			f.mu.Lock()
			current := !f.stopped && f.pending == t
			if current {
				f.pending = nil
			}
			f.mu.Unlock()
			if current {
				f.nav.Navigate(target)
			}
		})
		f.pending = t
	case vdef.TransitionLogout, vdef.TransitionExpired, vdef.TransitionValidationFailed:
		f.nav.Navigate(f.opt.Homes.LoginPath())
	}
}

func (f *follower) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
}

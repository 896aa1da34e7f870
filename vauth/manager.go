package vauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/viicommerce/vsession"
	"github.com/viicommerce/vsession/vclient"
	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vstate"
)

// Messages reported when the backend did not supply one.
const (
	MsgUnreachable   = "Could not reach the server. Check your connection and try again."
	MsgSignedIn      = "Signed in"
	MsgSignedOut     = "Signed out"
	MsgStoreFailed   = "Could not save the session on this device"
	MsgTicketMissing = "The password reset has expired. Request a new code."
	MsgResendTooSoon = "Please wait before requesting another code"
	MsgNoUser        = "No user to set"
)

// DefaultResendInterval is the minimum spacing between verification code requests.
const DefaultResendInterval = 30 * time.Second

// API is the backend surface the Manager drives. *vclient.Client implements it.
type API interface {
	Login(ctx context.Context, email, password string) (vdef.Result[vclient.Login], error)
	Logout(ctx context.Context) (vdef.Result[struct{}], error)
	Me(ctx context.Context) (*vdef.User, error)
	Register(ctx context.Context, reg vclient.Registration) (vdef.Result[struct{}], error)
	RequestReset(ctx context.Context, email string) (vdef.Result[string], error)
	VerifyCode(ctx context.Context, token, otp string) (vdef.Result[string], error)
	SetNewPassword(ctx context.Context, token, newPassword string) (vdef.Result[struct{}], error)
}

// Credentials is the persisted session state. *vsession.CredentialStore implements it.
type Credentials interface {
	Save(id string) error
	Load() string
	Clear() error
	PutTicket(t vsession.Ticket) error
	Ticket() (vsession.Ticket, bool)
	ClearTicket() error
}

var (
	_ API         = (*vclient.Client)(nil)
	_ Credentials = (*vsession.CredentialStore)(nil)
)

// Config configures a Manager.
type Config struct {
	Client      API
	Credentials Credentials

	// Observer receives state changes and diagnostics. Optional.
	Observer vdef.Observer

	// ResendInterval spaces verification code requests. Zero uses
	// DefaultResendInterval, negative disables the throttle.
	ResendInterval time.Duration
}

var transitions = []vstate.Transition[vdef.State]{
	{From: vdef.StateUnknown, To: vdef.StateAuthenticated, Name: vdef.TransitionValidated},
	{From: vdef.StateUnknown, To: vdef.StateAnonymous, Name: vdef.TransitionNoSession},
	{From: vdef.StateUnknown, To: vdef.StateAnonymous, Name: vdef.TransitionValidationFailed},
	{From: vdef.StateUnknown, To: vdef.StateAnonymous, Name: vdef.TransitionLogout},
	{From: vdef.StateUnknown, To: vdef.StateAuthenticated, Name: vdef.TransitionLogin},
	{From: vdef.StateAnonymous, To: vdef.StateAuthenticated, Name: vdef.TransitionLogin},
	{From: vdef.StateAuthenticated, To: vdef.StateAnonymous, Name: vdef.TransitionLogout},
	{From: vdef.StateAuthenticated, To: vdef.StateAnonymous, Name: vdef.TransitionExpired},
	{From: vdef.StateAuthenticated, To: vdef.StateAuthenticated, Name: vdef.TransitionLogin},
	{From: vdef.StateAuthenticated, To: vdef.StateAuthenticated, Name: vdef.TransitionReplaced},
}

// Manager owns the signed-in identity.
type Manager struct {
	api      API
	creds    Credentials
	observer vdef.Observer
	resend   *rate.Limiter
	resendMu sync.Mutex // Held across a reset request so two sends cannot share a token.

	// op serializes every commit: credential writes, the state change and
	// the publish of its event.
	op  sync.Mutex
	gen uint64 // Bumped on every commit, guarded by op.

	mu      sync.RWMutex // Guards user and pairs it with the machine state.
	user    *vdef.User
	machine *vstate.Machine[vdef.State]

	feed vstate.Feed[vdef.Event]
}

// NewManager creates a Manager in the Unknown state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("vauth: client is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("vauth: credentials are required")
	}
	m := &Manager{
		api:      cfg.Client,
		creds:    cfg.Credentials,
		observer: cfg.Observer,
	}
	interval := cfg.ResendInterval
	if interval == 0 {
		interval = DefaultResendInterval
	}
	if interval > 0 {
		m.resend = rate.NewLimiter(rate.Every(interval), 1)
	}
	m.machine = vstate.New(vdef.StateUnknown, transitions, func(from, to vdef.State, name string) {
		if m.observer != nil {
			m.observer.OnStateChange(from, to, name)
		}
	})
	return m, nil
}

func (m *Manager) logf(format string, v ...interface{}) {
	vdef.Logf(m.observer, format, v...)
}

// commit moves to the target state holding u and publishes the event.
// The caller holds m.op. Subscribers run before commit returns.
func (m *Manager) commit(to vdef.State, name string, u *vdef.User) error {
	m.mu.Lock()
	from, err := m.machine.TransitionAs(to, name)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", vdef.ErrInvalidTransition, err)
	}
	m.user = u
	m.mu.Unlock()

	m.gen++
	m.feed.Publish(vdef.Event{From: from, To: to, Name: name, User: u.Clone()})
	return nil
}

// clearSession removes the stored identifier. The caller holds m.op.
func (m *Manager) clearSession() {
	if err := m.creds.Clear(); err != nil {
		m.logf("auth: clear credentials: %v", err)
	}
}

// Subscribe registers fn for every committed transition. fn runs on the
// committing goroutine and must not call Manager methods that change state.
func (m *Manager) Subscribe(fn func(vdef.Event)) (cancel func()) {
	return m.feed.Subscribe(fn)
}

// State returns the current state.
func (m *Manager) State() vdef.State {
	return m.machine.Current()
}

// User returns a copy of the signed-in identity, or nil.
func (m *Manager) User() *vdef.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.Clone()
}

// Snapshot returns the state and a copy of the identity read together.
func (m *Manager) Snapshot() (vdef.State, *vdef.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.machine.Current(), m.user.Clone()
}

// Start validates a stored session. Without one, or when validation fails
// for any reason, the Manager settles Anonymous and the stored session is
// cleared. Start only runs from Unknown; if a login or logout settles the
// state while validation is in flight, the validation result is dropped.
func (m *Manager) Start(ctx context.Context) error {
	if s := m.State(); s != vdef.StateUnknown {
		return fmt.Errorf("%w: start from %s", vdef.ErrInvalidTransition, s)
	}

	var (
		user *vdef.User
		err  error
		name = vdef.TransitionNoSession
	)
	if m.creds.Load() != "" {
		user, err = m.api.Me(ctx)
		name = vdef.TransitionValidated
		if err != nil {
			m.logf("auth: startup validation failed: %v", err)
			name = vdef.TransitionValidationFailed
		}
	}

	m.op.Lock()
	defer m.op.Unlock()
	if m.machine.Current() != vdef.StateUnknown {
		m.logf("auth: startup validation superseded")
		return nil
	}
	if name != vdef.TransitionValidated {
		m.clearSession()
		return m.commit(vdef.StateAnonymous, name, nil)
	}
	return m.commit(vdef.StateAuthenticated, name, user.Clone())
}

// Validate re-checks the current session with the backend. A rejected
// session or a malformed reply signs the user out with the expired
// transition. A session identifier that has vanished from the store signs
// the user out the same way and returns vdef.ErrNoSession. Transport
// failures are returned and leave the state alone.
func (m *Manager) Validate(ctx context.Context) error {
	m.op.Lock()
	gen := m.gen
	state := m.machine.Current()
	m.op.Unlock()
	if state != vdef.StateAuthenticated {
		return vdef.ErrNotAuthenticated
	}
	if m.creds.Load() == "" {
		// Cleared outside this manager, for example by another process
		// sharing the store.
		m.op.Lock()
		defer m.op.Unlock()
		if m.gen != gen {
			return nil
		}
		m.logf("auth: stored session is gone")
		m.clearSession()
		if err := m.commit(vdef.StateAnonymous, vdef.TransitionExpired, nil); err != nil {
			return err
		}
		return vdef.ErrNoSession
	}

	user, err := m.api.Me(ctx)

	var he *vclient.HTTPError
	rejected := errors.As(err, &he) || errors.Is(err, vdef.ErrMalformedResponse)
	if err != nil && !rejected {
		m.logf("auth: validation: %v", err)
		return err
	}

	m.op.Lock()
	defer m.op.Unlock()
	if m.gen != gen {
		return nil
	}
	if rejected {
		m.logf("auth: session rejected: %v", err)
		m.clearSession()
		return m.commit(vdef.StateAnonymous, vdef.TransitionExpired, nil)
	}

	m.mu.RLock()
	same := sameUser(m.user, user)
	m.mu.RUnlock()
	if same {
		return nil
	}
	return m.commit(vdef.StateAuthenticated, vdef.TransitionReplaced, user.Clone())
}

// Watch calls Validate every interval while authenticated, until ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("vauth: watch interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.State() != vdef.StateAuthenticated {
				continue
			}
			if err := m.Validate(ctx); err != nil && ctx.Err() == nil {
				m.logf("auth: watch: %v", err)
			}
		}
	}
}

// Login signs in. A failed attempt leaves the state unchanged and reports
// the backend's message as is. On success the session identifier is stored
// before the state changes.
func (m *Manager) Login(ctx context.Context, email, password string) vdef.Result[*vdef.User] {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.logf("auth: login: %v", err)
		return vdef.Fail[*vdef.User](MsgUnreachable, err)
	}
	if !res.Success {
		return vdef.Fail[*vdef.User](res.Message, res.Err)
	}

	m.op.Lock()
	defer m.op.Unlock()
	if err := m.creds.Save(res.Data.SessionID); err != nil {
		m.logf("auth: login: %v", err)
		return vdef.Fail[*vdef.User](MsgStoreFailed, err)
	}
	user := res.Data.User.Clone()
	if err := m.commit(vdef.StateAuthenticated, vdef.TransitionLogin, user); err != nil {
		m.clearSession()
		return vdef.Fail[*vdef.User](MsgStoreFailed, err)
	}
	msg := res.Message
	if msg == "" {
		msg = MsgSignedIn
	}
	return vdef.Ok(user.Clone(), msg)
}

// Logout ends the session. The backend is told only when a session is
// stored; its answer is logged and returned in Err, but local cleanup
// always happens and the result is always successful. Calling Logout
// without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) vdef.Result[struct{}] {
	var netErr error
	if m.creds.Load() != "" {
		res, err := m.api.Logout(ctx)
		switch {
		case err != nil:
			m.logf("auth: logout: %v", err)
			netErr = err
		case !res.Success:
			m.logf("auth: logout rejected: %s", res.Message)
			netErr = res.Err
		}
	}

	m.op.Lock()
	defer m.op.Unlock()
	m.clearSession()
	if m.machine.Current() != vdef.StateAnonymous {
		if err := m.commit(vdef.StateAnonymous, vdef.TransitionLogout, nil); err != nil {
			m.logf("auth: logout: %v", err)
		}
	}
	return vdef.Result[struct{}]{Success: true, Message: MsgSignedOut, Err: netErr}
}

// SetUser replaces the whole identity record while authenticated.
func (m *Manager) SetUser(u *vdef.User) error {
	if u == nil {
		return fmt.Errorf("vauth: %s", MsgNoUser)
	}
	m.op.Lock()
	defer m.op.Unlock()
	if m.machine.Current() != vdef.StateAuthenticated {
		return vdef.ErrNotAuthenticated
	}
	return m.commit(vdef.StateAuthenticated, vdef.TransitionReplaced, u.Clone())
}

// Register creates an account. It does not sign in.
func (m *Manager) Register(ctx context.Context, reg vclient.Registration) vdef.Result[struct{}] {
	res, err := m.api.Register(ctx, reg)
	if err != nil {
		m.logf("auth: register: %v", err)
		return vdef.Fail[struct{}](MsgUnreachable, err)
	}
	return res
}

func sameUser(a, b *vdef.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Role == b.Role &&
		a.AccountID == b.AccountID &&
		a.Email == b.Email &&
		a.Name == b.Name &&
		slices.Equal(a.CompanyCodes, b.CompanyCodes)
}

package vsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vstore"
)

// Well-known keys used by CredentialStore.
const (
	KeySession     = "session"      // Encrypted session identifier.
	KeyHasSession  = "has-session"  // Plain marker for fast synchronous checks.
	KeyResetTicket = "reset-ticket" // Encrypted CBOR Ticket.
)

// DefaultTicketTTL bounds how long a password reset ticket is honoured.
const DefaultTicketTTL = 15 * time.Minute

// TicketStage is the step of the password reset flow a ticket unlocks.
type TicketStage uint8

const (
	// StageRequested tickets come from a reset request and unlock code verification.
	StageRequested TicketStage = iota + 1
	// StageVerified tickets come from code verification and unlock the new password.
	StageVerified
)

func (s TicketStage) String() string {
	switch s {
	case StageRequested:
		return "requested"
	case StageVerified:
		return "verified"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Ticket is the single current password reset token. Each step of the
// flow overwrites it with the token for the next step.
type Ticket struct {
	Stage    TicketStage `cbor:"1,keyasint"`
	Token    string      `cbor:"2,keyasint"`
	Email    string      `cbor:"3,keyasint,omitempty"`
	IssuedAt time.Time   `cbor:"4,keyasint"`
}

var ticketEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// CredentialStore persists the session identifier and the reset ticket in
// a vstore.DataStore. The identifier is only ever written encrypted.
//
// Read failures are never returned to callers of Load or Ticket: a value
// that cannot be read or decrypted is the same as no value.
type CredentialStore struct {
	store     vstore.DataStore
	observer  vdef.Observer
	ticketTTL time.Duration

	mu sync.Mutex // Serializes multi-key updates.
}

// CredentialConfig configures a CredentialStore.
type CredentialConfig struct {
	// Store is the underlying data store.
	Store vstore.DataStore

	// Observer receives read and write failures. Optional.
	Observer vdef.Observer

	// TicketTTL overrides DefaultTicketTTL. Negative disables expiry.
	TicketTTL time.Duration
}

// NewCredentialStore creates a credential store over cfg.Store.
func NewCredentialStore(cfg CredentialConfig) (*CredentialStore, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("data store is required")
	}
	ttl := cfg.TicketTTL
	if ttl == 0 {
		ttl = DefaultTicketTTL
	}
	return &CredentialStore{
		store:     cfg.Store,
		observer:  cfg.Observer,
		ticketTTL: ttl,
	}, nil
}

// Save encrypts and stores the session identifier and sets the has-session marker.
func (s *CredentialStore) Save(id string) error {
	if id == "" {
		return vdef.ErrEmptySession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(KeySession, true, []byte(id)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.store.Set(KeyHasSession, false, []byte("true")); err != nil {
		return fmt.Errorf("save session marker: %w", err)
	}
	return nil
}

// Load returns the stored session identifier, or "" when there is none or
// the stored value cannot be decrypted.
func (s *CredentialStore) Load() string {
	data, err := s.store.Get(KeySession, true)
	if err != nil {
		vdef.Logf(s.observer, "credentials: ignoring unreadable session: %v", err)
		return ""
	}
	return string(data)
}

// HasSession reports the has-session marker without decrypting anything.
func (s *CredentialStore) HasSession() bool {
	data, err := s.store.Get(KeyHasSession, false)
	return err == nil && string(data) == "true"
}

// Clear removes the session identifier and the marker. Both deletes are
// attempted even if the first fails.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errSession := s.store.Delete(KeySession)
	errMarker := s.store.Delete(KeyHasSession)
	if errSession != nil {
		return fmt.Errorf("clear session: %w", errSession)
	}
	if errMarker != nil {
		return fmt.Errorf("clear session marker: %w", errMarker)
	}
	return nil
}

// PutTicket replaces the current reset ticket. A zero IssuedAt is set to now.
func (s *CredentialStore) PutTicket(t Ticket) error {
	if t.Token == "" {
		return fmt.Errorf("vsession: empty reset token")
	}
	if t.IssuedAt.IsZero() {
		t.IssuedAt = timeNow()
	}
	data, err := ticketEnc.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	if err := s.store.Set(KeyResetTicket, true, data); err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

// Ticket returns the current reset ticket. Expired or unreadable tickets
// are deleted and reported as absent.
func (s *CredentialStore) Ticket() (Ticket, bool) {
	data, err := s.store.Get(KeyResetTicket, true)
	if err != nil {
		vdef.Logf(s.observer, "credentials: dropping unreadable reset ticket: %v", err)
		s.dropTicket()
		return Ticket{}, false
	}
	if len(data) == 0 {
		return Ticket{}, false
	}

	var t Ticket
	if err := cbor.Unmarshal(data, &t); err != nil || t.Token == "" {
		vdef.Logf(s.observer, "credentials: dropping malformed reset ticket: %v", err)
		s.dropTicket()
		return Ticket{}, false
	}
	if s.ticketTTL > 0 && timeNow().Sub(t.IssuedAt) > s.ticketTTL {
		vdef.Logf(s.observer, "credentials: reset ticket (%s) expired", t.Stage)
		s.dropTicket()
		return Ticket{}, false
	}
	return t, true
}

// ClearTicket deletes the current reset ticket.
func (s *CredentialStore) ClearTicket() error {
	if err := s.store.Delete(KeyResetTicket); err != nil {
		return fmt.Errorf("clear ticket: %w", err)
	}
	return nil
}

func (s *CredentialStore) dropTicket() {
	if err := s.ClearTicket(); err != nil {
		vdef.Logf(s.observer, "credentials: %v", err)
	}
}

// Path returns the location of the underlying store.
func (s *CredentialStore) Path() string {
	return s.store.Path()
}

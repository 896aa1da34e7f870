// Package vmock provides a fake storefront backend and test helpers.
package vmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/viicommerce/vsession/vdef"
)

// API paths served by Backend.
const (
	PathLogin        = "/auth/login"
	PathLogout       = "/auth/logout"
	PathMe           = "/auth/me"
	PathRegister     = "/auth/register"
	PathResetRequest = "/reset-password/request"
	PathResetVerify  = "/reset-password/verify-otp"
	PathResetSet     = "/reset-password/resPss"
)

const (
	stageRequest  = "request"
	stageVerified = "verified"
)

type account struct {
	user vdef.User
	hash []byte
}

type resetState struct {
	email    string
	code     string
	used     bool
	attempts int
}

type fault struct {
	status  int
	message string
}

type resetClaims struct {
	Stage string `json:"stage"`
	jwt.RegisteredClaims
}

// Backend is an in-memory implementation of the storefront auth API.
type Backend struct {
	signKey  []byte
	resetTTL time.Duration

	mu            sync.Mutex
	accounts      map[string]*account // By lower-case email.
	sessions      map[string]string   // Session id -> email.
	resets        map[string]*resetState
	lastOTP       map[string]string
	hits          map[string]int
	faults        map[string]fault
	omitSessionID bool
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		signKey:  []byte(uuid.NewString()),
		resetTTL: 10 * time.Minute,
		accounts: make(map[string]*account),
		sessions: make(map[string]string),
		resets:   make(map[string]*resetState),
		lastOTP:  make(map[string]string),
		hits:     make(map[string]int),
		faults:   make(map[string]fault),
	}
}

// AddUser registers an account. Password hashing uses the minimum bcrypt
// cost to keep tests fast.
func (b *Backend) AddUser(u vdef.User, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	if u.AccountID == "" {
		u.AccountID = uuid.NewString()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[strings.ToLower(u.Email)] = &account{user: *u.Clone(), hash: hash}
}

// SetUser replaces the server-side record of an existing account.
func (b *Backend) SetUser(u vdef.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[strings.ToLower(u.Email)]; ok {
		a.user = *u.Clone()
	}
}

// CheckPassword reports whether password is current for email.
func (b *Backend) CheckPassword(email, password string) bool {
	b.mu.Lock()
	a, ok := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()
	return ok && bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
}

// Revoke ends every session of email, as a server-side expiry would.
func (b *Backend) Revoke(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.sessions {
		if e == strings.ToLower(email) {
			delete(b.sessions, id)
		}
	}
}

// Sessions returns the number of live sessions.
func (b *Backend) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// OTP returns the last verification code issued for email.
func (b *Backend) OTP(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastOTP[strings.ToLower(email)]
}

// Hits returns how many requests reached path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// FailNext makes the next request to path fail with status and message.
func (b *Backend) FailNext(path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[path] = fault{status: status, message: message}
}

// SetOmitSessionID makes successful logins leave idSession out of the body.
func (b *Backend) SetOmitSessionID(omit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.omitSessionID = omit
}

// Serve starts the backend on a local listener for the life of the test
// and returns its base URL.
func (b *Backend) Serve(tb testing.TB) string {
	tb.Helper()
	srv := httptest.NewServer(b.Router())
	tb.Cleanup(srv.Close)
	return srv.URL
}

// Router returns the HTTP handler of the backend.
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(b.count)

	r.Post(PathLogin, b.handleLogin)
	r.Post(PathRegister, b.handleRegister)
	r.With(b.requireSession).Post(PathLogout, b.handleLogout)
	r.With(b.requireSession).Get(PathMe, b.handleMe)

	r.Post(PathResetRequest, b.handleResetRequest)
	r.Post(PathResetVerify, b.handleResetVerify)
	r.Post(PathResetSet, b.handleResetSet)
	return r
}

// count records the hit and applies any pending fault.
func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		f, failing := b.faults[r.URL.Path]
		delete(b.faults, r.URL.Path)
		b.mu.Unlock()

		if failing {
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(vdef.HeaderSession)
		b.mu.Lock()
		email, ok := b.sessions[id]
		b.mu.Unlock()
		if id == "" || !ok {
			writeError(w, http.StatusUnauthorized, "Session expired")
			return
		}
		r.Header.Set("X-Session-Email", email)
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[email]
	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	id := uuid.NewString()
	b.sessions[id] = email
	body := map[string]interface{}{"user": a.user}
	if !b.omitSessionID {
		body["idSession"] = id
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	delete(b.sessions, r.Header.Get(vdef.HeaderSession))
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session closed"})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	a, ok := b.accounts[r.Header.Get("X-Session-Email")]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Session expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": a.user})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	CompanyCode string `json:"companyCode"`
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "A valid email and a password of at least 8 characters are required")
		return
	}

	b.mu.Lock()
	_, exists := b.accounts[email]
	b.mu.Unlock()
	if exists {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	u := vdef.User{Role: vdef.RoleClient, Email: email, Name: req.Name}
	if req.CompanyCode != "" {
		u.CompanyCodes = []string{req.CompanyCode}
	}
	b.AddUser(u, req.Password)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account created"})
}

type resetRequest struct {
	Email string `json:"email"`
}

func (b *Backend) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	b.mu.Lock()
	_, ok := b.accounts[email]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Email not registered")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ViiCommerce", AccountName: email})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not create code")
		return
	}
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not create code")
		return
	}

	jti := uuid.NewString()
	token, err := b.signReset(email, jti, stageRequest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not create ticket")
		return
	}

	b.mu.Lock()
	b.resets[jti] = &resetState{email: email, code: code}
	b.lastOTP[email] = code
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Verification code sent",
		"resetToken": token,
	})
}

type verifyRequest struct {
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

func (b *Backend) handleResetVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	claims, err := b.parseReset(req.Token, stageRequest)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Reset link expired")
		return
	}

	b.mu.Lock()
	st, ok := b.resets[claims.ID]
	if !ok || st.used {
		b.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Reset link expired")
		return
	}
	st.attempts++
	if st.attempts > 5 {
		st.used = true
		b.mu.Unlock()
		writeError(w, http.StatusTooManyRequests, "Too many attempts")
		return
	}
	if st.code != strings.TrimSpace(req.OTP) {
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Incorrect code")
		return
	}
	st.used = true
	next := uuid.NewString()
	b.resets[next] = &resetState{email: st.email}
	b.mu.Unlock()

	token, err := b.signReset(claims.Subject, next, stageVerified)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not create ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Code verified",
		"resetToken": token,
	})
}

type setPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (b *Backend) handleResetSet(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must have at least 8 characters")
		return
	}
	claims, err := b.parseReset(req.Token, stageVerified)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Reset link expired")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not update password")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.resets[claims.ID]
	a, found := b.accounts[claims.Subject]
	if !ok || st.used || !found {
		writeError(w, http.StatusUnauthorized, "Reset link expired")
		return
	}
	st.used = true
	a.hash = hash
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func (b *Backend) signReset(email, jti, stage string) (string, error) {
	now := time.Now()
	claims := resetClaims{
		Stage: stage,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.resetTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signKey)
}

func (b *Backend) parseReset(token, stage string) (*resetClaims, error) {
	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return b.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Stage != stage {
		return nil, fmt.Errorf("ticket stage %q, want %q", claims.Stage, stage)
	}
	return claims, nil
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

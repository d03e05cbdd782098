// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth manages kiosk operators: PIN sign-in with optional TOTP,
// failed-attempt lockout, and the single signed-in session the rest of
// gatelog observes.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/gatelog/internal/clock"
	"github.com/jeranaias/gatelog/internal/util"
)

const (
	// Issuer names the account in authenticator apps.
	Issuer = "gatelog"

	MinPINLength = 4
	MaxPINLength = 12
)

var (
	ErrInvalidCredentials = errors.New("invalid user name or PIN")
	ErrLockedOut          = errors.New("account temporarily locked")
	ErrTOTPRequired       = errors.New("one-time code required")
	ErrInvalidTOTP        = errors.New("invalid one-time code")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidPIN         = fmt.Errorf("PIN must be %d-%d digits", MinPINLength, MaxPINLength)
	ErrInvalidName        = errors.New("user name must be 1-32 letters, digits, '.', '-' or '_'")
)

// User is a stored operator account.
type User struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	PINHash     string    `json:"pin_hash"`
	TOTPSecret  string    `json:"totp_secret,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserInfo is the public view of a User.
type UserInfo struct {
	Name        string
	DisplayName string
	TOTP        bool
	CreatedAt   time.Time
}

// Session is the signed-in operator.
type Session struct {
	ID          string
	User        string
	DisplayName string
	Since       time.Time
}

// Recorder receives sign-in metrics. A nil Recorder is allowed.
type Recorder interface {
	IncLogin(result string)
}

type usersFile struct {
	Version int     `json:"version"`
	Users   []*User `json:"users"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock for lockouts and TOTP validation.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockout sets the failed-attempt limit and lockout period.
func WithLockout(maxAttempts int, d time.Duration) Option {
	return func(s *Store) {
		s.maxAttempts = maxAttempts
		s.lockoutFor = d
	}
}

// WithRequireTOTP rejects sign-in for accounts without a TOTP secret.
func WithRequireTOTP(required bool) Option {
	return func(s *Store) { s.requireTOTP = required }
}

// WithBcryptCost overrides the PIN hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// Store holds operator accounts and the current session.
type Store struct {
	path        string
	clock       clockwork.Clock
	logger      *slog.Logger
	recorder    Recorder
	cost        int
	requireTOTP bool
	maxAttempts int
	lockoutFor  time.Duration
	lockout     *Lockout

	// dummyHash keeps unknown-user sign-ins as slow as real ones.
	dummyHash []byte

	mu      sync.RWMutex
	users   map[string]*User
	current *Session

	subMu  sync.Mutex
	subs   map[int]func(bool)
	nextID int
}

// NewStore loads users from path, creating an empty store if the file does
// not exist.
func NewStore(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:  path,
		cost:  bcrypt.DefaultCost,
		users: make(map[string]*User),
		subs:  make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.lockout = NewLockout(s.clock, s.maxAttempts, s.lockoutFor)

	dummy, err := bcrypt.GenerateFromPassword([]byte("000000"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise PIN hashing: %w", err)
	}
	s.dummyHash = dummy

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read users file: %w", err)
	}
	var f usersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse users file %s: %w", s.path, err)
	}
	for _, u := range f.Users {
		s.users[normalizeName(u.Name)] = u
	}
	return nil
}

// saveLocked writes the users file. Caller holds s.mu.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	f := usersFile{Version: 1}
	for _, u := range s.users {
		f.Users = append(f.Users, u)
	}
	sort.Slice(f.Users, func(i, j int) bool { return f.Users[i].Name < f.Users[j].Name })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(s.path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AddUser creates an account. With withTOTP it returns the otpauth:// URL
// to enrol in an authenticator app.
func (s *Store) AddUser(name, displayName, pin string, withTOTP bool) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}

	u := &User{
		Name:        name,
		DisplayName: strings.TrimSpace(displayName),
		PINHash:     string(hash),
		CreatedAt:   s.clock.Now().UTC(),
	}
	if u.DisplayName == "" {
		u.DisplayName = name
	}

	var url string
	if withTOTP {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: Issuer, AccountName: name})
		if err != nil {
			return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
		}
		u.TOTPSecret = key.Secret()
		url = key.URL()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeName(name)
	if _, ok := s.users[key]; ok {
		return "", fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	s.users[key] = u
	if err := s.saveLocked(); err != nil {
		delete(s.users, key)
		return "", err
	}
	s.logger.Info("auth event", "auth_event", "USER_ADDED", "user", name, "totp", withTOTP)
	return url, nil
}

// RemoveUser deletes an account.
func (s *Store) RemoveUser(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeName(name)
	u, ok := s.users[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	delete(s.users, key)
	if err := s.saveLocked(); err != nil {
		s.users[key] = u
		return err
	}
	s.logger.Info("auth event", "auth_event", "USER_REMOVED", "user", name)
	return nil
}

// Users lists accounts sorted by name.
func (s *Store) Users() []UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserInfo, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, UserInfo{
			Name:        u.Name,
			DisplayName: u.DisplayName,
			TOTP:        u.TOTPSecret != "",
			CreatedAt:   u.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// =============================================================================
// SIGN-IN
// =============================================================================

// Login verifies the PIN (and code, for TOTP accounts) and starts a session,
// replacing any current one.
func (s *Store) Login(ctx context.Context, name, pin, code string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := normalizeName(name)
	if left := s.lockout.Remaining(key); left > 0 {
		s.record("locked")
		return nil, fmt.Errorf("%w: try again in %s", ErrLockedOut, left.Round(time.Second))
	}

	s.mu.RLock()
	u, ok := s.users[key]
	s.mu.RUnlock()

	hash := s.dummyHash
	if ok {
		hash = []byte(u.PINHash)
	}
	pinErr := bcrypt.CompareHashAndPassword(hash, []byte(pin))
	if !ok || pinErr != nil {
		return nil, s.fail(key, ErrInvalidCredentials)
	}

	switch {
	case u.TOTPSecret != "":
		if code == "" {
			s.record("totp_required")
			return nil, ErrTOTPRequired
		}
		valid, err := totp.ValidateCustom(strings.TrimSpace(code), u.TOTPSecret, s.clock.Now(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !valid {
			return nil, s.fail(key, ErrInvalidTOTP)
		}
	case s.requireTOTP:
		s.record("totp_required")
		return nil, fmt.Errorf("%w: account %s has no authenticator enrolled", ErrTOTPRequired, u.Name)
	}

	s.lockout.RecordSuccess(key)
	sess := &Session{
		ID:          "auth_" + uuid.NewString(),
		User:        u.Name,
		DisplayName: u.DisplayName,
		Since:       s.clock.Now(),
	}

	s.mu.Lock()
	prev := s.current
	s.current = sess
	s.mu.Unlock()

	s.record("success")
	s.logger.Info("auth event", "auth_event", "LOGIN", "user", u.Name, "auth_session", sess.ID)
	if prev == nil {
		s.publish(true)
	}
	return sess, nil
}

func (s *Store) fail(key string, err error) error {
	locked := s.lockout.RecordFailure(key)
	s.record("failure")
	s.logger.Warn("auth event", "auth_event", "LOGIN_FAILED", "user", key, "locked", locked)
	if locked {
		return fmt.Errorf("%w: too many failed attempts", ErrLockedOut)
	}
	return err
}

func (s *Store) record(result string) {
	if s.recorder != nil {
		s.recorder.IncLogin(result)
	}
}

// Logout ends the current session. Calling it with no session is a no-op.
func (s *Store) Logout() {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev == nil {
		return
	}
	s.logger.Info("auth event", "auth_event", "LOGOUT", "user", prev.User, "auth_session", prev.ID)
	s.publish(false)
}

// IsAuthenticated reports whether an operator is signed in.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Current returns a copy of the signed-in session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// User returns the signed-in user name, or "".
func (s *Store) User() string {
	sess, _ := s.Current()
	return sess.User
}

// Subscribe registers fn for sign-in state changes. fn runs on the
// goroutine that changed the state.
func (s *Store) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) publish(authenticated bool) {
	s.subMu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(authenticated)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validName(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func validPIN(pin string) bool {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package services holds the stateful core of the client: the session
// manager, the conversation store, the directory tracker, the threat and
// admin monitors, and the coordinator that ties their polling channels to
// the session and the current view.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

var (
	ErrNoCredential    = errors.New("no credential")
	ErrAlreadyLoggedIn = fmt.Errorf("%w: already logged in, log out first", client.ErrValidation)
)

// CredentialStore persists the credential across restarts.
type CredentialStore interface {
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// PhaseHook observes session phase transitions.
type PhaseHook func(from, to models.Phase)

// SessionManager owns the credential and the verified identity. It is the
// only writer of both; every request reads the credential through
// CurrentCredential at the moment it is built.
type SessionManager struct {
	client client.Client
	store  CredentialStore
	clock  clock.Clock
	log    logging.Logger

	mu         sync.Mutex
	phase      models.Phase
	credential string
	expiresAt  time.Time
	identity   *models.Identity

	hooksMu    sync.Mutex
	teardown   []func()
	phaseHooks []PhaseHook
}

type SessionOption func(*SessionManager)

func WithSessionClock(c clock.Clock) SessionOption {
	return func(s *SessionManager) { s.clock = c }
}

func WithSessionLogger(l logging.Logger) SessionOption {
	return func(s *SessionManager) { s.log = l }
}

func NewSessionManager(c client.Client, store CredentialStore, opts ...SessionOption) *SessionManager {
	s := &SessionManager{
		client: c,
		store:  store,
		clock:  clock.Real(),
		log:    logging.Discard(),
		phase:  models.PhaseUnauthenticated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTeardown registers fn to run first whenever the session ends (logout,
// rejection, expiry), before any session state is cleared. fn must not
// block.
func (s *SessionManager) OnTeardown(fn func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.teardown = append(s.teardown, fn)
}

// OnPhaseChange registers a hook called after every phase transition,
// outside the session lock.
func (s *SessionManager) OnPhaseChange(h PhaseHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.phaseHooks = append(s.phaseHooks, h)
}

// Start restores a persisted credential and, if there is one, verifies it.
func (s *SessionManager) Start(ctx context.Context) error {
	found, err := s.Restore(ctx)
	if err != nil || !found {
		return err
	}
	return s.Verify(ctx)
}

// Restore loads the persisted credential into memory without contacting
// the server. A credential whose expiry has passed is discarded and the
// session moves to EXPIRED.
func (s *SessionManager) Restore(ctx context.Context) (bool, error) {
	token, ok, err := s.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	exp := tokenExpiry(token)
	if !exp.IsZero() && !s.clock.Now().Before(exp) {
		s.log.Info(ctx, "persisted credential expired", "expired_at", exp)
		s.end(ctx, models.PhaseExpired)
		return false, nil
	}

	s.mu.Lock()
	s.credential = token
	s.expiresAt = exp
	s.mu.Unlock()
	return true, nil
}

// Verify checks the in-memory credential against the server. Success moves
// to AUTHENTICATED; an explicit rejection discards the credential and moves
// to UNAUTHENTICATED; any other failure restores the previous phase and
// keeps the credential.
func (s *SessionManager) Verify(ctx context.Context) error {
	s.mu.Lock()
	if s.credential == "" {
		s.mu.Unlock()
		return ErrNoCredential
	}
	token := s.credential
	prior := s.phase
	s.phase = models.PhaseVerifying
	s.mu.Unlock()
	s.firePhase(prior, models.PhaseVerifying)

	id, err := s.client.Verify(ctx)

	s.mu.Lock()
	if s.credential != token {
		// Logged out or rejected while the request was in flight.
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		return fmt.Errorf("verify: %w", ErrNoCredential)
	}

	switch {
	case err == nil:
		s.identity = &id
		s.phase = models.PhaseAuthenticated
		s.mu.Unlock()
		s.log.Info(ctx, "session verified", "user", id.Username)
		s.firePhase(models.PhaseVerifying, models.PhaseAuthenticated)
		return nil

	case errors.Is(err, client.ErrUnauthorized):
		s.mu.Unlock()
		s.end(ctx, models.PhaseUnauthenticated)
		return fmt.Errorf("verify: %w", err)

	default:
		s.phase = prior
		s.mu.Unlock()
		s.log.Warn(ctx, "verify failed, credential kept", "error", err)
		s.firePhase(models.PhaseVerifying, prior)
		return fmt.Errorf("verify: %w", err)
	}
}

// Login exchanges username and password for a credential.
func (s *SessionManager) Login(ctx context.Context, username, password string) (models.Identity, error) {
	if err := validateInput(loginInput{Username: username, Password: password}); err != nil {
		return models.Identity{}, err
	}
	if s.Authenticated() {
		return models.Identity{}, ErrAlreadyLoggedIn
	}

	res, err := s.client.Login(ctx, username, password)
	if err != nil {
		return models.Identity{}, fmt.Errorf("login: %w", err)
	}
	return s.establish(ctx, res)
}

// Register provisions a new identity and logs it in.
func (s *SessionManager) Register(ctx context.Context, username, email, password string) (models.Identity, error) {
	if err := validateInput(registerInput{Username: username, Email: email, Password: password}); err != nil {
		return models.Identity{}, err
	}
	if s.Authenticated() {
		return models.Identity{}, ErrAlreadyLoggedIn
	}

	res, err := s.client.Register(ctx, username, email, password)
	if err != nil {
		return models.Identity{}, fmt.Errorf("register: %w", err)
	}
	return s.establish(ctx, res)
}

func (s *SessionManager) establish(ctx context.Context, res client.AuthResult) (models.Identity, error) {
	if err := s.store.Save(ctx, res.Token); err != nil {
		// The session still works; it just will not survive a restart.
		s.log.Warn(ctx, "credential not persisted", "error", err)
	}

	s.mu.Lock()
	from := s.phase
	s.credential = res.Token
	s.expiresAt = tokenExpiry(res.Token)
	id := res.Identity
	s.identity = &id
	s.phase = models.PhaseAuthenticated
	s.mu.Unlock()

	s.log.Info(ctx, "logged in", "user", id.Username)

	// The auth response has no admin flag; ask who we are. Best effort, but
	// the call may end the session (rejected or already expired token).
	who, verr := s.client.Verify(ctx)

	s.mu.Lock()
	current := s.credential == res.Token && s.phase == models.PhaseAuthenticated
	if current && verr == nil {
		s.identity = &who
		id = who
	}
	s.mu.Unlock()

	if !current {
		if verr != nil {
			return models.Identity{}, fmt.Errorf("session ended during login: %w", verr)
		}
		return models.Identity{}, fmt.Errorf("session ended during login: %w", ErrNoCredential)
	}

	s.firePhase(from, models.PhaseAuthenticated)
	return id, nil
}

// Logout ends the session: teardown hooks (channel cancellation) run first,
// then in-memory and durable credential state is cleared. Idempotent.
func (s *SessionManager) Logout(ctx context.Context) error {
	return s.end(ctx, models.PhaseUnauthenticated)
}

// CurrentCredential returns the credential to attach to a request. A
// credential found to be past its expiry is discarded and the session
// moves to EXPIRED.
func (s *SessionManager) CurrentCredential() (string, bool) {
	s.mu.Lock()
	token := s.credential
	exp := s.expiresAt
	s.mu.Unlock()

	if token == "" {
		return "", false
	}
	if !exp.IsZero() && !s.clock.Now().Before(exp) {
		s.expire(token)
		return "", false
	}
	return token, true
}

// CredentialRejected is called by the transport when the server rejected
// token. It tears the session down if token is still the current one.
func (s *SessionManager) CredentialRejected(token string) {
	s.mu.Lock()
	current := s.credential == token && token != ""
	s.mu.Unlock()
	if !current {
		return
	}
	s.log.Warn(context.Background(), "credential rejected by server, ending session")
	s.end(context.Background(), models.PhaseUnauthenticated)
}

func (s *SessionManager) expire(token string) {
	s.mu.Lock()
	current := s.credential == token
	s.mu.Unlock()
	if current {
		s.log.Info(context.Background(), "credential expired")
		s.end(context.Background(), models.PhaseExpired)
	}
}

// end runs teardown hooks, clears state and storage, then moves to phase.
func (s *SessionManager) end(ctx context.Context, to models.Phase) error {
	s.hooksMu.Lock()
	teardown := append([]func(){}, s.teardown...)
	s.hooksMu.Unlock()
	for _, fn := range teardown {
		fn()
	}

	s.mu.Lock()
	from := s.phase
	s.credential = ""
	s.expiresAt = time.Time{}
	s.identity = nil
	s.phase = to
	s.mu.Unlock()

	err := s.store.Clear(ctx)
	if err != nil {
		s.log.Error(ctx, "clear persisted credential", "error", err)
		err = fmt.Errorf("logout: %w", err)
	}

	s.firePhase(from, to)
	return err
}

func (s *SessionManager) firePhase(from, to models.Phase) {
	if from == to {
		return
	}
	s.log.Info(context.Background(), "session phase changed", "from", from, "to", to)

	s.hooksMu.Lock()
	hooks := append([]PhaseHook{}, s.phaseHooks...)
	s.hooksMu.Unlock()
	for _, h := range hooks {
		h(from, to)
	}
}

func (s *SessionManager) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Authenticated is the gate for polling and data-mutating operations.
func (s *SessionManager) Authenticated() bool {
	return s.Phase() == models.PhaseAuthenticated
}

func (s *SessionManager) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return models.Identity{}, false
	}
	return *s.identity, true
}

// tokenExpiry reads the exp claim of a JWT without verifying its
// signature. Opaque tokens and tokens without exp never expire locally.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

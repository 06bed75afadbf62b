// Package session holds the authentication state of a signed-in user.
//
// A Session moves between four states:
//
//	SignedOut --SignIn--> Authenticating --ok--> SignedIn --SignOut--> SigningOut --ok--> SignedOut
//	                             |                   ^                      |
//	                             +--failure--> SignedOut                    +--failure--> SignedIn
//
// Failures never escape as errors: they are classified and kept as the session's last error
// until ClearError or the next sign-in/out attempt.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/user"
)

// States
const (
	SignedOut State = iota
	Authenticating
	SignedIn
	SigningOut
)

const (
	DefaultLookupAttempts = 3
	DefaultLookupDelay    = time.Second
)

type (
	State int

	// Principal is an authenticated account, as returned by the remote auth service.
	Principal struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		AccessToken  string    `json:"-"`
		RefreshToken string    `json:"-"`
		ExpiresAt    time.Time `json:"expires_at"`
	}

	// Authenticator is the remote auth service.
	Authenticator interface {
		SignInWithCredentials(ctx context.Context, email, password string) (Principal, error)
		SignOut(ctx context.Context, p Principal) error
	}

	// IdentityLookup reads identity records. user.ErrNotFound when absent.
	IdentityLookup interface {
		LookupIdentityByID(ctx context.Context, id string) (user.User, error)
	}

	// Remote is everything a Session needs from the backend.
	Remote interface {
		Authenticator
		IdentityLookup
	}

	// Snapshot is a consistent view of a Session.
	Snapshot struct {
		State     State
		Identity  *user.User
		IsLoading bool
		LastError *Error
	}

	SleepFunc func(ctx context.Context, d time.Duration) error

	Option func(*Session)

	Session struct {
		remote   Remote
		logger   core.Logger
		attempts int
		delay    time.Duration
		sleep    SleepFunc

		mu        sync.Mutex
		state     State
		identity  *user.User
		principal *Principal
		lastErr   *Error
	}
)

var stateNames = [...]string{"signed_out", "authenticating", "signed_in", "signing_out"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NewRemote combines an auth service and an identity store.
func NewRemote(auth Authenticator, identities IdentityLookup) Remote {
	return struct {
		Authenticator
		IdentityLookup
	}{auth, identities}
}

// WithLookupAttempts sets how many times the identity record is read before giving up.
func WithLookupAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithLookupDelay sets the pause between two identity lookups.
func WithLookupDelay(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithSleep replaces the function used to pause between identity lookups.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Session) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func New(remote Remote, logger core.Logger, opts ...Option) *Session {
	s := &Session{
		remote:   remote,
		logger:   logger,
		attempts: DefaultLookupAttempts,
		delay:    DefaultLookupDelay,
		sleep:    sleepContext,
		state:    SignedOut,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn authenticates the credentials then loads the identity record of the account.
// The identity record may lag behind the account: a missing record is looked up again,
// up to the configured number of attempts.
func (s *Session) SignIn(ctx context.Context, email, password string) Snapshot {
	s.mu.Lock()
	s.state = Authenticating
	s.lastErr = nil
	s.mu.Unlock()

	email = core.CleanString(email, true /* lower */)
	principal, err := s.remote.SignInWithCredentials(ctx, email, password)
	if err != nil {
		s.logger.Debug("sign in rejected", errors.Wrap(err, "signing in"), map[string]interface{}{"email": email})
		return s.fail(newError(classify(err), err))
	}

	usr, err := s.lookupIdentity(ctx, principal.ID)
	if err != nil {
		kind := classify(err)
		if errors.Cause(err) == user.ErrNotFound {
			kind = IdentityNotFound
		}
		s.logger.Warn("identity lookup failed", errors.Wrap(err, "looking up identity"), map[string]interface{}{"id": principal.ID})
		s.revoke(ctx, principal)
		return s.fail(newError(kind, err))
	}

	if !usr.Active {
		s.revoke(ctx, principal)
		return s.fail(newError(AccountInactive, nil))
	}

	s.mu.Lock()
	s.state = SignedIn
	s.identity = &usr
	s.principal = &principal
	snap := s.snapshot()
	s.mu.Unlock()
	return snap
}

func (s *Session) lookupIdentity(ctx context.Context, id string) (user.User, error) {
	for attempt := 1; ; attempt++ {
		usr, err := s.remote.LookupIdentityByID(ctx, id)
		if err == nil {
			return usr, nil
		}
		if errors.Cause(err) != user.ErrNotFound || attempt >= s.attempts {
			return user.User{}, err
		}
		if err = s.sleep(ctx, s.delay); err != nil {
			return user.User{}, err
		}
	}
}

// revoke signs out a principal that will not be kept, best-effort.
// It still runs when ctx was cancelled during the identity lookup.
func (s *Session) revoke(ctx context.Context, p Principal) {
	if err := s.remote.SignOut(context.WithoutCancel(ctx), p); err != nil {
		s.logger.Warn("revoking remote session", errors.Wrap(err, "signing out"), map[string]interface{}{"id": p.ID})
	}
}

func (s *Session) fail(e *Error) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SignedOut
	s.identity = nil
	s.principal = nil
	s.lastErr = e
	return s.snapshot()
}

// SignOut ends the remote session. On failure the session stays signed in.
func (s *Session) SignOut(ctx context.Context) Snapshot {
	s.mu.Lock()
	principal, identity := s.principal, s.identity
	s.state = SigningOut
	s.lastErr = nil
	s.mu.Unlock()

	var err error
	if principal != nil {
		err = s.remote.SignOut(ctx, *principal)
	}

	if err != nil {
		s.logger.Warn("sign out failed", errors.Wrap(err, "signing out"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = SignedIn
		if identity == nil {
			s.state = SignedOut
		}
		s.identity = identity
		s.principal = principal
		s.lastErr = newError(SignOutError, err)
		return s.snapshot()
	}
	s.state = SignedOut
	s.identity = nil
	s.principal = nil
	return s.snapshot()
}

// ClearError forgets the last error, in any state.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// snapshot must be called with mu held.
func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:     s.state,
		IsLoading: s.state == Authenticating || s.state == SigningOut,
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	if s.identity != nil {
		usr := *s.identity
		snap.Identity = &usr
	}
	return snap
}

// Identity returns the signed-in user, if any.
func (s *Session) Identity() (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return user.User{}, false
	}
	return *s.identity, true
}

// Principal returns the authenticated account, if any.
func (s *Session) Principal() (Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return Principal{}, false
	}
	return *s.principal, true
}

// SetIdentity replaces the identity of a signed-in session, e.g. after the user record was updated.
func (s *Session) SetIdentity(usr user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SignedIn && s.identity != nil && s.identity.ID == usr.ID {
		s.identity = &usr
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"loo_review/internal/domain"
)

// Session is the process-wide identity: bearer token, current user, blocked
// users and terms acceptance. It is loaded once at start and saved on every change.
type Session struct {
	mu     sync.RWMutex
	saveMu sync.Mutex // held across snapshot and write so the newest state lands last
	state  domain.SessionState
	store  domain.SessionStore
	auth   domain.AuthBackend
	now    func() time.Time
}

func NewSession(store domain.SessionStore) *Session {
	return &Session{store: store, now: time.Now}
}

// UseAuth attaches the auth endpoints. The backend client itself needs the
// session as its TokenSource, so this is set after construction.
func (s *Session) UseAuth(a domain.AuthBackend) { s.auth = a }

// Load restores persisted state and re-validates a stored token against /auth/me.
// Any failure there signs the user out.
func (s *Session) Load(ctx context.Context) error {
	st, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	if !st.SignedIn() || s.auth == nil {
		return nil
	}
	u, err := s.auth.Me(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("stored token rejected, signing out")
		return s.Logout(ctx)
	}
	s.mu.Lock()
	s.state.User = &u
	s.mu.Unlock()
	return s.save(ctx)
}

// Token implements domain.TokenSource. A JWT whose exp has passed yields an
// AuthError without any network round trip.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	tok := s.state.Token
	s.mu.RUnlock()
	if tok == "" {
		return "", nil
	}
	if exp, ok := tokenExpiry(tok); ok && !exp.After(s.now()) {
		return "", &domain.AuthError{Reason: "token expired"}
	}
	return tok, nil
}

func tokenExpiry(tok string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Session) Login(ctx context.Context, email, password string) (domain.User, error) {
	if s.auth == nil {
		return domain.User{}, errors.New("auth backend not configured")
	}
	res, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	return s.apply(ctx, res)
}

func (s *Session) Register(ctx context.Context, fullName, email, password, confirm string) (domain.User, error) {
	if password != confirm {
		return domain.User{}, fmt.Errorf("%w: Passwords do not match", domain.ErrInvalidInput)
	}
	if s.auth == nil {
		return domain.User{}, errors.New("auth backend not configured")
	}
	res, err := s.auth.Register(ctx, fullName, email, password)
	if err != nil {
		return domain.User{}, err
	}
	return s.apply(ctx, res)
}

func (s *Session) Google(ctx context.Context, credential string) (domain.User, error) {
	if s.auth == nil {
		return domain.User{}, errors.New("auth backend not configured")
	}
	res, err := s.auth.Google(ctx, credential)
	if err != nil {
		return domain.User{}, err
	}
	return s.apply(ctx, res)
}

func (s *Session) Apple(ctx context.Context, identityToken, fullName string) (domain.User, error) {
	if s.auth == nil {
		return domain.User{}, errors.New("auth backend not configured")
	}
	res, err := s.auth.Apple(ctx, identityToken, fullName)
	if err != nil {
		return domain.User{}, err
	}
	return s.apply(ctx, res)
}

func (s *Session) apply(ctx context.Context, res domain.AuthResult) (domain.User, error) {
	s.mu.Lock()
	s.state.Token = res.Token
	u := res.User
	s.state.User = &u
	s.mu.Unlock()
	log.Info().Str("user", u.ID).Msg("signed in")
	return u, s.save(ctx)
}

// Logout drops the token and user. Blocked users and terms acceptance stay on the device.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.state.Token = ""
	s.state.User = nil
	s.mu.Unlock()
	return s.save(ctx)
}

// HandleError signs the user out when err is an AuthError, then returns err unchanged.
func (s *Session) HandleError(ctx context.Context, err error) error {
	if s == nil {
		return err
	}
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		if lerr := s.Logout(ctx); lerr != nil {
			log.Error().Err(lerr).Msg("logout after auth error failed")
		}
	}
	return err
}

func (s *Session) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return domain.User{}, false
	}
	return *s.state.User, true
}

func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SignedIn()
}

func (s *Session) AcceptTerms(ctx context.Context) error {
	now := s.now().UTC()
	s.mu.Lock()
	s.state.TermsAcceptedAt = &now
	s.mu.Unlock()
	return s.save(ctx)
}

func (s *Session) TermsAccepted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TermsAcceptedAt != nil
}

func (s *Session) Block(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.state.IsBlocked(userID) {
		s.mu.Unlock()
		return nil
	}
	s.state.BlockedUserIDs = append(s.state.BlockedUserIDs, userID)
	s.mu.Unlock()
	return s.save(ctx)
}

func (s *Session) Unblock(ctx context.Context, userID string) error {
	s.mu.Lock()
	out := s.state.BlockedUserIDs[:0:0]
	for _, id := range s.state.BlockedUserIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	s.state.BlockedUserIDs = out
	s.mu.Unlock()
	return s.save(ctx)
}

func (s *Session) IsBlocked(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsBlocked(userID)
}

func (s *Session) BlockedUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.state.BlockedUserIDs...)
}

func (s *Session) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	st := s.state
	st.BlockedUserIDs = append([]string(nil), s.state.BlockedUserIDs...)
	s.mu.RUnlock()
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

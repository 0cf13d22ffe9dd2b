package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"loo_review/internal/app"
	"loo_review/internal/domain"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestSession_TokenExpiry(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s := app.NewSession(store)

	if tok, err := s.Token(); tok != "" || err != nil {
		t.Fatalf("signed out: got %q %v", tok, err)
	}

	live := signedToken(t, time.Now().Add(time.Hour))
	s.UseAuth(&fakeAuth{result: domain.AuthResult{Token: live, User: domain.User{ID: "7"}}})
	if _, err := s.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok, err := s.Token(); err != nil || tok != live {
		t.Fatalf("live token: %q %v", tok, err)
	}

	expired := signedToken(t, time.Now().Add(-time.Minute))
	s.UseAuth(&fakeAuth{result: domain.AuthResult{Token: expired, User: domain.User{ID: "7"}}})
	if _, err := s.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err := s.Token()
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expired token: want AuthError, got %v", err)
	}
}

func TestSession_OpaqueTokenPassesThrough(t *testing.T) {
	s := app.NewSession(&memStore{})
	s.UseAuth(&fakeAuth{result: domain.AuthResult{Token: "opaque", User: domain.User{ID: "1"}}})
	if _, err := s.Login(context.Background(), "x", "y"); err != nil {
		t.Fatal(err)
	}
	if tok, err := s.Token(); err != nil || tok != "opaque" {
		t.Fatalf("got %q %v", tok, err)
	}
}

func TestSession_LoadRevalidatesStoredToken(t *testing.T) {
	ctx := context.Background()

	store := &memStore{state: domain.SessionState{Token: "tok", User: &domain.User{ID: "7", FullName: "Old"}}}
	s := app.NewSession(store)
	s.UseAuth(&fakeAuth{me: domain.User{ID: "7", FullName: "Ana"}})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if u, ok := s.User(); !ok || u.FullName != "Ana" {
		t.Fatalf("user not refreshed: %+v", u)
	}

	store = &memStore{state: domain.SessionState{Token: "tok", User: &domain.User{ID: "7"}, BlockedUserIDs: []string{"3"}}}
	s = app.NewSession(store)
	s.UseAuth(&fakeAuth{meErr: &domain.AuthError{Reason: "invalid"}})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.SignedIn() {
		t.Fatalf("rejected token kept")
	}
	if store.state.Token != "" || store.state.User != nil || len(store.state.BlockedUserIDs) != 1 {
		t.Fatalf("unexpected persisted state: %+v", store.state)
	}
}

func TestSession_RegisterPasswordMismatch(t *testing.T) {
	s := app.NewSession(&memStore{})
	s.UseAuth(&fakeAuth{})
	_, err := s.Register(context.Background(), "Ana", "a@b.c", "one", "two")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestSession_LoginFailureKeepsState(t *testing.T) {
	store := &memStore{}
	s := app.NewSession(store)
	s.UseAuth(&fakeAuth{err: &domain.TransportError{Status: 401, Message: "Incorrect email or password"}})
	if _, err := s.Login(context.Background(), "a", "b"); err == nil {
		t.Fatalf("expected error")
	}
	if s.SignedIn() || store.saves != 0 {
		t.Fatalf("failed login changed the session")
	}
}

func TestSession_BlockTermsPersisted(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s := app.NewSession(store)

	if err := s.Block(ctx, "9"); err != nil {
		t.Fatal(err)
	}
	_ = s.Block(ctx, "9")
	_ = s.Block(ctx, "4")
	if err := s.AcceptTerms(ctx); err != nil {
		t.Fatal(err)
	}
	if !s.TermsAccepted() || store.state.TermsAcceptedAt == nil {
		t.Fatalf("terms not recorded")
	}
	if got := store.state.BlockedUserIDs; len(got) != 2 || got[0] != "9" || got[1] != "4" {
		t.Fatalf("blocked list: %v", got)
	}

	if err := s.Unblock(ctx, "9"); err != nil {
		t.Fatal(err)
	}
	if s.IsBlocked("9") || !s.IsBlocked("4") {
		t.Fatalf("unblock: %v", s.BlockedUsers())
	}
}

func TestSession_HandleErrorOnlyLogsOutOnAuth(t *testing.T) {
	ctx := context.Background()
	s := app.NewSession(&memStore{})
	s.UseAuth(&fakeAuth{result: domain.AuthResult{Token: "t", User: domain.User{ID: "1"}}})
	_, _ = s.Login(ctx, "a", "b")

	plain := errors.New("boom")
	if got := s.HandleError(ctx, plain); got != plain || !s.SignedIn() {
		t.Fatalf("non-auth error changed the session")
	}
	wrapped := &domain.TransportError{Message: "x", Err: &domain.AuthError{Reason: "nested"}}
	if got := s.HandleError(ctx, wrapped); got != error(wrapped) || s.SignedIn() {
		t.Fatalf("wrapped auth error should sign out")
	}

	var nilSession *app.Session
	if got := nilSession.HandleError(ctx, plain); got != plain {
		t.Fatalf("nil session must pass errors through")
	}
}

// gatedStore holds its first Save until gate closes.
type gatedStore struct {
	mu      sync.Mutex
	state   domain.SessionState
	calls   int
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) Load(ctx context.Context) (domain.SessionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, nil
}

func (g *gatedStore) Save(ctx context.Context, st domain.SessionState) error {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		g.entered <- struct{}{}
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = st
	return nil
}

func TestSession_ConcurrentChangesPersistNewestState(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		state:   domain.SessionState{Token: "opaque", User: &domain.User{ID: "7"}},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	s := app.NewSession(store)
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.Block(ctx, "9"); err != nil {
			t.Errorf("block: %v", err)
		}
	}()
	<-store.entered

	go func() {
		defer wg.Done()
		if err := s.Logout(ctx); err != nil {
			t.Errorf("logout: %v", err)
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for s.SignedIn() {
		if time.Now().After(deadline) {
			t.Fatalf("logout never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(store.gate)
	wg.Wait()

	final, _ := store.Load(ctx)
	if final.Token != "" || final.User != nil {
		t.Fatalf("stale state persisted last: %+v", final)
	}
	if len(final.BlockedUserIDs) != 1 || final.BlockedUserIDs[0] != "9" {
		t.Fatalf("blocked list lost: %v", final.BlockedUserIDs)
	}
}

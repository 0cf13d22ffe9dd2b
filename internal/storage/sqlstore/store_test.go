package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"loo_review/internal/domain"
	"loo_review/internal/storage/sqlstore"
)

func openTemp(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlstore.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// running twice must be harmless
	if err := sqlstore.Migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return sqlstore.New(db)
}

func TestStore_EmptyLoad(t *testing.T) {
	st, err := openTemp(t).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(domain.SessionState{}, st); diff != "" {
		t.Fatalf("expected zero state (-want +got):\n%s", diff)
	}
}

func TestStore_SaveLoadReplace(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	accepted := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := domain.SessionState{
		Token:           "jwt",
		User:            &domain.User{ID: "7", FullName: "Ana", Email: "ana@example.com"},
		BlockedUserIDs:  []string{"9", "3", "9", ""},
		TermsAcceptedAt: &accepted,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := in
	want.BlockedUserIDs = []string{"9", "3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	// signing out keeps blocks and terms
	out := domain.SessionState{BlockedUserIDs: []string{"3"}, TermsAcceptedAt: &accepted}
	if err := s.Save(ctx, out); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(out, got); diff != "" {
		t.Fatalf("after logout (-want +got):\n%s", diff)
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), "postgres", "x"); err == nil {
		t.Fatalf("expected error")
	}
}

package shared_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"loo_review/internal/domain"
	"loo_review/internal/shared"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RATING_CATEGORIES", "")
	t.Setenv("POLICY_TERMS", "")
	t.Setenv("SESSION_DB_DRIVER", "")

	c, err := shared.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(domain.DefaultCategories, c.Categories); diff != "" {
		t.Fatalf("categories (-want +got):\n%s", diff)
	}
	if c.SessionDriver != "sqlite3" || c.MaxImageDim != 1600 || c.PolicyTerms != nil {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RATING_CATEGORIES", "Paper, Soap ,Lock,Light,Dryer")
	t.Setenv("POLICY_TERMS", "foo, ,bar")
	t.Setenv("API_RPS", "notanumber")

	c, err := shared.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []domain.Category{"paper", "soap", "lock", "light", "dryer"}
	if diff := cmp.Diff(want, c.Categories); diff != "" {
		t.Fatalf("categories (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"foo", "bar"}, c.PolicyTerms); diff != "" {
		t.Fatalf("terms (-want +got):\n%s", diff)
	}
	if c.APIRPS != 5 {
		t.Fatalf("bad integer should fall back to default, got %d", c.APIRPS)
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("RATING_CATEGORIES", "a,b,c")
	if _, err := shared.Load(); err == nil {
		t.Fatalf("expected error for three categories")
	}

	t.Setenv("RATING_CATEGORIES", "")
	t.Setenv("SESSION_DB_DRIVER", "postgres")
	_, err := shared.Load()
	if err == nil || !strings.Contains(err.Error(), "SESSION_DB_DRIVER") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

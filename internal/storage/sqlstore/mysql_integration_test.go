//go:build integration || !unit

package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"loo_review/internal/domain"
	"loo_review/internal/storage/sqlstore"
)

func TestStore_MySQL_SaveAndLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=looreview",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?charset=utf8mb4&loc=UTC",
		"root", hostPort, "looreview")

	ctx := context.Background()
	var db *sql.DB
	pool.MaxWait = 2 * time.Minute
	if err := pool.Retry(func() error {
		var e error
		db, e = sqlstore.Open(ctx, "mysql", dsn)
		return e
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := sqlstore.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := sqlstore.New(db)
	accepted := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := domain.SessionState{
		Token:           "jwt",
		User:            &domain.User{ID: "7", FullName: "Ana", Email: "ana@example.com"},
		BlockedUserIDs:  []string{"b", "a"},
		TermsAcceptedAt: &accepted,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

// Package sqlstore persists the device session (token, user, blocked users,
// terms acceptance) in sqlite or MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"loo_review/internal/domain"
)

//go:embed schema.sql
var schema string

var _ domain.SessionStore = (*Store)(nil)

func valTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store { return &Store{db: db, now: time.Now} }

// Open connects with driver ("sqlite3" or "mysql") and pings.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "sqlite3", "mysql":
	default:
		return nil, fmt.Errorf("unsupported session driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// one writer; avoids SQLITE_BUSY between the API and background saves
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates the tables if missing. Safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Load returns the saved state, or the zero state when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (domain.SessionState, error) {
	var (
		st               domain.SessionState
		uid, name, email string
		termsAt          sql.NullString
	)
	err := s.db.QueryRowContext(ctx, getSessionSQL, sessionRowID).
		Scan(&st.Token, &uid, &name, &email, &termsAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.SessionState{}, err
	}
	if err == nil {
		if uid != "" || name != "" || email != "" {
			st.User = &domain.User{ID: uid, FullName: name, Email: email}
		}
		if termsAt.Valid && termsAt.String != "" {
			t, perr := time.Parse(time.RFC3339Nano, termsAt.String)
			if perr != nil {
				return domain.SessionState{}, fmt.Errorf("terms_accepted_at: %w", perr)
			}
			st.TermsAcceptedAt = &t
		}
	}

	rows, err := s.db.QueryContext(ctx, listBlockedSQL)
	if err != nil {
		return domain.SessionState{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return domain.SessionState{}, err
		}
		st.BlockedUserIDs = append(st.BlockedUserIDs, id)
	}
	return st, rows.Err()
}

// Save replaces the stored state in one transaction.
func (s *Store) Save(ctx context.Context, st domain.SessionState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(ctx, deleteSessionSQL, sessionRowID); err != nil {
		return err
	}
	var u domain.User
	if st.User != nil {
		u = *st.User
	}
	if _, err := tx.ExecContext(ctx, insertSessionSQL,
		sessionRowID, st.Token, u.ID, u.FullName, u.Email, valTime(st.TermsAcceptedAt), now,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, deleteBlockedSQL); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertBlockedSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	seen := make(map[string]struct{}, len(st.BlockedUserIDs))
	for i, id := range st.BlockedUserIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		if _, err := stmt.ExecContext(ctx, id, i, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

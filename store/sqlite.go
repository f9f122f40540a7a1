// Package store provides persistent backends for the identity package:
// a SQLite binding store whose unique subject key enforces the
// at-most-one-binding invariant, a user directory over the host's users
// table, and a last-written audit record store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/authbridge/saml/identity"
)

// Schema creates the tables this package owns. The host's users table
// is only read, never created here.
const Schema = `
CREATE TABLE IF NOT EXISTS saml_user_bindings (
	subject_id TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS saml_audit_records (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
`

// Migrate applies the schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("store.Migrate: %w", err)
	}
	return nil
}

// BindingRepository is a BindingStore over SQLite.
type BindingRepository struct {
	db *sql.DB
}

func NewBindingRepository(db *sql.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

func (r *BindingRepository) Get(ctx context.Context, subjectID string) (*identity.Binding, error) {
	const op = "store.BindingRepository.Get"

	b := &identity.Binding{SubjectID: subjectID}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM saml_user_bindings WHERE subject_id = ?`,
		subjectID,
	).Scan(&b.UserID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: subject %q: %w", op, subjectID, identity.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// PutIfAbsent inserts the binding unless one already exists for the
// subject. INSERT OR IGNORE against the primary key makes the write a
// single atomic upsert-if-absent; the returned binding is the winning
// row either way.
func (r *BindingRepository) PutIfAbsent(ctx context.Context, subjectID string, userID int64) (*identity.Binding, error) {
	const op = "store.BindingRepository.PutIfAbsent"

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO saml_user_bindings (subject_id, user_id, created_at) VALUES (?, ?, ?)`,
		subjectID, userID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	b, err := r.Get(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// UserDirectory reads the host's users table.
type UserDirectory struct {
	db *sql.DB
}

func NewUserDirectory(db *sql.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	const op = "store.UserDirectory.FindByEmail"

	u := &identity.User{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE email = ?`,
		email,
	).Scan(&u.ID, &u.Username, &u.Email)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: email %q: %w", op, email, identity.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// AuditStore keeps the last-written value per audit key.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Record(ctx context.Context, key, value string) error {
	const op = "store.AuditStore.Record"

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saml_audit_records (key, value, recorded_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

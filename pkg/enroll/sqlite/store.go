// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package sqlite provides a SQLite-backed credential store for single-node
// deployments that need registrations to survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	_ "modernc.org/sqlite"

	"github.com/keyward/go-fido-enroll/pkg/enroll"
)

const schema = `
CREATE TABLE IF NOT EXISTS security_key_credentials (
	credential_id    TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	group_id         TEXT NOT NULL,
	public_key       BLOB NOT NULL,
	attestation_type TEXT NOT NULL DEFAULT '',
	transports       TEXT NOT NULL DEFAULT '',
	user_present     INTEGER NOT NULL DEFAULT 0,
	user_verified    INTEGER NOT NULL DEFAULT 0,
	backup_eligible  INTEGER NOT NULL DEFAULT 0,
	backup_state     INTEGER NOT NULL DEFAULT 0,
	aaguid           BLOB,
	sign_count       INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_security_key_credentials_user
	ON security_key_credentials (user_id);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements enroll.CredentialStore over a single SQLite file. The
// primary key on credential_id makes the insert the compare-and-insert the
// uniqueness contract requires.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the credential database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Insert stores a new credential. The check and the write are one statement:
// a conflicting credential ID leaves the existing row untouched and reports
// enroll.ErrDuplicateCredential.
func (s *Store) Insert(ctx context.Context, record *enroll.CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO security_key_credentials (
			credential_id, user_id, group_id, public_key, attestation_type,
			transports, user_present, user_verified, backup_eligible,
			backup_state, aaguid, sign_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credentialKey(record.CredentialID),
		record.UserID,
		record.GroupID,
		record.PublicKey,
		record.AttestationType,
		joinTransports(record.Transport),
		record.Flags.UserPresent,
		record.Flags.UserVerified,
		record.Flags.BackupEligible,
		record.Flags.BackupState,
		record.AAGUID,
		record.SignCount,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	if affected == 0 {
		return enroll.ErrDuplicateCredential
	}
	return nil
}

// GetByCredentialID retrieves a credential by its ID, regardless of owner.
func (s *Store) GetByCredentialID(ctx context.Context, credentialID []byte) (*enroll.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE credential_id = ?`,
		credentialKey(credentialID))

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enroll.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return record, nil
}

// GetByUserID retrieves all credentials for an account, oldest first.
func (s *Store) GetByUserID(ctx context.Context, userID string) ([]*enroll.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE user_id = ?
		ORDER BY created_at ASC, credential_id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	records := []*enroll.CredentialRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return records, nil
}

// Delete removes a credential by its ID.
func (s *Store) Delete(ctx context.Context, credentialID []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM security_key_credentials WHERE credential_id = ?`,
		credentialKey(credentialID))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return enroll.ErrCredentialNotFound
	}
	return nil
}

// DeleteByUserID removes all credentials for an account.
func (s *Store) DeleteByUserID(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM security_key_credentials WHERE user_id = ?`,
		userID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT credential_id, user_id, group_id, public_key, attestation_type,
		transports, user_present, user_verified, backup_eligible,
		backup_state, aaguid, sign_count, created_at
	FROM security_key_credentials`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*enroll.CredentialRecord, error) {
	var (
		credentialID string
		record       enroll.CredentialRecord
		transports   string
		createdAt    int64
	)

	if err := row.Scan(
		&credentialID,
		&record.UserID,
		&record.GroupID,
		&record.PublicKey,
		&record.AttestationType,
		&transports,
		&record.Flags.UserPresent,
		&record.Flags.UserVerified,
		&record.Flags.BackupEligible,
		&record.Flags.BackupState,
		&record.AAGUID,
		&record.SignCount,
		&createdAt,
	); err != nil {
		return nil, err
	}

	raw, err := base64.RawURLEncoding.DecodeString(credentialID)
	if err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}

	record.CredentialID = raw
	record.Transport = splitTransports(transports)
	record.CreatedAt = fromMillis(createdAt)
	return &record, nil
}

// credentialKey is the text form credential IDs are keyed by.
func credentialKey(credentialID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credentialID)
}

func joinTransports(transports []protocol.AuthenticatorTransport) string {
	if len(transports) == 0 {
		return ""
	}
	parts := make([]string, len(transports))
	for i, tr := range transports {
		parts[i] = string(tr)
	}
	return strings.Join(parts, ",")
}

func splitTransports(value string) []protocol.AuthenticatorTransport {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	transports := make([]protocol.AuthenticatorTransport, len(parts))
	for i, part := range parts {
		transports[i] = protocol.AuthenticatorTransport(part)
	}
	return transports
}

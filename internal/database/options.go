package database

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// GetOption returns the stored value for name and whether it exists
func (db *DB) GetOption(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM options WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetOption inserts or replaces an option value
func (db *DB) SetOption(ctx context.Context, name, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, name, value, db.now())
	return err
}

// DeleteOption removes an option. Missing options are not an error.
func (db *DB) DeleteOption(ctx context.Context, name string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM options WHERE name = ?`, name)
	return err
}

// GetTransient returns a transient value if it exists and has not expired.
// Expired entries are removed on read.
func (db *DB) GetTransient(ctx context.Context, name string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM transients WHERE name = ?
	`, name).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if expiresAt > 0 && db.now().Unix() >= expiresAt {
		if _, err := db.ExecContext(ctx, `DELETE FROM transients WHERE name = ?`, name); err != nil {
			return "", false, err
		}
		return "", false, nil
	}

	return value, true, nil
}

// SetTransient stores a value that expires after ttl. A ttl <= 0 never expires.
func (db *DB) SetTransient(ctx context.Context, name, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = db.now().Add(ttl).Unix()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO transients (name, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, name, value, expiresAt)
	return err
}

// DeleteTransient removes a single transient
func (db *DB) DeleteTransient(ctx context.Context, name string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM transients WHERE name = ?`, name)
	return err
}

// DeleteTransientsByPrefix removes every transient whose name starts with prefix
func (db *DB) DeleteTransientsByPrefix(ctx context.Context, prefix string) (int64, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM transients WHERE name LIKE ? ESCAPE '\'
	`, likePrefix(prefix))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PurgeExpiredTransients removes transients past their expiry
func (db *DB) PurgeExpiredTransients(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM transients WHERE expires_at > 0 AND expires_at <= ?
	`, db.now().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// likePrefix escapes LIKE wildcards so prefixes containing '_' match literally
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// Package storage is the sqlite-backed session store. Sessions survive a
// restart of the web server when SESSION_BACKEND=sqlite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"txadmin/internal/core"
	"txadmin/internal/log"
	"txadmin/internal/session"
)

type SQLiteSessionStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewSQLiteSessionStore opens dbPath, creating the directory and running
// migrations as needed.
func NewSQLiteSessionStore(dbPath string, logger *log.Logger) (*SQLiteSessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Info("session database ready", "path", dbPath, "schema_version", version)

	return &SQLiteSessionStore{db: db, logger: logger}, nil
}

func (s *SQLiteSessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (s *SQLiteSessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, user_json, flashes_json, created_at, expires_at, token_expires_at
		FROM sessions WHERE id = ?`, id)

	var (
		sess                          session.Session
		userJSON, flashesJSON         string
		created, expires, tokenExpiry int64
	)
	err := row.Scan(&sess.ID, &sess.Token, &userJSON, &flashesJSON, &created, &expires, &tokenExpiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var user core.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, fmt.Errorf("decode session user: %w", err)
	}
	if err := json.Unmarshal([]byte(flashesJSON), &sess.Flashes); err != nil {
		return nil, fmt.Errorf("decode session flashes: %w", err)
	}
	sess.User = user
	sess.CreatedAt = time.Unix(created, 0)
	sess.ExpiresAt = time.Unix(expires, 0)
	if tokenExpiry > 0 {
		sess.TokenExpiresAt = time.Unix(tokenExpiry, 0)
	}
	return &sess, nil
}

func (s *SQLiteSessionStore) Save(ctx context.Context, sess *session.Session) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	flashes := sess.Flashes
	if flashes == nil {
		flashes = []session.Flash{}
	}
	flashesJSON, err := json.Marshal(flashes)
	if err != nil {
		return fmt.Errorf("encode session flashes: %w", err)
	}
	var tokenExpiry int64
	if !sess.TokenExpiresAt.IsZero() {
		tokenExpiry = sess.TokenExpiresAt.Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, token, user_json, flashes_json, created_at, expires_at, token_expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_json = excluded.user_json,
			flashes_json = excluded.flashes_json,
			expires_at = excluded.expires_at,
			token_expires_at = excluded.token_expires_at`,
		sess.ID, sess.Token, string(userJSON), string(flashesJSON),
		sess.CreatedAt.Unix(), sess.ExpiresAt.Unix(), tokenExpiry)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "purged expired sessions", "count", n)
	}
	return int(n), nil
}

var _ session.Store = (*SQLiteSessionStore)(nil)

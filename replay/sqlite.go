package replay

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonwraymond/agentauth/observe"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS replay_records (
		jti         TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL DEFAULT '',
		expires_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_replay_records_expires_at
		ON replay_records(expires_at);
`

// An existing row is overwritten only when it has expired, or, for Bind,
// when it carries the same non-empty fingerprint. RowsAffected is 0 exactly
// when the presentation is a replay.
const (
	recordStmt = `
		INSERT INTO replay_records (jti, fingerprint, expires_at) VALUES (?, '', ?)
		ON CONFLICT(jti) DO UPDATE SET fingerprint = '', expires_at = excluded.expires_at
		WHERE replay_records.expires_at <= ?`

	bindStmt = `
		INSERT INTO replay_records (jti, fingerprint, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(jti) DO UPDATE SET fingerprint = excluded.fingerprint, expires_at = excluded.expires_at
		WHERE replay_records.expires_at <= ?
			OR (replay_records.fingerprint != '' AND replay_records.fingerprint = excluded.fingerprint)`
)

// SQLiteGuard is a replay table persisted in SQLite, so that several verifier
// processes on one host, or one process across restarts, share a single
// record of consumed identifiers.
//
// Storage errors fail closed: Record and Bind return false and the failure is
// logged.
type SQLiteGuard struct {
	db     *sql.DB
	now    func() time.Time
	logger observe.Logger
}

// OpenSQLite opens or creates the replay database at path. The special path
// ":memory:" keeps the table in memory.
func OpenSQLite(path string, opts ...Option) (*SQLiteGuard, error) {
	s := newSettings(opts)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("replay: creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("replay: opening database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("replay: enabling WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=2000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("replay: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("replay: creating schema: %w", err)
	}

	return &SQLiteGuard{db: db, now: s.now, logger: s.logger}, nil
}

// Record marks jwtID as consumed until expiresAt. It returns false on replay.
func (g *SQLiteGuard) Record(jwtID string, expiresAt time.Time) bool {
	return g.upsert("record", recordStmt, jwtID, expiresAt.UnixNano(), g.now().UnixNano())
}

// Bind accepts repeated presentations of the same token and rejects a
// different token carrying a live jwtID.
func (g *SQLiteGuard) Bind(jwtID, fingerprint string, expiresAt time.Time) bool {
	return g.upsert("bind", bindStmt, jwtID, fingerprint, expiresAt.UnixNano(), g.now().UnixNano())
}

func (g *SQLiteGuard) upsert(op, stmt string, args ...any) bool {
	res, err := g.db.Exec(stmt, args...)
	if err != nil {
		g.fail(op, err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		g.fail(op, err)
		return false
	}
	return n == 1
}

func (g *SQLiteGuard) fail(op string, err error) {
	g.logger.Error(context.Background(), "replay store failure; rejecting",
		observe.Field{Key: "op", Value: op},
		observe.Field{Key: "error", Value: err},
	)
}

// Seen reports whether jwtID has a live record.
func (g *SQLiteGuard) Seen(jwtID string) bool {
	var n int
	err := g.db.QueryRow(
		`SELECT COUNT(*) FROM replay_records WHERE jti = ? AND expires_at > ?`,
		jwtID, g.now().UnixNano(),
	).Scan(&n)
	if err != nil {
		g.fail("seen", err)
		return true
	}
	return n > 0
}

// SweepExpired removes all expired records and returns the number removed.
func (g *SQLiteGuard) SweepExpired() int {
	res, err := g.db.Exec(`DELETE FROM replay_records WHERE expires_at <= ?`, g.now().UnixNano())
	if err != nil {
		g.fail("sweep", err)
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

// Len returns the number of records currently held, expired or not.
func (g *SQLiteGuard) Len() int {
	var n int
	if err := g.db.QueryRow(`SELECT COUNT(*) FROM replay_records`).Scan(&n); err != nil {
		g.fail("len", err)
		return 0
	}
	return n
}

// Run sweeps expired records every interval until ctx is done.
func (g *SQLiteGuard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.SweepExpired()
		}
	}
}

// Close closes the database.
func (g *SQLiteGuard) Close() error {
	return g.db.Close()
}

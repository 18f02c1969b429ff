// Package quota enforces the per-account monthly deep-research cap.
//
// DESIGN: Usage lives in a usage_accounts table. The monthly counter is
// lazily reset on the first call after a calendar-month rollover (server
// local time), and consumption is a single conditional UPDATE that
// increments only while count < limit. "No row updated" means the quota is
// exhausted, so concurrent requests can never push the counter past the
// limit.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumenchat/request-gateway/internal/gwerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_accounts (
	user_id             TEXT PRIMARY KEY,
	research_count      INTEGER NOT NULL DEFAULT 0 CHECK (research_count >= 0),
	research_limit      INTEGER NOT NULL DEFAULT 0,
	research_last_reset INTEGER NOT NULL DEFAULT 0
)`

// UsageAccount is a read-only snapshot of one account's research usage.
type UsageAccount struct {
	UserID            string
	ResearchCount     int
	ResearchLimit     int
	ResearchLastReset time.Time
}

// Ledger tracks and enforces monthly research usage.
type Ledger struct {
	db           *sql.DB
	defaultLimit int

	// now is replaceable in tests to cross month boundaries.
	now func() time.Time
}

// Open opens (creating if needed) the accounts database at path and returns
// a ledger over it. defaultLimit applies to accounts with no explicit limit.
func Open(path string, defaultLimit int) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open accounts db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate accounts db: %w", err)
	}
	return NewLedger(db, defaultLimit), nil
}

// NewLedger wraps an already-open database.
func NewLedger(db *sql.DB, defaultLimit int) *Ledger {
	return &Ledger{db: db, defaultLimit: defaultLimit, now: time.Now}
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// Ping verifies the accounts store is reachable. Used by the health check.
func (l *Ledger) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

// CheckAndReserve loads the account, applies the lazy monthly reset, and
// verifies the caller is under quota. It mutates nothing except the reset.
// Returns the number of calls remaining this month.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID string) (int, error) {
	acct, err := l.Account(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := l.now()
	if !sameMonth(acct.ResearchLastReset, now) {
		if _, err := l.db.ExecContext(ctx,
			`UPDATE usage_accounts SET research_count = 0, research_last_reset = ? WHERE user_id = ?`,
			now.Unix(), userID,
		); err != nil {
			return 0, fmt.Errorf("reset usage for %s: %w", userID, err)
		}
		acct.ResearchCount = 0
	}

	limit := l.effectiveLimit(acct.ResearchLimit)
	if acct.ResearchCount >= limit {
		return 0, exceededErr(limit)
	}
	return limit - acct.ResearchCount, nil
}

// Commit consumes one research call. The increment is conditional on the
// counter still being under the limit, so it is safe under concurrent
// requests; an unaffected row reports quota exhaustion.
func (l *Ledger) Commit(ctx context.Context, userID string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE usage_accounts
		    SET research_count = research_count + 1
		  WHERE user_id = ?
		    AND research_count < CASE WHEN research_limit > 0 THEN research_limit ELSE ? END`,
		userID, l.defaultLimit,
	)
	if err != nil {
		return fmt.Errorf("commit usage for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit usage for %s: %w", userID, err)
	}
	if n > 0 {
		return nil
	}

	// No row updated: either the account is gone or the quota ran out
	// between check and commit.
	acct, err := l.Account(ctx, userID)
	if err != nil {
		return err
	}
	return exceededErr(l.effectiveLimit(acct.ResearchLimit))
}

// Account returns a snapshot of the stored usage row.
func (l *Ledger) Account(ctx context.Context, userID string) (*UsageAccount, error) {
	var (
		acct      = UsageAccount{UserID: userID}
		lastReset int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT research_count, research_limit, research_last_reset FROM usage_accounts WHERE user_id = ?`,
		userID,
	).Scan(&acct.ResearchCount, &acct.ResearchLimit, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.New(gwerr.KindProfileNotFound, "no usage profile for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load usage for %s: %w", userID, err)
	}
	acct.ResearchLastReset = time.Unix(lastReset, 0)
	return &acct, nil
}

// EnsureAccount creates the usage row if it does not exist. Accounts are
// normally created with the user's profile; this is the implicit-creation
// path for bootstrap and tests. limit <= 0 means "use the default".
func (l *Ledger) EnsureAccount(ctx context.Context, userID string, limit int) error {
	if limit < 0 {
		limit = 0
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO usage_accounts (user_id, research_count, research_limit, research_last_reset)
		 VALUES (?, 0, ?, 0)`,
		userID, limit,
	)
	if err != nil {
		return fmt.Errorf("ensure account for %s: %w", userID, err)
	}
	return nil
}

func (l *Ledger) effectiveLimit(stored int) int {
	if stored > 0 {
		return stored
	}
	return l.defaultLimit
}

// sameMonth compares calendar month and year in server local time. This is
// deliberately not a rolling 30-day window.
func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Local().Date()
	by, bm, _ := b.Local().Date()
	return ay == by && am == bm
}

func exceededErr(limit int) error {
	// User-facing quota message; the product surface is Portuguese.
	return gwerr.New(gwerr.KindQuotaExceeded, "Limite mensal de %d pesquisas atingido.", limit)
}

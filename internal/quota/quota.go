// Package quota enforces per-account daily send limits as a two-step
// check/apply pattern (not a hard lock), mirroring daily_limits.py.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDailyLimitExceeded names the over-limit condition. Check does not
// return it: an over-limit request is reported through CheckResult
// (CanSend false, WouldExceedBy > 0) with a nil error.
var ErrDailyLimitExceeded = errors.New("quota: daily limit exceeded")

// Clock supplies the current time; a fake clock makes reset-boundary
// tests deterministic.
type Clock interface {
	Now() time.Time
	Today() time.Time
}

// Store is the minimal persistence surface quota needs from the
// Datastore collaborator — kept separate from the full Datastore
// interface so this package can be tested against sqlmock alone.
type Store interface {
	// GetAccountForUpdate returns (dailyLimit, dailySent, dailyResetDate, totalSentAllTime).
	GetAccountForUpdate(ctx context.Context, accountID string) (limit, sent int, resetDate time.Time, totalAllTime int64, err error)
	// ApplyReset atomically rolls dailySent into totalSentAllTime and
	// resets the daily counter, only when resetDate < today.
	ApplyReset(ctx context.Context, accountID string, today time.Time) error
	// ApplyIncrement atomically adds n to dailySent.
	ApplyIncrement(ctx context.Context, accountID string, n int) error
}

// CheckResult is the outcome of a pre-batch quota check.
type CheckResult struct {
	CanSend        bool
	RemainingToday int
	WouldExceedBy  int
}

// Check performs the reset-if-stale-then-check step: given an account and
// a requested send count n, returns whether the batch may proceed.
func Check(ctx context.Context, store Store, clock Clock, accountID string, n int) (CheckResult, error) {
	limit, sent, resetDate, _, err := store.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("quota: load account: %w", err)
	}

	today := clock.Today()
	if resetDate.Before(today) {
		if err := store.ApplyReset(ctx, accountID, today); err != nil {
			return CheckResult{}, fmt.Errorf("quota: apply reset: %w", err)
		}
		sent = 0
	}

	remaining := limit - sent
	if remaining < 0 {
		remaining = 0
	}

	wouldExceedBy := (sent + n) - limit
	if wouldExceedBy < 0 {
		wouldExceedBy = 0
	}

	return CheckResult{
		CanSend:        wouldExceedBy == 0,
		RemainingToday: remaining,
		WouldExceedBy:  wouldExceedBy,
	}, nil
}

// Apply performs the post-commit step: atomically adds actuallySent to
// the account's daily_sent counter.
func Apply(ctx context.Context, store Store, accountID string, actuallySent int) error {
	if actuallySent <= 0 {
		return nil
	}
	return store.ApplyIncrement(ctx, accountID, actuallySent)
}

// OverLimitMessage formats the per-batch rejection reason used when a
// pre-check rejects a batch, matching "Daily limit exceeded: k over limit".
func OverLimitMessage(wouldExceedBy int) string {
	return fmt.Sprintf("Daily limit exceeded: %d over limit", wouldExceedBy)
}

// SQLStore is a database/sql-backed Store implementation: a plain SELECT
// for the read, and a single atomic UPDATE statement for each mutation
// (the SQL analogue of the Lua check-then-increment pattern: one
// statement, no read-modify-write race, durable rather than ephemeral
// state).
type SQLStore struct {
	DB *sql.DB
}

// GetAccountForUpdate reads the account's quota row. This is a plain read,
// not a locking read: there's no enclosing transaction here, so a FOR
// UPDATE clause would take no row lock and only mislead a reader into
// thinking one exists. The atomicity this package relies on comes from
// ApplyReset/ApplyIncrement each being a single UPDATE statement.
func (s *SQLStore) GetAccountForUpdate(ctx context.Context, accountID string) (int, int, time.Time, int64, error) {
	var limit, sent int
	var resetDate time.Time
	var totalAllTime int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT daily_limit, daily_sent, daily_reset_date, total_sent_all_time
		 FROM accounts WHERE id = $1`, accountID,
	).Scan(&limit, &sent, &resetDate, &totalAllTime)
	return limit, sent, resetDate, totalAllTime, err
}

func (s *SQLStore) ApplyReset(ctx context.Context, accountID string, today time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET total_sent_all_time = total_sent_all_time + daily_sent,
		 daily_sent = 0, daily_reset_date = $2
		 WHERE id = $1 AND daily_reset_date < $2`, accountID, today)
	return err
}

func (s *SQLStore) ApplyIncrement(ctx context.Context, accountID string, n int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET daily_sent = daily_sent + $2 WHERE id = $1`, accountID, n)
	return err
}

package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ today time.Time }

func (c fakeClock) Now() time.Time   { return c.today }
func (c fakeClock) Today() time.Time { return c.today }

type fakeStore struct {
	limit, sent int
	resetDate   time.Time
	totalAllTime int64
	resetCalls  int
	applyCalls  []int
}

func (s *fakeStore) GetAccountForUpdate(ctx context.Context, accountID string) (int, int, time.Time, int64, error) {
	return s.limit, s.sent, s.resetDate, s.totalAllTime, nil
}

func (s *fakeStore) ApplyReset(ctx context.Context, accountID string, today time.Time) error {
	s.totalAllTime += int64(s.sent)
	s.sent = 0
	s.resetDate = today
	s.resetCalls++
	return nil
}

func (s *fakeStore) ApplyIncrement(ctx context.Context, accountID string, n int) error {
	s.sent += n
	s.applyCalls = append(s.applyCalls, n)
	return nil
}

func TestCheck_WithinLimit(t *testing.T) {
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{limit: 100, sent: 50, resetDate: today}
	clock := fakeClock{today: today}

	res, err := Check(context.Background(), store, clock, "acct-1", 30)
	require.NoError(t, err)
	require.True(t, res.CanSend)
	require.Equal(t, 50, res.RemainingToday)
	require.Equal(t, 0, res.WouldExceedBy)
	require.Equal(t, 0, store.resetCalls)
}

func TestCheck_OverLimit(t *testing.T) {
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{limit: 100, sent: 96, resetDate: today}
	clock := fakeClock{today: today}

	res, err := Check(context.Background(), store, clock, "acct-1", 10)
	require.NoError(t, err)
	require.False(t, res.CanSend)
	require.Equal(t, 6, res.WouldExceedBy)
	require.Equal(t, "Daily limit exceeded: 6 over limit", OverLimitMessage(res.WouldExceedBy))
}

func TestCheck_AtomicResetWhenStale(t *testing.T) {
	yesterday := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{limit: 100, sent: 80, resetDate: yesterday, totalAllTime: 500}
	clock := fakeClock{today: today}

	res, err := Check(context.Background(), store, clock, "acct-1", 10)
	require.NoError(t, err)
	require.Equal(t, 1, store.resetCalls)
	require.Equal(t, int64(580), store.totalAllTime)
	require.True(t, res.CanSend)
	require.Equal(t, 100, res.RemainingToday)
}

func TestApply_IncrementsDailySent(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, Apply(context.Background(), store, "acct-1", 7))
	require.Equal(t, []int{7}, store.applyCalls)

	// A zero/negative actuallySent is a no-op, never calling the store.
	require.NoError(t, Apply(context.Background(), store, "acct-1", 0))
	require.Len(t, store.applyCalls, 1)
}

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func newTestQueue(t *testing.T) *Queue {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, 5000, time.Hour)
}

func TestResetAndDrainAll_PreservesOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	batches := []domain.SenderBatch{
		{CampaignID: "c1", Sender: domain.Sender{PrincipalEmail: "a@x.com"}, Tasks: []domain.RenderedTask{{RecipientEmail: "r1@x.com"}}},
		{CampaignID: "c1", Sender: domain.Sender{PrincipalEmail: "b@x.com"}, Tasks: []domain.RenderedTask{{RecipientEmail: "r2@x.com"}}},
	}

	require.NoError(t, q.ResetTasks(ctx, "c1", batches))

	drained, err := q.DrainAll(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, drained, 2)
	require.Equal(t, "a@x.com", drained[0].Sender.PrincipalEmail)
	require.Equal(t, "b@x.com", drained[1].Sender.PrincipalEmail)

	// A second drain on an already-empty queue returns nothing.
	empty, err := q.DrainAll(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestProgress_InitAndIncrement(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.InitProgress(ctx, "c1", 10, true, "probe@x.com", 3))

	prog, err := q.GetProgress(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 10, prog.Total)
	require.Equal(t, 10, prog.Pending)
	require.True(t, prog.TestAfterEnabled)
	require.Equal(t, 3, prog.TestAfterCount)

	require.NoError(t, q.IncrProgress(ctx, "c1", 4, 1, -5))
	prog, err = q.GetProgress(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 4, prog.Sent)
	require.Equal(t, 1, prog.Failed)
	require.Equal(t, 5, prog.Pending)
}

func TestAppendLog_CapsAtLogCap(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := New(client, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.AppendLog(ctx, "c1", "msg"))
	}

	entries, next, err := q.TailLogs(ctx, "c1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.EqualValues(t, 3, next)
}

func TestDrainAll_RejectsUnsupportedEnvelopeVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "campaign:c1:tasks", `{"v":2,"sender":{},"tasks":[]}`).Err())

	q := New(client, 5000, time.Hour)
	_, err := q.DrainAll(ctx, "c1")
	require.ErrorIs(t, err, ErrUnsupportedEnvelopeVersion)
}

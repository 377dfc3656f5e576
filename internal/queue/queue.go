// Package queue implements the Redis-backed durable task queue (campaign
// tasks list, progress hash, and capped live-log list). All prepared work
// for a campaign is materialized here before the dispatcher drains it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// envelopeVersion is the current on-wire SenderBatch envelope version. A
// future incompatible change bumps this; Queue refuses to decode anything
// else rather than silently draining a stale or future-shaped payload.
const envelopeVersion = 1

// ErrUnsupportedEnvelopeVersion signals a queue entry whose version this
// build does not understand. The dispatcher maps this to NotPrepared.
var ErrUnsupportedEnvelopeVersion = errors.New("queue: unsupported envelope version")

type envelope struct {
	V      int               `json:"v"`
	Sender domain.Sender     `json:"sender"`
	Tasks  []domain.RenderedTask `json:"tasks"`
}

// Queue wraps a redis.Client with the campaign:C:* key layout.
type Queue struct {
	client   *redis.Client
	logCap   int64
	progTTL  time.Duration
}

// New constructs a Queue. logCap and progressTTL come from CoreConfig
// (LogCap, ProgressTTL).
func New(client *redis.Client, logCap int64, progressTTL time.Duration) *Queue {
	return &Queue{client: client, logCap: logCap, progTTL: progressTTL}
}

func tasksKey(campaignID string) string    { return fmt.Sprintf("campaign:%s:tasks", campaignID) }
func progressKey(campaignID string) string { return fmt.Sprintf("campaign:%s:progress", campaignID) }
func logsKey(campaignID string) string     { return fmt.Sprintf("campaign:%s:logs", campaignID) }

// ResetTasks deletes any existing task list for the campaign (DEL) then
// RPUSHes each batch as a versioned JSON envelope, in order.
func (q *Queue) ResetTasks(ctx context.Context, campaignID string, batches []domain.SenderBatch) error {
	key := tasksKey(campaignID)
	if err := q.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("queue: del tasks: %w", err)
	}

	for _, b := range batches {
		env := envelope{V: envelopeVersion, Sender: b.Sender, Tasks: b.Tasks}
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("queue: marshal batch: %w", err)
		}
		if err := q.client.RPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("queue: rpush: %w", err)
		}
	}
	return nil
}

// DrainAll LPOPs every batch currently queued for the campaign, in
// insertion order, decoding each versioned envelope.
func (q *Queue) DrainAll(ctx context.Context, campaignID string) ([]domain.SenderBatch, error) {
	key := tasksKey(campaignID)
	var batches []domain.SenderBatch

	for {
		data, err := q.client.LPop(ctx, key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("queue: lpop: %w", err)
		}

		var env envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			return nil, fmt.Errorf("queue: unmarshal batch: %w", err)
		}
		if env.V != envelopeVersion {
			return nil, ErrUnsupportedEnvelopeVersion
		}
		batches = append(batches, domain.SenderBatch{CampaignID: campaignID, Sender: env.Sender, Tasks: env.Tasks})
	}

	return batches, nil
}

// Progress is the Redis-authoritative near-real-time counter snapshot.
type Progress struct {
	Total             int
	Sent              int
	Failed            int
	Pending           int
	TestAfterEnabled  bool
	TestAfterEmail    string
	TestAfterCount    int
}

// InitProgress (re)initializes the progress hash and sets its TTL.
func (q *Queue) InitProgress(ctx context.Context, campaignID string, total int, testAfterEnabled bool, testAfterEmail string, testAfterCount int) error {
	key := progressKey(campaignID)
	fields := map[string]interface{}{
		"total":              total,
		"sent":               0,
		"failed":             0,
		"pending":            total,
		"test_after_enabled": testAfterEnabled,
		"test_after_email":   testAfterEmail,
		"test_after_count":   testAfterCount,
	}
	if err := q.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("queue: hset progress: %w", err)
	}
	return q.client.Expire(ctx, key, q.progTTL).Err()
}

// IncrProgress atomically mirrors a batch commit's counter deltas via
// HINCRBY, the only write path during dispatch.
func (q *Queue) IncrProgress(ctx context.Context, campaignID string, sentDelta, failedDelta, pendingDelta int) error {
	key := progressKey(campaignID)
	pipe := q.client.Pipeline()
	pipe.HIncrBy(ctx, key, "sent", int64(sentDelta))
	pipe.HIncrBy(ctx, key, "failed", int64(failedDelta))
	pipe.HIncrBy(ctx, key, "pending", int64(pendingDelta))
	_, err := pipe.Exec(ctx)
	return err
}

// GetProgress reads the current progress hash.
func (q *Queue) GetProgress(ctx context.Context, campaignID string) (Progress, error) {
	key := progressKey(campaignID)
	m, err := q.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Progress{}, fmt.Errorf("queue: hgetall progress: %w", err)
	}
	return Progress{
		Total:            atoi(m["total"]),
		Sent:             atoi(m["sent"]),
		Failed:           atoi(m["failed"]),
		Pending:          atoi(m["pending"]),
		TestAfterEnabled: m["test_after_enabled"] == "1" || m["test_after_enabled"] == "true",
		TestAfterEmail:   m["test_after_email"],
		TestAfterCount:   atoi(m["test_after_count"]),
	}, nil
}

// LogEntry is one live-log record for a campaign.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}

// AppendLog RPUSHes a log entry then LTRIMs the list to logCap entries,
// mirroring append_campaign_log's capped-list behavior.
func (q *Queue) AppendLog(ctx context.Context, campaignID string, message string) error {
	key := logsKey(campaignID)
	entry := LogEntry{Timestamp: time.Now().UTC(), Message: message}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := q.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -q.logCap, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// TailLogs returns up to limit entries starting at offset, plus the next
// offset to resume pagination from.
func (q *Queue) TailLogs(ctx context.Context, campaignID string, offset, limit int64) ([]LogEntry, int64, error) {
	key := logsKey(campaignID)
	raw, err := q.client.LRange(ctx, key, offset, offset+limit-1).Result()
	if err != nil {
		return nil, offset, fmt.Errorf("queue: lrange logs: %w", err)
	}

	entries := make([]LogEntry, 0, len(raw))
	for _, r := range raw {
		var e LogEntry
		if err := json.Unmarshal([]byte(r), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, offset + int64(len(raw)), nil
}

func atoi(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// Package campaign implements the dispatch core's lifecycle controller,
// preparer, dispatcher, and batch executor. It depends only on the
// interfaces defined in this package and in its sibling collaborator
// packages (queue, quota, senderpool, distribution, render, transport);
// it must never import anything outside the dispatch core.
package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Datastore is the relational collaborator the core consumes. Read-
// committed, single-row writes; one batched write per batch-executor
// commit. Implementations live outside this package (e.g.
// internal/datastore's Postgres adapter).
type Datastore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	UpdateCampaign(ctx context.Context, id string, patch domain.CampaignPatch) error
	ListPendingEmailLogs(ctx context.Context, campaignID string) ([]domain.EmailLog, error)
	BulkInsertEmailLogs(ctx context.Context, logs []domain.EmailLog) error
	UpdateEmailLog(ctx context.Context, id string, patch domain.EmailLogPatch) error
	GetAccountsForCampaign(ctx context.Context, campaignID string) ([]domain.Account, error)
	GetActiveUsersForAccount(ctx context.Context, accountID string) ([]domain.User, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
}

// Clock is the injected time source (UTC Now, local-date Today), so daily-
// limit boundary tests are deterministic.
type Clock interface {
	Now() time.Time
	Today() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time   { return time.Now().UTC() }
func (SystemClock) Today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

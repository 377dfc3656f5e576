package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/render"
	"github.com/ignite/campaign-dispatch/internal/senderpool"
)

// ResumeResult is returned immediately by ResumeCampaign; the dispatcher
// does not wait for batch completion (fire-and-forget).
type ResumeResult struct {
	TaskHandle string
	Status     domain.CampaignStatus
}

// Dispatcher drains the prepared task queue and fans one Batch Executor
// out per sender batch, without blocking on their completion (C7).
type Dispatcher struct {
	Store   Datastore
	Queue   *queue.Queue
	Creds   senderpool.CredentialStore
	Clock   Clock
	Executor *Executor
}

// Resume runs the C7 algorithm.
func (d *Dispatcher) Resume(ctx context.Context, campaignID string) (ResumeResult, error) {
	camp, err := d.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return ResumeResult{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	switch camp.Status {
	case domain.CampaignReady, domain.CampaignPaused:
		sending := domain.CampaignSending
		now := d.Clock.Now()
		patch := domain.CampaignPatch{Status: &sending}
		if camp.Status == domain.CampaignReady {
			patch.StartedAt = &now
		}
		if err := d.Store.UpdateCampaign(ctx, campaignID, patch); err != nil {
			return ResumeResult{}, fmt.Errorf("campaign: set sending: %w", err)
		}
	case domain.CampaignSending:
		// Already sending (e.g. a previous dispatcher fanned out only
		// some batches before the process died); allow draining whatever
		// remains without re-flipping status.
	default:
		return ResumeResult{}, fmt.Errorf("%w: campaign %s is %s", ErrInvalidTransition, campaignID, camp.Status)
	}

	batches, err := d.Queue.DrainAll(ctx, campaignID)
	if err != nil {
		if errors.Is(err, queue.ErrUnsupportedEnvelopeVersion) {
			return ResumeResult{}, fmt.Errorf("%w: %v", ErrNotPrepared, err)
		}
		return ResumeResult{}, fmt.Errorf("campaign: drain queue: %w", err)
	}

	if len(batches) == 0 {
		batches, err = d.reconstructFromDatastore(ctx, campaignID, camp)
		if err != nil {
			return ResumeResult{}, err
		}
	}

	if len(batches) == 0 {
		return ResumeResult{}, ErrNotPrepared
	}

	handle := fmt.Sprintf("dispatch-%s-%d", campaignID, d.Clock.Now().UnixNano())

	for _, batch := range batches {
		b := batch
		go func() {
			bgCtx := context.Background()
			if err := d.Executor.Run(bgCtx, campaignID, b); err != nil {
				logger.Error("batch executor failed", "campaign_id", campaignID, "sender", b.Sender.PrincipalEmail, "err", err.Error())
			}
		}()
	}

	return ResumeResult{TaskHandle: handle, Status: domain.CampaignSending}, nil
}

// reconstructFromDatastore rebuilds SenderBatches from pending EmailLog
// rows when the Redis queue is empty but the campaign's Datastore status
// is SENDING — the crash-recovery fallback (resolves the spec's "Redis
// empty on resume" open question in favor of reconstruction).
func (d *Dispatcher) reconstructFromDatastore(ctx context.Context, campaignID string, camp *domain.Campaign) ([]domain.SenderBatch, error) {
	pending, err := d.Store.ListPendingEmailLogs(ctx, campaignID)
	if err != nil || len(pending) == 0 {
		return nil, nil
	}

	accounts, err := d.Store.GetAccountsForCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign: reconstruct: load accounts: %w", err)
	}
	usersByAccount := make(map[string][]domain.User, len(accounts))
	for _, a := range accounts {
		users, err := d.Store.GetActiveUsersForAccount(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("campaign: reconstruct: load users: %w", err)
		}
		usersByAccount[a.ID] = users
	}
	pool, err := senderpool.Build(ctx, accounts, usersByAccount, d.Creds)
	if err != nil {
		return nil, fmt.Errorf("campaign: reconstruct: %w", err)
	}
	senderByEmail := make(map[string]domain.Sender, len(pool))
	for _, s := range pool {
		senderByEmail[s.PrincipalEmail] = s
	}

	logsBySender := make(map[string][]domain.EmailLog)
	for _, l := range pending {
		logsBySender[l.SenderEmail] = append(logsBySender[l.SenderEmail], l)
	}

	recipientVars := make(map[string]map[string]string, len(camp.Recipients))
	for _, r := range camp.Recipients {
		recipientVars[r.Email] = r.Variables
	}

	var batches []domain.SenderBatch
	for senderEmail, logs := range logsBySender {
		sender, ok := senderByEmail[senderEmail]
		if !ok {
			logger.Warn("campaign: reconstruct skipped unknown sender", "sender", senderEmail)
			continue
		}

		batch := domain.SenderBatch{CampaignID: campaignID, Sender: sender}
		for _, l := range logs {
			id := l.ID
			vars := recipientVars[l.RecipientEmail]
			subject := render.SubstituteVariables(camp.Subject, vars)
			batch.Tasks = append(batch.Tasks, domain.RenderedTask{
				EmailLogID:     &id,
				RecipientEmail: l.RecipientEmail,
				Subject:        subject,
				BodyHTML:       render.SubstituteVariables(camp.BodyHTML, vars),
				BodyPlain:      render.SubstituteVariables(camp.BodyPlain, vars),
				FromName:       render.SubstituteVariables(camp.FromName, vars),
			})
		}
		batches = append(batches, batch)
	}

	logger.Warn("campaign: reconstructed batches from datastore after empty queue", "campaign_id", campaignID, "batches", len(batches))
	return batches, nil
}

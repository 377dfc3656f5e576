package campaign

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/distribution"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/render"
	"github.com/ignite/campaign-dispatch/internal/senderpool"
)

// PrepareResult is the payload returned to PrepareCampaign's caller.
type PrepareResult struct {
	Status      domain.CampaignStatus
	TotalTasks  int
	SenderCount int
	Elapsed     time.Duration
}

// Preparer builds the sender pool, pre-renders every recipient, and
// materializes the Redis task queue (C6). One instance is shared across
// campaigns; the single-preparer-per-campaign guarantee comes from a
// distlock acquired per call.
type Preparer struct {
	Store      Datastore
	Queue      *queue.Queue
	Creds      senderpool.CredentialStore
	Clock      Clock
	RedisLock  *redis.Client // non-nil enables Redis-backed locking; nil falls back to Postgres advisory locks
	LockDB     *sql.DB
	LockTTL    time.Duration
}

func (p *Preparer) lock(campaignID string) distlock.DistLock {
	ttl := p.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return distlock.NewLock(p.RedisLock, p.LockDB, fmt.Sprintf("prepare:%s", campaignID), ttl)
}

// Prepare runs the full C6 algorithm.
func (p *Preparer) Prepare(ctx context.Context, campaignID string) (PrepareResult, error) {
	start := p.Clock.Now()

	l := p.lock(campaignID)
	acquired, err := l.Acquire(ctx)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: acquire prepare lock: %w", err)
	}
	if !acquired {
		return PrepareResult{}, fmt.Errorf("%w: prepare already running for %s", ErrInvalidTransition, campaignID)
	}
	defer l.Release(ctx)

	camp, err := p.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	// Step 1: eligibility + PREPARING transition.
	if camp.Status != domain.CampaignDraft && camp.Status != domain.CampaignFailed {
		return PrepareResult{}, fmt.Errorf("%w: campaign %s is %s, need draft or failed", ErrInvalidTransition, campaignID, camp.Status)
	}
	preparing := domain.CampaignPreparing
	now := p.Clock.Now()
	if err := p.Store.UpdateCampaign(ctx, campaignID, domain.CampaignPatch{Status: &preparing, PreparedAt: &now}); err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: set preparing: %w", err)
	}

	result, err := p.prepareLocked(ctx, campaignID, camp)
	if err != nil {
		p.failCampaign(ctx, campaignID, err)
		return PrepareResult{}, err
	}

	result.Elapsed = p.Clock.Now().Sub(start)
	return result, nil
}

func (p *Preparer) failCampaign(ctx context.Context, campaignID string, reason error) {
	failed := domain.CampaignFailed
	_ = p.Store.UpdateCampaign(ctx, campaignID, domain.CampaignPatch{Status: &failed})
	_ = p.Queue.AppendLog(ctx, campaignID, "prepare failed: "+reason.Error())
	logger.Error("campaign prepare failed", "campaign_id", campaignID, "err", reason.Error())
}

func (p *Preparer) prepareLocked(ctx context.Context, campaignID string, camp *domain.Campaign) (PrepareResult, error) {
	// Step 2: sender pool.
	accounts, err := p.Store.GetAccountsForCampaign(ctx, campaignID)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: load accounts: %w", err)
	}
	usersByAccount := make(map[string][]domain.User, len(accounts))
	for _, a := range accounts {
		users, err := p.Store.GetActiveUsersForAccount(ctx, a.ID)
		if err != nil {
			return PrepareResult{}, fmt.Errorf("campaign: load users for account %s: %w", a.ID, err)
		}
		usersByAccount[a.ID] = users
	}

	pool, err := senderpool.Build(ctx, accounts, usersByAccount, p.Creds)
	if err != nil {
		return PrepareResult{}, err
	}

	// Step 3: validation.
	if len(camp.Recipients) == 0 {
		return PrepareResult{}, fmt.Errorf("%w: no recipients", ErrValidationFailed)
	}
	if camp.HeaderType == domain.HeaderFullCustom {
		if camp.CustomHeader == "" {
			return PrepareResult{}, fmt.Errorf("%w: custom_header required in full_custom mode", ErrValidationFailed)
		}
	} else {
		if camp.Subject == "" || camp.FromName == "" {
			return PrepareResult{}, fmt.Errorf("%w: subject and from_name required", ErrValidationFailed)
		}
	}

	// Step 4: EmailLog creation, idempotent on re-prepare.
	logs, err := p.Store.ListPendingEmailLogs(ctx, campaignID)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: list pending logs: %w", err)
	}
	if len(logs) == 0 {
		logs, err = p.createEmailLogs(ctx, campaignID, camp.Recipients, pool)
		if err != nil {
			return PrepareResult{}, err
		}
	}

	// Step 5: pre-render + group by sender, with test-after interleaving.
	batches, err := p.renderBatches(campaignID, camp, logs, pool)
	if err != nil {
		return PrepareResult{}, err
	}

	// Step 6: materialize Redis queue + progress hash.
	if err := p.Queue.ResetTasks(ctx, campaignID, batches); err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: reset queue: %w", err)
	}
	total := 0
	for _, b := range batches {
		total += len(b.Tasks)
	}
	if err := p.Queue.InitProgress(ctx, campaignID, total, camp.TestAfterEnabled(), camp.TestAfterEmail, camp.TestAfterCount); err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: init progress: %w", err)
	}

	// Step 7: READY transition.
	ready := domain.CampaignReady
	totalRecipients := len(camp.Recipients)
	pending := totalRecipients
	if err := p.Store.UpdateCampaign(ctx, campaignID, domain.CampaignPatch{
		Status:          &ready,
		PendingCount:    &pending,
		TotalRecipients: &totalRecipients,
	}); err != nil {
		return PrepareResult{}, fmt.Errorf("campaign: set ready: %w", err)
	}

	return PrepareResult{Status: domain.CampaignReady, TotalTasks: total, SenderCount: len(pool)}, nil
}

func (p *Preparer) createEmailLogs(ctx context.Context, campaignID string, recipients []domain.Recipient, pool []domain.Sender) ([]domain.EmailLog, error) {
	emailLogIDs := make([]string, len(recipients))
	for i := range emailLogIDs {
		emailLogIDs[i] = uuid.NewString()
	}

	segments := distribution.Split(emailLogIDs, recipients, pool)

	logs := make([]domain.EmailLog, 0, len(recipients))
	for _, seg := range segments {
		for i, recip := range seg.Recipients {
			logs = append(logs, domain.EmailLog{
				ID:               seg.EmailLogIDs[i],
				CampaignID:       campaignID,
				RecipientEmail:   recip.Email,
				SenderEmail:      seg.Sender.PrincipalEmail,
				ServiceAccountID: seg.Sender.AccountID,
				Status:           domain.EmailLogPending,
			})
		}
	}

	if err := p.Store.BulkInsertEmailLogs(ctx, logs); err != nil {
		return nil, fmt.Errorf("campaign: bulk insert logs: %w", err)
	}
	return logs, nil
}

func (p *Preparer) renderBatches(campaignID string, camp *domain.Campaign, logs []domain.EmailLog, pool []domain.Sender) ([]domain.SenderBatch, error) {
	logsBySender := make(map[string][]domain.EmailLog)
	senderByEmail := make(map[string]domain.Sender, len(pool))
	for _, s := range pool {
		senderByEmail[s.PrincipalEmail] = s
	}
	for _, l := range logs {
		if l.Status != domain.EmailLogPending && l.Status != domain.EmailLogFailed {
			continue
		}
		logsBySender[l.SenderEmail] = append(logsBySender[l.SenderEmail], l)
	}

	recipientVars := make(map[string]map[string]string, len(camp.Recipients))
	for _, r := range camp.Recipients {
		recipientVars[r.Email] = r.Variables
	}

	var batches []domain.SenderBatch
	for senderEmail, senderLogs := range logsBySender {
		sender, ok := senderByEmail[senderEmail]
		if !ok {
			return nil, fmt.Errorf("campaign: no pool entry for sender %s", senderEmail)
		}

		emailLogIDs := make([]string, len(senderLogs))
		recipients := make([]domain.Recipient, len(senderLogs))
		for i, l := range senderLogs {
			emailLogIDs[i] = l.ID
			recipients[i] = domain.Recipient{Email: l.RecipientEmail, Variables: recipientVars[l.RecipientEmail]}
		}

		seg := distribution.Segment{Sender: sender, EmailLogIDs: emailLogIDs, Recipients: recipients}
		renderTask := p.taskRenderer(camp, sender)
		batches = append(batches, distribution.BuildBatches(campaignID, []distribution.Segment{seg}, camp.TestAfterEmail, camp.TestAfterCount, renderTask)...)
	}

	return batches, nil
}

// taskRenderer returns a distribution.RenderFunc bound to one sender's
// principal, applying variable substitution and, in full-custom mode,
// the header macro table.
func (p *Preparer) taskRenderer(camp *domain.Campaign, sender domain.Sender) distribution.RenderFunc {
	return func(emailLogID *string, recipient domain.Recipient) domain.RenderedTask {
		subject := render.SubstituteVariables(camp.Subject, recipient.Variables)
		html := render.SubstituteVariables(camp.BodyHTML, recipient.Variables)
		plain := render.SubstituteVariables(camp.BodyPlain, recipient.Variables)

		task := domain.RenderedTask{
			EmailLogID:     emailLogID,
			RecipientEmail: recipient.Email,
			Subject:        subject,
			BodyHTML:       html,
			BodyPlain:      plain,
			FromName:       render.SubstituteVariables(camp.FromName, recipient.Variables),
		}

		if camp.HeaderType == domain.HeaderFullCustom {
			macroCtx := render.MacroContext{
				RecipientEmail: recipient.Email,
				FromName:       task.FromName,
				Subject:        subject,
				Principal:      sender.PrincipalEmail,
			}
			headerText := render.SubstituteVariables(camp.CustomHeader, recipient.Variables)
			task.CustomHeaderText = render.ExpandMacros(headerText, macroCtx)
		}

		return task
	}
}

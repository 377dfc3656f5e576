package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/quota"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// TransportFactory constructs one Transport Adapter handle for a
// sender-batch's credential, reused for every task in the batch.
type TransportFactory func(sender domain.Sender) transport.MailTransport

// Executor runs one sender-batch to completion (C8): bounded-parallel
// sends, cooperative pause/cancel observation, and a single commit phase.
type Executor struct {
	Store      Datastore
	Queue      *queue.Queue
	QuotaStore quota.Store
	Clock      Clock
	NewTransport TransportFactory

	MaxParallelPerSender int
	MicroDelay           time.Duration
	StatusPollInterval   int
}

func (e *Executor) poolSize(n int) int {
	max := e.MaxParallelPerSender
	if max <= 0 {
		max = 50
	}
	if n < max {
		return n
	}
	return max
}

func (e *Executor) pollInterval() int {
	if e.StatusPollInterval <= 0 {
		return 10
	}
	return e.StatusPollInterval
}

// Run executes one batch. It never returns an error that should abort the
// campaign: an internal crash marks the batch's own tasks failed and
// returns nil so the caller (fire-and-forget dispatch) only logs it.
func (e *Executor) Run(ctx context.Context, campaignID string, batch domain.SenderBatch) (err error) {
	committing := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch executor panic", "campaign_id", campaignID, "sender", batch.Sender.PrincipalEmail, "panic", r)
			if !committing {
				_ = e.failAll(ctx, campaignID, batch, fmt.Sprintf("internal batch error: %v", r))
			}
			err = nil
		}
	}()

	countable := 0
	for _, t := range batch.Tasks {
		if !t.IsProbe() {
			countable++
		}
	}

	check, qerr := quota.Check(ctx, e.QuotaStore, e.Clock, batch.Sender.AccountID, countable)
	if qerr != nil {
		logger.Error("quota check failed", "campaign_id", campaignID, "account_id", batch.Sender.AccountID, "err", qerr.Error())
		committing = true
		return e.failAll(ctx, campaignID, batch, qerr.Error())
	}
	if !check.CanSend {
		committing = true
		return e.failAll(ctx, campaignID, batch, quota.OverLimitMessage(check.WouldExceedBy))
	}

	mt := e.NewTransport(batch.Sender)

	results, canceled := e.runTasks(ctx, campaignID, mt, batch)
	committing = true
	return e.commit(ctx, campaignID, batch, results, canceled)
}

// failAll marks every non-probe task in the batch as failed with reason,
// used for the quota-rejection and internal-crash failure paths.
func (e *Executor) failAll(ctx context.Context, campaignID string, batch domain.SenderBatch, reason string) error {
	var results []domain.TaskResult
	for _, t := range batch.Tasks {
		if t.IsProbe() {
			continue
		}
		id := *t.EmailLogID
		results = append(results, domain.TaskResult{EmailLogID: &id, Success: false, Err: errString(reason)})
	}
	return e.commit(ctx, campaignID, batch, results, false)
}

type errString string

func (e errString) Error() string { return string(e) }

// runTasks submits every task through a bounded semaphore, polling
// campaign status every pollInterval submissions. On PAUSED it stops
// submitting and leaves the remainder pending (no result). On CANCELED it
// marks the remainder failed without calling the transport.
func (e *Executor) runTasks(ctx context.Context, campaignID string, mt transport.MailTransport, batch domain.SenderBatch) ([]domain.TaskResult, bool) {
	n := len(batch.Tasks)
	sem := make(chan struct{}, e.poolSize(n))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []domain.TaskResult
	canceled := false

	interval := e.pollInterval()

	for i, task := range batch.Tasks {
		if i%interval == 0 {
			camp, err := e.Store.GetCampaign(ctx, campaignID)
			if err == nil {
				switch camp.Status {
				case domain.CampaignPaused:
					wg.Wait()
					return results, false
				case domain.CampaignCanceled:
					canceled = true
				}
			}
		}
		if canceled {
			if !task.IsProbe() {
				id := *task.EmailLogID
				mu.Lock()
				results = append(results, domain.TaskResult{EmailLogID: &id, Success: false, Err: errString("Campaign canceled")})
				mu.Unlock()
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		t := task
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if e.MicroDelay > 0 {
				time.Sleep(e.MicroDelay)
			}

			res := e.sendOne(ctx, mt, t, batch.Sender.PrincipalEmail)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results, canceled
}

func (e *Executor) sendOne(ctx context.Context, mt transport.MailTransport, task domain.RenderedTask, principal string) domain.TaskResult {
	res := domain.TaskResult{EmailLogID: task.EmailLogID}

	enabled, err := mt.IsMailEnabled(ctx, principal)
	if err != nil {
		logger.Warn("IsMailEnabled check failed", "principal", principal, "err", err.Error())
	}
	if !enabled {
		res.Err = &transport.MailDisabledError{Principal: principal}
		return res
	}

	var messageID string
	if task.CustomHeaderText != "" {
		messageID, err = mt.SendRaw(ctx, principal, task)
	} else {
		messageID, err = mt.SendEmail(ctx, principal, task)
	}

	if err != nil {
		res.Err = err
		return res
	}
	res.Success = true
	res.MessageID = messageID
	return res
}

// commit is the single-transaction-per-batch write phase: EmailLog updates
// always happen for collected results, and the Campaign row's counters are
// always advanced by the same results — a task that's marked sent/failed
// here always has its count reflected in PendingCount, or resuming a
// PAUSED campaign would never see pending reach zero. CANCELED is the one
// exception: it's already terminal, so its counters are frozen at the
// cancel point and only the EmailLog rows (marked failed above) record
// what happened to the in-flight tasks.
func (e *Executor) commit(ctx context.Context, campaignID string, batch domain.SenderBatch, results []domain.TaskResult, canceledDuringRun bool) error {
	now := e.Clock.Now()

	sentInBatch, failedInBatch := 0, 0
	for _, r := range results {
		if r.EmailLogID == nil {
			continue // probe result, not counted
		}
		if r.Success {
			sentInBatch++
			status := domain.EmailLogSent
			_ = e.Store.UpdateEmailLog(ctx, *r.EmailLogID, domain.EmailLogPatch{
				Status: &status, MessageID: &r.MessageID, SentAt: &now,
			})
		} else {
			failedInBatch++
			status := domain.EmailLogFailed
			msg := r.Err.Error()
			_ = e.Store.UpdateEmailLog(ctx, *r.EmailLogID, domain.EmailLogPatch{
				Status: &status, ErrorMessage: &msg, FailedAt: &now,
			})
		}
	}

	camp, err := e.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	if camp.Status == domain.CampaignCanceled {
		_ = e.Queue.IncrProgress(ctx, campaignID, 0, 0, 0)
		return nil
	}

	processed := sentInBatch + failedInBatch
	newSent := camp.SentCount + sentInBatch
	newFailed := camp.FailedCount + failedInBatch
	newPending := camp.PendingCount - processed
	if newPending < 0 {
		newPending = 0
	}

	patch := domain.CampaignPatch{SentCount: &newSent, FailedCount: &newFailed, PendingCount: &newPending}
	if camp.Status != domain.CampaignPaused && newPending == 0 {
		completed := domain.CampaignCompleted
		patch.Status = &completed
		patch.CompletedAt = &now
	}
	if err := e.Store.UpdateCampaign(ctx, campaignID, patch); err != nil {
		return err
	}

	if sentInBatch > 0 {
		if err := quota.Apply(ctx, e.QuotaStore, batch.Sender.AccountID, sentInBatch); err != nil {
			logger.Error("quota apply failed", "account_id", batch.Sender.AccountID, "err", err.Error())
		}
	}

	return e.Queue.IncrProgress(ctx, campaignID, sentInBatch, failedInBatch, -processed)
}

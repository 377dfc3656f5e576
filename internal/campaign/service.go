package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

// CoreServices is the dependency-injection root the rest of this module
// is built around — grounded on the teacher's Service-wrapping-a-
// Repository pattern, generalized to the full dispatch core's
// collaborators rather than global singletons.
type CoreServices struct {
	Store      Datastore
	Queue      *queue.Queue
	Clock      Clock
	Preparer   *Preparer
	Dispatcher *Dispatcher
	Controller *Controller
}

// PrepareCampaign runs the Preparer (C6).
func (s *CoreServices) PrepareCampaign(ctx context.Context, campaignID string) (PrepareResult, error) {
	return s.Preparer.Prepare(ctx, campaignID)
}

// ResumeCampaign runs the Dispatcher (C7); fire-and-forget.
func (s *CoreServices) ResumeCampaign(ctx context.Context, campaignID string) (ResumeResult, error) {
	return s.Dispatcher.Resume(ctx, campaignID)
}

// ControlCampaign applies pause/resume/cancel.
func (s *CoreServices) ControlCampaign(ctx context.Context, campaignID string, action ControlAction) (domain.CampaignStatus, error) {
	return s.Controller.Control(ctx, campaignID, action)
}

// ProgressView is the payload returned by CampaignProgress, joining the
// campaign row's status and timestamps with the Redis-authoritative near-
// real-time counters. It carries campaign-wide totals only; there is no
// per-account breakdown.
type ProgressView struct {
	Status      domain.CampaignStatus
	Total       int
	Sent        int
	Failed      int
	Pending     int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// CampaignProgress derives the near-real-time progress view. Redis is
// authoritative for the counters; the Datastore supplies status and
// timestamps.
func (s *CoreServices) CampaignProgress(ctx context.Context, campaignID string) (ProgressView, error) {
	camp, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return ProgressView{}, err
	}
	prog, err := s.Queue.GetProgress(ctx, campaignID)
	if err != nil {
		return ProgressView{}, err
	}
	return ProgressView{
		Status:      camp.Status,
		Total:       prog.Total,
		Sent:        prog.Sent,
		Failed:      prog.Failed,
		Pending:     prog.Pending,
		StartedAt:   camp.StartedAt,
		CompletedAt: camp.CompletedAt,
	}, nil
}

// StreamCampaignProgress yields a ProgressView on interval (default ~1s)
// until the campaign reaches a terminal status or ctx is canceled. A
// pull-style channel stream, the simplest idiomatic translation of the
// "push or pull, ~1s cadence" requirement.
func (s *CoreServices) StreamCampaignProgress(ctx context.Context, campaignID string, interval time.Duration) <-chan ProgressView {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan ProgressView)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			view, err := s.CampaignProgress(ctx, campaignID)
			if err == nil {
				select {
				case out <- view:
				case <-ctx.Done():
					return
				}
				if view.Status.IsTerminal() {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// TailCampaignLogs paginates the capped live-log list.
func (s *CoreServices) TailCampaignLogs(ctx context.Context, campaignID string, offset, limit int64) ([]queue.LogEntry, int64, error) {
	return s.Queue.TailLogs(ctx, campaignID, offset, limit)
}

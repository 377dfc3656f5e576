package campaign

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ControlAction is one of the caller-facing lifecycle commands.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionCancel ControlAction = "cancel"
)

// legalTransitions encodes the state machine's edges reachable via
// ControlCampaign (prepare/resume entry points have their own guards in
// preparer.go/dispatcher.go).
var legalTransitions = map[domain.CampaignStatus]map[ControlAction]domain.CampaignStatus{
	domain.CampaignSending: {
		ActionPause:  domain.CampaignPaused,
		ActionCancel: domain.CampaignCanceled,
	},
	domain.CampaignPaused: {
		ActionResume: domain.CampaignSending,
		ActionCancel: domain.CampaignCanceled,
	},
	domain.CampaignReady: {
		ActionCancel: domain.CampaignCanceled,
	},
}

// Controller applies pause/resume/cancel commands to a campaign's status,
// matching the teacher's Service.UpdateStatus + ErrInvalidTransition shape.
type Controller struct {
	Store Datastore
	Clock Clock
}

// Control validates and applies one of {pause, resume, cancel}.
// Resume here only flips PAUSED back to SENDING; resuming a READY
// campaign to start sending is Dispatcher.Resume in dispatcher.go.
func (c *Controller) Control(ctx context.Context, campaignID string, action ControlAction) (domain.CampaignStatus, error) {
	camp, err := c.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	// cancel is idempotent: a campaign already CANCELED stays CANCELED
	// rather than erroring on a repeated request.
	if action == ActionCancel && camp.Status == domain.CampaignCanceled {
		return domain.CampaignCanceled, nil
	}

	edges, ok := legalTransitions[camp.Status]
	if !ok {
		return "", fmt.Errorf("%w: campaign %s is %s", ErrInvalidTransition, campaignID, camp.Status)
	}
	next, ok := edges[action]
	if !ok {
		return "", fmt.Errorf("%w: %s not valid from %s", ErrInvalidTransition, action, camp.Status)
	}

	patch := domain.CampaignPatch{Status: &next}
	if action == ActionPause {
		now := c.Clock.Now()
		patch.PausedAt = &now
	}
	if err := c.Store.UpdateCampaign(ctx, campaignID, patch); err != nil {
		return "", fmt.Errorf("campaign: update status: %w", err)
	}
	return next, nil
}

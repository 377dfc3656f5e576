package domain

import "time"

// CampaignPatch carries partial updates to a Campaign row; nil fields are
// left untouched, matching the teacher's pointer-field UpdateFields idiom.
type CampaignPatch struct {
	Status          *CampaignStatus
	PreparedAt      *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	PausedAt        *time.Time
	SentCount       *int
	FailedCount     *int
	PendingCount    *int
	TotalRecipients *int
	DispatchHandle  *string
}

// EmailLogPatch carries partial updates to a single EmailLog row.
type EmailLogPatch struct {
	Status       *EmailLogStatus
	MessageID    *string
	ErrorMessage *string
	SentAt       *time.Time
	FailedAt     *time.Time
	RetryCount   *int
}

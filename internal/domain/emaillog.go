package domain

import "time"

// EmailLogStatus enumerates the lifecycle of a single recipient send.
type EmailLogStatus string

const (
	EmailLogPending EmailLogStatus = "pending"
	EmailLogSending EmailLogStatus = "sending"
	EmailLogSent    EmailLogStatus = "sent"
	EmailLogFailed  EmailLogStatus = "failed"
	EmailLogRetry   EmailLogStatus = "retry"
)

// EmailLog is the durable, one-per-recipient record of a send attempt.
type EmailLog struct {
	ID              string         `json:"id" db:"id"`
	CampaignID      string         `json:"campaign_id" db:"campaign_id"`
	RecipientEmail  string         `json:"recipient_email" db:"recipient_email"`
	RecipientName   string         `json:"recipient_name" db:"recipient_name"`
	SenderEmail     string         `json:"sender_email" db:"sender_email"`
	ServiceAccountID string        `json:"service_account_id" db:"service_account_id"`
	Subject         string         `json:"subject" db:"subject"`
	MessageID       string         `json:"message_id" db:"message_id"`
	Status          EmailLogStatus `json:"status" db:"status"`
	ErrorMessage    string         `json:"error_message" db:"error_message"`
	RetryCount      int            `json:"retry_count" db:"retry_count"`
	SentAt          *time.Time     `json:"sent_at" db:"sent_at"`
	FailedAt        *time.Time     `json:"failed_at" db:"failed_at"`
}

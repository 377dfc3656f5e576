package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a dispatched campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignPreparing CampaignStatus = "preparing"
	CampaignReady     CampaignStatus = "ready"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCanceled  CampaignStatus = "canceled"
)

// IsTerminal reports whether status admits no further transitions.
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignCompleted, CampaignFailed, CampaignCanceled:
		return true
	default:
		return false
	}
}

// HeaderMode selects between the ordinary From/Subject send path and the
// fully custom raw-header path (the transport adapter's "full custom" mode).
type HeaderMode string

const (
	HeaderExisting   HeaderMode = "existing"
	HeaderFullCustom HeaderMode = "full_custom"
)

// Recipient is one entry in a campaign's ordered recipient sequence.
type Recipient struct {
	Email     string            `json:"email"`
	Variables map[string]string `json:"variables"`
}

// Campaign is the aggregate root driving a send run. Only the fields the
// dispatch core consumes are modeled here; the owning system's storage
// schema may carry more.
type Campaign struct {
	ID string `json:"id" db:"id"`

	Subject   string `json:"subject" db:"subject"`
	BodyHTML  string `json:"body_html" db:"body_html"`
	BodyPlain string `json:"body_plain" db:"body_plain"`
	FromName  string `json:"from_name" db:"from_name"`

	HeaderType   HeaderMode `json:"header_type" db:"header_type"`
	CustomHeader string     `json:"custom_header" db:"custom_header"`

	Recipients      []Recipient `json:"-" db:"-"`
	TotalRecipients int         `json:"total_recipients" db:"total_recipients"`

	SenderAccountIDs []string `json:"sender_account_ids" db:"-"`

	RateLimit   int `json:"rate_limit" db:"rate_limit"`
	Concurrency int `json:"concurrency" db:"concurrency"`

	TestAfterEmail string `json:"test_after_email" db:"test_after_email"`
	TestAfterCount int    `json:"test_after_count" db:"test_after_count"`

	Status CampaignStatus `json:"status" db:"status"`

	SentCount    int `json:"sent_count" db:"sent_count"`
	FailedCount  int `json:"failed_count" db:"failed_count"`
	PendingCount int `json:"pending_count" db:"pending_count"`

	PreparedAt  *time.Time `json:"prepared_at" db:"prepared_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	PausedAt    *time.Time `json:"paused_at" db:"paused_at"`

	DispatchHandle string `json:"dispatch_handle" db:"dispatch_handle"`
}

// TestAfterEnabled reports whether probe interleaving is active for this run.
func (c *Campaign) TestAfterEnabled() bool {
	return c.TestAfterCount > 0 && c.TestAfterEmail != ""
}

// CounterInvariantHolds checks that sent+failed+pending equals
// total_recipients. Callers rely on this holding outside a batch commit.
func (c *Campaign) CounterInvariantHolds() bool {
	return c.SentCount+c.FailedCount+c.PendingCount == c.TotalRecipients
}

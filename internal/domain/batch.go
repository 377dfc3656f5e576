package domain

// Sender is one pool entry produced by the sender-pool builder: a
// principal that the transport adapter impersonates via domain-wide
// delegation, carrying the decrypted credential for exactly this run.
type Sender struct {
	AccountID      string
	PrincipalEmail string
	UserID         string
	AdminEmail     string
	Credential     []byte
}

// Attachment is an opaque file payload carried through to the transport
// adapter unmodified.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// RenderedTask is fully pre-rendered at prepare time; the send path
// performs zero templating. EmailLogID is nil for non-counted probe tasks.
type RenderedTask struct {
	EmailLogID      *string      `json:"email_log_id"`
	RecipientEmail  string       `json:"recipient_email"`
	Subject         string       `json:"subject"`
	BodyHTML        string       `json:"body_html"`
	BodyPlain       string       `json:"body_plain"`
	FromName        string       `json:"from_name"`
	CustomHeaders   map[string]string `json:"custom_headers,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	CustomHeaderText string      `json:"custom_header_text,omitempty"`
}

// IsProbe reports whether this task is a test-after probe, i.e. does not
// correspond to a counted EmailLog row.
func (t *RenderedTask) IsProbe() bool { return t.EmailLogID == nil }

// SenderBatch groups the tasks assigned to one sender, the unit the
// dispatcher fans out to a single Batch Executor.
type SenderBatch struct {
	CampaignID string       `json:"campaign_id"`
	Sender     Sender       `json:"sender"`
	Tasks      []RenderedTask `json:"tasks"`
}

// TaskResult is the outcome of one transport call, collected by the batch
// executor before the commit phase.
type TaskResult struct {
	EmailLogID *string
	Success    bool
	MessageID  string
	Err        error
}

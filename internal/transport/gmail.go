package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

const (
	gmailSendURL     = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"
	directoryUserURL = "https://admin.googleapis.com/admin/directory/v1/users/%s"

	gmailScope     = "https://www.googleapis.com/auth/gmail.send"
	directoryScope = "https://www.googleapis.com/auth/admin.directory.user.readonly"

	mailDisabledMessage = "mail service not enabled for user"
)

// GmailAdapter implements MailTransport against the Gmail REST API using
// domain-wide delegation (JWT impersonation), grounded on
// get_delegated_credentials + send_email from the original implementation.
// One instance is constructed per batch and bound to a single decrypted
// service-account credential; it is never persisted.
type GmailAdapter struct {
	credentialJSON []byte
	adminEmail     string
	httpClient     *http.Client
}

// NewGmailAdapter constructs an adapter for one sender-batch's credential.
// adminEmail is used as the impersonation principal for directory reads
// (IsMailEnabled); httpClient defaults to a 30s-timeout client if nil.
func NewGmailAdapter(credentialJSON []byte, adminEmail string, httpClient *http.Client) *GmailAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GmailAdapter{credentialJSON: credentialJSON, adminEmail: adminEmail, httpClient: httpClient}
}

// delegatedClient returns an *http.Client whose requests are authorized as
// principal, via a JWT bearer token scoped to scopes. This is the Go
// equivalent of service_account.Credentials.with_subject(principal).
func (a *GmailAdapter) delegatedClient(ctx context.Context, principal string, scopes ...string) (*http.Client, error) {
	cfg, err := google.JWTConfigFromJSON(a.credentialJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("transport: parse service account credential: %w", err)
	}
	cfg.Subject = principal
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	return oauth2.NewClient(ctx, cfg.TokenSource(ctx)), nil
}

// IsMailEnabled consults the Admin Directory API (delegated as the
// account's admin principal) and checks isMailboxSetup.
func (a *GmailAdapter) IsMailEnabled(ctx context.Context, principal string) (bool, error) {
	admin := a.adminEmail
	if admin == "" {
		admin = principal
	}
	client, err := a.delegatedClient(ctx, admin, directoryScope)
	if err != nil {
		return false, err
	}

	url := fmt.Sprintf(directoryUserURL, principal) + "?projection=full"
	resp, err := client.Get(url)
	if err != nil {
		return false, &TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, &TransportError{Status: resp.StatusCode, Message: string(body)}
	}

	var out struct {
		IsMailboxSetup *bool `json:"isMailboxSetup"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return true, nil // conservative: directory payload unparseable, don't block sending on it
	}
	if out.IsMailboxSetup != nil {
		return *out.IsMailboxSetup, nil
	}
	return true, nil
}

// SendEmail sends through the ordinary From/Subject/body path.
func (a *GmailAdapter) SendEmail(ctx context.Context, principal string, task domain.RenderedTask) (string, error) {
	contentType, body, err := buildBody(task.BodyHTML, task.BodyPlain)
	if err != nil {
		return "", fmt.Errorf("transport: build body: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", task.FromName, principal)
	fmt.Fprintf(&msg, "To: %s\r\n", task.RecipientEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", task.Subject)

	for k, v := range filterCustomHeaders(task.CustomHeaders) {
		fmt.Fprintf(&msg, "%s: %s\r\n", canonicalHeaderName(k), v)
	}

	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n\r\n", contentType)
	msg.Write(body)

	return a.send(ctx, principal, msg.Bytes())
}

// SendRaw sends the full-custom path: task.CustomHeaderText is placed
// verbatim (canonicalized, To guaranteed) ahead of the pre-rendered body.
func (a *GmailAdapter) SendRaw(ctx context.Context, principal string, task domain.RenderedTask) (string, error) {
	body := task.BodyHTML
	if body == "" {
		body = task.BodyPlain
	}
	raw := buildRawMessage(task.CustomHeaderText, task.RecipientEmail, body)
	return a.send(ctx, principal, raw)
}

func (a *GmailAdapter) send(ctx context.Context, principal string, rawMessage []byte) (string, error) {
	client, err := a.delegatedClient(ctx, principal, gmailScope)
	if err != nil {
		return "", err
	}

	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(rawMessage)
	payload, err := json.Marshal(map[string]string{"raw": encoded})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gmailSendURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", &TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(strings.ToLower(string(respBody)), mailDisabledMessage) {
			return "", &MailDisabledError{Principal: principal}
		}
		return "", &TransportError{Status: resp.StatusCode, Message: string(respBody)}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		logger.Warn("transport: unparseable gmail send response", "principal", principal)
		return "", nil
	}
	return out.ID, nil
}

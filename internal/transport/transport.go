// Package transport implements the Transport Adapter: domain-wide
// delegation impersonation against the Gmail API, MIME body construction,
// and header canonicalization. Grounded on the original GoogleWorkspaceService
// and the teacher's direct-net/http ESP call idiom.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// MailDisabledError is the distinguished error the executor checks for to
// record a GmailDisabled failure without treating it as a generic
// transport error.
type MailDisabledError struct {
	Principal string
}

func (e *MailDisabledError) Error() string {
	return fmt.Sprintf("transport: mail service not enabled for %s", e.Principal)
}

// TransportError carries the remote status/message for any other remote
// rejection.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: remote error (status %d): %s", e.Status, e.Message)
}

// IsMailDisabled reports whether err is (or wraps) a MailDisabledError.
func IsMailDisabled(err error) bool {
	var target *MailDisabledError
	return errors.As(err, &target)
}

// MailTransport is the contract the batch executor drives; a single
// instance is constructed once per batch and reused for every task in it.
type MailTransport interface {
	// SendEmail sends through the ordinary From/Subject path. customHeaders
	// are caller-supplied extra headers; MIME-structural headers among
	// them are dropped (logged as a warning), never overridden.
	SendEmail(ctx context.Context, principal string, task domain.RenderedTask) (messageID string, err error)

	// SendRaw sends the "full custom" path: task.CustomHeaderText supplies
	// a fully prepared header block that is placed verbatim, only
	// normalizing well-known header names to canonical case and
	// guaranteeing a To header.
	SendRaw(ctx context.Context, principal string, task domain.RenderedTask) (messageID string, err error)

	// IsMailEnabled reports whether the principal's mailbox is usable,
	// consulted before every send attempt.
	IsMailEnabled(ctx context.Context, principal string) (bool, error)
}

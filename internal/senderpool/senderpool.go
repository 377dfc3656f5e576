// Package senderpool builds the ordered list of eligible sending
// principals for a campaign, excluding administrative/system mailboxes.
// Ported from the admin-exclusion rules in the original prepare task.
package senderpool

import (
	"context"
	"errors"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// ErrNoSendersAvailable is returned when every candidate principal was
// excluded by the admin filter (or no usable accounts were supplied; an
// account with no users contributes its service account's client_email).
var ErrNoSendersAvailable = errors.New("senderpool: no senders available")

// adminLocalParts is the fixed exclusion set from the admin-exclusion
// filter: an exact local-part match, or the local part prefixed by one of
// these tokens followed by '.' or '_'.
var adminLocalParts = []string{
	"admin", "administrator", "postmaster", "abuse", "support",
	"noreply", "no-reply", "donotreply", "do-not-reply",
	"system", "automation", "bot", "test", "demo",
}

// CredentialStore decrypts an account's opaque credential blob exactly
// once per account.
type CredentialStore interface {
	Decrypt(ctx context.Context, blob []byte) (json []byte, err error)
}

// DecryptError wraps a credential-store failure for one account; the
// account is excluded from the pool for this run rather than aborting it.
type DecryptError struct {
	AccountID string
	Err       error
}

func (e *DecryptError) Error() string { return "senderpool: decrypt failed for " + e.AccountID + ": " + e.Err.Error() }
func (e *DecryptError) Unwrap() error  { return e.Err }

// Build constructs the ordered sender pool for a campaign from its
// accounts and each account's active users, decrypting each account's
// credential exactly once and applying the admin-exclusion filter to
// every candidate principal.
func Build(ctx context.Context, accounts []domain.Account, usersByAccount map[string][]domain.User, store CredentialStore) ([]domain.Sender, error) {
	var pool []domain.Sender

	for _, acct := range accounts {
		cred, err := store.Decrypt(ctx, acct.Credential)
		if err != nil {
			logger.Warn("account credential decrypt failed", "account_id", acct.ID, "err", err.Error())
			continue
		}

		candidates := usersByAccount[acct.ID]
		if len(candidates) == 0 {
			// Fall back to the account's own client_email as a single
			// implicit principal, matching the original task's
			// sender-accounts-gathering fallback when no User rows exist.
			candidates = []domain.User{{
				ID:          acct.ID,
				AccountID:   acct.ID,
				Email:       acct.ClientEmail,
				DisplayName: acct.DisplayName,
				IsActive:    true,
			}}
		}

		for _, u := range candidates {
			if !u.IsActive {
				continue
			}
			if isAdminEmail(u.Email, u.DisplayName, acct.AdminEmail) {
				continue
			}
			pool = append(pool, domain.Sender{
				AccountID:      acct.ID,
				PrincipalEmail: u.Email,
				UserID:         u.ID,
				AdminEmail:     acct.AdminEmail,
				Credential:     cred,
			})
		}
	}

	if len(pool) == 0 {
		return nil, ErrNoSendersAvailable
	}
	return pool, nil
}

// isAdminEmail applies the three conservative exclusion rules: exact
// match against the account's admin principal, local-part membership in
// the fixed admin token set (or prefixed by one followed by '.'/'_'), or
// the display name containing any of those tokens.
func isAdminEmail(email, displayName, adminEmail string) bool {
	lowerEmail := strings.ToLower(email)
	if adminEmail != "" && lowerEmail == strings.ToLower(adminEmail) {
		return true
	}

	localPart := lowerEmail
	if i := strings.Index(lowerEmail, "@"); i >= 0 {
		localPart = lowerEmail[:i]
	}
	for _, tok := range adminLocalParts {
		if localPart == tok || strings.HasPrefix(localPart, tok+".") || strings.HasPrefix(localPart, tok+"_") {
			return true
		}
	}

	lowerName := strings.ToLower(displayName)
	for _, tok := range adminLocalParts {
		if lowerName != "" && strings.Contains(lowerName, tok) {
			return true
		}
	}

	return false
}

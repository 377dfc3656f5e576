package domain

import "time"

// Account is a Google Workspace domain-wide-delegation identity used as a
// sending source. Credential is an opaque encrypted blob; it is decrypted
// only transiently by the Credential store collaborator.
type Account struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	ClientEmail string `json:"client_email" db:"client_email"`
	Domain      string `json:"domain" db:"domain"`
	AdminEmail  string `json:"admin_email" db:"admin_email"`
	Credential  []byte `json:"-" db:"credential"`

	DailyLimit       int       `json:"daily_limit" db:"daily_limit"`
	DailySent        int       `json:"daily_sent" db:"daily_sent"`
	DailyResetDate   time.Time `json:"daily_reset_date" db:"daily_reset_date"`
	TotalSentAllTime int64     `json:"total_sent_all_time" db:"total_sent_all_time"`
}

// RemainingToday returns the account's unused quota for the current day,
// without performing the stale-reset check (callers that need the reset
// semantics use quota.Check).
func (a *Account) RemainingToday() int {
	r := a.DailyLimit - a.DailySent
	if r < 0 {
		return 0
	}
	return r
}

// User is a mailbox within an Account that may act as a sender principal.
type User struct {
	ID             string `json:"id" db:"id"`
	AccountID      string `json:"account_id" db:"account_id"`
	Email          string `json:"email" db:"email"`
	DisplayName    string `json:"display_name" db:"display_name"`
	IsActive       bool   `json:"is_active" db:"is_active"`
	SoftQuota      int    `json:"soft_quota" db:"soft_quota"`
	EmailsSentToday int   `json:"emails_sent_today" db:"emails_sent_today"`
	LastUsed       *time.Time `json:"last_used" db:"last_used"`
}

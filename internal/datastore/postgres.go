// Package datastore provides a reference Postgres implementation of the
// dispatch core's Datastore collaborator (campaign.Datastore). It is a
// thin data-access shim, not a CRUD HTTP surface — the owning system may
// supply its own implementation instead.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Postgres implements campaign.Datastore and quota.AllAccountsStore
// against a database/sql handle via lib/pq (quota.Store is implemented
// separately by quota.SQLStore),
// grounded on the teacher's repository/postgres query shape.
type Postgres struct {
	DB *sql.DB
}

func New(db *sql.DB) *Postgres { return &Postgres{DB: db} }

func (p *Postgres) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	var recipientsJSON []byte
	var headerType string

	err := p.DB.QueryRowContext(ctx, `
		SELECT id, subject, body_html, body_plain, from_name, header_type, custom_header,
		       recipients, total_recipients, rate_limit, concurrency,
		       test_after_email, test_after_count, status,
		       sent_count, failed_count, pending_count,
		       prepared_at, started_at, completed_at, paused_at, dispatch_handle
		FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.Subject, &c.BodyHTML, &c.BodyPlain, &c.FromName, &headerType, &c.CustomHeader,
		&recipientsJSON, &c.TotalRecipients, &c.RateLimit, &c.Concurrency,
		&c.TestAfterEmail, &c.TestAfterCount, &c.Status,
		&c.SentCount, &c.FailedCount, &c.PendingCount,
		&c.PreparedAt, &c.StartedAt, &c.CompletedAt, &c.PausedAt, &c.DispatchHandle)
	if err != nil {
		return nil, err
	}
	c.HeaderType = domain.HeaderMode(headerType)

	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &c.Recipients); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

func (p *Postgres) UpdateCampaign(ctx context.Context, id string, patch domain.CampaignPatch) error {
	sets := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(*patch.Status))
	}
	if patch.PreparedAt != nil {
		sets = append(sets, "prepared_at = "+arg(*patch.PreparedAt))
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = "+arg(*patch.StartedAt))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*patch.CompletedAt))
	}
	if patch.PausedAt != nil {
		sets = append(sets, "paused_at = "+arg(*patch.PausedAt))
	}
	if patch.SentCount != nil {
		sets = append(sets, "sent_count = "+arg(*patch.SentCount))
	}
	if patch.FailedCount != nil {
		sets = append(sets, "failed_count = "+arg(*patch.FailedCount))
	}
	if patch.PendingCount != nil {
		sets = append(sets, "pending_count = "+arg(*patch.PendingCount))
	}
	if patch.TotalRecipients != nil {
		sets = append(sets, "total_recipients = "+arg(*patch.TotalRecipients))
	}
	if patch.DispatchHandle != nil {
		sets = append(sets, "dispatch_handle = "+arg(*patch.DispatchHandle))
	}
	if len(sets) == 0 {
		return nil
	}

	q := "UPDATE campaigns SET " + joinComma(sets) + " WHERE id = " + arg(id)
	_, err := p.DB.ExecContext(ctx, q, args...)
	return err
}

func (p *Postgres) ListPendingEmailLogs(ctx context.Context, campaignID string) ([]domain.EmailLog, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, campaign_id, recipient_email, recipient_name, sender_email,
		       service_account_id, subject, message_id, status, error_message,
		       retry_count, sent_at, failed_at
		FROM email_logs WHERE campaign_id = $1 AND status IN ('pending', 'failed')`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.EmailLog
	for rows.Next() {
		var l domain.EmailLog
		var status string
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.RecipientEmail, &l.RecipientName, &l.SenderEmail,
			&l.ServiceAccountID, &l.Subject, &l.MessageID, &status, &l.ErrorMessage,
			&l.RetryCount, &l.SentAt, &l.FailedAt); err != nil {
			return nil, err
		}
		l.Status = domain.EmailLogStatus(status)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (p *Postgres) BulkInsertEmailLogs(ctx context.Context, logs []domain.EmailLog) error {
	if len(logs) == 0 {
		return nil
	}

	txn, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn("email_logs",
		"id", "campaign_id", "recipient_email", "recipient_name", "sender_email",
		"service_account_id", "subject", "status"))
	if err != nil {
		return err
	}

	for _, l := range logs {
		if _, err := stmt.ExecContext(ctx, l.ID, l.CampaignID, l.RecipientEmail, l.RecipientName,
			l.SenderEmail, l.ServiceAccountID, l.Subject, string(l.Status)); err != nil {
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return txn.Commit()
}

func (p *Postgres) UpdateEmailLog(ctx context.Context, id string, patch domain.EmailLogPatch) error {
	sets := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(*patch.Status))
	}
	if patch.MessageID != nil {
		sets = append(sets, "message_id = "+arg(*patch.MessageID))
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = "+arg(*patch.ErrorMessage))
	}
	if patch.SentAt != nil {
		sets = append(sets, "sent_at = "+arg(*patch.SentAt))
	}
	if patch.FailedAt != nil {
		sets = append(sets, "failed_at = "+arg(*patch.FailedAt))
	}
	if patch.RetryCount != nil {
		sets = append(sets, "retry_count = "+arg(*patch.RetryCount))
	}
	if len(sets) == 0 {
		return nil
	}

	q := "UPDATE email_logs SET " + joinComma(sets) + " WHERE id = " + arg(id)
	_, err := p.DB.ExecContext(ctx, q, args...)
	return err
}

func (p *Postgres) GetAccountsForCampaign(ctx context.Context, campaignID string) ([]domain.Account, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT a.id, a.display_name, a.client_email, a.domain, a.admin_email,
		       a.credential, a.daily_limit, a.daily_sent, a.daily_reset_date, a.total_sent_all_time
		FROM accounts a
		JOIN campaign_accounts ca ON ca.account_id = a.id
		WHERE ca.campaign_id = $1`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.ClientEmail, &a.Domain, &a.AdminEmail,
			&a.Credential, &a.DailyLimit, &a.DailySent, &a.DailyResetDate, &a.TotalSentAllTime); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (p *Postgres) GetActiveUsersForAccount(ctx context.Context, accountID string) ([]domain.User, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, account_id, email, display_name, is_active, soft_quota, emails_sent_today, last_used
		FROM users WHERE account_id = $1 AND is_active = true`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.AccountID, &u.Email, &u.DisplayName, &u.IsActive,
			&u.SoftQuota, &u.EmailsSentToday, &u.LastUsed); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *Postgres) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := p.DB.QueryRowContext(ctx, `
		SELECT id, display_name, client_email, domain, admin_email, credential,
		       daily_limit, daily_sent, daily_reset_date, total_sent_all_time
		FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.DisplayName, &a.ClientEmail, &a.Domain, &a.AdminEmail, &a.Credential,
		&a.DailyLimit, &a.DailySent, &a.DailyResetDate, &a.TotalSentAllTime)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListStaleAccountIDs implements quota.AllAccountsStore for the midnight
// reset job.
func (p *Postgres) ListStaleAccountIDs(ctx context.Context, today time.Time) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id FROM accounts WHERE daily_reset_date < $1`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func TestGetCampaign_ScansAllFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{
		"id", "subject", "body_html", "body_plain", "from_name", "header_type", "custom_header",
		"recipients", "total_recipients", "rate_limit", "concurrency",
		"test_after_email", "test_after_count", "status",
		"sent_count", "failed_count", "pending_count",
		"prepared_at", "started_at", "completed_at", "paused_at", "dispatch_handle",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"c1", "Hi", "<p>hi</p>", "hi", "Acme", "existing", "",
		[]byte(`[{"email":"r@x.com","variables":{"name":"R"}}]`), 1, 0, 0,
		"", 0, "ready",
		0, 0, 1,
		nil, nil, nil, nil, "",
	)
	mock.ExpectQuery("SELECT id, subject, body_html").WithArgs("c1").WillReturnRows(rows)

	p := New(db)
	camp, err := p.GetCampaign(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, domain.HeaderExisting, camp.HeaderType)
	require.Len(t, camp.Recipients, 1)
	require.Equal(t, "r@x.com", camp.Recipients[0].Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCampaign_BuildsPositionalSetClause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sent := 5
	status := domain.CampaignCompleted
	mock.ExpectExec("UPDATE campaigns SET status = \\$1, sent_count = \\$2 WHERE id = \\$3").
		WithArgs(status, sent, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := New(db)
	err = p.UpdateCampaign(context.Background(), "c1", domain.CampaignPatch{Status: &status, SentCount: &sent})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCampaign_NoFieldsIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := New(db)
	require.NoError(t, p.UpdateCampaign(context.Background(), "c1", domain.CampaignPatch{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingEmailLogs_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "campaign_id", "recipient_email", "recipient_name", "sender_email",
		"service_account_id", "subject", "message_id", "status", "error_message",
		"retry_count", "sent_at", "failed_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("log-1", "c1", "r1@x.com", "", "s@corp.com", "acct-1", "Hi", "", "pending", "", 0, nil, nil)
	mock.ExpectQuery("SELECT id, campaign_id, recipient_email").WithArgs("c1").WillReturnRows(rows)

	p := New(db)
	logs, err := p.ListPendingEmailLogs(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.EmailLogPending, logs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmailLog_BuildsSetClause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	status := domain.EmailLogSent
	msgID := "msg-1"
	mock.ExpectExec("UPDATE email_logs SET status = \\$1, message_id = \\$2 WHERE id = \\$3").
		WithArgs(status, msgID, "log-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := New(db)
	err = p.UpdateEmailLog(context.Background(), "log-1", domain.EmailLogPatch{Status: &status, MessageID: &msgID})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountsForCampaign_JoinsCampaignAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "display_name", "client_email", "domain", "admin_email",
		"credential", "daily_limit", "daily_sent", "daily_reset_date", "total_sent_all_time"}
	rows := sqlmock.NewRows(cols).AddRow(
		"acct-1", "Acme", "sender@corp.com", "corp.com", "admin@corp.com",
		[]byte("enc"), 2000, 10, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), int64(100),
	)
	mock.ExpectQuery("FROM accounts a").WithArgs("c1").WillReturnRows(rows)

	p := New(db)
	accounts, err := p.GetAccountsForCampaign(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "sender@corp.com", accounts[0].ClientEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStaleAccountIDs_FiltersByResetDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id"}).AddRow("acct-1").AddRow("acct-2")
	mock.ExpectQuery("SELECT id FROM accounts WHERE daily_reset_date").WithArgs(today).WillReturnRows(rows)

	p := New(db)
	ids, err := p.ListStaleAccountIDs(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, []string{"acct-1", "acct-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertEmailLogs_UsesCopyIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logs := []domain.EmailLog{
		{ID: "log-1", CampaignID: "c1", RecipientEmail: "r1@x.com", SenderEmail: "s@corp.com", ServiceAccountID: "acct-1", Status: domain.EmailLogPending},
		{ID: "log-2", CampaignID: "c1", RecipientEmail: "r2@x.com", SenderEmail: "s@corp.com", ServiceAccountID: "acct-1", Status: domain.EmailLogPending},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("email_logs")
	for _, l := range logs {
		mock.ExpectExec("email_logs").
			WithArgs(l.ID, l.CampaignID, l.RecipientEmail, l.RecipientName, l.SenderEmail, l.ServiceAccountID, l.Subject, string(l.Status)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("email_logs").WillReturnResult(sqlmock.NewResult(0, int64(len(logs))))
	mock.ExpectCommit()

	p := New(db)
	require.NoError(t, p.BulkInsertEmailLogs(context.Background(), logs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertEmailLogs_EmptyIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := New(db)
	require.NoError(t, p.BulkInsertEmailLogs(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Command dispatcher boots the campaign dispatch core: Postgres Datastore,
// Redis task queue, Gmail/SMTP transport, and the scheduled quota reset
// job. It exposes no HTTP surface (Non-goal); its only caller surface is
// a one-shot argv command (prepare/resume/pause/cancel <campaign id>).
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/credential"
	"github.com/ignite/campaign-dispatch/internal/datastore"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/quota"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/transport"

	_ "github.com/lib/pq"
)

func main() {
	logger.Info("starting campaign dispatch core")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.Database.ConnTimeout())
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	logger.Info("connected to database")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisOpts.DialTimeout = cfg.Redis.DialTimeout()
	redisClient := redis.NewClient(redisOpts)

	redisCtx, cancelRedis := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout())
	defer cancelRedis()
	if err := redisClient.Ping(redisCtx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}
	logger.Info("connected to redis")

	credKey := []byte(os.Getenv("CREDENTIAL_ENCRYPTION_KEY"))
	credStore, err := credential.NewAESGCMStore(credKey)
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}

	store := datastore.New(db)
	q := queue.New(redisClient, int64(cfg.Dispatch.LogCap), cfg.Dispatch.ProgressTTL())
	clock := campaign.SystemClock{}

	newTransport := func(sender domain.Sender) transport.MailTransport {
		if cfg.SMTP.Enabled {
			return &smtpThenGmail{
				smtp:  transport.NewSMTPAdapter(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password),
				gmail: transport.NewGmailAdapter(sender.Credential, sender.AdminEmail, http.DefaultClient),
			}
		}
		return transport.NewGmailAdapter(sender.Credential, sender.AdminEmail, http.DefaultClient)
	}

	executor := &campaign.Executor{
		Store:                store,
		Queue:                q,
		QuotaStore:           &quota.SQLStore{DB: db},
		Clock:                clock,
		NewTransport:         newTransport,
		MaxParallelPerSender: cfg.Dispatch.MaxParallelPerSender,
		MicroDelay:           cfg.Dispatch.MicroDelay(),
		StatusPollInterval:   cfg.Dispatch.StatusPollInterval,
	}

	preparer := &campaign.Preparer{
		Store:     store,
		Queue:     q,
		Creds:     credStore,
		Clock:     clock,
		RedisLock: redisClient,
		LockDB:    db,
		LockTTL:   30 * time.Second,
	}

	dispatcher := &campaign.Dispatcher{
		Store:    store,
		Queue:    q,
		Creds:    credStore,
		Clock:    clock,
		Executor: executor,
	}

	controller := &campaign.Controller{Store: store, Clock: clock}

	services := &campaign.CoreServices{
		Store:      store,
		Queue:      q,
		Clock:      clock,
		Preparer:   preparer,
		Dispatcher: dispatcher,
		Controller: controller,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resetJob := quota.NewResetJob(&quota.SQLStore{DB: db}, store, clock, 5*time.Minute)
	resetJob.Start(ctx)
	logger.Info("quota reset job started")

	// A one-shot lifecycle command (prepare/resume/pause/cancel <campaign
	// id>) lets an operator drive a campaign from the shell without an
	// HTTP surface; with no args the process just runs the reset job.
	if len(os.Args) >= 3 {
		runCommand(ctx, services, os.Args[1], os.Args[2])
		resetJob.Stop()
		return
	}

	logger.Info("campaign dispatch core running")

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-quitCh

	logger.Info("shutting down campaign dispatch core")
	resetJob.Stop()
	cancel()
}

func runCommand(ctx context.Context, services *campaign.CoreServices, cmd, campaignID string) {
	switch cmd {
	case "prepare":
		result, err := services.PrepareCampaign(ctx, campaignID)
		if err != nil {
			log.Fatalf("prepare %s: %v", campaignID, err)
		}
		logger.Info("campaign prepared", "campaign_id", campaignID, "status", string(result.Status), "tasks", result.TotalTasks)
	case "resume":
		result, err := services.ResumeCampaign(ctx, campaignID)
		if err != nil {
			log.Fatalf("resume %s: %v", campaignID, err)
		}
		logger.Info("campaign resumed", "campaign_id", campaignID, "status", string(result.Status))
	case "pause":
		status, err := services.ControlCampaign(ctx, campaignID, campaign.ActionPause)
		if err != nil {
			log.Fatalf("pause %s: %v", campaignID, err)
		}
		logger.Info("campaign paused", "campaign_id", campaignID, "status", string(status))
	case "cancel":
		status, err := services.ControlCampaign(ctx, campaignID, campaign.ActionCancel)
		if err != nil {
			log.Fatalf("cancel %s: %v", campaignID, err)
		}
		logger.Info("campaign canceled", "campaign_id", campaignID, "status", string(status))
	default:
		log.Fatalf("unknown command %q (want prepare|resume|pause|cancel)", cmd)
	}
}

// smtpThenGmail tries the SMTP fallback leg first for ordinary SendEmail
// calls (per the supplemented SMTP feature), falling back to Gmail API
// delivery on any failure. SendRaw and IsMailEnabled go to Gmail only.
type smtpThenGmail struct {
	smtp  *transport.SMTPAdapter
	gmail *transport.GmailAdapter
}

func (t *smtpThenGmail) IsMailEnabled(ctx context.Context, principal string) (bool, error) {
	return t.gmail.IsMailEnabled(ctx, principal)
}

func (t *smtpThenGmail) SendEmail(ctx context.Context, principal string, task domain.RenderedTask) (string, error) {
	if id, err := t.smtp.SendEmail(ctx, principal, task); err == nil {
		return id, nil
	}
	return t.gmail.SendEmail(ctx, principal, task)
}

func (t *smtpThenGmail) SendRaw(ctx context.Context, principal string, task domain.RenderedTask) (string, error) {
	return t.gmail.SendRaw(ctx, principal, task)
}

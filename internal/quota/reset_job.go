package quota

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// AllAccountsStore lists every account id whose reset is potentially
// stale, for the scheduled midnight job.
type AllAccountsStore interface {
	ListStaleAccountIDs(ctx context.Context, today time.Time) ([]string, error)
}

// ResetJob performs the scheduled local-midnight reset for every account
// whose daily_reset_date has fallen behind, covering accounts that saw no
// traffic that day. Grounded on the teacher's periodic-ticker job shape.
type ResetJob struct {
	store    Store
	lister   AllAccountsStore
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewResetJob constructs a job that checks for a new local day on the
// given interval (typically every few minutes; the check itself is
// idempotent so the exact cadence is not load-bearing).
func NewResetJob(store Store, lister AllAccountsStore, clock Clock, interval time.Duration) *ResetJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ResetJob{store: store, lister: lister, clock: clock, interval: interval}
}

// Start launches the background ticker loop.
func (j *ResetJob) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.running = true
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				j.runOnce(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (j *ResetJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.cancel()
	j.running = false
	j.mu.Unlock()
	j.wg.Wait()
}

func (j *ResetJob) runOnce(ctx context.Context) {
	today := j.clock.Today()
	ids, err := j.lister.ListStaleAccountIDs(ctx, today)
	if err != nil {
		logger.Error("reset job: list stale accounts failed", "err", err.Error())
		return
	}
	for _, id := range ids {
		if err := j.store.ApplyReset(ctx, id, today); err != nil {
			logger.Error("reset job: apply reset failed", "account_id", id, "err", err.Error())
		}
	}
}

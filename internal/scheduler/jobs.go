package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
)

// Reconciler is the part of the ledger the reconciliation job drives.
type Reconciler interface {
	ReconcileAll(ctx context.Context, repair bool) ([]ledger.ReconcileReport, error)
}

// ReconcileJob replays every account's logs and compares them with the stored
// account rows and position cache, rebuilding drifted caches when repair is set.
type ReconcileJob struct {
	ledger  Reconciler
	repair  bool
	timeout time.Duration
	log     zerolog.Logger
}

// NewReconcileJob creates a new reconciliation job
func NewReconcileJob(l Reconciler, repair bool, timeout time.Duration, log zerolog.Logger) *ReconcileJob {
	return &ReconcileJob{
		ledger:  l,
		repair:  repair,
		timeout: timeout,
		log:     log.With().Str("job", "ledger_reconciliation").Logger(),
	}
}

// Name returns the job name
func (j *ReconcileJob) Name() string {
	return "ledger_reconciliation"
}

// Run executes the reconciliation. Account-row drift is reported as an error
// because only position caches can be repaired automatically.
func (j *ReconcileJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	startTime := time.Now()
	reports, err := j.ledger.ReconcileAll(ctx, j.repair)
	if err != nil {
		return fmt.Errorf("reconcile accounts: %w", err)
	}

	var drifted, repaired, accountDrift int
	for _, r := range reports {
		if r.Consistent() {
			continue
		}
		drifted++
		if r.Repaired {
			repaired++
		}
		if r.AccountDrift {
			accountDrift++
		}
	}

	j.log.Info().
		Int("accounts", len(reports)).
		Int("drifted", drifted).
		Int("repaired", repaired).
		Dur("duration", time.Since(startTime)).
		Msg("Reconciliation finished")

	if accountDrift > 0 {
		return fmt.Errorf("%d account(s) disagree with their logs", accountDrift)
	}
	return nil
}

// ExpiredQuoteDeleter is the part of the price cache the cleanup job needs.
type ExpiredQuoteDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PriceCacheCleanupJob drops expired quotes from the price cache.
type PriceCacheCleanupJob struct {
	cache ExpiredQuoteDeleter
	log   zerolog.Logger
}

func NewPriceCacheCleanupJob(cache ExpiredQuoteDeleter, log zerolog.Logger) *PriceCacheCleanupJob {
	return &PriceCacheCleanupJob{
		cache: cache,
		log:   log.With().Str("job", "price_cache_cleanup").Logger(),
	}
}

func (j *PriceCacheCleanupJob) Name() string {
	return "price_cache_cleanup"
}

func (j *PriceCacheCleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := j.cache.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired quotes: %w", err)
	}
	j.log.Debug().Int64("deleted", n).Msg("Expired quotes removed")
	return nil
}

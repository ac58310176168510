// Package pipeline runs the ledger's background jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// archiveLockTTL bounds how long a crashed run can block the next one.
const archiveLockTTL = 30 * time.Minute

// SnapshotSource yields a consistent copy of the ledger. *ledger.Ledger
// satisfies it.
type SnapshotSource interface {
	Owner() common.Address
	Snapshot() ([]domain.Tier, []domain.Position)
}

// ArchiverConfig tunes an archive run.
type ArchiverConfig struct {
	RetentionDays int
	Snapshot      bool
	// OnRun, when set, observes every scheduled run's outcome.
	OnRun func(RunResult, error)
}

// RunResult summarises one archive run.
type RunResult struct {
	Cutoff       time.Time
	Archived     int64
	SnapshotPath string
}

// Archiver copies closed positions, and optionally a full ledger snapshot,
// to cold storage. Runs are serialised across processes by a distributed
// lock when one is configured.
type Archiver struct {
	blob   domain.Archiver
	ledger SnapshotSource
	locks  domain.LockManager
	cfg    ArchiverConfig
	clock  domain.Clock
	logger *slog.Logger
}

// NewArchiver creates an Archiver. locks may be nil for single-process
// deployments.
func NewArchiver(
	blob domain.Archiver,
	ledger SnapshotSource,
	locks domain.LockManager,
	cfg ArchiverConfig,
	clock domain.Clock,
	logger *slog.Logger,
) *Archiver {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Archiver{
		blob:   blob,
		ledger: ledger,
		locks:  locks,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run performs a single archive pass. A run already in progress elsewhere
// is reported as domain.ErrLockHeld.
func (a *Archiver) Run(ctx context.Context) (RunResult, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "archive", archiveLockTTL)
		if err != nil {
			return RunResult{}, fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer unlock()
	}

	now := a.clock.Now().UTC()
	res := RunResult{Cutoff: now.AddDate(0, 0, -a.cfg.RetentionDays)}
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", res.Cutoff),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)

	n, err := a.blob.ArchiveClosedPositions(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archive closed positions before %s: %w", res.Cutoff.Format(time.RFC3339), err)
	}
	res.Archived = n

	if a.cfg.Snapshot {
		tiers, positions := a.ledger.Snapshot()
		snap := domain.LedgerSnapshot{
			ID:        uuid.NewString(),
			TakenAt:   now,
			Operator:  a.ledger.Owner().Hex(),
			Tiers:     tiers,
			Positions: make([]domain.PositionRecord, len(positions)),
		}
		for i, p := range positions {
			snap.Positions[i] = domain.NewPositionRecord(p)
		}

		path, err := a.blob.ArchiveSnapshot(ctx, snap)
		if err != nil {
			return res, fmt.Errorf("pipeline: archive snapshot: %w", err)
		}
		res.SnapshotPath = path
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("closed_positions", res.Archived),
		slog.String("snapshot", res.SnapshotPath),
	)
	return res, nil
}

// RunCron runs the archiver on a 5-field cron schedule (UTC) until ctx is
// cancelled. Failed runs are logged and the schedule continues.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", expr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", expr))

	for {
		next, err := sched.next(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", expr, err)
		}
		wait := time.Until(next)
		a.logger.DebugContext(ctx, "archiver waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			res, err := a.Run(ctx)
			if a.cfg.OnRun != nil {
				a.cfg.OnRun(res, err)
			}
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.InfoContext(ctx, "archive run skipped, another instance holds the lock")
					continue
				}
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

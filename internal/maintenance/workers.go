package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/tracevec/backend/internal/quota"
)

const (
	// GuestRetentionDays is how long an idle guest session survives
	// before the sweep reclaims it.
	GuestRetentionDays = 7
	// LogRetentionDays bounds how far back activity records are kept.
	LogRetentionDays = 90
)

type GuestSweepArgs struct{}

func (GuestSweepArgs) Kind() string { return "guest_session_sweep" }

type GuestStore interface {
	DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

type GuestSweepWorker struct {
	river.WorkerDefaults[GuestSweepArgs]
	guests GuestStore
	ledger *quota.Ledger
	log    *slog.Logger
}

func NewGuestSweepWorker(guests GuestStore, ledger *quota.Ledger, log *slog.Logger) *GuestSweepWorker {
	if log == nil {
		log = slog.Default()
	}
	return &GuestSweepWorker{guests: guests, ledger: ledger, log: log}
}

func (w *GuestSweepWorker) Work(ctx context.Context, job *river.Job[GuestSweepArgs]) error {
	cutoff := w.ledger.StartOfToday().AddDate(0, 0, -GuestRetentionDays)
	deleted, err := w.guests.DeleteIdle(ctx, cutoff)
	if err != nil {
		return err
	}
	w.log.Info("guest session sweep complete", "deleted", deleted, "cutoff", cutoff)
	return nil
}

type LogRetentionArgs struct{}

func (LogRetentionArgs) Kind() string { return "log_retention_sweep" }

type LogStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type LogRetentionWorker struct {
	river.WorkerDefaults[LogRetentionArgs]
	logs   LogStore
	ledger *quota.Ledger
	log    *slog.Logger
}

func NewLogRetentionWorker(logs LogStore, ledger *quota.Ledger, log *slog.Logger) *LogRetentionWorker {
	if log == nil {
		log = slog.Default()
	}
	return &LogRetentionWorker{logs: logs, ledger: ledger, log: log}
}

func (w *LogRetentionWorker) Work(ctx context.Context, job *river.Job[LogRetentionArgs]) error {
	cutoff := w.ledger.StartOfToday().AddDate(0, 0, -LogRetentionDays)
	deleted, err := w.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	w.log.Info("log retention sweep complete", "deleted", deleted, "cutoff", cutoff)
	return nil
}

// PeriodicJobs wires both sweeps to run daily, with an immediate run on
// startup so a long-stopped deployment catches up.
func PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return GuestSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return LogRetentionArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"

	"github.com/tracevec/backend/internal/quota"
)

type cutoffRecorder struct {
	cutoff  time.Time
	deleted int64
}

func (c *cutoffRecorder) DeleteIdle(_ context.Context, cutoff time.Time) (int64, error) {
	c.cutoff = cutoff
	return c.deleted, nil
}

func (c *cutoffRecorder) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	c.cutoff = cutoff
	return c.deleted, nil
}

func TestGuestSweepWorker_CutoffWindow(t *testing.T) {
	store := &cutoffRecorder{deleted: 3}
	ledger := quota.NewLedger(nil, nil)
	w := NewGuestSweepWorker(store, ledger, nil)

	if err := w.Work(context.Background(), &river.Job[GuestSweepArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	want := ledger.StartOfToday().AddDate(0, 0, -GuestRetentionDays)
	if !store.cutoff.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, store.cutoff)
	}
}

func TestLogRetentionWorker_CutoffWindow(t *testing.T) {
	store := &cutoffRecorder{}
	ledger := quota.NewLedger(nil, nil)
	w := NewLogRetentionWorker(store, ledger, nil)

	if err := w.Work(context.Background(), &river.Job[LogRetentionArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	want := ledger.StartOfToday().AddDate(0, 0, -LogRetentionDays)
	if !store.cutoff.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, store.cutoff)
	}
}

func TestPeriodicJobs_BothSweepsRegistered(t *testing.T) {
	if got := len(PeriodicJobs()); got != 2 {
		t.Errorf("expected 2 periodic jobs, got %d", got)
	}
}

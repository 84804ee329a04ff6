// Package quota implements the daily export ledger shared by registered
// accounts and guest sessions.
//
// Counters are rolled over lazily: every read or mutation first compares
// the entity's last-export date with "today" in the reference time zone
// and resets the daily counter on a new day. There is no scheduled reset
// job. The write path (RecordExport) performs rollover, cap check and
// increment in one conditional UPDATE, so concurrent exports cannot pass
// the cap; the read paths remain best-effort.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/identity"
	"github.com/tracevec/backend/internal/models"
)

// ReferenceTimeZone fixes the calendar used for day rollover. It is
// neither server-local nor UTC: quota days follow the product's home
// market.
const ReferenceTimeZone = "Asia/Bangkok"

// ReferenceLocation loads the reference zone. The zone has no DST, so a
// fixed offset is an equivalent fallback when the tzdata is missing.
func ReferenceLocation() *time.Location {
	loc, err := time.LoadLocation(ReferenceTimeZone)
	if err != nil {
		loc = time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// UnlimitedRemaining is the sentinel for roles with no cap. Clients must
// branch on IsUnlimited rather than doing arithmetic on it.
const UnlimitedRemaining = -1

// Snapshot is the quota view returned to clients.
type Snapshot struct {
	UserType    string `json:"user_type"`
	IsUnlimited bool   `json:"is_unlimited"`
	DailyLimit  int    `json:"daily_limit"`
	UsedToday   int    `json:"used_today"`
	Remaining   int    `json:"remaining"`
	GuestID     string `json:"guest_id,omitempty"`
}

// AccountStore is the account-side persistence the ledger needs.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	RolloverExportDay(ctx context.Context, id uuid.UUID, today time.Time) error
	RecordExport(ctx context.Context, id uuid.UUID, today time.Time, enforceCap bool) (bool, error)
}

// GuestStore is the guest-side persistence the ledger needs.
type GuestStore interface {
	GetByGuestID(ctx context.Context, guestID string) (*models.GuestSession, error)
	RolloverExportDay(ctx context.Context, id uuid.UUID, today time.Time) error
	RecordExport(ctx context.Context, id uuid.UUID, today time.Time) (bool, error)
}

type Ledger struct {
	accounts AccountStore
	guests   GuestStore
	loc      *time.Location
	now      func() time.Time
}

func NewLedger(accounts AccountStore, guests GuestStore) *Ledger {
	return &Ledger{accounts: accounts, guests: guests, loc: ReferenceLocation(), now: time.Now}
}

// Today returns the current calendar date in the reference zone,
// normalized to midnight UTC so it compares as a pure date.
func (l *Ledger) Today() time.Time {
	t := l.now().In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfToday returns the instant the current quota day began. Today
// labels the day for pure date columns; StartOfToday is the boundary to
// compare against timestamp columns.
func (l *Ledger) StartOfToday() time.Time {
	t := l.now().In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.loc)
}

// CanExportToday reports whether the identity may export a metered format
// right now. Exhaustion is not an error: the caller turns false into a
// rate-limit response.
func (l *Ledger) CanExportToday(ctx context.Context, ident identity.Identity) (bool, error) {
	used, limit, unlimited, err := l.counters(ctx, ident)
	if err != nil {
		return false, err
	}
	return unlimited || used < limit, nil
}

// RemainingToday returns max(0, limit-used), or UnlimitedRemaining for
// unlimited roles.
func (l *Ledger) RemainingToday(ctx context.Context, ident identity.Identity) (int, error) {
	used, limit, unlimited, err := l.counters(ctx, ident)
	if err != nil {
		return 0, err
	}
	if unlimited {
		return UnlimitedRemaining, nil
	}
	return max(0, limit-used), nil
}

// RecordExport increments today's counter (and, for accounts, the
// lifetime total). Returns false when the daily cap is already spent.
func (l *Ledger) RecordExport(ctx context.Context, ident identity.Identity) (bool, error) {
	today := l.Today()
	if a := ident.Account; a != nil {
		ok, err := l.accounts.RecordExport(ctx, a.ID, today, !a.Role.IsElevated())
		if err != nil {
			return false, err
		}
		return ok, nil
	}
	if g := ident.Guest; g != nil {
		return l.guests.RecordExport(ctx, g.ID, today)
	}
	return false, fmt.Errorf("quota: empty identity")
}

// Snapshot returns the client-facing quota view for the identity.
func (l *Ledger) Snapshot(ctx context.Context, ident identity.Identity) (*Snapshot, error) {
	if a := ident.Account; a != nil {
		if a.Role.IsElevated() {
			return &Snapshot{
				UserType:    string(a.Role),
				IsUnlimited: true,
				DailyLimit:  UnlimitedRemaining,
				UsedToday:   0,
				Remaining:   UnlimitedRemaining,
			}, nil
		}
		used, limit, _, err := l.counters(ctx, ident)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			UserType:   string(models.RoleUser),
			DailyLimit: limit,
			UsedToday:  used,
			Remaining:  max(0, limit-used),
		}, nil
	}
	if g := ident.Guest; g != nil {
		used, limit, _, err := l.counters(ctx, ident)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			UserType:   "guest",
			DailyLimit: limit,
			UsedToday:  used,
			Remaining:  max(0, limit-used),
			GuestID:    g.GuestID,
		}, nil
	}
	return nil, fmt.Errorf("quota: empty identity")
}

// counters rolls the day over if needed and returns fresh values.
func (l *Ledger) counters(ctx context.Context, ident identity.Identity) (used, limit int, unlimited bool, err error) {
	today := l.Today()
	if a := ident.Account; a != nil {
		if a.Role.IsElevated() {
			return 0, 0, true, nil
		}
		if err = l.accounts.RolloverExportDay(ctx, a.ID, today); err != nil {
			return 0, 0, false, err
		}
		fresh, err := l.accounts.GetByID(ctx, a.ID)
		if err != nil {
			return 0, 0, false, err
		}
		if fresh == nil {
			return 0, 0, false, fmt.Errorf("quota: account %s not found", a.ID)
		}
		a.DailyExportsUsed = fresh.DailyExportsUsed
		a.LastExportDate = fresh.LastExportDate
		return fresh.DailyExportsUsed, fresh.DailyExportLimit, false, nil
	}
	if g := ident.Guest; g != nil {
		if err = l.guests.RolloverExportDay(ctx, g.ID, today); err != nil {
			return 0, 0, false, err
		}
		fresh, err := l.guests.GetByGuestID(ctx, g.GuestID)
		if err != nil {
			return 0, 0, false, err
		}
		if fresh == nil {
			return 0, 0, false, fmt.Errorf("quota: guest session %s not found", g.GuestID)
		}
		g.DailyExportsUsed = fresh.DailyExportsUsed
		g.LastExportDate = fresh.LastExportDate
		return fresh.DailyExportsUsed, models.GuestDailyExportLimit, false, nil
	}
	return 0, 0, false, fmt.Errorf("quota: empty identity")
}

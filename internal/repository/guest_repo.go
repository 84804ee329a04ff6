package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracevec/backend/internal/models"
)

const guestColumns = `id, guest_id, ip_address, user_agent, daily_exports_used,
	last_export_date, created_at, last_activity`

type GuestRepo struct {
	pool *pgxpool.Pool
}

func NewGuestRepo(pool *pgxpool.Pool) *GuestRepo {
	return &GuestRepo{pool: pool}
}

func scanGuest(row pgx.Row) (*models.GuestSession, error) {
	var g models.GuestSession
	err := row.Scan(&g.ID, &g.GuestID, &g.IPAddress, &g.UserAgent,
		&g.DailyExportsUsed, &g.LastExportDate, &g.CreatedAt, &g.LastActivity)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GuestRepo) Create(ctx context.Context, g *models.GuestSession) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO guest_sessions (id, guest_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, last_activity
	`, g.ID, g.GuestID, g.IPAddress, g.UserAgent).Scan(&g.CreatedAt, &g.LastActivity)
}

// GetByGuestID returns nil when no session carries the identifier.
func (r *GuestRepo) GetByGuestID(ctx context.Context, guestID string) (*models.GuestSession, error) {
	g, err := scanGuest(r.pool.QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guest_sessions WHERE guest_id = $1`, guestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// FirstByIP returns the most recently active session observed from the IP,
// or nil. Best-effort: IPs are shared and spoofable.
func (r *GuestRepo) FirstByIP(ctx context.Context, ip string) (*models.GuestSession, error) {
	g, err := scanGuest(r.pool.QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guest_sessions WHERE ip_address = $1 ORDER BY last_activity DESC LIMIT 1`, ip))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// AdoptGuestID rebinds an existing session to a new client identifier.
func (r *GuestRepo) AdoptGuestID(ctx context.Context, id uuid.UUID, guestID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE guest_sessions SET guest_id = $2, last_activity = now() WHERE id = $1`, id, guestID)
	return err
}

func (r *GuestRepo) UpdateIP(ctx context.Context, id uuid.UUID, ip string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE guest_sessions SET ip_address = $2, last_activity = now() WHERE id = $1`, id, ip)
	return err
}

func (r *GuestRepo) TouchActivity(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE guest_sessions SET last_activity = now() WHERE id = $1`, id)
	return err
}

// RolloverExportDay mirrors AccountRepo.RolloverExportDay for guests.
func (r *GuestRepo) RolloverExportDay(ctx context.Context, id uuid.UUID, today time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE guest_sessions SET daily_exports_used = 0, last_export_date = $2
		WHERE id = $1 AND (last_export_date IS NULL OR last_export_date <> $2)
	`, id, today)
	return err
}

// RecordExport atomically rolls over, checks the fixed guest cap and
// increments. Returns false when today's cap is exhausted.
func (r *GuestRepo) RecordExport(ctx context.Context, id uuid.UUID, today time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE guest_sessions SET
			daily_exports_used = CASE
				WHEN last_export_date IS NULL OR last_export_date <> $2 THEN 1
				ELSE daily_exports_used + 1
			END,
			last_export_date = $2,
			last_activity = now()
		WHERE id = $1 AND (last_export_date IS NULL OR last_export_date <> $2
			OR daily_exports_used < $3)
	`, id, today, models.GuestDailyExportLimit)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteIdle removes sessions that have shown no activity since the
// cutoff. Used by the retention sweep.
func (r *GuestRepo) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM guest_sessions WHERE last_activity < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *GuestRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM guest_sessions`).Scan(&n)
	return n, err
}

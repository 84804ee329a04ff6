package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracevec/backend/internal/models"
)

// ActivityRepo is append-only: rows are inserted, listed and bulk-deleted
// by the retention path, never updated.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) Insert(ctx context.Context, accountID uuid.UUID, action models.Action, details map[string]any) error {
	payload := []byte(`{}`)
	if details != nil {
		var err error
		payload, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, account_id, action, details)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), accountID, action, payload)
	return err
}

const logSelect = `
	SELECT l.id, l.account_id, a.username, l.action, l.created_at, l.details
	FROM activity_logs l JOIN accounts a ON a.id = l.account_id`

func scanLogs(rows pgx.Rows) ([]*models.ActivityLog, error) {
	var list []*models.ActivityLog
	for rows.Next() {
		var l models.ActivityLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.AccountID, &l.Username, &l.Action, &l.Timestamp, &details); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, err
			}
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

func (r *ActivityRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.ActivityLog, error) {
	rows, err := r.pool.Query(ctx, logSelect+`
		WHERE l.account_id = $1 ORDER BY l.created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

func (r *ActivityRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM activity_logs WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

// LastByAccount returns the newest record for the account, or nil.
func (r *ActivityRepo) LastByAccount(ctx context.Context, accountID uuid.UUID) (*models.ActivityLog, error) {
	logs, err := r.ListByAccount(ctx, accountID, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

type ListLogsParams struct {
	Action            string
	Username          string
	DateFrom          *time.Time
	DateTo            *time.Time
	Page              int
	PerPage           int
	ExcludeSuperusers bool
}

func (r *ActivityRepo) List(ctx context.Context, p ListLogsParams) ([]*models.ActivityLog, int, error) {
	where := "TRUE"
	args := []any{}
	n := 0
	arg := func(v any) string {
		args = append(args, v)
		n++
		return fmt.Sprintf("$%d", n)
	}
	if p.ExcludeSuperusers {
		where += ` AND a.role <> ` + arg(models.RoleSuperuser)
	}
	if p.Action != "" {
		where += ` AND l.action = ` + arg(p.Action)
	}
	if p.Username != "" {
		where += ` AND a.username ILIKE ` + arg("%"+p.Username+"%")
	}
	if p.DateFrom != nil {
		where += ` AND l.created_at >= ` + arg(*p.DateFrom)
	}
	if p.DateTo != nil {
		// inclusive end date
		where += ` AND l.created_at < ` + arg(p.DateTo.AddDate(0, 0, 1))
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM activity_logs l JOIN accounts a ON a.id = l.account_id WHERE `+where,
		args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	if p.PerPage <= 0 {
		p.PerPage = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	limit := arg(p.PerPage)
	offset := arg((p.Page - 1) * p.PerPage)

	rows, err := r.pool.Query(ctx, logSelect+` WHERE `+where+
		` ORDER BY l.created_at DESC LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	logs, err := scanLogs(rows)
	return logs, total, err
}

// --- dashboard stats ---

func (r *ActivityRepo) CountByAction(ctx context.Context, action models.Action, since *time.Time) (int, error) {
	var n int
	var err error
	if since != nil {
		err = r.pool.QueryRow(ctx,
			`SELECT count(*) FROM activity_logs WHERE action = $1 AND created_at >= $2`,
			action, *since).Scan(&n)
	} else {
		err = r.pool.QueryRow(ctx,
			`SELECT count(*) FROM activity_logs WHERE action = $1`, action).Scan(&n)
	}
	return n, err
}

func (r *ActivityRepo) CountByActionOnDate(ctx context.Context, action models.Action, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM activity_logs
		WHERE action = $1 AND created_at >= $2 AND created_at < $3
	`, action, day, day.AddDate(0, 0, 1)).Scan(&n)
	return n, err
}

// ExportCounts returns per-format export totals.
func (r *ActivityRepo) ExportCounts(ctx context.Context) (map[models.Action]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action, count(*) FROM activity_logs
		WHERE action IN ($1, $2, $3, $4) GROUP BY action
	`, models.ActionExportPNG, models.ActionExportSVG, models.ActionExportPDF, models.ActionExportEPS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.Action]int)
	for rows.Next() {
		var action models.Action
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

type AccountActivityCount struct {
	AccountID uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Count     int       `json:"activity_count"`
}

// TopAccounts returns the most active accounts since the given instant.
func (r *ActivityRepo) TopAccounts(ctx context.Context, since time.Time, limit int) ([]AccountActivityCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.username, count(*) AS activity_count
		FROM activity_logs l JOIN accounts a ON a.id = l.account_id
		WHERE l.created_at >= $1
		GROUP BY a.id, a.username
		ORDER BY activity_count DESC LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var top []AccountActivityCount
	for rows.Next() {
		var c AccountActivityCount
		if err := rows.Scan(&c.AccountID, &c.Username, &c.Count); err != nil {
			return nil, err
		}
		top = append(top, c)
	}
	return top, rows.Err()
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DailyCounts returns total records per day for the last `days` days,
// newest first.
func (r *ActivityRepo) DailyCounts(ctx context.Context, from time.Time, days int) ([]DailyCount, error) {
	counts := make([]DailyCount, 0, days)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, -i)
		var n int
		err := r.pool.QueryRow(ctx, `
			SELECT count(*) FROM activity_logs WHERE created_at >= $1 AND created_at < $2
		`, day, day.AddDate(0, 0, 1)).Scan(&n)
		if err != nil {
			return nil, err
		}
		counts = append(counts, DailyCount{Date: day.Format("2006-01-02"), Count: n})
	}
	return counts, nil
}

// DeleteOlderThan bulk-removes records before the cutoff. Exposed only to
// the superuser purge endpoint and the retention sweep.
func (r *ActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracevec/backend/internal/models"
)

const accountColumns = `id, username, email, password_hash, role, daily_export_limit, daily_exports_used,
	last_export_date, total_exports, total_conversions,
	security_question_1, security_answer_1, security_question_2, security_answer_2,
	is_active, created_at, last_login_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role,
		&a.DailyExportLimit, &a.DailyExportsUsed, &a.LastExportDate,
		&a.TotalExports, &a.TotalConversions,
		&a.SecurityQuestion1, &a.SecurityAnswer1, &a.SecurityQuestion2, &a.SecurityAnswer2,
		&a.IsActive, &a.CreatedAt, &a.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, role, daily_export_limit,
			security_question_1, security_answer_1, security_question_2, security_answer_2, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, a.ID, a.Username, a.Email, a.PasswordHash, a.Role, a.DailyExportLimit,
		a.SecurityQuestion1, a.SecurityAnswer1, a.SecurityQuestion2, a.SecurityAnswer2, a.IsActive,
	).Scan(&a.CreatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (r *AccountRepo) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET email = $2 WHERE id = $1`, id, email)
	return err
}

func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	return err
}

// UpdateSecurityQuestions stores both recovery pairs; answers must already
// be normalized by the caller (models.NormalizeAnswer).
func (r *AccountRepo) UpdateSecurityQuestions(ctx context.Context, id uuid.UUID, q1, a1, q2, a2 string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET security_question_1 = $2, security_answer_1 = $3,
			security_question_2 = $4, security_answer_2 = $5
		WHERE id = $1
	`, id, q1, a1, q2, a2)
	return err
}

func (r *AccountRepo) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET role = $2 WHERE id = $1`, id, role)
	return err
}

func (r *AccountRepo) UpdateIsActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active = $2 WHERE id = $1`, id, active)
	return err
}

func (r *AccountRepo) UpdateDailyExportLimit(ctx context.Context, id uuid.UUID, limit int) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET daily_export_limit = $2 WHERE id = $1`, id, limit)
	return err
}

func (r *AccountRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_login_at = now() WHERE id = $1`, id)
	return err
}

// EmailTaken reports whether another account already uses the email.
func (r *AccountRepo) EmailTaken(ctx context.Context, email string, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1 AND id <> $2)`,
		email, exclude).Scan(&taken)
	return taken, err
}

func (r *AccountRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&taken)
	return taken, err
}

// --- quota accounting ---

// RolloverExportDay lazily resets the daily counter when the stored
// last_export_date differs from today (a calendar date in the reference
// zone). Safe to call before every quota read.
func (r *AccountRepo) RolloverExportDay(ctx context.Context, id uuid.UUID, today time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET daily_exports_used = 0, last_export_date = $2
		WHERE id = $1 AND (last_export_date IS NULL OR last_export_date <> $2)
	`, id, today)
	return err
}

// RecordExport increments today's counter and the lifetime total in one
// conditional statement: the rollover, the cap check and the increment are
// atomic, so concurrent exports can never pass the cap. Returns false when
// the cap is exhausted (never for enforceCap=false).
func (r *AccountRepo) RecordExport(ctx context.Context, id uuid.UUID, today time.Time, enforceCap bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			daily_exports_used = CASE
				WHEN last_export_date IS NULL OR last_export_date <> $2 THEN 1
				ELSE daily_exports_used + 1
			END,
			last_export_date = $2,
			total_exports = total_exports + 1
		WHERE id = $1 AND (NOT $3
			OR last_export_date IS NULL OR last_export_date <> $2
			OR daily_exports_used < daily_export_limit)
	`, id, today, enforceCap)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AccountRepo) IncrementConversions(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET total_conversions = total_conversions + 1 WHERE id = $1`, id)
	return err
}

// --- listing and stats ---

type ListAccountsParams struct {
	Search            string
	Role              string
	IsActive          *bool
	OrderBy           string
	Page              int
	PerPage           int
	ExcludeSuperusers bool
}

// orderColumns whitelists sortable columns; anything else falls back to
// newest-first registration order.
var orderColumns = map[string]string{
	"username":       "username ASC",
	"-username":      "username DESC",
	"email":          "email ASC",
	"-email":         "email DESC",
	"date_joined":    "created_at ASC",
	"-date_joined":   "created_at DESC",
	"last_login":     "last_login_at ASC NULLS FIRST",
	"-last_login":    "last_login_at DESC NULLS LAST",
	"total_exports":  "total_exports ASC",
	"-total_exports": "total_exports DESC",
}

func (r *AccountRepo) List(ctx context.Context, p ListAccountsParams) ([]*models.Account, int, error) {
	where := "TRUE"
	args := []any{}
	n := 0
	arg := func(v any) string {
		args = append(args, v)
		n++
		return fmt.Sprintf("$%d", n)
	}
	if p.ExcludeSuperusers {
		where += ` AND role <> ` + arg(models.RoleSuperuser)
	}
	if p.Search != "" {
		ph := arg("%" + p.Search + "%")
		where += ` AND (username ILIKE ` + ph + ` OR email ILIKE ` + ph + `)`
	}
	if p.Role != "" {
		where += ` AND role = ` + arg(p.Role)
	}
	if p.IsActive != nil {
		where += ` AND is_active = ` + arg(*p.IsActive)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, ok := orderColumns[p.OrderBy]
	if !ok {
		order = "created_at DESC"
	}
	if p.PerPage <= 0 {
		p.PerPage = 20
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	limit := arg(p.PerPage)
	offset := arg((p.Page - 1) * p.PerPage)

	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where+
		` ORDER BY `+order+` LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, a)
	}
	return list, total, rows.Err()
}

type AccountStats struct {
	Total  int
	Active int
	ByRole map[models.Role]int
}

func (r *AccountRepo) Stats(ctx context.Context) (*AccountStats, error) {
	s := &AccountStats{ByRole: make(map[models.Role]int)}
	rows, err := r.pool.Query(ctx, `SELECT role, count(*), count(*) FILTER (WHERE is_active) FROM accounts GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var role models.Role
		var count, active int
		if err := rows.Scan(&role, &count, &active); err != nil {
			return nil, err
		}
		s.ByRole[role] = count
		s.Total += count
		s.Active += active
	}
	return s, rows.Err()
}

func (r *AccountRepo) CountRegisteredSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM accounts WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}

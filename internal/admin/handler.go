package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tracevec/backend/internal/activity"
	"github.com/tracevec/backend/internal/middleware"
	"github.com/tracevec/backend/internal/models"
	"github.com/tracevec/backend/internal/quota"
	"github.com/tracevec/backend/internal/repository"
	"github.com/tracevec/backend/internal/scope"
)

// DefaultPurgeDays is used when the purge endpoint gets no days filter.
const DefaultPurgeDays = 90

type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	List(ctx context.Context, p repository.ListAccountsParams) ([]*models.Account, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error
	UpdateIsActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdateDailyExportLimit(ctx context.Context, id uuid.UUID, limit int) error
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateSecurityQuestions(ctx context.Context, id uuid.UUID, q1, a1, q2, a2 string) error
	EmailTaken(ctx context.Context, email string, exclude uuid.UUID) (bool, error)
	Stats(ctx context.Context) (*repository.AccountStats, error)
	CountRegisteredSince(ctx context.Context, since time.Time) (int, error)
}

type LogStore interface {
	List(ctx context.Context, p repository.ListLogsParams) ([]*models.ActivityLog, int, error)
	LastByAccount(ctx context.Context, accountID uuid.UUID) (*models.ActivityLog, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
	CountByAction(ctx context.Context, action models.Action, since *time.Time) (int, error)
	CountByActionOnDate(ctx context.Context, action models.Action, day time.Time) (int, error)
	ExportCounts(ctx context.Context) (map[models.Action]int, error)
	TopAccounts(ctx context.Context, since time.Time, limit int) ([]repository.AccountActivityCount, error)
	DailyCounts(ctx context.Context, from time.Time, days int) ([]repository.DailyCount, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Handler struct {
	accounts AccountStore
	logs     LogStore
	writer   *activity.Writer
	ledger   *quota.Ledger
	log      *slog.Logger
}

func NewHandler(accounts AccountStore, logs LogStore, writer *activity.Writer, ledger *quota.Ledger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{accounts: accounts, logs: logs, writer: writer, ledger: ledger, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// loadTarget fetches the account from the {id} path segment. Accounts
// outside the actor's visibility scope come back as not found rather
// than forbidden.
func (h *Handler) loadTarget(w http.ResponseWriter, r *http.Request, actor *models.Account) *models.Account {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return nil
	}
	target, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error("load account", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return nil
	}
	if target == nil || !scope.CanViewAccount(actor.Role, target.Role) {
		writeError(w, http.StatusNotFound, "user not found")
		return nil
	}
	return target
}

// Stats handles GET /api/accounts/admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// timestamp buckets share the quota calendar, not the server's
	today := h.ledger.StartOfToday()
	weekAgo := today.AddDate(0, 0, -7)

	accStats, err := h.accounts.Stats(ctx)
	if err != nil {
		h.log.Error("account stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	recentRegs, err := h.accounts.CountRegisteredSince(ctx, weekAgo)
	if err != nil {
		h.log.Error("recent registrations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	totalConv, err := h.logs.CountByAction(ctx, models.ActionConvertImage, nil)
	if err != nil {
		h.log.Error("conversion count", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	todayConv, err := h.logs.CountByActionOnDate(ctx, models.ActionConvertImage, today)
	if err != nil {
		h.log.Error("conversion count today", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	exports, err := h.logs.ExportCounts(ctx)
	if err != nil {
		h.log.Error("export counts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	recentLogins, err := h.logs.CountByAction(ctx, models.ActionLogin, &weekAgo)
	if err != nil {
		h.log.Error("recent logins", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	topUsers, err := h.logs.TopAccounts(ctx, weekAgo, 5)
	if err != nil {
		h.log.Error("top accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	daily, err := h.logs.DailyCounts(ctx, today, 7)
	if err != nil {
		h.log.Error("daily counts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": map[string]any{
			"total":                accStats.Total,
			"active":               accStats.Active,
			"recent_registrations": recentRegs,
			"by_type":              accStats.ByRole,
		},
		"conversions": map[string]any{
			"total": totalConv,
			"today": todayConv,
		},
		"exports":        exports,
		"recent_logins":  recentLogins,
		"top_users":      topUsers,
		"daily_activity": daily,
	})
}

type listedUser struct {
	*models.Account
	LastActivity    *models.ActivityLog `json:"last_activity"`
	TotalActivities int                 `json:"total_activities"`
}

// ListUsers handles GET /api/accounts/admin/users with search, role and
// active filters, ordering and pagination.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	q := r.URL.Query()

	p := repository.ListAccountsParams{
		Search:            strings.TrimSpace(q.Get("search")),
		Role:              q.Get("user_type"),
		OrderBy:           q.Get("order_by"),
		Page:              atoiDefault(q.Get("page"), 1),
		PerPage:           atoiDefault(q.Get("per_page"), 20),
		ExcludeSuperusers: scope.ExcludesSuperusers(actor.Role),
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true" || v == "1"
		p.IsActive = &active
	}

	accounts, total, err := h.accounts.List(r.Context(), p)
	if err != nil {
		h.log.Error("list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	users := make([]listedUser, 0, len(accounts))
	for _, acc := range accounts {
		last, err := h.logs.LastByAccount(r.Context(), acc.ID)
		if err != nil {
			h.log.Error("last activity", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		count, err := h.logs.CountByAccount(r.Context(), acc.ID)
		if err != nil {
			h.log.Error("activity count", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		users = append(users, listedUser{Account: acc, LastActivity: last, TotalActivities: count})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":       users,
		"total_count": total,
		"page":        p.Page,
		"per_page":    p.PerPage,
	})
}

// GetUser handles GET /api/accounts/admin/users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	last, err := h.logs.LastByAccount(r.Context(), target.ID)
	if err != nil {
		h.log.Error("last activity", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	count, err := h.logs.CountByAccount(r.Context(), target.ID)
	if err != nil {
		h.log.Error("activity count", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, listedUser{Account: target, LastActivity: last, TotalActivities: count})
}

type updateUserRequest struct {
	Email            *string `json:"email"`
	IsActive         *bool   `json:"is_active"`
	DailyExportLimit *int    `json:"daily_export_limit"`
	UserType         *string `json:"user_type"`
}

// UpdateUser handles PUT /api/accounts/admin/users/{id}. Every applied
// change lands in the actor's audit trail with old and new values.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	if !scope.CanManageAccount(actor.Role, target.Role) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	changes := map[string]any{}

	if req.Email != nil && *req.Email != target.Email {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			writeError(w, http.StatusBadRequest, "email must not be empty")
			return
		}
		taken, err := h.accounts.EmailTaken(r.Context(), email, target.ID)
		if err != nil {
			h.log.Error("check email", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		if taken {
			writeError(w, http.StatusBadRequest, "email already in use")
			return
		}
		if err := h.accounts.UpdateEmail(r.Context(), target.ID, email); err != nil {
			h.log.Error("update email", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		changes["email"] = map[string]string{"old": target.Email, "new": email}
		target.Email = email
	}

	if req.IsActive != nil && *req.IsActive != target.IsActive {
		if err := h.accounts.UpdateIsActive(r.Context(), target.ID, *req.IsActive); err != nil {
			h.log.Error("update is_active", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		changes["is_active"] = map[string]bool{"old": target.IsActive, "new": *req.IsActive}
		target.IsActive = *req.IsActive
	}

	if req.DailyExportLimit != nil && *req.DailyExportLimit != target.DailyExportLimit {
		if *req.DailyExportLimit < 0 {
			writeError(w, http.StatusBadRequest, "daily_export_limit must not be negative")
			return
		}
		if err := h.accounts.UpdateDailyExportLimit(r.Context(), target.ID, *req.DailyExportLimit); err != nil {
			h.log.Error("update export limit", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		changes["daily_export_limit"] = map[string]int{"old": target.DailyExportLimit, "new": *req.DailyExportLimit}
		target.DailyExportLimit = *req.DailyExportLimit
	}

	if req.UserType != nil && models.Role(*req.UserType) != target.Role {
		newRole := models.Role(*req.UserType)
		if !models.ValidRole(newRole) {
			writeError(w, http.StatusBadRequest, "invalid user_type")
			return
		}
		if !scope.CanEditRole(actor, target, newRole) {
			writeError(w, http.StatusForbidden, "insufficient privileges to change user type")
			return
		}
		if err := h.accounts.UpdateRole(r.Context(), target.ID, newRole); err != nil {
			h.log.Error("update role", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		changes["user_type"] = map[string]models.Role{"old": target.Role, "new": newRole}
		target.Role = newRole
	}

	if len(changes) > 0 {
		if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminEditUser, map[string]any{
			"target_user": target.Username,
			"target_id":   target.ID,
			"changes":     changes,
		}); err != nil {
			h.log.Error("record edit", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, target)
}

// DeleteUser handles DELETE /api/accounts/admin/users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	if !scope.CanDelete(actor, target) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	if err := h.accounts.Delete(r.Context(), target.ID); err != nil {
		h.log.Error("delete account", "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminDeleteUser, map[string]any{
		"deleted_username": target.Username,
		"deleted_email":    target.Email,
		"deleted_type":     target.Role,
	}); err != nil {
		h.log.Error("record delete", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

type actionOption struct {
	Value models.Action `json:"value"`
	Label string        `json:"label"`
}

// Logs handles GET /api/accounts/admin/logs with filters and pagination.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	q := r.URL.Query()

	p := repository.ListLogsParams{
		Action:            q.Get("action"),
		Username:          strings.TrimSpace(q.Get("username")),
		Page:              atoiDefault(q.Get("page"), 1),
		PerPage:           atoiDefault(q.Get("per_page"), 50),
		ExcludeSuperusers: scope.ExcludesSuperusers(actor.Role),
	}
	loc := quota.ReferenceLocation()
	if v := q.Get("date_from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date_from must be YYYY-MM-DD")
			return
		}
		p.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date_to must be YYYY-MM-DD")
			return
		}
		p.DateTo = &t
	}

	logs, total, err := h.logs.List(r.Context(), p)
	if err != nil {
		h.log.Error("list logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load logs")
		return
	}

	if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminViewLogs, map[string]any{
		"action_filter":   p.Action,
		"username_filter": p.Username,
		"page":            p.Page,
	}); err != nil {
		h.log.Error("record log view", "error", err)
	}

	options := make([]actionOption, 0, len(models.AllActions))
	for _, a := range models.AllActions {
		options = append(options, actionOption{Value: a, Label: models.ActionLabels[a]})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":              logs,
		"total_count":       total,
		"page":              p.Page,
		"per_page":          p.PerPage,
		"available_actions": options,
	})
}

// PurgeLogs handles DELETE /api/accounts/admin/logs/purge?days=N.
func (h *Handler) PurgeLogs(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	if !scope.CanPurgeLogs(actor.Role) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	days := atoiDefault(r.URL.Query().Get("days"), DefaultPurgeDays)
	cutoff := h.ledger.StartOfToday().AddDate(0, 0, -days)
	deleted, err := h.logs.DeleteOlderThan(r.Context(), cutoff)
	if err != nil {
		h.log.Error("purge logs", "error", err)
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminPurgeLogs, map[string]any{
		"older_than_days": days,
		"deleted_count":   deleted,
	}); err != nil {
		h.log.Error("record purge", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted})
}

// GetPassword handles GET /api/accounts/admin/users/{id}/password.
// Passwords are stored hashed so only metadata is returned.
func (h *Handler) GetPassword(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	if !scope.CanManageAccount(actor.Role, target.Role) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":     target.Username,
		"has_password": target.PasswordHash != "",
		"note":         "passwords are stored hashed; set a new one to change it",
	})
}

// ChangePassword handles PUT /api/accounts/admin/users/{id}/password/change.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	if !scope.CanManageAccount(actor.Role, target.Role) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	var req struct {
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	if len(req.NewPassword) < models.MinPasswordLength {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("password must be at least %d characters", models.MinPasswordLength))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if err := h.accounts.UpdatePassword(r.Context(), target.ID, string(hash)); err != nil {
		h.log.Error("update password", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminChangePassword, map[string]any{
		"target_user": target.Username,
		"target_id":   target.ID,
	}); err != nil {
		h.log.Error("record password change", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// GetSecurityQuestions handles GET /api/accounts/admin/users/{id}/security-questions.
func (h *Handler) GetSecurityQuestions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	if !scope.CanManageAccount(actor.Role, target.Role) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":            target.Username,
		"has_questions":       target.HasSecurityQuestions(),
		"security_question_1": target.SecurityQuestion1,
		"security_question_2": target.SecurityQuestion2,
	})
}

// UpdateSecurityQuestions handles PUT /api/accounts/admin/users/{id}/security-questions.
func (h *Handler) UpdateSecurityQuestions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	if !scope.CanManageAccount(actor.Role, target.Role) {
		writeError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	var req struct {
		Question1 string `json:"security_question_1"`
		Answer1   string `json:"security_answer_1"`
		Question2 string `json:"security_question_2"`
		Answer2   string `json:"security_answer_2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question1 == "" || req.Answer1 == "" || req.Question2 == "" || req.Answer2 == "" {
		writeError(w, http.StatusBadRequest, "both questions and answers are required")
		return
	}
	q1 := strings.TrimSpace(req.Question1)
	q2 := strings.TrimSpace(req.Question2)
	a1 := models.NormalizeAnswer(req.Answer1)
	a2 := models.NormalizeAnswer(req.Answer2)
	if err := h.accounts.UpdateSecurityQuestions(r.Context(), target.ID, q1, a1, q2, a2); err != nil {
		h.log.Error("update security questions", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminEditQuestions, map[string]any{
		"target_user": target.Username,
		"target_id":   target.ID,
	}); err != nil {
		h.log.Error("record questions edit", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "security questions updated"})
}

// PromoteUser handles PUT /api/accounts/admin/promote-user/{id}.
func (h *Handler) PromoteUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromCtx(r.Context())
	target := h.loadTarget(w, r, actor)
	if target == nil {
		return
	}
	var req struct {
		UserType string `json:"user_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	newRole := models.Role(req.UserType)
	if !models.ValidRole(newRole) {
		writeError(w, http.StatusBadRequest, "invalid user_type")
		return
	}
	if newRole == target.Role {
		writeJSON(w, http.StatusOK, map[string]any{"message": "user type unchanged", "user": target})
		return
	}
	if !scope.CanEditRole(actor, target, newRole) {
		writeError(w, http.StatusForbidden, "insufficient privileges to change user type")
		return
	}
	oldRole := target.Role
	if err := h.accounts.UpdateRole(r.Context(), target.ID, newRole); err != nil {
		h.log.Error("update role", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	target.Role = newRole
	if err := h.writer.Record(r.Context(), actor.ID, models.ActionAdminPromoteUser, map[string]any{
		"target_user": target.Username,
		"target_id":   target.ID,
		"old_type":    oldRole,
		"new_type":    newRole,
	}); err != nil {
		h.log.Error("record promote", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "user type updated", "user": target})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

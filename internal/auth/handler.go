package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tracevec/backend/internal/activity"
	"github.com/tracevec/backend/internal/identity"
	"github.com/tracevec/backend/internal/middleware"
	"github.com/tracevec/backend/internal/models"
	"github.com/tracevec/backend/internal/quota"
)

// ProfileStore is the extra persistence the profile endpoints need beyond
// the auth service.
type ProfileStore interface {
	EmailTaken(ctx context.Context, email string, exclude uuid.UUID) (bool, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateSecurityQuestions(ctx context.Context, id uuid.UUID, q1, a1, q2, a2 string) error
}

type Handler struct {
	svc      Service
	accounts ProfileStore
	activity *activity.Writer
	ledger   *quota.Ledger
	log      *slog.Logger
}

func NewHandler(svc Service, accounts ProfileStore, writer *activity.Writer, ledger *quota.Ledger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, accounts: accounts, activity: writer, ledger: ledger, log: log}
}

type RegisterRequest struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmPassword   string `json:"confirm_password"`
	SecurityQuestion1 string `json:"security_question_1"`
	SecurityAnswer1   string `json:"security_answer_1"`
	SecurityQuestion2 string `json:"security_question_2"`
	SecurityAnswer2   string `json:"security_answer_2"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Register handles POST /api/accounts/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	acc, err := h.svc.Register(r.Context(), RegisterParams{
		Username:          req.Username,
		Email:             req.Email,
		Password:          req.Password,
		ConfirmPassword:   req.ConfirmPassword,
		SecurityQuestion1: req.SecurityQuestion1,
		SecurityAnswer1:   req.SecurityAnswer1,
		SecurityQuestion2: req.SecurityQuestion2,
		SecurityAnswer2:   req.SecurityAnswer2,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername), errors.Is(err, ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("register failed", "error", err)
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	if err := h.activity.Record(r.Context(), acc.ID, models.ActionRegister, map[string]any{
		"email":     acc.Email,
		"user_type": acc.Role,
	}); err != nil {
		h.log.Error("record register activity", "error", err)
	}
	writeJSON(w, http.StatusCreated, acc)
}

// Login handles POST /api/accounts/token. The response embeds the quota
// snapshot so the client can render limits without a second round trip.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	}
	token, acc, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid username or password")
		case errors.Is(err, ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, "account is disabled")
		default:
			h.log.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	if err := h.activity.Record(r.Context(), acc.ID, models.ActionLogin, map[string]any{
		"login_method": "jwt",
	}); err != nil {
		h.log.Error("record login activity", "error", err)
	}
	limits, err := h.ledger.Snapshot(r.Context(), identity.Identity{Account: acc})
	if err != nil {
		h.log.Error("quota snapshot on login", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":         token,
		"user":          acc,
		"export_limits": limits,
	})
}

// Logout handles POST /api/accounts/token/logout. Tokens are stateless;
// this only writes the audit record.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if err := h.activity.Record(r.Context(), acc.ID, models.ActionLogout, map[string]any{
		"logout_method": "jwt",
	}); err != nil {
		h.log.Error("record logout activity", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logout logged"})
}

// Me handles GET /api/accounts/user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	limits, err := h.ledger.Snapshot(r.Context(), identity.Identity{Account: acc})
	if err != nil {
		h.log.Error("quota snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load quota")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          acc,
		"export_limits": limits,
	})
}

// CheckEmail handles GET /api/accounts/check-email?email=...; an
// authenticated caller's own email counts as available.
func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	exclude := uuid.Nil
	if acc := middleware.AccountFromCtx(r.Context()); acc != nil {
		exclude = acc.ID
	}
	taken, err := h.accounts.EmailTaken(r.Context(), email, exclude)
	if err != nil {
		h.log.Error("check email", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": !taken, "email": email})
}

// CheckUsername handles GET /api/accounts/check-username?username=...
func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	taken, err := h.accounts.UsernameTaken(r.Context(), username)
	if err != nil {
		h.log.Error("check username", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": !taken, "username": username})
}

type updateProfileRequest struct {
	Email             *string `json:"email"`
	CurrentPassword   string  `json:"current_password"`
	NewPassword       string  `json:"new_password"`
	SecurityQuestion1 string  `json:"security_question_1"`
	SecurityAnswer1   string  `json:"security_answer_1"`
	SecurityQuestion2 string  `json:"security_question_2"`
	SecurityAnswer2   string  `json:"security_answer_2"`
}

// UpdateProfile handles PUT /api/accounts/profile. Each kind of change
// produces its own activity record carrying old/new values.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	changes := 0

	if req.Email != nil {
		newEmail := strings.TrimSpace(*req.Email)
		if newEmail == "" {
			writeError(w, http.StatusBadRequest, "email must not be empty")
			return
		}
		if newEmail != acc.Email {
			taken, err := h.accounts.EmailTaken(r.Context(), newEmail, acc.ID)
			if err != nil {
				h.log.Error("check email", "error", err)
				writeError(w, http.StatusInternalServerError, "update failed")
				return
			}
			if taken {
				writeError(w, http.StatusBadRequest, "email already in use")
				return
			}
			oldEmail := acc.Email
			if err := h.accounts.UpdateEmail(r.Context(), acc.ID, newEmail); err != nil {
				h.log.Error("update email", "error", err)
				writeError(w, http.StatusInternalServerError, "update failed")
				return
			}
			acc.Email = newEmail
			if err := h.activity.Record(r.Context(), acc.ID, models.ActionProfileEmailChange, map[string]any{
				"old_email": oldEmail,
				"new_email": newEmail,
			}); err != nil {
				h.log.Error("record email change", "error", err)
			}
			changes++
		}
	}

	if req.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		if len(req.NewPassword) < models.MinPasswordLength {
			writeError(w, http.StatusBadRequest, ErrPasswordTooShort.Error())
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			h.log.Error("hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		if err := h.accounts.UpdatePassword(r.Context(), acc.ID, string(hash)); err != nil {
			h.log.Error("update password", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		if err := h.activity.Record(r.Context(), acc.ID, models.ActionProfilePasswordChange, nil); err != nil {
			h.log.Error("record password change", "error", err)
		}
		changes++
	}

	if req.SecurityQuestion1 != "" && req.SecurityAnswer1 != "" &&
		req.SecurityQuestion2 != "" && req.SecurityAnswer2 != "" {
		q1 := strings.TrimSpace(req.SecurityQuestion1)
		q2 := strings.TrimSpace(req.SecurityQuestion2)
		a1 := models.NormalizeAnswer(req.SecurityAnswer1)
		a2 := models.NormalizeAnswer(req.SecurityAnswer2)
		oldQ1, oldQ2 := "", ""
		if acc.SecurityQuestion1 != nil {
			oldQ1 = *acc.SecurityQuestion1
		}
		if acc.SecurityQuestion2 != nil {
			oldQ2 = *acc.SecurityQuestion2
		}
		if err := h.accounts.UpdateSecurityQuestions(r.Context(), acc.ID, q1, a1, q2, a2); err != nil {
			h.log.Error("update security questions", "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		acc.SecurityQuestion1, acc.SecurityAnswer1 = &q1, &a1
		acc.SecurityQuestion2, acc.SecurityAnswer2 = &q2, &a2
		if err := h.activity.Record(r.Context(), acc.ID, models.ActionProfileQuestionsChange, map[string]any{
			"old_question_1": oldQ1,
			"new_question_1": q1,
			"old_question_2": oldQ2,
			"new_question_2": q2,
		}); err != nil {
			h.log.Error("record questions change", "error", err)
		}
		changes++
	}

	limits, err := h.ledger.Snapshot(r.Context(), identity.Identity{Account: acc})
	if err != nil {
		h.log.Error("quota snapshot", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          acc,
		"export_limits": limits,
		"changes_count": changes,
	})
}

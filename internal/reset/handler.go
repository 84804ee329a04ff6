package reset

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tracevec/backend/internal/activity"
	"github.com/tracevec/backend/internal/models"
)

type Handler struct {
	svc      *Service
	activity *activity.Writer
	log      *slog.Logger
}

func NewHandler(svc *Service, writer *activity.Writer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, activity: writer, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListQuestions handles GET /api/accounts/security-questions.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"questions": PredefinedQuestions})
}

// Forgot handles POST /api/accounts/forgot-password. Unknown emails get a
// 404 and accounts without questions get a contact_admin hint.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	_, questions, err := h.svc.Questions(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNoSecurityQuestions):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":         err.Error(),
				"contact_admin": true,
			})
		default:
			h.log.Error("forgot password", "error", err)
			writeError(w, http.StatusInternalServerError, "lookup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":               req.Email,
		"security_question_1": questions[0],
		"security_question_2": questions[1],
	})
}

// Verify handles POST /api/accounts/verify-security-answers.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Answer1 string `json:"security_answer_1"`
		Answer2 string `json:"security_answer_2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	acc, token, err := h.svc.VerifyAnswers(r.Context(), req.Email, req.Answer1, req.Answer2)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNoSecurityQuestions):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":         err.Error(),
				"contact_admin": true,
			})
		case errors.Is(err, ErrWrongAnswers):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.log.Error("verify answers", "error", err)
			writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}
	if err := h.activity.Record(r.Context(), acc.ID, models.ActionQuestionsVerified, nil); err != nil {
		h.log.Error("record verification", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset_token": token})
}

// Reset handles POST /api/accounts/reset-password.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"reset_token"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "reset_token is required")
		return
	}
	acc, err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("reset password", "error", err)
			writeError(w, http.StatusInternalServerError, "reset failed")
		}
		return
	}
	if err := h.activity.Record(r.Context(), acc.ID, models.ActionPasswordReset, map[string]any{
		"method": "security_questions",
	}); err != nil {
		h.log.Error("record password reset", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

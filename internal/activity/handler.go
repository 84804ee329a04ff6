package activity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/events"
	"github.com/tracevec/backend/internal/identity"
	"github.com/tracevec/backend/internal/middleware"
	"github.com/tracevec/backend/internal/models"
	"github.com/tracevec/backend/internal/quota"
)

// LogStore is the activity persistence the handler reads back from.
type LogStore interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.ActivityLog, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
}

// ConversionCounter bumps the per-account lifetime conversion counter.
type ConversionCounter interface {
	IncrementConversions(ctx context.Context, id uuid.UUID) error
}

// UserLogsLimit caps the activity page returned to a regular user.
const UserLogsLimit = 20

type Handler struct {
	writer      *Writer
	logs        LogStore
	conversions ConversionCounter
	resolver    *identity.Resolver
	ledger      *quota.Ledger
	validator   *events.Validator
	log         *slog.Logger
}

func NewHandler(writer *Writer, logs LogStore, conversions ConversionCounter, resolver *identity.Resolver, ledger *quota.Ledger, validator *events.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		writer:      writer,
		logs:        logs,
		conversions: conversions,
		resolver:    resolver,
		ledger:      ledger,
		validator:   validator,
		log:         log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type eventRequest struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	Format   string `json:"format"`
	GuestID  string `json:"guest_id"`
}

// readEvent buffers the body so it can be both schema-validated and
// decoded.
func (h *Handler) readEvent(w http.ResponseWriter, r *http.Request, event string) (*eventRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := h.validator.Validate(event, body); err != nil {
		if errors.Is(err, events.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			h.log.Error("validate event", "event", event, "error", err)
			writeError(w, http.StatusInternalServerError, "validation failed")
		}
		return nil, false
	}
	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	return &req, true
}

func (h *Handler) resolveIdentity(r *http.Request, bodyGuestID string) (identity.Identity, error) {
	acc := middleware.AccountFromCtx(r.Context())
	return h.resolver.Resolve(r.Context(), acc, identity.FromHTTP(r, bodyGuestID))
}

// ExportLimits handles GET /api/accounts/export-limits for both
// authenticated users and guests.
func (h *Handler) ExportLimits(w http.ResponseWriter, r *http.Request) {
	ident, err := h.resolveIdentity(r, r.URL.Query().Get("guest_id"))
	if err != nil {
		h.log.Error("resolve identity", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve identity")
		return
	}
	snap, err := h.ledger.Snapshot(r.Context(), ident)
	if err != nil {
		h.log.Error("quota snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load quota")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// LogUpload handles POST /api/accounts/log-upload.
func (h *Handler) LogUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readEvent(w, r, events.EventUpload)
	if !ok {
		return
	}
	ident, err := h.resolveIdentity(r, req.GuestID)
	if err != nil {
		h.log.Error("resolve identity", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve identity")
		return
	}
	if ident.IsAuthenticated() {
		if err := h.writer.Record(r.Context(), ident.Account.ID, models.ActionUploadImage, map[string]any{
			"filename":  req.Filename,
			"file_size": req.FileSize,
		}); err != nil {
			h.log.Error("record upload", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record upload")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "upload logged"})
}

// LogConversion handles POST /api/accounts/log-conversion. Conversions
// are unmetered but counted per account.
func (h *Handler) LogConversion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readEvent(w, r, events.EventConversion)
	if !ok {
		return
	}
	ident, err := h.resolveIdentity(r, req.GuestID)
	if err != nil {
		h.log.Error("resolve identity", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve identity")
		return
	}
	if ident.IsAuthenticated() {
		if err := h.conversions.IncrementConversions(r.Context(), ident.Account.ID); err != nil {
			h.log.Error("count conversion", "error", err)
		}
		if err := h.writer.Record(r.Context(), ident.Account.ID, models.ActionConvertImage, map[string]any{
			"filename": req.Filename,
		}); err != nil {
			h.log.Error("record conversion", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record conversion")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "conversion logged"})
}

func exportAction(format string) models.Action {
	switch format {
	case quota.FormatPNG:
		return models.ActionExportPNG
	case quota.FormatSVG:
		return models.ActionExportSVG
	case quota.FormatPDF:
		return models.ActionExportPDF
	case quota.FormatEPS:
		return models.ActionExportEPS
	default:
		return ""
	}
}

// LogExport handles POST /api/accounts/log-export. Vector formats are
// metered against the daily quota; PNG passes through untouched.
func (h *Handler) LogExport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readEvent(w, r, events.EventExport)
	if !ok {
		return
	}
	if !quota.ValidFormat(req.Format) {
		writeError(w, http.StatusBadRequest, "unsupported export format")
		return
	}
	ident, err := h.resolveIdentity(r, req.GuestID)
	if err != nil {
		h.log.Error("resolve identity", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve identity")
		return
	}

	if !quota.Metered(req.Format) {
		if ident.IsAuthenticated() {
			if err := h.writer.Record(r.Context(), ident.Account.ID, exportAction(req.Format), map[string]any{
				"filename": req.Filename,
				"format":   req.Format,
			}); err != nil {
				h.log.Error("record export", "error", err)
			}
		}
		resp := map[string]any{"message": "export logged", "format_exempt": true}
		if ident.Guest != nil {
			resp["guest_id"] = ident.Guest.GuestID
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	allowed, err := h.ledger.RecordExport(r.Context(), ident)
	if err != nil {
		h.log.Error("record quota export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record export")
		return
	}
	if !allowed {
		snap, err := h.ledger.Snapshot(r.Context(), ident)
		if err != nil {
			h.log.Error("quota snapshot", "error", err)
			writeError(w, http.StatusTooManyRequests, "daily export limit exceeded")
			return
		}
		resp := map[string]any{
			"error":             "daily export limit exceeded",
			"remaining_exports": snap.Remaining,
			"user_type":         snap.UserType,
		}
		if ident.Guest != nil {
			resp["guest_id"] = ident.Guest.GuestID
		}
		writeJSON(w, http.StatusTooManyRequests, resp)
		return
	}

	if ident.IsAuthenticated() {
		if err := h.writer.Record(r.Context(), ident.Account.ID, exportAction(req.Format), map[string]any{
			"filename": req.Filename,
			"format":   req.Format,
		}); err != nil {
			h.log.Error("record export", "error", err)
		}
	}
	snap, err := h.ledger.Snapshot(r.Context(), ident)
	if err != nil {
		h.log.Error("quota snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load quota")
		return
	}
	resp := map[string]any{
		"message":           "export logged",
		"remaining_exports": snap.Remaining,
		"user_type":         snap.UserType,
	}
	if ident.Guest != nil {
		resp["guest_id"] = ident.Guest.GuestID
	}
	writeJSON(w, http.StatusOK, resp)
}

// UserLogs handles GET /api/accounts/logs for the authenticated account.
func (h *Handler) UserLogs(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	logs, err := h.logs.ListByAccount(r.Context(), acc.ID, UserLogsLimit)
	if err != nil {
		h.log.Error("list logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load logs")
		return
	}
	total, err := h.logs.CountByAccount(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("count logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":        logs,
		"total_count": total,
	})
}

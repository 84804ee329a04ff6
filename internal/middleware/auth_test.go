package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubTokenValidator struct {
	id   uuid.UUID
	role models.Role
	err  error
}

func (s *stubTokenValidator) ValidateToken(_ context.Context, _ string) (uuid.UUID, models.Role, error) {
	return s.id, s.role, s.err
}

type stubAccountLookup struct {
	acc *models.Account
	err error
}

func (s *stubAccountLookup) GetByID(_ context.Context, _ uuid.UUID) (*models.Account, error) {
	return s.acc, s.err
}

// okHandler echoes the authenticated username for assertions.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if acc := AccountFromCtx(r.Context()); acc != nil {
		w.Write([]byte(acc.Username))
		return
	}
	w.Write([]byte("anonymous"))
})

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRequireAuth_ValidToken(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Username: "alice", Role: models.RoleUser, IsActive: true}
	mw := RequireAuth(&stubTokenValidator{id: acc.ID, role: acc.Role}, &stubAccountLookup{acc: acc})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "alice" {
		t.Errorf("expected account in context, got %q", rec.Body.String())
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	mw := RequireAuth(&stubTokenValidator{}, &stubAccountLookup{})(okHandler)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error response, got Content-Type %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error field in the body")
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw := RequireAuth(&stubTokenValidator{err: errors.New("bad signature")}, &stubAccountLookup{})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_DisabledAccount(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Username: "bob", Role: models.RoleUser, IsActive: false}
	mw := RequireAuth(&stubTokenValidator{id: acc.ID, role: acc.Role}, &stubAccountLookup{acc: acc})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for disabled account, got %d", rec.Code)
	}
}

func TestOptionalAuth_PassesThroughAnonymously(t *testing.T) {
	mw := OptionalAuth(&stubTokenValidator{err: errors.New("no token")}, &stubAccountLookup{})(okHandler)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "anonymous" {
		t.Errorf("expected anonymous passthrough, got %q", rec.Body.String())
	}
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		role models.Role
		want int
	}{
		{models.RoleUser, http.StatusForbidden},
		{models.RoleAdmin, http.StatusOK},
		{models.RoleSuperuser, http.StatusOK},
	}
	for _, c := range cases {
		acc := &models.Account{ID: uuid.New(), Role: c.role, IsActive: true}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithAccount(req.Context(), acc))
		rec := httptest.NewRecorder()
		RequireAdmin(okHandler).ServeHTTP(rec, req)

		if rec.Code != c.want {
			t.Errorf("%s: expected %d, got %d", c.role, c.want, rec.Code)
		}
		if c.want == http.StatusForbidden {
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("%s: expected JSON error response, got Content-Type %q", c.role, ct)
			}
		}
	}
}

func TestExtractBearer_CaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc123")
	if got := extractBearer(req); got != "abc123" {
		t.Errorf("expected abc123, got %q", got)
	}
	req.Header.Set("Authorization", "Basic abc123")
	if got := extractBearer(req); got != "" {
		t.Errorf("expected empty for non-bearer scheme, got %q", got)
	}
}

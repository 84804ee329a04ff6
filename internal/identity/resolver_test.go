package identity

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type fakeGuestStore struct {
	sessions []*models.GuestSession

	created int
	adopted int
	touched int
}

func (f *fakeGuestStore) GetByGuestID(_ context.Context, guestID string) (*models.GuestSession, error) {
	for _, g := range f.sessions {
		if g.GuestID == guestID {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGuestStore) FirstByIP(_ context.Context, ip string) (*models.GuestSession, error) {
	for _, g := range f.sessions {
		if g.IPAddress == ip {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGuestStore) Create(_ context.Context, g *models.GuestSession) error {
	f.created++
	f.sessions = append(f.sessions, g)
	return nil
}

func (f *fakeGuestStore) AdoptGuestID(_ context.Context, id uuid.UUID, guestID string) error {
	f.adopted++
	for _, g := range f.sessions {
		if g.ID == id {
			g.GuestID = guestID
		}
	}
	return nil
}

func (f *fakeGuestStore) UpdateIP(_ context.Context, id uuid.UUID, ip string) error {
	for _, g := range f.sessions {
		if g.ID == id {
			g.IPAddress = ip
		}
	}
	return nil
}

func (f *fakeGuestStore) TouchActivity(_ context.Context, _ uuid.UUID) error {
	f.touched++
	return nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestResolve_AuthenticatedAccountWins(t *testing.T) {
	store := &fakeGuestStore{}
	r := NewResolver(store)
	acc := &models.Account{ID: uuid.New(), Role: models.RoleUser}

	ident, err := r.Resolve(context.Background(), acc, Request{GuestID: "g-1", IP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ident.IsAuthenticated() || ident.Guest != nil {
		t.Errorf("expected account identity, got %+v", ident)
	}
	if store.created != 0 {
		t.Error("authenticated requests must not create guest sessions")
	}
}

func TestResolve_ExactGuestMatch(t *testing.T) {
	existing := &models.GuestSession{ID: uuid.New(), GuestID: "g-1", IPAddress: "1.2.3.4"}
	store := &fakeGuestStore{sessions: []*models.GuestSession{existing}}
	r := NewResolver(store)

	ident, err := r.Resolve(context.Background(), nil, Request{GuestID: "g-1", IP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ident.Guest == nil || ident.Guest.ID != existing.ID {
		t.Fatalf("expected the existing session, got %+v", ident.Guest)
	}
	if store.created != 0 || store.adopted != 0 {
		t.Error("exact match must neither create nor adopt")
	}
	if store.touched != 1 {
		t.Errorf("expected activity touch, got %d", store.touched)
	}
}

func TestResolve_ExactMatchRefreshesMovedIP(t *testing.T) {
	existing := &models.GuestSession{ID: uuid.New(), GuestID: "g-1", IPAddress: "1.2.3.4"}
	store := &fakeGuestStore{sessions: []*models.GuestSession{existing}}
	r := NewResolver(store)

	ident, err := r.Resolve(context.Background(), nil, Request{GuestID: "g-1", IP: "5.6.7.8"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ident.Guest.IPAddress != "5.6.7.8" {
		t.Errorf("expected IP refresh, got %q", ident.Guest.IPAddress)
	}
}

// A cleared local storage sends a fresh guest id from a known IP; the
// old session is adopted so the quota carries over.
func TestResolve_IPAdoption(t *testing.T) {
	existing := &models.GuestSession{ID: uuid.New(), GuestID: "g-old", IPAddress: "1.2.3.4", DailyExportsUsed: 2}
	store := &fakeGuestStore{sessions: []*models.GuestSession{existing}}
	r := NewResolver(store)

	ident, err := r.Resolve(context.Background(), nil, Request{GuestID: "g-new", IP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ident.Guest == nil || ident.Guest.ID != existing.ID {
		t.Fatalf("expected adoption of the existing session, got %+v", ident.Guest)
	}
	if ident.Guest.GuestID != "g-new" {
		t.Errorf("expected adopted identifier g-new, got %q", ident.Guest.GuestID)
	}
	if ident.Guest.DailyExportsUsed != 2 {
		t.Errorf("expected quota continuity, got used=%d", ident.Guest.DailyExportsUsed)
	}
	if store.created != 0 || store.adopted != 1 {
		t.Errorf("expected one adoption and no creation, got created=%d adopted=%d", store.created, store.adopted)
	}
}

func TestResolve_CreatesFreshSession(t *testing.T) {
	store := &fakeGuestStore{}
	r := NewResolver(store)

	ident, err := r.Resolve(context.Background(), nil, Request{GuestID: "g-1", IP: "9.9.9.9", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if store.created != 1 {
		t.Fatalf("expected one created session, got %d", store.created)
	}
	if ident.Guest.GuestID != "g-1" || ident.Guest.IPAddress != "9.9.9.9" || ident.Guest.UserAgent != "test-agent" {
		t.Errorf("unexpected session: %+v", ident.Guest)
	}
}

func TestResolve_SynthesizesMissingGuestID(t *testing.T) {
	store := &fakeGuestStore{}
	r := NewResolver(store)

	ident, err := r.Resolve(context.Background(), nil, Request{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ident.Guest.GuestID == "" {
		t.Error("expected a generated guest identifier")
	}
}

func TestFromHTTP_BodyGuestIDPrecedence(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set(GuestIDHeader, "from-header")

	if got := FromHTTP(req, "from-body").GuestID; got != "from-body" {
		t.Errorf("expected body value, got %q", got)
	}
	if got := FromHTTP(req, "").GuestID; got != "from-header" {
		t.Errorf("expected header fallback, got %q", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Errorf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("expected first forwarded hop, got %q", got)
	}
}

// Package identity maps an inbound request to a quota-bearing entity:
// either an authenticated Account or an anonymous GuestSession.
//
// Guest resolution is deliberately heuristic. The identifier lives in the
// client's local storage and the IP fallback exists only to keep quota
// continuity when that storage is cleared; none of this is a security
// boundary.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/models"
)

// GuestIDHeader carries the client identifier when the request body has
// no guest_id field.
const GuestIDHeader = "X-Guest-ID"

// Identity is a tagged union: exactly one of Account or Guest is set.
type Identity struct {
	Account *models.Account
	Guest   *models.GuestSession
}

func (i Identity) IsAuthenticated() bool { return i.Account != nil }

// GuestStore is the subset of the guest repository the resolver needs.
type GuestStore interface {
	GetByGuestID(ctx context.Context, guestID string) (*models.GuestSession, error)
	FirstByIP(ctx context.Context, ip string) (*models.GuestSession, error)
	Create(ctx context.Context, g *models.GuestSession) error
	AdoptGuestID(ctx context.Context, id uuid.UUID, guestID string) error
	UpdateIP(ctx context.Context, id uuid.UUID, ip string) error
	TouchActivity(ctx context.Context, id uuid.UUID) error
}

type Resolver struct {
	guests GuestStore
}

func NewResolver(guests GuestStore) *Resolver {
	return &Resolver{guests: guests}
}

// Request carries the client-supplied hints for guest resolution.
type Request struct {
	GuestID   string
	IP        string
	UserAgent string
}

// Resolve returns the Account identity when one is authenticated,
// otherwise finds or creates a GuestSession:
//
//  1. exact match on the guest identifier (IP refreshed if it moved);
//  2. best-effort match on IP, adopting the new identifier onto the
//     matched record — continuity of quota wins over identifier
//     integrity;
//  3. a fresh session.
func (r *Resolver) Resolve(ctx context.Context, account *models.Account, req Request) (Identity, error) {
	if account != nil {
		return Identity{Account: account}, nil
	}

	guestID := req.GuestID
	if guestID == "" {
		guestID = uuid.NewString()
	}

	g, err := r.guests.GetByGuestID(ctx, guestID)
	if err != nil {
		return Identity{}, err
	}
	if g != nil {
		if req.IP != "" && g.IPAddress != req.IP {
			if err := r.guests.UpdateIP(ctx, g.ID, req.IP); err != nil {
				return Identity{}, err
			}
			g.IPAddress = req.IP
		} else if err := r.guests.TouchActivity(ctx, g.ID); err != nil {
			return Identity{}, err
		}
		return Identity{Guest: g}, nil
	}

	if req.IP != "" {
		g, err = r.guests.FirstByIP(ctx, req.IP)
		if err != nil {
			return Identity{}, err
		}
		if g != nil {
			if err := r.guests.AdoptGuestID(ctx, g.ID, guestID); err != nil {
				return Identity{}, err
			}
			g.GuestID = guestID
			return Identity{Guest: g}, nil
		}
	}

	g = &models.GuestSession{
		ID:        uuid.New(),
		GuestID:   guestID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	}
	if err := r.guests.Create(ctx, g); err != nil {
		return Identity{}, err
	}
	return Identity{Guest: g}, nil
}

// FromHTTP builds a Request from transport-level hints. bodyGuestID takes
// precedence over the header.
func FromHTTP(r *http.Request, bodyGuestID string) Request {
	guestID := bodyGuestID
	if guestID == "" {
		guestID = r.Header.Get(GuestIDHeader)
	}
	return Request{
		GuestID:   guestID,
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// ClientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

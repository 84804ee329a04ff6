package models

import (
	"time"

	"github.com/google/uuid"
)

// GuestDailyExportLimit is the fixed daily cap for anonymous sessions.
// Guests have no unlimited tier.
const GuestDailyExportLimit = 3

// GuestSession tracks export quota for an anonymous visitor. The guest_id
// is a client-generated UUID persisted in the browser; the IP address is a
// lossy fallback for re-identifying a visitor who lost it.
type GuestSession struct {
	ID               uuid.UUID  `json:"id"`
	GuestID          string     `json:"guest_id"`
	IPAddress        string     `json:"ip_address"`
	UserAgent        string     `json:"user_agent,omitempty"`
	DailyExportsUsed int        `json:"daily_exports_used"`
	LastExportDate   *time.Time `json:"last_export_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
}

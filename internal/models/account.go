package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role levels in ascending privilege.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleSuperuser Role = "superuser"
)

// IsElevated reports whether the role bypasses export quotas and may use
// the admin API.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleSuperuser
}

func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperuser:
		return true
	}
	return false
}

const (
	// DefaultDailyExportLimit applies to newly registered accounts.
	DefaultDailyExportLimit = 10

	// MinPasswordLength applies to registration, profile password change,
	// admin password change and the reset flow.
	MinPasswordLength = 8
)

type Account struct {
	ID               uuid.UUID  `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             Role       `json:"user_type"`
	DailyExportLimit int        `json:"daily_export_limit"`
	DailyExportsUsed int        `json:"daily_exports_used"`
	LastExportDate   *time.Time `json:"last_export_date,omitempty"`
	TotalExports     int        `json:"total_exports"`
	TotalConversions int        `json:"total_conversions"`

	SecurityQuestion1 *string `json:"security_question_1,omitempty"`
	SecurityAnswer1   *string `json:"-"`
	SecurityQuestion2 *string `json:"security_question_2,omitempty"`
	SecurityAnswer2   *string `json:"-"`

	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"date_joined"`
	LastLoginAt *time.Time `json:"last_login,omitempty"`
}

// NormalizeAnswer is how security answers are stored and compared.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HasSecurityQuestions reports whether both recovery pairs are configured.
func (a *Account) HasSecurityQuestions() bool {
	return notEmpty(a.SecurityQuestion1) && notEmpty(a.SecurityAnswer1) &&
		notEmpty(a.SecurityQuestion2) && notEmpty(a.SecurityAnswer2)
}

// VerifySecurityAnswers compares both answers case-insensitively, trimmed.
func (a *Account) VerifySecurityAnswers(answer1, answer2 string) bool {
	if !a.HasSecurityQuestions() {
		return false
	}
	return NormalizeAnswer(*a.SecurityAnswer1) == NormalizeAnswer(answer1) &&
		NormalizeAnswer(*a.SecurityAnswer2) == NormalizeAnswer(answer2)
}

func notEmpty(s *string) bool {
	return s != nil && *s != ""
}

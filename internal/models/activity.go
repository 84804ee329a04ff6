package models

import (
	"time"

	"github.com/google/uuid"
)

// Action tags form a closed enumeration; the details payload is an open
// JSON object whose shape depends on the action.
type Action string

const (
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
	ActionLogout   Action = "logout"

	ActionUploadImage  Action = "upload_image"
	ActionConvertImage Action = "convert_image"
	ActionExportPNG    Action = "export_png"
	ActionExportSVG    Action = "export_svg"
	ActionExportPDF    Action = "export_pdf"
	ActionExportEPS    Action = "export_eps"

	ActionAdminDeleteUser     Action = "admin_delete_user"
	ActionAdminEditUser       Action = "admin_edit_user"
	ActionAdminPromoteUser    Action = "admin_promote_user"
	ActionAdminViewLogs       Action = "admin_view_logs"
	ActionAdminChangePassword Action = "admin_change_password"
	ActionAdminEditQuestions  Action = "admin_edit_security_questions"
	ActionAdminPurgeLogs      Action = "admin_purge_logs"

	ActionPasswordReset     Action = "password_reset"
	ActionQuestionsVerified Action = "security_questions_verified"

	ActionProfileEmailChange     Action = "profile_email_change"
	ActionProfilePasswordChange  Action = "profile_password_change"
	ActionProfileQuestionsChange Action = "profile_security_questions_change"
)

// AllActions lists every valid tag, in display order.
var AllActions = []Action{
	ActionRegister, ActionLogin, ActionLogout,
	ActionUploadImage, ActionConvertImage,
	ActionExportPNG, ActionExportSVG, ActionExportPDF, ActionExportEPS,
	ActionAdminDeleteUser, ActionAdminEditUser, ActionAdminPromoteUser,
	ActionAdminViewLogs, ActionAdminChangePassword, ActionAdminEditQuestions,
	ActionAdminPurgeLogs,
	ActionPasswordReset, ActionQuestionsVerified,
	ActionProfileEmailChange, ActionProfilePasswordChange, ActionProfileQuestionsChange,
}

// ActionLabels maps tags to human-readable names for the admin UI.
var ActionLabels = map[Action]string{
	ActionRegister:               "Registered",
	ActionLogin:                  "Logged in",
	ActionLogout:                 "Logged out",
	ActionUploadImage:            "Uploaded image",
	ActionConvertImage:           "Converted image",
	ActionExportPNG:              "Exported PNG",
	ActionExportSVG:              "Exported SVG",
	ActionExportPDF:              "Exported PDF",
	ActionExportEPS:              "Exported EPS",
	ActionAdminDeleteUser:        "Deleted user",
	ActionAdminEditUser:          "Edited user",
	ActionAdminPromoteUser:       "Changed user role",
	ActionAdminViewLogs:          "Viewed activity logs",
	ActionAdminChangePassword:    "Changed user password",
	ActionAdminEditQuestions:     "Edited user security questions",
	ActionAdminPurgeLogs:         "Purged activity logs",
	ActionPasswordReset:          "Reset password",
	ActionQuestionsVerified:      "Verified security questions",
	ActionProfileEmailChange:     "Changed email",
	ActionProfilePasswordChange:  "Changed password",
	ActionProfileQuestionsChange: "Changed security questions",
}

func ValidAction(a Action) bool {
	_, ok := ActionLabels[a]
	return ok
}

// ActivityLog is an append-only audit record. Username is filled from a
// join when listing; it is not stored on the row.
type ActivityLog struct {
	ID        uuid.UUID      `json:"id"`
	AccountID uuid.UUID      `json:"user"`
	Username  string         `json:"user_username,omitempty"`
	Action    Action         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// ActionDisplay returns the label for the log's action tag.
func (l *ActivityLog) ActionDisplay() string {
	if label, ok := ActionLabels[l.Action]; ok {
		return label
	}
	return string(l.Action)
}

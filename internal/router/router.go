package router

import (
	"net/http"

	"github.com/tracevec/backend/internal/activity"
	"github.com/tracevec/backend/internal/admin"
	"github.com/tracevec/backend/internal/auth"
	"github.com/tracevec/backend/internal/middleware"
	"github.com/tracevec/backend/internal/reset"
)

// New returns an http.Handler serving the API under /api/accounts.
func New(
	authHandler *auth.Handler,
	activityHandler *activity.Handler,
	resetHandler *reset.Handler,
	adminHandler *admin.Handler,
	requireAuth func(http.Handler) http.Handler,
	optionalAuth func(http.Handler) http.Handler,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/accounts"

	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }
	optional := func(h http.HandlerFunc) http.Handler { return optionalAuth(h) }
	admined := func(h http.HandlerFunc) http.Handler {
		return requireAuth(middleware.RequireAdmin(h))
	}

	// registration and sessions
	mux.HandleFunc("POST "+base+"/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/token", authHandler.Login)
	mux.Handle("POST "+base+"/token/logout", authed(authHandler.Logout))
	mux.Handle("GET "+base+"/user", authed(authHandler.Me))
	mux.Handle("PUT "+base+"/profile", authed(authHandler.UpdateProfile))
	mux.Handle("GET "+base+"/check-email", optional(authHandler.CheckEmail))
	mux.HandleFunc("GET "+base+"/check-username", authHandler.CheckUsername)

	// quota and activity events
	mux.Handle("GET "+base+"/export-limits", optional(activityHandler.ExportLimits))
	mux.Handle("POST "+base+"/log-upload", optional(activityHandler.LogUpload))
	mux.Handle("POST "+base+"/log-conversion", optional(activityHandler.LogConversion))
	mux.Handle("POST "+base+"/log-export", optional(activityHandler.LogExport))
	mux.Handle("GET "+base+"/logs", authed(activityHandler.UserLogs))

	// password recovery
	mux.HandleFunc("GET "+base+"/security-questions", resetHandler.ListQuestions)
	mux.HandleFunc("POST "+base+"/forgot-password", resetHandler.Forgot)
	mux.HandleFunc("POST "+base+"/verify-security-answers", resetHandler.Verify)
	mux.HandleFunc("POST "+base+"/reset-password", resetHandler.Reset)

	// administration
	mux.Handle("GET "+base+"/admin/stats", admined(adminHandler.Stats))
	mux.Handle("GET "+base+"/admin/users", admined(adminHandler.ListUsers))
	mux.Handle("GET "+base+"/admin/users/{id}", admined(adminHandler.GetUser))
	mux.Handle("PUT "+base+"/admin/users/{id}", admined(adminHandler.UpdateUser))
	mux.Handle("DELETE "+base+"/admin/users/{id}", admined(adminHandler.DeleteUser))
	mux.Handle("GET "+base+"/admin/users/{id}/password", admined(adminHandler.GetPassword))
	mux.Handle("PUT "+base+"/admin/users/{id}/password/change", admined(adminHandler.ChangePassword))
	mux.Handle("GET "+base+"/admin/users/{id}/security-questions", admined(adminHandler.GetSecurityQuestions))
	mux.Handle("PUT "+base+"/admin/users/{id}/security-questions", admined(adminHandler.UpdateSecurityQuestions))
	mux.Handle("PUT "+base+"/admin/promote-user/{id}", admined(adminHandler.PromoteUser))
	mux.Handle("GET "+base+"/admin/logs", admined(adminHandler.Logs))
	mux.Handle("DELETE "+base+"/admin/logs/purge", admined(adminHandler.PurgeLogs))

	return mux
}

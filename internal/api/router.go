package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/mclink/internal/api/handler"
	"github.com/mcoot/mclink/internal/api/middleware"
	"github.com/mcoot/mclink/internal/api/response"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/approval"
	"github.com/mcoot/mclink/internal/services/auth"
	"github.com/mcoot/mclink/internal/services/authcode"
	"github.com/mcoot/mclink/internal/services/connection"
	"github.com/mcoot/mclink/internal/services/membership"
	"github.com/mcoot/mclink/internal/services/rolesync"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
	AuthService       *auth.Service
	ConnectionHandler *connection.Handler
	Issuer            *authcode.Issuer
	Workflow          *approval.Workflow
	RoleSync          *rolesync.Engine
	Membership        *membership.Service
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	pluginHandler := handler.NewPluginHandler(cfg.ConnectionHandler, cfg.Issuer)
	staffHandler := handler.NewStaffHandler(cfg.Issuer, cfg.Workflow, cfg.RoleSync, cfg.Membership)

	// Create middleware
	connectAuth := middleware.RequireScope(cfg.AuthService, model.ScopeConnect)
	staffAuth := middleware.RequireScope(cfg.AuthService, model.ScopeStaff)
	r.Use(middleware.Recovery(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))

	// Unauthenticated endpoints
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/minecraft").Subrouter()

	// Game plugin routes
	plugin := api.NewRoute().Subrouter()
	plugin.Use(connectAuth)
	plugin.HandleFunc("/connection-attempt", pluginHandler.ConnectionAttempt).Methods(http.MethodPost)
	plugin.HandleFunc("/request-link-code", pluginHandler.RequestLinkCode).Methods(http.MethodPost)

	// Staff routes
	staff := api.NewRoute().Subrouter()
	staff.Use(staffAuth)
	staff.HandleFunc("/confirm", staffHandler.Confirm).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/pending", staffHandler.Pending).Methods(http.MethodGet)
	staff.HandleFunc("/{guildId}/approve/{authId}", staffHandler.Approve).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/reject/{authId}", staffHandler.Reject).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/bulk-approve", staffHandler.BulkApprove).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/link-code", staffHandler.IssueCode).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/players/{playerId}", staffHandler.GetPlayer).Methods(http.MethodGet)
	staff.HandleFunc("/{guildId}/players/{playerId}/revoke", staffHandler.Revoke).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/players/{playerId}/role-sync", staffHandler.RoleSync).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/players/{playerId}/role-sync/logs", staffHandler.RoleSyncLogs).Methods(http.MethodGet)
	staff.HandleFunc("/{guildId}/members/{userId}/leave", staffHandler.MemberLeave).Methods(http.MethodPost)
	staff.HandleFunc("/{guildId}/members/{userId}/join", staffHandler.MemberJoin).Methods(http.MethodPost)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}

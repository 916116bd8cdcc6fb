package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mcoot/mclink/internal/api/middleware"
	"github.com/mcoot/mclink/internal/api/request"
	"github.com/mcoot/mclink/internal/api/response"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/approval"
	"github.com/mcoot/mclink/internal/services/authcode"
	"github.com/mcoot/mclink/internal/services/membership"
	"github.com/mcoot/mclink/internal/services/rolesync"
)

// DefaultHistoryLimit caps role sync history responses without a limit parameter
const DefaultHistoryLimit = 50

// StaffHandler serves the chat bot, dashboard and staff CLI
type StaffHandler struct {
	issuer     *authcode.Issuer
	workflow   *approval.Workflow
	roleSync   *rolesync.Engine
	membership *membership.Service
}

// NewStaffHandler creates a new staff handler
func NewStaffHandler(
	issuer *authcode.Issuer,
	workflow *approval.Workflow,
	roleSync *rolesync.Engine,
	membership *membership.Service,
) *StaffHandler {
	return &StaffHandler{
		issuer:     issuer,
		workflow:   workflow,
		roleSync:   roleSync,
		membership: membership,
	}
}

// Pending handles GET /api/v1/minecraft/{guildId}/pending
func (h *StaffHandler) Pending(w http.ResponseWriter, r *http.Request) {
	recs, err := h.workflow.ListPending(r.Context(), guildID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	players := response.PlayersFromModel(recs)
	response.JSON(w, http.StatusOK, response.PendingList{Players: players, Count: len(players)})
}

// Approve handles POST /api/v1/minecraft/{guildId}/approve/{authId}
func (h *StaffHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req request.ApproveRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.workflow.Approve(r.Context(), guildID(r), pathID(r, "authId"), staffID(r, req.StaffID), req.Notes)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// Reject handles POST /api/v1/minecraft/{guildId}/reject/{authId}
func (h *StaffHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req request.RejectRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.workflow.Reject(r.Context(), guildID(r), pathID(r, "authId"), staffID(r, req.StaffID), req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// BulkApprove handles POST /api/v1/minecraft/{guildId}/bulk-approve
func (h *StaffHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req request.BulkApproveRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.workflow.BulkApprove(r.Context(), guildID(r), req.Count, staffID(r, req.StaffID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.BulkApproveFromResult(result))
}

// IssueCode handles POST /api/v1/minecraft/{guildId}/link-code
func (h *StaffHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	var req request.IssueCodeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.issuer.Issue(r.Context(), guildID(r), req.Username, req.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AuthCodeFromModel(rec))
}

// Confirm handles POST /api/v1/minecraft/confirm
func (h *StaffHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req request.ConfirmRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.issuer.Confirm(r.Context(), authcode.ConfirmRequest{
		Code:            req.Code,
		ChatUserID:      req.ChatUserID,
		ChatUsername:    req.ChatUsername,
		ChatDisplayName: req.ChatDisplayName,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// GetPlayer handles GET /api/v1/minecraft/{guildId}/players/{playerId}
func (h *StaffHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	rec, err := h.workflow.GetPlayer(r.Context(), guildID(r), pathID(r, "playerId"))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// Revoke handles POST /api/v1/minecraft/{guildId}/players/{playerId}/revoke
func (h *StaffHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req request.RevokeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.workflow.Revoke(r.Context(), guildID(r), pathID(r, "playerId"), staffID(r, req.StaffID), req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// RoleSync handles POST /api/v1/minecraft/{guildId}/players/{playerId}/role-sync
func (h *StaffHandler) RoleSync(w http.ResponseWriter, r *http.Request) {
	var req request.RoleSyncRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.roleSync.Calculate(r.Context(), guildID(r), pathID(r, "playerId"), req.CurrentGroups, model.TriggerManual)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoleSyncFromResult(result))
}

// RoleSyncLogs handles GET /api/v1/minecraft/{guildId}/players/{playerId}/role-sync/logs
func (h *StaffHandler) RoleSyncLogs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteError(w, NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := h.roleSync.History(r.Context(), guildID(r), pathID(r, "playerId"), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	if logs == nil {
		logs = []*model.RoleSyncLog{}
	}

	response.JSON(w, http.StatusOK, response.RoleSyncLogs{Logs: logs})
}

// MemberLeave handles POST /api/v1/minecraft/{guildId}/members/{userId}/leave
func (h *StaffHandler) MemberLeave(w http.ResponseWriter, r *http.Request) {
	report, err := h.membership.OnMemberLeave(r.Context(), guildID(r), mux.Vars(r)["userId"])
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}

// MemberJoin handles POST /api/v1/minecraft/{guildId}/members/{userId}/join
func (h *StaffHandler) MemberJoin(w http.ResponseWriter, r *http.Request) {
	report, err := h.membership.OnMemberJoin(r.Context(), guildID(r), mux.Vars(r)["userId"])
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}

func guildID(r *http.Request) model.GuildID {
	return model.GuildID(mux.Vars(r)["guildId"])
}

func pathID(r *http.Request, name string) model.PlayerID {
	return model.PlayerID(mux.Vars(r)[name])
}

// staffID falls back to the calling key's name when the body names no staff member
func staffID(r *http.Request, given string) string {
	if given = strings.TrimSpace(given); given != "" {
		return given
	}
	if key := middleware.GetKey(r.Context()); key != nil {
		return "api:" + key.Name
	}
	return ""
}

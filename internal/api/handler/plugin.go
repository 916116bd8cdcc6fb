package handler

import (
	"net/http"

	"github.com/mcoot/mclink/internal/api/request"
	"github.com/mcoot/mclink/internal/api/response"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/authcode"
	"github.com/mcoot/mclink/internal/services/connection"
)

// PluginHandler serves the game-server plugin
type PluginHandler struct {
	connections *connection.Handler
	issuer      *authcode.Issuer
}

// NewPluginHandler creates a new plugin handler
func NewPluginHandler(connections *connection.Handler, issuer *authcode.Issuer) *PluginHandler {
	return &PluginHandler{
		connections: connections,
		issuer:      issuer,
	}
}

// ConnectionAttempt handles POST /api/v1/minecraft/connection-attempt
func (h *PluginHandler) ConnectionAttempt(w http.ResponseWriter, r *http.Request) {
	var req request.ConnectionAttemptRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	decision, err := h.connections.HandleAttempt(r.Context(), model.ConnectionAttempt{
		Username:             req.Username,
		UUID:                 req.UUID,
		IP:                   req.IP,
		ServerIP:             req.ServerIP,
		CurrentlyWhitelisted: req.CurrentlyWhitelisted,
		CurrentGroups:        req.CurrentGroups,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ConnectionDecisionFromModel(decision))
}

// RequestLinkCode handles POST /api/v1/minecraft/request-link-code
func (h *PluginHandler) RequestLinkCode(w http.ResponseWriter, r *http.Request) {
	var req request.RequestLinkCodeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.issuer.RequestLinkCode(r.Context(), req.Username, req.UUID, req.ServerIP)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LinkCodeFromResult(result))
}

// Package handler provides HTTP handlers for admin identity-store CRUD.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/service"
)

// KeyHandler handles HTTP requests for identity-store administration.
type KeyHandler struct {
	service *service.KeyService
	logger  *slog.Logger
}

// NewKeyHandler creates a KeyHandler.
func NewKeyHandler(svc *service.KeyService, logger *slog.Logger) *KeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyHandler{service: svc, logger: logger.With("component", "identity-key-handler")}
}

// RegisterRoutes mounts the admin endpoints on mux.
//
//   - POST   /admin/keys          - issue a new key
//   - POST   /admin/keys/{name}/rotate - rotate a key
//   - DELETE /admin/keys/{name}   - revoke a key
//   - GET    /admin/keys          - list keys
func (h *KeyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/keys", h.handleIssue)
	mux.HandleFunc("POST /admin/keys/{name}/rotate", h.handleRotate)
	mux.HandleFunc("DELETE /admin/keys/{name}", h.handleRevoke)
	mux.HandleFunc("GET /admin/keys", h.handleList)
}

type issueKeyRequest struct {
	Name        string `json:"name"`
	Token       string `json:"token"`
	Leaderboard bool   `json:"leaderboard"`
}

type issueKeyResponse struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (h *KeyHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	token, err := h.service.IssueKey(r.Context(), req.Name, req.Token, req.Leaderboard)
	if err != nil {
		h.logger.Error("failed to issue key", "name", req.Name, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, issueKeyResponse{Name: req.Name, Token: token})
}

func (h *KeyHandler) handleRotate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	token, err := h.service.RotateKey(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to rotate key", "name", name, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, issueKeyResponse{Name: name, Token: token})
}

func (h *KeyHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.service.RevokeKey(r.Context(), name); err != nil {
		h.logger.Error("failed to revoke key", "name", name, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "name": name})
}

func (h *KeyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list keys", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list keys"})
		return
	}

	type keyItem struct {
		Name        string `json:"name"`
		Leaderboard bool   `json:"leaderboard"`
	}
	items := make([]keyItem, len(keys))
	for i, k := range keys {
		items[i] = keyItem{Name: k.Name, Leaderboard: k.Leaderboard}
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": items, "count": len(items)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

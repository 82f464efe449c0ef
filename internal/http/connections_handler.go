package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"epicnotes/internal/auth"
)

// ConnectionsHandler manages the user's linked OAuth identities.
type ConnectionsHandler struct {
	auth   *auth.Service
	github *auth.GitHubAuthenticator
	logger *slog.Logger
}

// NewConnectionsHandler creates a new ConnectionsHandler.
func NewConnectionsHandler(svc *auth.Service, github *auth.GitHubAuthenticator, logger *slog.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{auth: svc, github: github, logger: logger}
}

type connectionResponse struct {
	ID          uuid.UUID `json:"id"`
	Provider    string    `json:"provider"`
	DisplayName string    `json:"displayName"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   string    `json:"createdAt"`
}

// List returns the user's connections with resolved display names and
// whether any of them may currently be deleted.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	conns, err := h.auth.Connections(r.Context(), info.User.ID)
	if err != nil {
		h.logger.Error("list connections failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	canDelete, err := h.auth.CanDeleteConnection(r.Context(), info.User.ID)
	if err != nil {
		h.logger.Error("can-delete check failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	out := make([]connectionResponse, 0, len(conns))
	for _, c := range conns {
		data := h.github.ResolveConnectionData(r.Context(), c.ProviderID)
		out = append(out, connectionResponse{
			ID:          c.ID,
			Provider:    c.ProviderName,
			DisplayName: data.DisplayName,
			Link:        data.Link,
			CreatedAt:   c.CreatedAt.Format("2006-01-02"),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connections": out,
		"canDelete":   canDelete,
	})
}

// Delete removes a connection unless it is the user's last way in.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	if err := h.auth.DeleteConnection(r.Context(), id, info.User.ID); err != nil {
		if errors.Is(err, auth.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("delete connection failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

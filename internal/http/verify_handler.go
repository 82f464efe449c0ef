package http

import (
	"log/slog"
	"net/http"

	"epicnotes/internal/auth"
)

// verifyAction finishes a flow after its code was successfully consumed. It
// may write cookies and returns where the client goes next.
type verifyAction func(w http.ResponseWriter, r *http.Request, target, redirectTo string) (string, error)

// VerifyHandler serves the shared /verify endpoint. Each verification type
// registers the action that runs once its code checks out; the handler owns
// parsing, consumption, and the uniform invalid-code response.
type VerifyHandler struct {
	verifier *auth.Verifier
	actions  map[auth.VerificationType]verifyAction
	logger   *slog.Logger
}

// NewVerifyHandler creates a VerifyHandler with an empty registry.
func NewVerifyHandler(verifier *auth.Verifier, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{
		verifier: verifier,
		actions:  make(map[auth.VerificationType]verifyAction),
		logger:   logger,
	}
}

// Register binds the post-consume action for a verification type.
func (h *VerifyHandler) Register(typ auth.VerificationType, action verifyAction) {
	h.actions[typ] = action
}

type verifyRequest struct {
	Code       string `json:"code"`
	Type       string `json:"type"`
	Target     string `json:"target"`
	RedirectTo string `json:"redirectTo"`
}

// Verify consumes a one-time code and dispatches to the registered action.
// GET serves emailed links (params in the query string); POST serves the
// code-entry form.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req = verifyRequest{
			Code:       q.Get("code"),
			Type:       q.Get("type"),
			Target:     q.Get("target"),
			RedirectTo: q.Get("redirectTo"),
		}
	} else if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	typ, ok := auth.ParseVerificationType(req.Type)
	if !ok {
		writeFieldError(w, "type", "invalid verification type")
		return
	}
	if req.Target == "" {
		writeFieldError(w, "target", "target is required")
		return
	}
	if req.Code == "" {
		writeFieldError(w, "code", "code is required")
		return
	}

	valid, err := h.verifier.Consume(r.Context(), req.Code, typ, req.Target)
	if err != nil {
		h.logger.Error("consume verification failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if !valid {
		writeFieldError(w, "code", "invalid code")
		return
	}

	action, ok := h.actions[typ]
	if !ok {
		h.logger.Error("no verify action registered", slog.String("type", string(typ)))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	redirectTo, err := action(w, r, req.Target, req.RedirectTo)
	if err != nil {
		h.logger.Error("verify action failed", slog.String("type", string(typ)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	if r.Method == http.MethodGet {
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirectTo": redirectTo})
}

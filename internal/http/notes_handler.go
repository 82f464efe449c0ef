package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"epicnotes/internal/notes"
)

// NotesHandler serves the note CRUD endpoints behind RequireUser.
type NotesHandler struct {
	repo   notes.Repository
	logger *slog.Logger
}

// NewNotesHandler creates a new NotesHandler.
func NewNotesHandler(repo notes.Repository, logger *slog.Logger) *NotesHandler {
	return &NotesHandler{repo: repo, logger: logger}
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (req noteRequest) validate() (string, bool) {
	if strings.TrimSpace(req.Title) == "" {
		return "title is required", false
	}
	if len(req.Title) > 100 {
		return "title must be at most 100 characters", false
	}
	if len(req.Content) > 10000 {
		return "content must be at most 10000 characters", false
	}
	return "", true
}

// List returns the user's notes, newest first.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	list, err := h.repo.ListByOwner(r.Context(), info.User.ID)
	if err != nil {
		h.logger.Error("list notes failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if list == nil {
		list = []notes.Note{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": list})
}

// Get returns one note. Other users' notes read as missing.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	note, err := h.repo.Find(r.Context(), id)
	if err != nil {
		h.logger.Error("find note failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if note == nil || note.OwnerID != info.User.ID {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Create inserts a note owned by the current user.
func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	var req noteRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	note := notes.Note{
		ID:        uuid.New(),
		OwnerID:   info.User.ID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Create(r.Context(), note); err != nil {
		h.logger.Error("create note failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// Update rewrites a note's title and content.
func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	var req noteRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	note, err := h.repo.Find(r.Context(), id)
	if err != nil {
		h.logger.Error("find note failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if note == nil || note.OwnerID != info.User.ID {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	note.Title = strings.TrimSpace(req.Title)
	note.Content = req.Content
	note.UpdatedAt = time.Now()
	if err := h.repo.Update(r.Context(), *note); err != nil {
		h.logger.Error("update note failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Delete removes a note owned by the current user.
func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	count, err := h.repo.Delete(r.Context(), id, info.User.ID)
	if err != nil {
		h.logger.Error("delete note failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if count == 0 {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

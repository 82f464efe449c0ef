package http

import (
	"net/http"
	"strings"
	"testing"
)

func TestNotesCRUD(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}
	h.login(t, "kody", "password123")

	rec := h.do(t, http.MethodGet, "/notes/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/notes/", map[string]any{
		"title":   "Koalas",
		"content": "Koalas are great.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatal("no id in create response")
	}

	rec = h.do(t, http.MethodGet, "/notes/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["title"]; got != "Koalas" {
		t.Errorf("title = %v", got)
	}

	rec = h.do(t, http.MethodPut, "/notes/"+id, map[string]any{
		"title":   "Koalas!",
		"content": "Koalas are still great.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodDelete, "/notes/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/notes/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestNotesOwnership(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.signupUser(t, "hannah", "hannah@example.com", "password123")

	h.cookies = map[string]*http.Cookie{}
	h.login(t, "kody", "password123")
	rec := h.do(t, http.MethodPost, "/notes/", map[string]any{
		"title": "Private", "content": "kody's note",
	})
	id, _ := decodeBody(t, rec)["id"].(string)

	// A different user cannot see, change, or delete it.
	h.cookies = map[string]*http.Cookie{}
	h.login(t, "hannah", "password123")

	if rec := h.do(t, http.MethodGet, "/notes/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get = %d, want 404", rec.Code)
	}
	if rec := h.do(t, http.MethodPut, "/notes/"+id, map[string]any{"title": "Hijacked"}); rec.Code != http.StatusNotFound {
		t.Errorf("put = %d, want 404", rec.Code)
	}
	if rec := h.do(t, http.MethodDelete, "/notes/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete = %d, want 404", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/notes/", nil)
	if body := rec.Body.String(); strings.Contains(body, "Private") {
		t.Error("another user's note leaked into the list")
	}
}

func TestNotesValidation(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}
	h.login(t, "kody", "password123")

	rec := h.do(t, http.MethodPost, "/notes/", map[string]any{
		"title": "   ", "content": "no title",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank title status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/notes/", map[string]any{
		"title": strings.Repeat("a", 101), "content": "",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("long title status = %d, want 400", rec.Code)
	}
}

package cookies

import "net/http"

// Toast is a one-shot flash message for the UI layer. The core only
// attaches it; rendering is someone else's job.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// SetToast queues a flash message on the response.
func SetToast(jar *Jar, w http.ResponseWriter, toast Toast) error {
	return jar.Commit(w, toast, CommitOptions{})
}

// TakeToast reads and clears the pending flash message, if any.
func TakeToast(jar *Jar, w http.ResponseWriter, r *http.Request) *Toast {
	var toast Toast
	if err := jar.Get(r, &toast); err != nil {
		return nil
	}
	jar.Destroy(w)
	return &toast
}

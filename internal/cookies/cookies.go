// Package cookies implements the signed, httpOnly cookie jars that carry
// auth flow state between requests: the primary session cookie, the
// short-lived OAuth connection cookie, the verification-flow cookie, and
// the toast flash cookie.
package cookies

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// ErrNoCookie is returned by Get when the request carries no usable cookie
// for the jar: absent, expired, or failing signature verification.
var ErrNoCookie = errors.New("cookies: no valid cookie")

// CommitOptions overrides the jar's default cookie lifetime for a single
// commit. The zero value keeps the default (session-length for jars without
// a max age).
type CommitOptions struct {
	MaxAge  time.Duration
	Expires time.Time
}

// Jar is one named, signed cookie. Values are JSON-encoded and HMAC-signed
// with the first secret; older secrets still verify so they can be rotated
// out gradually.
type Jar struct {
	name    string
	maxAge  time.Duration
	secure  bool
	codecs  []securecookie.Codec
}

// NewJar creates a jar. maxAge zero means a browser-session cookie.
func NewJar(name string, maxAge time.Duration, secure bool, secrets []string) *Jar {
	codecs := make([]securecookie.Codec, 0, len(secrets))
	for _, secret := range secrets {
		sc := securecookie.New([]byte(secret), nil)
		sc.SetSerializer(securecookie.JSONEncoder{})
		if maxAge > 0 {
			sc.MaxAge(int(maxAge.Seconds()))
		} else {
			sc.MaxAge(0)
		}
		codecs = append(codecs, sc)
	}
	return &Jar{name: name, maxAge: maxAge, secure: secure, codecs: codecs}
}

// Name returns the cookie name.
func (j *Jar) Name() string {
	return j.name
}

// Get decodes the jar's cookie from the request into dst.
func (j *Jar) Get(r *http.Request, dst any) error {
	cookie, err := r.Cookie(j.name)
	if err != nil || cookie.Value == "" {
		return ErrNoCookie
	}
	if err := securecookie.DecodeMulti(j.name, cookie.Value, dst, j.codecs...); err != nil {
		return ErrNoCookie
	}
	return nil
}

// Commit signs and sets the cookie. opts may extend the lifetime (e.g.
// "remember me" pinning the cookie to the session's expiration).
func (j *Jar) Commit(w http.ResponseWriter, value any, opts CommitOptions) error {
	encoded, err := securecookie.EncodeMulti(j.name, value, j.codecs...)
	if err != nil {
		return err
	}

	cookie := j.baseCookie()
	cookie.Value = encoded

	switch {
	case !opts.Expires.IsZero():
		cookie.Expires = opts.Expires
		cookie.MaxAge = int(time.Until(opts.Expires).Seconds())
	case opts.MaxAge > 0:
		cookie.MaxAge = int(opts.MaxAge.Seconds())
	case j.maxAge > 0:
		cookie.MaxAge = int(j.maxAge.Seconds())
	}

	http.SetCookie(w, cookie)
	return nil
}

// Destroy expires the cookie immediately.
func (j *Jar) Destroy(w http.ResponseWriter) {
	cookie := j.baseCookie()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (j *Jar) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     j.name,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

package cookies

// Jars bundles the four cookie jars the auth flows use. All share the same
// secret list; lifetimes differ per jar.
type Jars struct {
	Session      *Jar
	Connection   *Jar
	Verification *Jar
	Toast        *Jar
}

// NewJars builds the standard jar set. The primary session jar defaults to
// browser-session lifetime; "remember me" extends it per commit. The
// connection and verification jars are bounded to ten minutes to limit the
// replay window for in-flight flows.
func NewJars(secrets []string, secure bool) *Jars {
	return &Jars{
		Session:      NewJar(SessionCookieName, 0, secure, secrets),
		Connection:   NewJar(ConnectionCookieName, TransientMaxAge, secure, secrets),
		Verification: NewJar(VerificationCookieName, TransientMaxAge, secure, secrets),
		Toast:        NewJar(ToastCookieName, 0, secure, secrets),
	}
}

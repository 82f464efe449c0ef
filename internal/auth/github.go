package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Profile is the provider identity resolved during an OAuth callback.
type Profile struct {
	ID       string
	Email    string
	Username string
	Name     string
	ImageURL string
}

// ConnectionData is the display information for a linked connection.
type ConnectionData struct {
	DisplayName string
	Link        string
}

// GitHubAuthenticator handles the GitHub OAuth 2.0 code flow and profile
// resolution. GitHub has no OIDC surface, so the profile comes from its
// REST API using the exchanged access token.
type GitHubAuthenticator struct {
	config     *oauth2.Config
	httpClient *http.Client
	apiBase    string
}

// NewGitHubAuthenticator creates a new GitHubAuthenticator.
func NewGitHubAuthenticator(clientID, clientSecret, redirectURL string) *GitHubAuthenticator {
	return &GitHubAuthenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiBase:    "https://api.github.com",
	}
}

// SetBaseURLs points the authenticator at a different GitHub deployment
// (GitHub Enterprise, or a stub in tests).
func (g *GitHubAuthenticator) SetBaseURLs(authURL, tokenURL, apiBase string) {
	g.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	g.apiBase = strings.TrimSuffix(apiBase, "/")
}

// AuthURL generates the GitHub consent URL carrying the given state.
func (g *GitHubAuthenticator) AuthURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for an access token and resolves
// the user's GitHub profile.
func (g *GitHubAuthenticator) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	var ghUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := g.apiGet(ctx, token, "/user", &ghUser); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	email := ghUser.Email
	if email == "" {
		email, err = g.primaryEmail(ctx, token)
		if err != nil {
			return nil, err
		}
	}
	if email == "" {
		return nil, fmt.Errorf("github profile has no verified email")
	}

	return &Profile{
		ID:       strconv.FormatInt(ghUser.ID, 10),
		Email:    strings.ToLower(email),
		Username: ghUser.Login,
		Name:     ghUser.Name,
		ImageURL: ghUser.AvatarURL,
	}, nil
}

func (g *GitHubAuthenticator) primaryEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := g.apiGet(ctx, token, "/user/emails", &emails); err != nil {
		return "", fmt.Errorf("fetch emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

// ResolveConnectionData fetches display information for a stored provider
// id. Failures degrade to an "Unknown" display name rather than an error so
// the connections page still renders.
func (g *GitHubAuthenticator) ResolveConnectionData(ctx context.Context, providerID string) ConnectionData {
	var ghUser struct {
		Login string `json:"login"`
	}
	if err := g.apiGet(ctx, nil, "/user/"+providerID, &ghUser); err != nil || ghUser.Login == "" {
		return ConnectionData{DisplayName: "Unknown"}
	}
	return ConnectionData{
		DisplayName: ghUser.Login,
		Link:        "https://github.com/" + ghUser.Login,
	}
}

func (g *GitHubAuthenticator) apiGet(ctx context.Context, token *oauth2.Token, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != nil {
		token.SetAuthHeader(req)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// GenerateState generates a cryptographically secure random state string
// for the OAuth handshake.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeUsername turns a provider display name into a schema-valid
// username suggestion: alphanumerics kept, everything else replaced with
// underscores, lowercased, capped at 20 characters, padded to at least 3.
func SanitizeUsername(raw string) string {
	name := nonAlnum.ReplaceAllString(raw, "_")
	name = strings.ToLower(name)
	if len(name) > 20 {
		name = name[:20]
	}
	for len(name) < 3 {
		name += "_"
	}
	return name
}

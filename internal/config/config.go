package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the Epic Notes services.
type Config struct {
	Environment    string
	HTTPPort       int
	BaseURL        string
	DatabaseURL    string
	DataStore      string
	LogLevel       string
	AllowedOrigins []string

	// SessionSecrets sign the cookie jars. The first entry signs new
	// cookies; the rest are still accepted so secrets can be rotated
	// without logging everyone out.
	SessionSecrets []string
	SessionTTL     time.Duration

	// TwoFAReverifyWindow is how long a successful 2FA check is trusted
	// before the user is prompted again.
	TwoFAReverifyWindow time.Duration

	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/epicnotes_database_url")
	if err != nil {
		return Config{}, err
	}

	sessionSecrets, err := getEnvOrFile("SESSION_SECRETS", "/run/secrets/epicnotes_session_secrets")
	if err != nil {
		return Config{}, err
	}

	githubSecret, err := getEnvOrFile("GITHUB_CLIENT_SECRET", "/run/secrets/epicnotes_github_client_secret")
	if err != nil {
		return Config{}, err
	}

	smtpPassword, err := getEnvOrFile("SMTP_PASSWORD", "/run/secrets/epicnotes_smtp_password")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		BaseURL:            strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:        databaseURL,
		DataStore:          strings.ToLower(getEnv("DATA_STORE", "memory")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:     parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:4200,http://localhost:8080")),
		SessionSecrets:     parseCSV(sessionSecrets),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: githubSecret,
		GitHubRedirectURL:  getEnv("GITHUB_REDIRECT_URL", ""),
		SMTPHost:           getEnv("SMTP_HOST", "localhost"),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       smtpPassword,
		SMTPFrom:           getEnv("SMTP_FROM", "hello@epicnotes.dev"),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	smtpPortValue := getEnv("SMTP_PORT", "587")
	smtpPort, err := strconv.Atoi(smtpPortValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SMTP port %q: %w", smtpPortValue, err)
	}
	cfg.SMTPPort = smtpPort

	cfg.SessionTTL, err = parseDuration("SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg.TwoFAReverifyWindow, err = parseDuration("TWO_FA_REVERIFY_WINDOW", 2*time.Hour)
	if err != nil {
		return Config{}, err
	}

	if cfg.DataStore == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
	}

	if len(cfg.SessionSecrets) == 0 {
		if cfg.IsProduction() {
			return Config{}, fmt.Errorf("SESSION_SECRETS must be set outside development")
		}
		cfg.SessionSecrets = []string{"insecure-dev-session-secret"}
	}

	return cfg, nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repository should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsProduction reports whether the app runs with production hardening
// (Secure cookies, HSTS).
func (c Config) IsProduction() bool {
	return !strings.EqualFold(c.Environment, "development")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
	}
	return d, nil
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}

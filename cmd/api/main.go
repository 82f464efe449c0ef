// Command api runs the Epic Notes HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epicnotes/internal/auth"
	"epicnotes/internal/config"
	"epicnotes/internal/cookies"
	"epicnotes/internal/email"
	epichttp "epicnotes/internal/http"
	"epicnotes/internal/notes"
	"epicnotes/internal/platform/database"
	"epicnotes/internal/platform/logging"
	"epicnotes/internal/platform/migrate"
	"epicnotes/internal/totp"
)

const appName = "Epic Notes"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		authRepo  auth.Repository
		notesRepo notes.Repository
	)
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory store")
		authRepo = auth.NewInMemoryRepository()
		notesRepo = notes.NewInMemoryRepository()
	} else {
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := migrate.Apply(ctx, db); err != nil {
			return err
		}
		authRepo = auth.NewPostgresRepository(db)
		notesRepo = notes.NewPostgresRepository(db)
	}

	authService := auth.NewService(authRepo, cfg.SessionTTL, cfg.TwoFAReverifyWindow)
	verifier := auth.NewVerifier(authRepo, totp.New())
	github := auth.NewGitHubAuthenticator(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL)
	jars := cookies.NewJars(cfg.SessionSecrets, cfg.IsProduction())
	sender := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)

	handler := epichttp.NewRouter(epichttp.Dependencies{
		Logger:         logger,
		Auth:           authService,
		Verifier:       verifier,
		GitHub:         github,
		Emails:         sender,
		Jars:           jars,
		Notes:          notesRepo,
		BaseURL:        cfg.BaseURL,
		AppName:        appName,
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/database"
	"codeberg.org/smsresearch/studyportal/internal/handlers"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/repository"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/services/email"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/sse"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"api", cfg.API.BaseURL,
	)

	// Database, migrated on open
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Sessions
	repo := repository.New(db)
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")
	sessions, err := session.NewManager(&cfg.Session, repo, secure)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	// Backend and verification flows
	api := apiclient.New(cfg.API.BaseURL, apiclient.WithTimeout(cfg.API.Timeout))
	hub := sse.NewHub()
	flows := otpflow.NewRegistry(api,
		otpflow.WithRegistryResendSeconds(cfg.OTP.ResendSeconds),
		otpflow.WithNotifier(handlers.FlowNotifier(hub)),
	)
	defer flows.CloseAll()

	deps := handlers.Deps{
		API:       api,
		Screening: screening.NewService(api),
		Flows:     flows,
		Hub:       hub,
		Sessions:  sessions,
		Study:     cfg.Study,
	}
	if cfg.SMTP.Host != "" {
		mailer, mailErr := email.NewService(&cfg.SMTP, cfg.Study.SupportEmail)
		if mailErr != nil {
			return fmt.Errorf("failed to configure mail: %w", mailErr)
		}
		deps.Mailer = mailer
	} else {
		slog.Info("smtp host not set, support notices disabled")
	}

	// Background jobs
	jobs, err := startJobs(sessions, flows, cfg.OTP.IdleTimeout)
	if err != nil {
		return err
	}
	defer func() { <-jobs.Stop().Done() }()

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg, sessions)
	setupRoutes(e, handlers.New(deps), cfg)

	plan, err := planListeners(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}
	return serve(ctx, e, plan, cfg.Server.BaseURL)
}

// serve runs the portal listeners of plan until ctx ends, SIGINT or SIGTERM
// arrives, or a listener fails, then shuts them down within ten seconds.
func serve(ctx context.Context, e *echo.Echo, plan *listenPlan, baseURL string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("portal listening", "url", baseURL, "addr", plan.addr, "tls", plan.secure())
		return ignoreClosed(listen(e, plan))
	})

	var redirect *http.Server
	if plan.challenge != nil {
		redirect = &http.Server{Addr: ":80", Handler: plan.challenge, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			slog.Info("acme challenge and https redirect listening", "addr", redirect.Addr)
			return ignoreClosed(redirect.ListenAndServe())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown portal", "error", err)
		}
		if redirect != nil {
			if err := redirect.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shutdown redirect listener", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}

func listen(e *echo.Echo, plan *listenPlan) error {
	if !plan.secure() {
		return e.Start(plan.addr)
	}
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", plan.addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, plan.tls)
	e.TLSServer.TLSConfig = plan.tls
	return e.TLSServer.Serve(e.TLSListener)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

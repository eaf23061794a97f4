// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email notifies the study team by mail when a verified participant
// is left without a survey link.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"github.com/wneessen/go-mail"
)

// ErrNoRecipient is returned when no support mailbox is configured.
var ErrNoRecipient = errors.New("email: no support mailbox configured")

// Sender delivers composed messages; *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Service sends support notices to the study mailbox.
type Service struct {
	from     string
	fromName string
	to       string
	sender   Sender
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithSender replaces the SMTP client, for tests.
func WithSender(s Sender) Option {
	return func(svc *Service) { svc.sender = s }
}

// WithClock sets the time stamped into notices.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// NewService validates cfg and prepares an SMTP client that mails notices to
// the support address to. Nothing is dialed until a notice is sent.
func NewService(cfg *config.SMTPConfig, to string, opts ...Option) (*Service, error) {
	switch {
	case cfg.Host == "":
		return nil, errors.New("SMTP host is required")
	case cfg.From == "":
		return nil, errors.New("SMTP from address is required")
	case to == "":
		return nil, ErrNoRecipient
	}

	svc := &Service{from: cfg.From, fromName: cfg.FromName, to: to, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.sender == nil {
		client, err := mail.NewClient(cfg.Host, clientOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("configure SMTP client: %w", err)
		}
		svc.sender = client
	}
	return svc, nil
}

// clientOptions maps cfg onto go-mail: implicit TLS on 465, mandatory
// STARTTLS elsewhere, plain auth when credentials are set.
func clientOptions(cfg *config.SMTPConfig) []mail.Option {
	opts := []mail.Option{mail.WithPort(cfg.Port), mail.WithTimeout(15 * time.Second)}
	switch {
	case !cfg.TLS:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case cfg.Port == 465:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return opts
}

// SendSupportNotice tells the study team that a verified participant did not
// receive a survey link and asked for help.
func (s *Service) SendSupportNotice(ctx context.Context, phone, email string) error {
	msg, err := s.Notice(ctx, phone, email)
	if err != nil {
		return err
	}
	if err := s.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send support notice: %w", err)
	}
	slog.InfoContext(ctx, "support notice sent", "to", s.to)
	return nil
}

// Notice composes the support notice. The participant's address, when it
// parses, becomes the Reply-To so the team can answer directly.
func (s *Service) Notice(ctx context.Context, phone, email string) (*mail.Msg, error) {
	shown := email
	if shown == "" {
		shown = i18n.T(ctx, "not_provided")
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(s.to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	if email != "" {
		if err := msg.ReplyTo(email); err != nil {
			slog.DebugContext(ctx, "participant email unusable as reply-to", "error", err)
		}
	}

	msg.Subject(i18n.T(ctx, "email_support_subject"))
	msg.SetBodyString(mail.TypeTextPlain, i18n.TData(ctx, "email_support_body", map[string]any{
		"Phone": apiclient.NormalizePhone(phone),
		"Email": shown,
		"Time":  s.now().UTC().Format(time.RFC3339),
	}))
	return msg, nil
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates

import (
	"context"
	"strings"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/ctxkeys"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
)

// CSRFToken returns the CSRF token from the context.
func CSRFToken(ctx context.Context) string {
	if token, ok := ctx.Value(ctxkeys.CSRFToken{}).(string); ok {
		return token
	}
	return ""
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return i18n.T(ctx, messageID)
}

// TData translates a message with template data given as key/value pairs.
func TData(ctx context.Context, messageID string, pairs ...any) string {
	return i18n.TData(ctx, messageID, dict(pairs...))
}

func tplural(ctx context.Context, messageID string, count int) string {
	return i18n.TPlural(ctx, messageID, count)
}

// Locale returns the current locale.
func Locale(ctx context.Context) string {
	return i18n.GetLocale(ctx)
}

// Layout is what the page chrome needs besides the page itself.
type Layout struct {
	CSSPath string
	JSPath  string
	Study   config.StudyConfig
}

// WithLayout stores l for the layout helpers.
func WithLayout(ctx context.Context, l Layout) context.Context {
	return context.WithValue(ctx, ctxkeys.Layout{}, l)
}

func layoutOf(ctx context.Context) Layout {
	l, _ := ctx.Value(ctxkeys.Layout{}).(Layout)
	if l.CSSPath == "" {
		l.CSSPath = "/static/css/styles.css"
	}
	if l.JSPath == "" {
		l.JSPath = "/static/js/app.js"
	}
	return l
}

// CSSPath returns the stylesheet URL, hashed in production builds.
func CSSPath(ctx context.Context) string { return layoutOf(ctx).CSSPath }

// JSPath returns the script URL, hashed in production builds.
func JSPath(ctx context.Context) string { return layoutOf(ctx).JSPath }

// WithFlashes stores the notices rendered at the top of the page.
func WithFlashes(ctx context.Context, flashes []session.Flash) context.Context {
	return context.WithValue(ctx, ctxkeys.Flashes{}, flashes)
}

// Flashes returns the notices stored by WithFlashes.
func Flashes(ctx context.Context) []session.Flash {
	flashes, _ := ctx.Value(ctxkeys.Flashes{}).([]session.Flash)
	return flashes
}

// IsAdmin reports whether the request belongs to a logged-in administrator.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(ctxkeys.Admin{}).(bool)
	return admin
}

// Study returns the study contact details.
func Study(ctx context.Context) config.StudyConfig { return layoutOf(ctx).Study }

// Message renders a notice. Verbatim server text wins over the translation ID.
func Message(ctx context.Context, v any) string {
	var id, text string
	switch m := v.(type) {
	case otpflow.Message:
		id, text = m.ID, m.Text
	case session.Flash:
		id, text = m.ID, m.Text
	case *session.Flash:
		if m == nil {
			return ""
		}
		id, text = m.ID, m.Text
	case screening.Recovery:
		id, text = m.MessageID, m.MessageText
	case *screening.Recovery:
		if m == nil {
			return ""
		}
		id, text = m.MessageID, m.MessageText
	case string:
		id = m
	}
	if text != "" {
		return text
	}
	if id == "" {
		return ""
	}
	return i18n.T(ctx, id)
}

// FormatPhone renders a phone number as (555) 123-4567 when it has ten
// digits after the country code.
func FormatPhone(phone string) string {
	digits := apiclient.Digits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return phone
	}
	return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
}

// FormatTime renders an optional timestamp, or a dash when unset.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func dict(pairs ...any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if key, ok := pairs[i].(string); ok {
			m[key] = pairs[i+1]
		}
	}
	return m
}

func lower(s string) string {
	return strings.ToLower(s)
}

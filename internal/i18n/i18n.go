// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n holds the participant-facing copy in English and Spanish and
// resolves it for the locale carried by the request context.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

// Supported lists the portal languages; the first is the fallback.
var Supported = []language.Tag{language.English, language.Spanish}

var (
	bundle  *i18n.Bundle
	matcher = language.NewMatcher(Supported)
)

type localeKey struct{}

// locale is what WithLocale stores in a context.
type locale struct {
	name string
	loc  *i18n.Localizer
}

// Init loads every translations/active.*.toml file.
func Init() error {
	b := i18n.NewBundle(Supported[0])
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(translationFS, "translations/active.*.toml")
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := b.LoadMessageFileFS(translationFS, f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	bundle = b
	return nil
}

// WithLocale returns ctx localized for the base language of tag.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	base, _ := tag.Base()
	return context.WithValue(ctx, localeKey{}, locale{
		name: base.String(),
		loc:  i18n.NewLocalizer(bundle, base.String()),
	})
}

// GetLocale returns the base language of ctx, "en" when none was set.
func GetLocale(ctx context.Context) string {
	if l, ok := ctx.Value(localeKey{}).(locale); ok {
		return l.name
	}
	return Supported[0].String()
}

// T translates messageID, returning the ID itself when it is unknown.
func T(ctx context.Context, messageID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: messageID})
}

// TData translates messageID with template data such as {{.Seconds}}.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
}

// TPlural picks the plural form of messageID for count, exposed as {{.Count}}.
func TPlural(ctx context.Context, messageID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    messageID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

// MatchLanguage picks the supported language closest to an Accept-Language
// header value.
func MatchLanguage(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	return tag
}

// Choose prefers an explicit choice, such as a ?lang= parameter or the
// remembered cookie, over the browser header. An explicit value that is
// not a supported language is ignored and ok is false.
func Choose(explicit, acceptLanguage string) (tag language.Tag, ok bool) {
	if explicit != "" {
		if t, err := language.Parse(explicit); err == nil {
			if _, _, c := matcher.Match(t); c >= language.High {
				base, _ := t.Base()
				return language.Make(base.String()), true
			}
		}
	}
	return MatchLanguage(acceptLanguage), false
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	loc := fallback()
	if l, ok := ctx.Value(localeKey{}).(locale); ok {
		loc = l.loc
	}
	msg, err := loc.Localize(cfg)
	if err != nil {
		return cfg.MessageID
	}
	return msg
}

func fallback() *i18n.Localizer {
	return i18n.NewLocalizer(bundle, Supported[0].String())
}

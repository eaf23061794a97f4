// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"log/slog"

	"codeberg.org/smsresearch/studyportal/internal/assets"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/templates"
)

// pageLayout resolves the stylesheet and script URLs from the asset
// manifest and pairs them with the study contact details.
func pageLayout(study config.StudyConfig) templates.Layout {
	l := templates.Layout{
		CSSPath: assets.CSSPath(),
		JSPath:  assets.JSPath(),
		Study:   study,
	}
	slog.Debug("page layout resolved", "css", l.CSSPath, "js", l.JSPath, "study", study.Name)
	return l
}

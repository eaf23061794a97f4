// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/auth"
	"codeberg.org/smsresearch/studyportal/internal/pagination"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const linksPath = "/admin-ops"

// bulkDeleteLimit caps concurrent backend deletes.
const bulkDeleteLimit = 4

// Link filters.
const (
	linksAll    = "all"
	linksUsed   = "used"
	linksUnused = "unused"
)

var linkFilters = []string{linksAll, linksUsed, linksUnused}

// Links lists the survey link pool.
func (h *Handlers) Links(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	links, err := h.api.AllLinks(c.Request().Context(), "")
	if err != nil {
		if auth.Unauthorized(err) {
			return auth.Expire(c)
		}
		slog.WarnContext(c.Request().Context(), "link list failed", "error", err)
		flashErr(s, err)
	}

	filter := c.QueryParam("filter")
	if !lo.Contains(linkFilters, filter) {
		filter = linksAll
	}
	search := strings.TrimSpace(c.QueryParam("q"))

	rows := pagination.Filter(links, func(l apiclient.Link) bool {
		switch filter {
		case linksUsed:
			return l.Used()
		case linksUnused:
			return !l.Used()
		}
		return true
	})
	rows = pagination.Search(rows, search, func(l apiclient.Link) []string {
		return []string{l.LinkURL, l.BatchLabel, l.Notes}
	})

	var edit *apiclient.Link
	if id := c.QueryParam("edit"); id != "" {
		if l, ok := lo.Find(links, func(l apiclient.Link) bool { return l.ID == id }); ok {
			edit = &l
		}
	}

	return page(c, http.StatusOK, "admin/links", map[string]any{
		"Filters": linkFilters,
		"Filter":  filter,
		"Search":  search,
		"Links":   pagination.Paginate(rows, intParam(c.QueryParam("page"), 1), pagination.DefaultSize),
		"Query":   url.Values{"filter": {filter}, "q": {search}}.Encode(),
		"Edit":    edit,
	})
}

// UploadLinks forwards a CSV file of links to the backend.
func (h *Handlers) UploadLinks(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return h.adminFlash(c, linksPath, flashError, "admin_upload_missing_file")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := h.api.UploadLinks(c.Request().Context(), fh.Filename, f, strings.TrimSpace(c.FormValue("batch_label")))
	if err != nil || !res.Succeeded() {
		var mr *apiclient.MutationResult
		if res != nil {
			mr = &res.MutationResult
		}
		return h.adminDone(c, linksPath, mr, err, "")
	}

	flashData(c, s, flashSuccess, "admin_links_uploaded", map[string]any{
		"Inserted":   res.Inserted,
		"Received":   res.Received,
		"Duplicates": res.Duplicates,
	})
	return seeOther(c, backTo(c, linksPath))
}

// UpdateLink replaces the URL of a link.
func (h *Handlers) UpdateLink(c echo.Context) error {
	linkURL := strings.TrimSpace(c.FormValue("link_url"))
	if linkURL == "" {
		return BadRequest(c, "link_url is required")
	}
	res, err := h.api.UpdateLink(c.Request().Context(), c.Param("id"), linkURL)
	return h.adminDone(c, linksPath, res, err, "admin_link_updated")
}

// DeleteLink removes a link from the pool.
func (h *Handlers) DeleteLink(c echo.Context) error {
	res, err := h.api.DeleteLink(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, linksPath, res, err, "admin_link_deleted")
}

// BulkDeleteLinks removes the selected links.
func (h *Handlers) BulkDeleteLinks(c echo.Context) error {
	ids, err := formValues(c, "ids")
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return h.adminFlash(c, linksPath, flashInfo, "admin_nothing_selected")
	}

	g, ctx := errgroup.WithContext(c.Request().Context())
	g.SetLimit(bulkDeleteLimit)
	for _, id := range ids {
		g.Go(func() error {
			res, err := h.api.DeleteLink(ctx, id)
			if err != nil {
				return err
			}
			if !res.Succeeded() {
				return &apiclient.APIError{Message: lo.CoalesceOrEmpty(res.Error, res.Message)}
			}
			return nil
		})
	}
	return h.adminDone(c, linksPath, nil, g.Wait(), "admin_link_deleted")
}

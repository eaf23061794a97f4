// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/auth"
	"codeberg.org/smsresearch/studyportal/internal/pagination"
	"codeberg.org/smsresearch/studyportal/internal/templates"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const giftCardsPath = "/admin-gift-cards"

// Gift card list filters. ALL is not sent to the backend.
var cardStatuses = []string{"ALL", "SENT", "DELIVERED", "REDEEMED", "EXPIRED"}

// Delivery methods accepted by the backend.
var deliveryMethods = []string{"SMS", "EMAIL", "BOTH"}

// GiftCards shows the pool, the participants waiting for a card and the
// issued cards.
func (h *Handlers) GiftCards(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	status := strings.ToUpper(c.QueryParam("status"))
	if !lo.Contains(cardStatuses, status) {
		status = cardStatuses[0]
	}
	poolPage := intParam(c.QueryParam("pool_page"), 1)
	cardsPage := intParam(c.QueryParam("page"), 1)
	logsFor := c.QueryParam("logs")

	var (
		pool      *apiclient.PoolStatus
		eligible  []apiclient.EligibleParticipant
		available *apiclient.Page[apiclient.PoolCard]
		cards     *apiclient.Page[apiclient.GiftCard]
		logs      []apiclient.DistributionLog
	)
	filter := apiclient.GiftCardFilter{Page: cardsPage - 1, Size: pagination.DefaultSize}
	if status != cardStatuses[0] {
		filter.Status = status
	}

	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) { pool, err = h.api.GiftCardPoolStatus(ctx); return })
	g.Go(func() (err error) { eligible, err = h.api.EligibleParticipants(ctx); return })
	g.Go(func() (err error) {
		available, err = h.api.AvailableGiftCards(ctx, poolPage-1, pagination.DefaultSize)
		return
	})
	g.Go(func() (err error) { cards, err = h.api.ListGiftCards(ctx, filter); return })
	if logsFor != "" {
		g.Go(func() (err error) { logs, err = h.api.GiftCardDistributionLogs(ctx, logsFor); return })
	}
	if err := g.Wait(); err != nil {
		if auth.Unauthorized(err) {
			return auth.Expire(c)
		}
		slog.WarnContext(c.Request().Context(), "gift card load failed", "error", err)
		flashErr(s, err)
	}

	return page(c, http.StatusOK, "admin/giftcards", map[string]any{
		"Pool":           pool,
		"Eligible":       eligible,
		"Available":      remotePage(available, poolPage),
		"AvailableQuery": url.Values{"status": {status}, "page": {strconv.Itoa(cardsPage)}}.Encode(),
		"Cards":          remotePage(cards, cardsPage),
		"CardsQuery":     url.Values{"status": {status}, "pool_page": {strconv.Itoa(poolPage)}}.Encode(),
		"Statuses":       cardStatuses,
		"Status":         status,
		"LogsFor":        logsFor,
		"Logs":           logs,
	})
}

// remotePage converts a backend page for the pager. A failed load yields an
// empty page.
func remotePage[T any](p *apiclient.Page[T], number int) pagination.Page[T] {
	if p == nil {
		return pagination.Remote([]T(nil), number, pagination.DefaultSize, 0)
	}
	return pagination.Remote(p.Content, p.Number+1, p.Size, int(p.TotalElements))
}

// AddGiftCard adds a single card to the pool.
func (h *Handlers) AddGiftCard(c echo.Context) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(c.FormValue("card_value")), 64)
	if err != nil || value < 0 {
		return h.adminFlash(c, giftCardsPath, flashError, "admin_card_value_invalid")
	}

	_, err = h.api.AddGiftCardToPool(c.Request().Context(), apiclient.NewPoolCard{
		CardCode:      strings.TrimSpace(c.FormValue("card_code")),
		CardType:      strings.TrimSpace(c.FormValue("card_type")),
		CardValue:     value,
		RedemptionURL: strings.TrimSpace(c.FormValue("redemption_url")),
		BatchLabel:    strings.TrimSpace(c.FormValue("batch_label")),
	})
	return h.adminDone(c, giftCardsPath, nil, err, "admin_card_added")
}

// UploadGiftCards forwards a file of card codes to the pool.
func (h *Handlers) UploadGiftCards(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return h.adminFlash(c, giftCardsPath, flashError, "admin_upload_missing_file")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := h.api.UploadGiftCards(c.Request().Context(), fh.Filename, f, strings.TrimSpace(c.FormValue("batch_label")))
	if err != nil || !res.Succeeded() {
		var mr *apiclient.MutationResult
		if res != nil {
			mr = &res.MutationResult
		}
		return h.adminDone(c, giftCardsPath, mr, err, "")
	}

	flashData(c, s, flashSuccess, "admin_cards_uploaded", map[string]any{
		"Inserted":   res.Inserted,
		"Received":   res.Received,
		"Duplicates": res.Duplicates,
	})
	return seeOther(c, backTo(c, giftCardsPath))
}

// SendGiftCards pairs every selected participant with the next available
// pool card and sends it.
func (h *Handlers) SendGiftCards(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	selected, err := formValues(c, "participants")
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return h.adminFlash(c, giftCardsPath, flashInfo, "admin_nothing_selected")
	}
	method := strings.ToUpper(c.FormValue("delivery_method"))
	if !lo.Contains(deliveryMethods, method) {
		method = deliveryMethods[0]
	}

	var (
		available *apiclient.Page[apiclient.PoolCard]
		eligible  []apiclient.EligibleParticipant
	)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) { available, err = h.api.AvailableGiftCards(ctx, 0, len(selected)); return })
	g.Go(func() (err error) { eligible, err = h.api.EligibleParticipants(ctx); return })
	if err := g.Wait(); err != nil {
		return h.adminDone(c, giftCardsPath, nil, err, "")
	}
	phones := lo.SliceToMap(eligible, func(p apiclient.EligibleParticipant) (string, string) {
		return p.ParticipantID, p.ParticipantPhone
	})

	ctx = c.Request().Context()
	sent, failed := 0, 0
	for i, value := range selected {
		participantID, invitationID, _ := strings.Cut(value, "|")
		if i >= len(available.Content) {
			flashData(c, s, flashError, "admin_no_cards_available", map[string]any{
				"Phone": templates.FormatPhone(lo.CoalesceOrEmpty(phones[participantID], participantID)),
			})
			failed += len(selected) - i
			break
		}

		req := apiclient.SendGiftCard{
			ParticipantID:  participantID,
			InvitationID:   invitationID,
			DeliveryMethod: method,
		}.FromPool(available.Content[i])
		if _, err := h.api.SendGiftCard(ctx, participantID, req); err != nil {
			if auth.Unauthorized(err) {
				return auth.Expire(c)
			}
			slog.WarnContext(ctx, "gift card send failed", "participant", participantID, "error", err)
			failed++
			continue
		}
		sent++
	}

	kind := flashSuccess
	if failed > 0 {
		kind = flashError
	}
	flashData(c, s, kind, "admin_cards_sent", map[string]any{"Sent": sent, "Failed": failed})
	return seeOther(c, backTo(c, giftCardsPath))
}

// DeletePoolCard removes an unassigned card from the pool.
func (h *Handlers) DeletePoolCard(c echo.Context) error {
	err := h.api.DeleteGiftCardFromPool(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, giftCardsPath, nil, err, "admin_card_deleted")
}

// SaveGiftCardNotes stores admin notes on an issued card.
func (h *Handlers) SaveGiftCardNotes(c echo.Context) error {
	err := h.api.AddGiftCardNotes(c.Request().Context(), c.Param("id"), strings.TrimSpace(c.FormValue("notes")))
	return h.adminDone(c, giftCardsPath, nil, err, "admin_notes_saved")
}

// ResendGiftCard delivers an issued card again.
func (h *Handlers) ResendGiftCard(c echo.Context) error {
	err := h.api.ResendGiftCard(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, giftCardsPath, nil, err, "admin_card_resent")
}

// DeleteGiftCard removes an issued card.
func (h *Handlers) DeleteGiftCard(c echo.Context) error {
	err := h.api.DeleteGiftCard(c.Request().Context(), c.Param("id"))
	return h.adminDone(c, giftCardsPath, nil, err, "admin_card_deleted")
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apiclient

import (
	"context"
	"io"
	"net/url"
	"time"
)

const giftCardsPath = "/api/admin/gift-cards"

// PoolStatus summarises the gift card pool.
type PoolStatus struct {
	TotalCards     int64            `json:"totalCards"`
	AvailableCards int64            `json:"availableCards"`
	AssignedCards  int64            `json:"assignedCards"`
	ExpiredCards   int64            `json:"expiredCards"`
	InvalidCards   int64            `json:"invalidCards"`
	CardsByType    map[string]int64 `json:"cardsByType,omitempty"`
	CardsByBatch   map[string]int64 `json:"cardsByBatch,omitempty"`
}

// PoolCard is a gift card code waiting in the pool.
type PoolCard struct {
	ID                     string     `json:"id"`
	CardCode               string     `json:"cardCode"`
	CardType               string     `json:"cardType"`
	CardValue              float64    `json:"cardValue"`
	RedemptionURL          string     `json:"redemptionUrl,omitempty"`
	RedemptionInstructions string     `json:"redemptionInstructions,omitempty"`
	Status                 string     `json:"status"`
	BatchLabel             string     `json:"batchLabel,omitempty"`
	UploadedBy             string     `json:"uploadedBy,omitempty"`
	UploadedAt             *time.Time `json:"uploadedAt,omitempty"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	AssignedAt             *time.Time `json:"assignedAt,omitempty"`
}

// GiftCard is a gift card issued to a participant.
type GiftCard struct {
	ID                     string     `json:"id"`
	ParticipantID          string     `json:"participantId"`
	ParticipantName        string     `json:"participantName,omitempty"`
	ParticipantPhone       string     `json:"participantPhone,omitempty"`
	ParticipantEmail       string     `json:"participantEmail,omitempty"`
	InvitationID           string     `json:"invitationId,omitempty"`
	CardCode               string     `json:"cardCode"`
	CardType               string     `json:"cardType"`
	CardValue              float64    `json:"cardValue"`
	RedemptionURL          string     `json:"redemptionUrl,omitempty"`
	RedemptionInstructions string     `json:"redemptionInstructions,omitempty"`
	Status                 string     `json:"status"`
	SentBy                 string     `json:"sentBy,omitempty"`
	SentAt                 *time.Time `json:"sentAt,omitempty"`
	DeliveredAt            *time.Time `json:"deliveredAt,omitempty"`
	RedeemedAt             *time.Time `json:"redeemedAt,omitempty"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
	Source                 string     `json:"source,omitempty"`
	CreatedAt              *time.Time `json:"createdAt,omitempty"`
}

// EligibleParticipant completed the survey and has no gift card yet.
type EligibleParticipant struct {
	ParticipantID         string     `json:"participantId"`
	ParticipantName       string     `json:"participantName,omitempty"`
	ParticipantPhone      string     `json:"participantPhone,omitempty"`
	ParticipantEmail      string     `json:"participantEmail,omitempty"`
	InvitationID          string     `json:"invitationId"`
	SurveyLinkURL         string     `json:"surveyLinkUrl,omitempty"`
	SurveyCompletedAt     *time.Time `json:"surveyCompletedAt,omitempty"`
	ParticipantVerifiedAt *time.Time `json:"participantVerifiedAt,omitempty"`
}

// DistributionLog is one audit entry for a gift card.
type DistributionLog struct {
	ID          string         `json:"id"`
	GiftCardID  string         `json:"giftCardId"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performedBy,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
}

// NewPoolCard is the payload for adding a single card to the pool.
type NewPoolCard struct {
	CardCode               string     `json:"cardCode"`
	CardType               string     `json:"cardType"`
	CardValue              float64    `json:"cardValue"`
	RedemptionURL          string     `json:"redemptionUrl,omitempty"`
	RedemptionInstructions string     `json:"redemptionInstructions,omitempty"`
	BatchLabel             string     `json:"batchLabel,omitempty"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
}

// SendGiftCard is the payload for sending a gift card to a participant.
type SendGiftCard struct {
	ParticipantID          string  `json:"participantId"`
	InvitationID           string  `json:"invitationId"`
	CardCode               string  `json:"cardCode,omitempty"`
	CardType               string  `json:"cardType,omitempty"`
	CardValue              float64 `json:"cardValue,omitempty"`
	RedemptionURL          string  `json:"redemptionUrl,omitempty"`
	RedemptionInstructions string  `json:"redemptionInstructions,omitempty"`
	DeliveryMethod         string  `json:"deliveryMethod"`
	Source                 string  `json:"source"`
	PoolID                 string  `json:"poolId,omitempty"`
	Notes                  string  `json:"notes,omitempty"`
}

// FromPool fills the card fields of req from a pool card.
func (req SendGiftCard) FromPool(card PoolCard) SendGiftCard {
	req.CardCode = card.CardCode
	req.CardType = card.CardType
	req.CardValue = card.CardValue
	req.RedemptionURL = card.RedemptionURL
	req.RedemptionInstructions = card.RedemptionInstructions
	req.Source = "POOL"
	req.PoolID = card.ID
	return req
}

// GiftCardFilter narrows the gift card list. Empty fields are not sent.
type GiftCardFilter struct {
	Status string
	Page   int
	Size   int
}

func (f GiftCardFilter) values() url.Values {
	params := pageParams(f.Page, f.Size)
	if f.Status != "" {
		params.Set("status", f.Status)
	}
	return params
}

// GiftCardPoolStatus fetches pool counters.
func (c *Client) GiftCardPoolStatus(ctx context.Context) (*PoolStatus, error) {
	var res PoolStatus
	if err := c.Get(ctx, giftCardsPath+"/pool/status", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AvailableGiftCards fetches a page of unassigned pool cards.
func (c *Client) AvailableGiftCards(ctx context.Context, page, size int) (*Page[PoolCard], error) {
	var res Page[PoolCard]
	if err := c.Get(ctx, giftCardsPath+"/pool/available?"+pageParams(page, size).Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EligibleParticipants lists participants waiting for a gift card.
func (c *Client) EligibleParticipants(ctx context.Context) ([]EligibleParticipant, error) {
	var res []EligibleParticipant
	if err := c.Get(ctx, giftCardsPath+"/eligible", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// ListGiftCards fetches a page of issued gift cards.
func (c *Client) ListGiftCards(ctx context.Context, f GiftCardFilter) (*Page[GiftCard], error) {
	var res Page[GiftCard]
	if err := c.Get(ctx, giftCardsPath+"?"+f.values().Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AddGiftCardToPool adds a single card to the pool.
func (c *Client) AddGiftCardToPool(ctx context.Context, card NewPoolCard) (*PoolCard, error) {
	var res PoolCard
	if err := c.Post(ctx, giftCardsPath+"/pool/add", card, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadGiftCards forwards a file of card codes to the pool.
func (c *Client) UploadGiftCards(ctx context.Context, filename string, r io.Reader, batchLabel string) (*UploadResult, error) {
	var res UploadResult
	fields := map[string]string{"batchLabel": batchLabel}
	if err := c.PostFile(ctx, giftCardsPath+"/pool/upload", "file", filename, r, fields, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendGiftCard sends a gift card to participantID.
func (c *Client) SendGiftCard(ctx context.Context, participantID string, req SendGiftCard) (*GiftCard, error) {
	var res GiftCard
	if err := c.Post(ctx, giftCardsPath+"/send/"+escapeSegment(participantID), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResendGiftCard re-delivers gift card id.
func (c *Client) ResendGiftCard(ctx context.Context, id string) error {
	return c.Post(ctx, giftCardsPath+"/"+escapeSegment(id)+"/resend", nil, nil)
}

// AddGiftCardNotes attaches admin notes to gift card id.
func (c *Client) AddGiftCardNotes(ctx context.Context, id, notes string) error {
	return c.Post(ctx, giftCardsPath+"/"+escapeSegment(id)+"/notes", map[string]string{"notes": notes}, nil)
}

// DeleteGiftCardFromPool removes an unassigned card from the pool.
func (c *Client) DeleteGiftCardFromPool(ctx context.Context, poolID string) error {
	return c.Delete(ctx, giftCardsPath+"/pool/"+escapeSegment(poolID), nil)
}

// DeleteGiftCard removes an issued gift card.
func (c *Client) DeleteGiftCard(ctx context.Context, id string) error {
	return c.Delete(ctx, giftCardsPath+"/"+escapeSegment(id), nil)
}

// GiftCardDistributionLogs fetches the audit trail of gift card id.
func (c *Client) GiftCardDistributionLogs(ctx context.Context, id string) ([]DistributionLog, error) {
	var res []DistributionLog
	if err := c.Get(ctx, giftCardsPath+"/"+escapeSegment(id)+"/logs", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// fetchAllSize is the page size used when fetching complete lists.
const fetchAllSize = 200

// Page is a backend page of results.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// LoginResult is the response of the admin login endpoint.
type LoginResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Stats summarises verifications and link inventory.
type Stats struct {
	TotalVerifications int64 `json:"totalVerifications"`
	TotalLinks         int64 `json:"totalLinks"`
	UsedLinks          int64 `json:"usedLinks"`
	AvailableLinks     int64 `json:"availableLinks"`
}

// LinkRef identifies the survey link attached to an invitation.
type LinkRef struct {
	ID string `json:"id"`
}

// Invitation is one issued survey invitation.
type Invitation struct {
	ID            string      `json:"id"`
	Participant   Participant `json:"participant"`
	Link          *LinkRef    `json:"link,omitempty"`
	LinkURL       string      `json:"linkUrl,omitempty"`
	ShortLinkURL  string      `json:"shortLinkUrl,omitempty"`
	MessageStatus string      `json:"messageStatus,omitempty"`
	QueuedAt      *time.Time  `json:"queuedAt,omitempty"`
	SentAt        *time.Time  `json:"sentAt,omitempty"`
	DeliveredAt   *time.Time  `json:"deliveredAt,omitempty"`
	FailedAt      *time.Time  `json:"failedAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// Completed reports whether the participant finished the survey.
func (i Invitation) Completed() bool {
	return i.CompletedAt != nil
}

// Link statuses reported by the backend.
const (
	LinkAvailable = "AVAILABLE"
	LinkClaimed   = "CLAIMED"
)

// Link is a survey link in the pool.
type Link struct {
	ID         string     `json:"id"`
	BatchLabel string     `json:"batchLabel,omitempty"`
	LinkURL    string     `json:"linkUrl"`
	Notes      string     `json:"notes,omitempty"`
	Status     string     `json:"status"`
	UploadedBy string     `json:"uploadedBy,omitempty"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// Used reports whether the link has been handed out.
func (l Link) Used() bool {
	return l.Status != LinkAvailable
}

// MutationResult is the common shape of admin mutation responses.
type MutationResult struct {
	Success bool   `json:"success"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded reports whether the backend accepted the mutation.
func (r MutationResult) Succeeded() bool {
	return (r.Success || r.OK) && r.Error == ""
}

// UploadResult is the response of the link CSV upload.
type UploadResult struct {
	MutationResult
	Received      int      `json:"received"`
	Inserted      int      `json:"inserted"`
	Duplicates    int      `json:"duplicates"`
	DuplicateURLs []string `json:"duplicateUrls,omitempty"`
}

// InvitationQuery filters the invitation list.
type InvitationQuery struct {
	Status string
	Phone  string
	Page   int
	Size   int
}

// UserUpdate holds the editable participant fields. Empty fields are omitted.
type UserUpdate struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
}

// AdminLogin exchanges credentials for a bearer token.
func (c *Client) AdminLogin(ctx context.Context, username, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.Post(ctx, "/api/admin/login", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats fetches the dashboard counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var res Stats
	if err := c.Get(ctx, "/api/admin/stats", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListInvitations fetches a page of invitations.
func (c *Client) ListInvitations(ctx context.Context, q InvitationQuery) (*Page[Invitation], error) {
	params := pageParams(q.Page, q.Size)
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Phone != "" {
		params.Set("phone", q.Phone)
	}

	var res Page[Invitation]
	if err := c.Get(ctx, "/api/admin/invitations?"+params.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListLinks fetches a page of survey links, optionally filtered by status.
func (c *Client) ListLinks(ctx context.Context, status string, page, size int) (*Page[Link], error) {
	params := pageParams(page, size)
	if status != "" {
		params.Set("status", status)
	}

	var res Page[Link]
	if err := c.Get(ctx, "/api/admin/links?"+params.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AllInvitations fetches every invitation, page by page.
func (c *Client) AllInvitations(ctx context.Context) ([]Invitation, error) {
	return fetchAll(ctx, func(ctx context.Context, page int) (*Page[Invitation], error) {
		return c.ListInvitations(ctx, InvitationQuery{Page: page, Size: fetchAllSize})
	})
}

// AllLinks fetches every survey link with status, or all links when status is empty.
func (c *Client) AllLinks(ctx context.Context, status string) ([]Link, error) {
	return fetchAll(ctx, func(ctx context.Context, page int) (*Page[Link], error) {
		return c.ListLinks(ctx, status, page, fetchAllSize)
	})
}

// VerifiedWithoutInvitations lists verified participants that never received a link.
func (c *Client) VerifiedWithoutInvitations(ctx context.Context, page, size int) (*Page[Participant], error) {
	var res Page[Participant]
	endpoint := "/api/admin/participants/verified-without-invitations?" + pageParams(page, size).Encode()
	if err := c.Get(ctx, endpoint, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// fetchAll loads the first page, then the remaining pages concurrently, and
// returns all items in page order.
func fetchAll[T any](ctx context.Context, fetch func(context.Context, int) (*Page[T], error)) ([]T, error) {
	first, err := fetch(ctx, 0)
	if err != nil {
		return nil, err
	}
	if first.TotalPages <= 1 {
		return first.Content, nil
	}

	pages := make([][]T, first.TotalPages)
	pages[0] = first.Content

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for n := 1; n < first.TotalPages; n++ {
		g.Go(func() error {
			p, err := fetch(gctx, n)
			if err != nil {
				return err
			}
			mu.Lock()
			pages[n] = p.Content
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []T
	for _, p := range pages {
		all = append(all, p...)
	}
	return all, nil
}

// UpdateUser edits the participant behind invitation id.
func (c *Client) UpdateUser(ctx context.Context, id string, u UserUpdate) (*MutationResult, error) {
	var res MutationResult
	if err := c.Put(ctx, "/api/admin/update-user/"+escapeSegment(id), u, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteUser removes the participant behind invitation id.
func (c *Client) DeleteUser(ctx context.Context, id string) (*MutationResult, error) {
	var res MutationResult
	if err := c.Delete(ctx, "/api/admin/delete-user/"+escapeSegment(id), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateLink replaces the URL of link id.
func (c *Client) UpdateLink(ctx context.Context, id, linkURL string) (*MutationResult, error) {
	var res MutationResult
	body := map[string]string{"link": linkURL}
	if err := c.Put(ctx, "/api/admin/update-link/"+escapeSegment(id), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteLink removes link id from the pool.
func (c *Client) DeleteLink(ctx context.Context, id string) (*MutationResult, error) {
	var res MutationResult
	if err := c.Delete(ctx, "/api/admin/delete-link/"+escapeSegment(id), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadLinks forwards a CSV file of survey links. Parsing happens server-side.
func (c *Client) UploadLinks(ctx context.Context, filename string, r io.Reader, batchLabel string) (*UploadResult, error) {
	var res UploadResult
	fields := map[string]string{"batchLabel": batchLabel}
	if err := c.PostFile(ctx, "/api/admin/upload-links", "file", filename, r, fields, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendInvitationWithLink assigns link linkID to phone and sends it.
func (c *Client) SendInvitationWithLink(ctx context.Context, phone, linkID string) (*MutationResult, error) {
	var res MutationResult
	body := map[string]string{"phone": NormalizePhone(phone), "linkId": linkID}
	if err := c.Post(ctx, "/api/admin/invitations/send-with-link", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MarkSurveyCompleted flags invitation id as completed.
func (c *Client) MarkSurveyCompleted(ctx context.Context, id string) error {
	return c.Post(ctx, "/api/admin/invitations/"+escapeSegment(id)+"/complete", nil, nil)
}

// MarkSurveyUncompleted clears the completed flag of invitation id.
func (c *Client) MarkSurveyUncompleted(ctx context.Context, id string) error {
	return c.Post(ctx, "/api/admin/invitations/"+escapeSegment(id)+"/uncomplete", nil, nil)
}

// BulkMarkSurveysCompleted flags all ids as completed.
func (c *Client) BulkMarkSurveysCompleted(ctx context.Context, ids []string) error {
	return c.Post(ctx, "/api/admin/invitations/bulk-complete", ids, nil)
}

// BulkMarkSurveysUncompleted clears the completed flag of all ids.
func (c *Client) BulkMarkSurveysUncompleted(ctx context.Context, ids []string) error {
	return c.Post(ctx, "/api/admin/invitations/bulk-uncomplete", ids, nil)
}

// EnrollmentConfig is the study enrollment configuration.
type EnrollmentConfig struct {
	ID                 string     `json:"id,omitempty"`
	MaxParticipants    *int       `json:"maxParticipants"`
	IsEnrollmentActive bool       `json:"isEnrollmentActive"`
	UpdatedBy          string     `json:"updatedBy,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
	CurrentCount       int        `json:"currentCount"`
	RemainingSpots     int        `json:"remainingSpots"`
	Status             string     `json:"status,omitempty"`
}

// EnrollmentUpdate changes the enrollment configuration. A nil
// MaxParticipants means unlimited.
type EnrollmentUpdate struct {
	MaxParticipants    *int `json:"maxParticipants"`
	IsEnrollmentActive bool `json:"isEnrollmentActive"`
}

// EnrollmentConfig fetches the enrollment configuration.
func (c *Client) EnrollmentConfig(ctx context.Context) (*EnrollmentConfig, error) {
	var res EnrollmentConfig
	if err := c.Get(ctx, "/api/admin/enrollment/config", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateEnrollmentConfig stores a new enrollment configuration.
func (c *Client) UpdateEnrollmentConfig(ctx context.Context, u EnrollmentUpdate) (*EnrollmentConfig, error) {
	var res EnrollmentConfig
	if err := c.Put(ctx, "/api/admin/enrollment/config", u, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PostFile uploads r as a multipart form file together with extra fields.
func (c *Client) PostFile(ctx context.Context, endpoint, field, filename string, r io.Reader, fields map[string]string, out any, opts ...RequestOption) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("copying upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(endpoint), &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	return c.send(ctx, req, endpoint, out, opts)
}

func pageParams(page, size int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 0)))
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}
	return params
}

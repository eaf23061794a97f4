// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apiclient is the typed HTTP client for the study backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AdminPrefix marks endpoints that carry the admin bearer token.
const AdminPrefix = "/api/admin/"

// DefaultTimeout is the HTTP timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// APIError is returned for any non-2xx response.
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusOf returns the HTTP status carried by err, or 0 if err is not an *APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks JSON to the study backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client resolving endpoints against baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the absolute URL for endpoint.
func (c *Client) URL(endpoint string) string {
	return c.baseURL + endpoint
}

// RequestOption adjusts a single outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets an extra header on the request.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out, opts)
}

// Post issues a POST request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out, opts)
}

// Put issues a PUT request with body encoded as JSON.
func (c *Client) Put(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPut, endpoint, body, out, opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, out, opts)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any, opts []RequestOption) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(endpoint), reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.send(ctx, req, endpoint, out, opts)
}

// send applies per-request options and the admin token, executes the request
// and interprets the response.
func (c *Client) send(ctx context.Context, req *http.Request, endpoint string, out any, opts []RequestOption) error {
	for _, o := range opts {
		o(req)
	}
	if strings.HasPrefix(endpoint, AdminPrefix) {
		if token := TokenFromContext(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "api request failed", "method", req.Method, "path", endpoint, "error", err)
		return fmt.Errorf("%s %s: %w", req.Method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	slog.DebugContext(ctx, "api request",
		"method", req.Method,
		"path", endpoint,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	return handleResponse(resp, out)
}

// errorBody is the subset of an error response the client understands.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func handleResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	data = bytes.TrimSpace(data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if len(data) > 0 {
			_ = json.Unmarshal(data, &eb)
		}
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, eb)}
	}

	if len(data) == 0 {
		return nil
	}
	if out == nil {
		if !json.Valid(data) {
			return errors.New("malformed JSON response")
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func errorMessage(status int, eb errorBody) string {
	switch {
	case eb.Error != "":
		return eb.Error
	case eb.Message != "":
		return eb.Message
	case status == http.StatusForbidden:
		return "Access denied. Please check your permissions."
	case status == http.StatusBadRequest:
		return "Invalid request. Please check your input."
	case status == http.StatusNotFound:
		return "Resource not found."
	case status >= 500:
		return "Server error. Please try again later."
	default:
		return "An error occurred"
	}
}

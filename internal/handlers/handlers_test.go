// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/handlers"
	"codeberg.org/smsresearch/studyportal/internal/i18n"
	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"codeberg.org/smsresearch/studyportal/internal/screening"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"codeberg.org/smsresearch/studyportal/internal/sse"
	"codeberg.org/smsresearch/studyportal/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func init() {
	// Initialize i18n for template rendering
	_ = i18n.Init()
}

// fakeAPI is a scripted study backend. Routes are keyed "METHOD /path";
// unknown routes answer 404.
type fakeAPI struct {
	url string

	mu     sync.Mutex
	routes map[string]reply
	calls  map[string][]string
}

type reply struct {
	status int
	body   any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{routes: map[string]reply{}, calls: map[string][]string{}}
	f.on("GET /api/enrollment/status", http.StatusOK, apiclient.EnrollmentStatus{EnrollmentActive: true})

	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	f.url = srv.URL
	return f
}

func (f *fakeAPI) on(route string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = reply{status: status, body: body}
}

// bodies returns the request bodies received on route.
func (f *fakeAPI) bodies(route string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	route := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.calls[route] = append(f.calls[route], string(body))
	rep, ok := f.routes[route]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_ = json.NewEncoder(w).Encode(rep.body)
}

type fakeMailer struct {
	mu    sync.Mutex
	err   error
	calls [][2]string
}

func (m *fakeMailer) SendSupportNotice(_ context.Context, phone, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, [2]string{phone, email})
	return m.err
}

type testEnv struct {
	e      *echo.Echo
	h      *handlers.Handlers
	api    *fakeAPI
	flows  *otpflow.Registry
	hub    *sse.Hub
	mailer *fakeMailer
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	api := newFakeAPI(t)
	client := apiclient.New(api.url)
	clock := testutil.NewFakeClock()
	hub := sse.NewHub()
	flows := otpflow.NewRegistry(client,
		otpflow.WithRegistryClock(clock),
		otpflow.WithNotifier(handlers.FlowNotifier(hub)),
	)
	t.Cleanup(flows.CloseAll)

	_, repo := testutil.NewTestDB(t)
	sessions, err := session.NewManager(&config.SessionConfig{
		CookieName: "_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
	}, repo, false)
	require.NoError(t, err)

	mailer := &fakeMailer{}
	e := echo.New()
	e.HTTPErrorHandler = handlers.ErrorHandler

	return &testEnv{
		e: e,
		h: handlers.New(handlers.Deps{
			API:       client,
			Screening: screening.NewService(client),
			Flows:     flows,
			Hub:       hub,
			Sessions:  sessions,
			Mailer:    mailer,
		}),
		api:    api,
		flows:  flows,
		hub:    hub,
		mailer: mailer,
	}
}

// serve runs handler for req with s as the request session. An optional id
// fills the :id route parameter.
func (env *testEnv) serve(t *testing.T, s *session.Session, req *http.Request, handler echo.HandlerFunc, id ...string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if len(id) > 0 {
		c.SetParamNames("id")
		c.SetParamValues(id[0])
	}
	if s != nil {
		session.WithSession(c, s)
	}
	require.NoError(t, handler(c))
	return rec
}

func get(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func post(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

// partial marks req as a fragment request for the verify panel.
func partial(req *http.Request) *http.Request {
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "verify-panel")
	return req
}

// flashIDs returns the IDs, or texts for verbatim notices, of the queued flashes.
func flashIDs(s *session.Session) []string {
	var out []string
	for _, f := range s.Data().Flashes {
		if f.ID != "" {
			out = append(out, f.ID)
		} else {
			out = append(out, f.Text)
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newEnv(t)

	rec := env.serve(t, nil, get("/health"), env.h.Health)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","flows":0,"events":0,"event_sessions":0,"events_dropped":0}`, rec.Body.String())
}

func TestHealth_ReportsEventStreams(t *testing.T) {
	env := newEnv(t)
	_, leaveA := env.hub.Subscribe("a")
	defer leaveA()
	_, leaveB := env.hub.Subscribe("a")
	defer leaveB()
	_, leaveC := env.hub.Subscribe("b")
	defer leaveC()
	for range 12 {
		env.hub.Publish("b", sse.Event{Name: "tick", Data: "{}"})
	}

	rec := env.serve(t, nil, get("/health"), env.h.Health)

	assert.JSONEq(t, `{"status":"ok","flows":0,"events":3,"event_sessions":2,"events_dropped":2}`, rec.Body.String())
}

func TestFlowNotifier(t *testing.T) {
	hub := sse.NewHub()
	events, leave := hub.Subscribe("sid")
	defer leave()
	notify := handlers.FlowNotifier(hub)

	notify("sid", otpflow.Event{Type: otpflow.EventTick, Remaining: 42})
	notify("sid", otpflow.Event{Type: otpflow.EventResendReady})
	notify("other", otpflow.Event{Type: otpflow.EventTick, Remaining: 1})

	assert.Equal(t, "event: tick\ndata: {\"remaining\":42}\n\n", (<-events).String())
	assert.Equal(t, "event: resend_ready\ndata: {}\n\n", (<-events).String())
	assert.Empty(t, events)
}

func TestEvents_StreamsSessionEvents(t *testing.T) {
	env := newEnv(t)
	s := session.New("sid", session.Data{})

	req := get("/verify/events")
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	session.WithSession(c, s)

	done := make(chan error, 1)
	go func() { done <- env.h.Events(c) }()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	env.hub.Publish("sid", sse.Event{Name: "tick", Data: `{"remaining":5}`})
	env.hub.Publish("sid", sse.Event{Name: "resend_ready", Data: `{}`})
	env.hub.CloseSession("sid")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("event stream did not stop")
	}

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, body, "event: connected\nretry: 2000\n")
	assert.Contains(t, body, `data: {"remaining":5}`)
	assert.Contains(t, body, "event: resend_ready")
	assert.Zero(t, env.hub.ClientCount())
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		err        error
		wantStatus int
		wantBody   []string
		hidden     string
	}{
		{
			name:       "not found",
			method:     http.MethodGet,
			err:        echo.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantBody:   []string{"Page not found."},
		},
		{
			name:       "client error with message",
			method:     http.MethodPost,
			err:        echo.NewHTTPError(http.StatusBadRequest, "link_url is required"),
			wantStatus: http.StatusBadRequest,
			wantBody:   []string{"link_url is required"},
		},
		{
			name:       "rate limited",
			method:     http.MethodPost,
			err:        echo.NewHTTPError(http.StatusTooManyRequests),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   []string{"Too many attempts."},
			hidden:     "Too Many Requests",
		},
		{
			name:       "internal error hides details",
			method:     http.MethodGet,
			err:        errors.New("database password wrong"),
			wantStatus: http.StatusInternalServerError,
			hidden:     "database password wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(tt.method, "/x", nil), rec)

			handlers.ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, rec.Body.String(), want)
			}
			if tt.hidden != "" {
				assert.NotContains(t, rec.Body.String(), tt.hidden)
			}
		})
	}
}

func TestErrorHandler_Head(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/missing", nil), rec)

	handlers.ErrorHandler(echo.ErrNotFound, c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorHandler_Committed(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, c.String(http.StatusOK, "partial"))

	handlers.ErrorHandler(errors.New("late"), c)

	assert.Equal(t, "partial", rec.Body.String())
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ball-and-four/newwons/schedule"
	"github.com/ball-and-four/newwons/storage"
	"github.com/ball-and-four/newwons/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	handler *Handler
}

func newTestServer(docs storage.DocumentStore) *testServer {
	colors := schedule.NewColorAssignments(schedule.NewColorDirectory(docs), nil)
	store := schedule.NewEventStore(docs, time.UTC, nil)
	cache := schedule.NewEventCache(store, nil)
	ctrl := schedule.NewController(store, cache)
	refresher := schedule.NewRefresher(colors, cache, time.UTC, nil)

	h := NewHandler(colors, cache, ctrl, refresher, time.UTC, nil)
	h.Now = func() time.Time { return time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) }
	return &testServer{router: NewRouter(h), handler: h}
}

// do sends a request as bob@x.com unless email is overridden with "".
func (s *testServer) do(t *testing.T, method, path, body string, email ...string) *httptest.ResponseRecorder {
	t.Helper()
	addr := "bob@x.com"
	if len(email) > 0 {
		addr = email[0]
	}
	return s.doAs(t, method, path, body, addr, "Bob")
}

// doAs sends a request with the given identity headers; empty values are omitted.
func (s *testServer) doAs(t *testing.T, method, path, body, email, name string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set(HeaderEmail, email)
	}
	if name != "" {
		req.Header.Set(HeaderName, name)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) onboard(t *testing.T, color string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/onboarding/color", `{"color":"`+color+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(memory.New())

	w := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestOnboarding(t *testing.T) {
	s := newTestServer(memory.New())

	w := s.do(t, http.MethodGet, "/api/onboarding", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/onboarding", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "needs_color", decode[map[string]any](t, w)["state"])

	w = s.do(t, http.MethodPost, "/api/onboarding/color", `{"color":"not a color"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/onboarding/color", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/onboarding/color", `{"color":"#ff0000"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, "#ff0000", body["color"])

	w = s.do(t, http.MethodGet, "/api/onboarding", "")
	assert.Equal(t, "ready", decode[map[string]any](t, w)["state"])
}

func TestOnboarding_DirectoryUnavailable(t *testing.T) {
	docs := &storage.MockDocumentStore{}
	docs.On("Get", mock.Anything, "userColors", "list").Return(nil, storage.ErrStorageUnavailable)
	s := newTestServer(docs)

	w := s.do(t, http.MethodGet, "/api/onboarding", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = s.do(t, http.MethodPost, "/api/onboarding/color", `{"color":"#ff0000"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	docs.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMutationsRequireColor(t *testing.T) {
	s := newTestServer(memory.New())

	w := s.do(t, http.MethodPost, "/api/events", `{"title":"x","start":"2024-01-01T09:00","end":"2024-01-01T10:00"}`)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	w = s.do(t, http.MethodDelete, "/api/events/e1?confirm=true", "", "")
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	w = s.do(t, http.MethodGet, "/api/events", "", "")
	assert.Equal(t, http.StatusOK, w.Code, "reading needs no color")
}

type eventsBody struct {
	Events []struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		Start           string `json:"start"`
		BackgroundColor string `json:"backgroundColor"`
	} `json:"events"`
	Stale bool `json:"stale"`
}

func TestEventLifecycle(t *testing.T) {
	s := newTestServer(memory.New())
	s.onboard(t, "#ff0000")

	w := s.do(t, http.MethodPost, "/api/events", `{"title":"Standup","start":"2024-01-01T09:00","end":"2024-01-01T09:30"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	id := created["id"].(string)
	assert.Equal(t, "#ff0000", created["backgroundColor"])
	assert.Equal(t, "bob@x.com", created["authorEmail"])
	s.handler.Controller.Wait()

	w = s.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[eventsBody](t, w)
	require.Len(t, list.Events, 1)
	assert.Equal(t, "Standup", list.Events[0].Title)
	assert.Equal(t, "#ff0000", list.Events[0].BackgroundColor)

	w = s.do(t, http.MethodPatch, "/api/events/"+id+"/move", `{"start":"2024-01-01T12:00","end":"2024-01-01T11:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "inverted move")

	w = s.do(t, http.MethodPatch, "/api/events/"+id+"/move", `{"start":"2024-01-01T12:00","end":"2024-01-01T12:30"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = s.do(t, http.MethodPatch, "/api/events/"+id+"/resize", `{"start":"2024-01-01T12:00","end":"2024-01-01T13:00"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	s.handler.Controller.Wait()

	list = decode[eventsBody](t, s.do(t, http.MethodGet, "/api/events", ""))
	require.Len(t, list.Events, 1)
	start, err := time.Parse(time.RFC3339, list.Events[0].Start)
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))

	w = s.do(t, http.MethodDelete, "/api/events/"+id, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "unconfirmed delete")

	w = s.do(t, http.MethodDelete, "/api/events/"+id+"?confirm=true", "")
	assert.Equal(t, http.StatusOK, w.Code)

	list = decode[eventsBody](t, s.do(t, http.MethodGet, "/api/events", ""))
	assert.Empty(t, list.Events)
}

func TestCreateEvent_BadInput(t *testing.T) {
	s := newTestServer(memory.New())
	s.onboard(t, "teal")

	tests := []struct {
		name string
		body string
	}{
		{name: "empty title", body: `{"title":"","start":"2024-01-01T09:00","end":"2024-01-01T10:00"}`},
		{name: "inverted range", body: `{"title":"x","start":"2024-01-01T10:00","end":"2024-01-01T09:00"}`},
		{name: "unparseable start", body: `{"title":"x","start":"tomorrow","end":"2024-01-01T09:00"}`},
		{name: "missing end", body: `{"title":"x","start":"2024-01-01T09:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, s.handler.Cache.Len())
}

func TestListEvents_WeekendFilter(t *testing.T) {
	s := newTestServer(memory.New())
	s.onboard(t, "teal")

	// 2024-01-06 is a Saturday
	for _, body := range []string{
		`{"title":"weekday","start":"2024-01-05T09:00","end":"2024-01-05T10:00"}`,
		`{"title":"saturday","start":"2024-01-06","end":"2024-01-07","allDay":true}`,
		`{"title":"long weekend","start":"2024-01-06T09:00","end":"2024-01-08T09:00"}`,
	} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/events", body).Code)
	}
	s.handler.Controller.Wait()

	all := decode[eventsBody](t, s.do(t, http.MethodGet, "/api/events", ""))
	assert.Len(t, all.Events, 3)

	weekdays := decode[eventsBody](t, s.do(t, http.MethodGet, "/api/events?weekends=false", ""))
	var titles []string
	for _, ev := range weekdays.Events {
		titles = append(titles, ev.Title)
	}
	assert.ElementsMatch(t, []string{"weekday", "long weekend"}, titles)
}

func TestListEvents_StaleOnStoreFailure(t *testing.T) {
	docs := &storage.MockDocumentStore{}
	docs.On("Get", mock.Anything, "userColors", "list").Return(nil, storage.ErrStorageUnavailable)
	s := newTestServer(docs)

	w := s.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[eventsBody](t, w)
	assert.True(t, body.Stale)
	assert.Empty(t, body.Events)
}

func TestExportICS(t *testing.T) {
	s := newTestServer(memory.New())

	w := s.do(t, http.MethodGet, "/api/calendar.ics", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	s.onboard(t, "#ff0000")
	require.Equal(t, http.StatusCreated,
		s.do(t, http.MethodPost, "/api/events", `{"title":"Standup","start":"2024-01-01T09:00","end":"2024-01-01T09:30"}`).Code)
	s.handler.Controller.Wait()

	w = s.do(t, http.MethodGet, "/api/calendar.ics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/calendar"))
	out := w.Body.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "SUMMARY:Standup")
	assert.Contains(t, out, "COLOR:#ff0000")
}

func TestOnboarding_ColorTaken(t *testing.T) {
	s := newTestServer(memory.New())
	s.onboard(t, "#ff0000")

	w := s.do(t, http.MethodPost, "/api/onboarding/color", `{"color":"#FF0000"}`, "alice@x.com")
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/onboarding", "", "alice@x.com")
	assert.Equal(t, "needs_color", decode[map[string]any](t, w)["state"])

	w = s.do(t, http.MethodPost, "/api/onboarding/color", `{"color":"teal"}`, "alice@x.com")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateEvent_UsesCurrentDisplayName(t *testing.T) {
	s := newTestServer(memory.New())
	s.onboard(t, "#ff0000")

	w := s.doAs(t, http.MethodPost, "/api/events",
		`{"title":"Standup","start":"2024-01-01T09:00","end":"2024-01-01T09:30"}`, "bob@x.com", "Robert")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "Robert", created["author"])
	assert.Equal(t, "#ff0000", created["backgroundColor"])
	s.handler.Controller.Wait()
}

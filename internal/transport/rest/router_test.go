package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingsurvey/internal/cache"
	"readingsurvey/internal/logger"
	"readingsurvey/internal/model"
	"readingsurvey/internal/service"
	"readingsurvey/internal/transport/rest/handler"
	"readingsurvey/internal/transport/ws"
)

const catalogJSON = `[
	{"text_id":"t1","text":"headline: First\n\ntext: Body one","topic":"health"},
	{"text_id":"t2","text":"Plain body two","topic":"climate"}
]`

// fakeBackend plays the allocation endpoint: GET assigns, POST records
type fakeBackend struct {
	mu        sync.Mutex
	assignIDs []string
	refuse    string
	submitted []map[string]interface{}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.Method == http.MethodPost {
		var payload map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		b.submitted = append(b.submitted, payload)
		w.Write([]byte(`{"status":"ok"}`))
		return
	}
	if b.refuse != "" {
		fmt.Fprintf(w, `{"error":%q}`, b.refuse)
		return
	}
	id := b.assignIDs[0]
	b.assignIDs = b.assignIDs[1:]
	fmt.Fprintf(w, `{"text_id":%q,"topic":"health","allocation_id":"alloc-%s"}`, id, id)
}

type testServer struct {
	*httptest.Server
	backend  *fakeBackend
	sessions *service.SessionManager
}

func newTestServer(t *testing.T, targetCount int) *testServer {
	t.Helper()
	texts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(catalogJSON))
	}))
	t.Cleanup(texts.Close)

	backend := &fakeBackend{assignIDs: []string{"t1", "t2", "t1", "t2"}}
	alloc := httptest.NewServer(backend)
	t.Cleanup(alloc.Close)

	log := logger.Nop()
	catalog := cache.NewCatalogCache(texts.Client(), texts.URL, log)
	_, err := catalog.Load(context.Background())
	require.NoError(t, err)

	settings := model.DefaultSurveySettings()
	settings.TargetCount = targetCount
	hub := ws.NewHub(log)
	sessions := service.NewSessionManager(
		settings,
		catalog,
		service.NewAllocationClient(alloc.URL, "", alloc.Client(), log),
		cache.NewMemorySessionStore(),
		service.NewTabTokenService("secret", time.Hour),
		hub,
		log,
	)

	srv := httptest.NewServer(NewRouter(&Container{Sessions: sessions, Catalog: catalog, WSHub: hub, Log: log}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, backend: backend, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) openTab(t *testing.T) model.OpenTabResponse {
	t.Helper()
	var opened model.OpenTabResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/tabs", "", nil, &opened))
	require.NotEmpty(t, opened.Token)
	return opened
}

func consentBody() model.ConsentInput {
	return model.ConsentInput{
		ParticipantCode: "abcd",
		Affirmations:    map[string]bool{"age": true, "understood": true, "voluntary": true},
	}
}

func backgroundBody() model.BackgroundInput {
	return model.BackgroundInput{Background: &model.Background{
		Gender: "male", Age: "20-29", Education: "master", SocialMediaTime: "3h+", Country: "Peru",
	}}
}

func answers(intent model.Rating, purpose string) model.TextAnswers {
	return model.TextAnswers{
		Ratings: model.Ratings{
			TopicFamiliarity: 1, Understanding: 2, Credibility: 3,
			WillingnessToShare: 4, IntentStrength: intent, BeliefChange: 5,
		},
		Purpose: purpose,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 2)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFullBatchOverHTTP(t *testing.T) {
	s := newTestServer(t, 2)
	opened := s.openTab(t)
	assert.Equal(t, model.PhaseAwaitingConsent, opened.View.Phase)
	tok := opened.Token

	var view model.SessionView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/consent", tok, consentBody(), &view))
	assert.Equal(t, model.PhaseTextDisplay, view.Phase)
	require.NotNil(t, view.Text)
	assert.Equal(t, "First", *view.Text.Title)
	assert.Equal(t, model.Progress{Completed: 0, Current: 1, Target: 2}, view.Progress)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/background", tok, backgroundBody(), &view))
	assert.Equal(t, 2, view.Page)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/answers", tok, answers(3, ""), &view))
	assert.True(t, view.PurposeVisible)

	var rejected handler.ErrorResponse
	require.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/v1/session/questionnaire", tok, answers(3, ""), &rejected))
	assert.Equal(t, []string{"purpose"}, rejected.Fields)
	assert.Equal(t, model.KindValidation, rejected.Kind)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/questionnaire", tok, answers(3, "inform"), &view))
	assert.Equal(t, model.PhaseTextDisplay, view.Phase)
	require.NotNil(t, view.Text)
	assert.False(t, view.Text.HasTitle())
	assert.Equal(t, "Plain body two", view.Text.Body)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/background", tok, model.BackgroundInput{}, &view))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/skip", tok, handler.SkipRequest{Reason: "garbled"}, &view))
	assert.Equal(t, model.PhaseCompleted, view.Phase)

	s.backend.mu.Lock()
	require.Len(t, s.backend.submitted, 2)
	first, second := s.backend.submitted[0], s.backend.submitted[1]
	s.backend.mu.Unlock()
	assert.Equal(t, "t1", first["text_id"])
	assert.Equal(t, "alloc-t1", first["allocation_id"])
	assert.Equal(t, "3", first["intent_strength"])
	assert.Equal(t, "inform", first["purpose"])
	assert.Equal(t, "t2", second["text_id"])
	assert.Equal(t, "1", second["skipped_due_to_display_issue"])
	assert.Equal(t, "Peru", second["country"])

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/restart", tok, nil, &view))
	assert.Equal(t, model.PhaseAwaitingConsent, view.Phase)
	assert.Equal(t, "abcd", view.ParticipantCode)
}

func TestSessionErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t, 2)
	tok := s.openTab(t).Token

	var rejected handler.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/session/back", tok, nil, &rejected))
	assert.Equal(t, "invalid_transition", rejected.Kind)
	require.NotNil(t, rejected.View)
	assert.Equal(t, model.PhaseAwaitingConsent, rejected.View.Phase)

	s.backend.mu.Lock()
	s.backend.refuse = "no texts available"
	s.backend.mu.Unlock()

	rejected = handler.ErrorResponse{}
	assert.Equal(t, http.StatusBadGateway, s.do(t, http.MethodPost, "/v1/session/consent", tok, consentBody(), &rejected))
	assert.Equal(t, model.KindAssignment, rejected.Kind)
	assert.Contains(t, rejected.Error, "no texts available")

	var view model.SessionView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/session", tok, nil, &view))
	assert.Equal(t, model.PhaseAwaitingConsent, view.Phase)
	assert.Equal(t, model.KindAssignment, view.ErrorKind)
}

func TestCloseTabReleasesMachine(t *testing.T) {
	s := newTestServer(t, 2)
	tok := s.openTab(t).Token
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/consent", tok, consentBody(), nil))
	require.Equal(t, 1, s.sessions.Live())

	req, err := http.NewRequest(http.MethodDelete, s.URL+"/v1/session", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, s.sessions.Live())

	var view model.SessionView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/session", tok, nil, &view))
	assert.Equal(t, model.PhaseTextDisplay, view.Phase)
	assert.Equal(t, "t1", view.Assignment.TextID)
	assert.Equal(t, 1, s.sessions.Live())

	var body map[string]string
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodDelete, "/v1/session", "", nil, &body))
}

func TestRatingOutOfScaleIsUnprocessable(t *testing.T) {
	s := newTestServer(t, 2)
	tok := s.openTab(t).Token
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/consent", tok, consentBody(), nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/background", tok, backgroundBody(), nil))

	var rejected handler.ErrorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/v1/session/questionnaire", tok, answers(99, "x"), &rejected))
	assert.Equal(t, []string{"intent_strength"}, rejected.Fields)
	s.backend.mu.Lock()
	assert.Empty(t, s.backend.submitted)
	s.backend.mu.Unlock()
}

func TestSessionRequiresToken(t *testing.T) {
	s := newTestServer(t, 2)
	var body map[string]string
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/session", "", nil, &body))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/session/consent", "junk", consentBody(), &body))
}

func TestBadBody(t *testing.T) {
	s := newTestServer(t, 2)
	tok := s.openTab(t).Token

	req, err := http.NewRequest(http.MethodPost, s.URL+"/v1/session/consent", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTextLookup(t *testing.T) {
	s := newTestServer(t, 2)

	var text handler.TextResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/texts/t1", "", nil, &text))
	assert.Equal(t, "health", text.Topic)
	assert.Equal(t, "Body one", text.Parsed.Body)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/texts/nope", "", nil, &body))
	assert.Contains(t, body["error"], "text_id=nope")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, 2)
	req, err := http.NewRequest(http.MethodOptions, s.URL+"/v1/session/consent", nil)
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketPushesViews(t *testing.T) {
	s := newTestServer(t, 2)
	tok := s.openTab(t).Token

	wsURL := "ws" + s.URL[len("http"):] + "/v1/ws/session?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readView := func() model.SessionView {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, ws.MsgSessionView, msg.Type)
		var v model.SessionView
		require.NoError(t, json.Unmarshal(msg.Payload, &v))
		return v
	}

	assert.Equal(t, model.PhaseAwaitingConsent, readView().Phase)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/session/consent", tok, consentBody(), nil))
	var last model.SessionView
	for i := 0; i < 10; i++ {
		last = readView()
		if last.Phase == model.PhaseTextDisplay && last.Text != nil {
			break
		}
	}
	assert.Equal(t, model.PhaseTextDisplay, last.Phase)
	assert.Equal(t, "t1", last.Assignment.TextID)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	s := newTestServer(t, 2)
	wsURL := "ws" + s.URL[len("http"):] + "/v1/ws/session?token=junk"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

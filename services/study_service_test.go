package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/piakoller/theranosticsChatbot/chatbot"
	"github.com/piakoller/theranosticsChatbot/db"
	"github.com/piakoller/theranosticsChatbot/llm"
	"github.com/piakoller/theranosticsChatbot/memory"
	"github.com/piakoller/theranosticsChatbot/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeResponder struct {
	canned bool
	last   chatbot.Request
}

func (f *fakeResponder) Respond(ctx context.Context, req chatbot.Request) chatbot.Reply {
	f.last = req
	return chatbot.Reply{Text: "reply to " + req.Message, ModelUsed: "m1", Status: chatbot.StatusOK}
}

func (f *fakeResponder) CannedMode() bool      { return f.canned }
func (f *fakeResponder) ExpertAvailable() bool { return false }

type fakeConversations struct {
	enabled   bool
	exchanges map[string][]memory.Exchange
	readErr   error
}

func (f *fakeConversations) Append(ctx context.Context, participantID string, exchange memory.Exchange) bool {
	if !f.enabled {
		return false
	}
	f.exchanges[participantID] = append(f.exchanges[participantID], exchange)
	return true
}

func (f *fakeConversations) GetHistory(ctx context.Context, participantID string) ([]memory.Exchange, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.exchanges[participantID], nil
}

func (f *fakeConversations) GetRecord(ctx context.Context, participantID string) (*memory.ConversationRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	exchanges, ok := f.exchanges[participantID]
	if !ok {
		return nil, nil
	}
	return &memory.ConversationRecord{
		ParticipantID:  participantID,
		CreatedAt:      exchanges[0].Timestamp,
		LastUpdated:    exchanges[len(exchanges)-1].Timestamp,
		TotalExchanges: len(exchanges),
		History:        exchanges,
	}, nil
}

func (f *fakeConversations) Enabled() bool { return f.enabled }

type fakeForms struct {
	enabled bool
	fail    bool
	fields  map[string]map[string]any
}

func (f *fakeForms) Upsert(ctx context.Context, participantID string, fields map[string]any) bool {
	if f.fail {
		return false
	}
	if f.fields[participantID] == nil {
		f.fields[participantID] = map[string]any{}
	}
	for k, v := range fields {
		f.fields[participantID][k] = v
	}
	return true
}

func (f *fakeForms) Get(ctx context.Context, participantID string) (*session.FormRecord, error) {
	fields, ok := f.fields[participantID]
	if !ok {
		return nil, nil
	}
	return &session.FormRecord{ParticipantID: participantID, CreatedAt: formCreated, LastUpdated: formCreated, Fields: fields}, nil
}

func (f *fakeForms) Enabled() bool { return f.enabled }

var formCreated = time.Date(2025, 4, 2, 14, 30, 0, 0, time.UTC)

type fakeStats struct {
	stats *db.StudyStats
	err   error
}

func (f *fakeStats) Collect(ctx context.Context) (*db.StudyStats, error) {
	return f.stats, f.err
}

type fixture struct {
	server        *httptest.Server
	responder     *fakeResponder
	conversations *fakeConversations
	forms         *fakeForms
	stats         *fakeStats
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		responder:     &fakeResponder{},
		conversations: &fakeConversations{enabled: true, exchanges: map[string][]memory.Exchange{}},
		forms:         &fakeForms{enabled: true, fields: map[string]map[string]any{}},
		stats:         &fakeStats{stats: &db.StudyStats{IntegrityOK: true}},
	}
	registry := llm.NewModelRegistry("m1", []string{"m2"}, llm.DefaultGenerationParams())
	f.server = httptest.NewServer(NewRouter(ProvideStudyService(f.responder, f.conversations, f.forms, f.stats, registry)))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, payload string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.responder.canned = true

	resp, body := f.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "canned", health.Mode)
	assert.Equal(t, "m1", health.PrimaryModel)
	assert.Equal(t, "m1", health.ActiveModel)
	assert.Len(t, health.Models, 2)
	assert.True(t, health.Persistence)
}

func TestCreateParticipant(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/participants", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out["participantId"], 36)
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/chat",
		`{"participantId":"p1","message":"What is PSMA?","language":"en","variant":"expert","context":"main_chat","section":"C"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply chatbot.Reply
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, "reply to What is PSMA?", reply.Text)
	assert.Equal(t, chatbot.VariantExpert, f.responder.last.Variant)
	assert.Equal(t, "C", f.responder.last.SectionTag)

	resp, _ = f.do(t, http.MethodPost, "/api/chat", `{"participantId":"p1","message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogExchangeAndGetConversation(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/exchanges",
		`{"participantId":"p1","userMessage":"Q1","botResponse":"A1","context":"questionnaire","modelUsed":"scripted"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"saved":true}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/api/conversations/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv ConversationResponse
	require.NoError(t, json.Unmarshal(body, &conv))
	assert.Equal(t, 1, conv.TotalExchanges)
	assert.Equal(t, "scripted", conv.Exchanges[0].ModelUsed)

	f.conversations.readErr = errors.New("db down")
	resp, _ = f.do(t, http.MethodGet, "/api/conversations/p1", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSaveFormFields(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		fail     bool
		expected FormResponse
	}{
		{"saved", true, false, FormResponse{Saved: true, Message: StatusSaved}},
		{"write failed", true, true, FormResponse{Message: StatusNotSaved}},
		{"disabled", false, false, FormResponse{Message: StatusDisabled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.forms.enabled = tt.enabled
			f.forms.fail = tt.fail

			resp, body := f.do(t, http.MethodPut, "/api/forms/p1", `{"age":42}`)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var out FormResponse
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestSaveSectionAndGetForm(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/forms/p1/demographics", `{"age":42,"gender":"m"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/forms/p1/feedback", `{"usefulness":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/forms/p1/unknown", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/forms/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record session.FormRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, "m", record.Fields["gender"])
	assert.Equal(t, true, record.Fields["demographics_completed"])
	assert.Equal(t, true, record.Fields["feedback_completed"])

	resp, _ = f.do(t, http.MethodGet, "/api/forms/nobody", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetParticipant(t *testing.T) {
	f := newFixture(t)
	asked := time.Date(2025, 4, 2, 14, 0, 0, 0, time.UTC)
	f.conversations.exchanges["p1"] = []memory.Exchange{
		{Timestamp: asked, UserMessage: "q1"},
		{Timestamp: asked.Add(time.Minute), UserMessage: "q2"},
	}
	f.forms.fields["p1"] = map[string]any{"consent_completed": true}

	resp, body := f.do(t, http.MethodGet, "/api/participants/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info ParticipantInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.True(t, info.ConversationExists)
	assert.True(t, info.FormExists)
	assert.Equal(t, 2, info.ConversationExchanges)
	require.NotNil(t, info.ConversationCreated)
	assert.True(t, asked.Equal(*info.ConversationCreated))
	assert.True(t, asked.Add(time.Minute).Equal(*info.LastConversationUpdate))
	assert.True(t, formCreated.Equal(*info.FormCreated))

	resp, body = f.do(t, http.MethodGet, "/api/participants/nobody", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"participantId":"nobody","conversationExists":false,"formExists":false,"conversationExchanges":0}`, string(body))

	f.conversations.readErr = errors.New("db down")
	resp, _ = f.do(t, http.MethodGet, "/api/participants/p1", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	f.conversations.enabled = false
	resp, _ = f.do(t, http.MethodGet, "/api/participants/p1", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStats(t *testing.T) {
	t.Run("duplicates reported", func(t *testing.T) {
		f := newFixture(t)
		f.stats.stats = &db.StudyStats{
			Conversations: db.ConversationStats{
				CollectionStats: db.CollectionStats{
					TotalDocuments:        3,
					UniqueParticipants:    2,
					DuplicateParticipants: []db.DuplicateParticipant{{ParticipantID: "p2", Count: 2}},
				},
				ModelUsage: map[string]int64{"m1": 4, "m2": 1},
			},
		}

		resp, body := f.do(t, http.MethodGet, "/api/stats", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats db.StudyStats
		require.NoError(t, json.Unmarshal(body, &stats))
		assert.False(t, stats.IntegrityOK)
		assert.EqualValues(t, 4, stats.Conversations.ModelUsage["m1"])
		assert.Equal(t, "p2", stats.Conversations.DuplicateParticipants[0].ParticipantID)
	})

	t.Run("collect error", func(t *testing.T) {
		f := newFixture(t)
		f.stats.err = errors.New("aggregate failed")

		resp, _ := f.do(t, http.MethodGet, "/api/stats", "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("persistence disabled", func(t *testing.T) {
		registry := llm.NewModelRegistry("m1", nil, llm.DefaultGenerationParams())
		service := ProvideStudyService(&fakeResponder{}, &fakeConversations{}, &fakeForms{}, nil, registry)

		rec := httptest.NewRecorder()
		NewRouter(service).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealthServer(t *testing.T) {
	tests := []struct {
		canned   bool
		expected healthpb.HealthCheckResponse_ServingStatus
	}{
		{false, healthpb.HealthCheckResponse_SERVING},
		{true, healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		hs := NewHealthServer(tt.canned)
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ChatServiceName})
		require.NoError(t, err)
		assert.Equal(t, tt.expected, resp.Status)
	}
}

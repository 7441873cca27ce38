package services

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/piakoller/theranosticsChatbot/chatbot"
	"github.com/piakoller/theranosticsChatbot/db"
	"github.com/piakoller/theranosticsChatbot/llm"
	"github.com/piakoller/theranosticsChatbot/memory"
	"github.com/piakoller/theranosticsChatbot/session"
	"go.uber.org/zap"
)

const (
	StatusSaved    = "Data saved to MongoDB"
	StatusNotSaved = "Error: Data could not be saved"
	StatusDisabled = "Logging disabled"
)

type Responder interface {
	Respond(ctx context.Context, req chatbot.Request) chatbot.Reply
	CannedMode() bool
	ExpertAvailable() bool
}

type ConversationStore interface {
	Append(ctx context.Context, participantID string, exchange memory.Exchange) bool
	GetHistory(ctx context.Context, participantID string) ([]memory.Exchange, error)
	GetRecord(ctx context.Context, participantID string) (*memory.ConversationRecord, error)
	Enabled() bool
}

type FormStore interface {
	Upsert(ctx context.Context, participantID string, fields map[string]any) bool
	Get(ctx context.Context, participantID string) (*session.FormRecord, error)
	Enabled() bool
}

type StatsCollector interface {
	Collect(ctx context.Context) (*db.StudyStats, error)
}

// StudyService exposes the chatbot and the study persistence to the UI.
type StudyService struct {
	responder     Responder
	conversations ConversationStore
	forms         FormStore
	stats         StatsCollector
	registry      *llm.ModelRegistry
}

// ProvideStudyService wires the handlers. stats may be nil when persistence
// is disabled.
func ProvideStudyService(responder Responder, conversations ConversationStore, forms FormStore, stats StatsCollector, registry *llm.ModelRegistry) *StudyService {
	return &StudyService{
		responder:     responder,
		conversations: conversations,
		forms:         forms,
		stats:         stats,
		registry:      registry,
	}
}

type HealthResponse struct {
	Status       string               `json:"status"`
	Mode         string               `json:"mode"`
	PrimaryModel string               `json:"primaryModel"`
	ActiveModel  string               `json:"activeModel"`
	Models       []llm.ModelCandidate `json:"models"`
	Persistence  bool                 `json:"persistence"`
	Expert       bool                 `json:"expert"`
}

func (s *StudyService) Health(w http.ResponseWriter, r *http.Request) {
	mode := "llm"
	if s.responder.CannedMode() {
		mode = "canned"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Mode:         mode,
		PrimaryModel: s.registry.Primary(),
		ActiveModel:  s.registry.CurrentActive(),
		Models:       s.registry.Models(),
		Persistence:  s.conversations.Enabled() && s.forms.Enabled(),
		Expert:       s.responder.ExpertAvailable(),
	})
}

func (s *StudyService) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"participantId": uuid.NewString()})
}

// ParticipantInfo summarises both records of one participant.
type ParticipantInfo struct {
	ParticipantID          string     `json:"participantId"`
	ConversationExists     bool       `json:"conversationExists"`
	FormExists             bool       `json:"formExists"`
	ConversationExchanges  int        `json:"conversationExchanges"`
	ConversationCreated    *time.Time `json:"conversationCreated,omitempty"`
	LastConversationUpdate *time.Time `json:"lastConversationUpdate,omitempty"`
	FormCreated            *time.Time `json:"formCreated,omitempty"`
	LastFormUpdate         *time.Time `json:"lastFormUpdate,omitempty"`
}

func (s *StudyService) GetParticipant(w http.ResponseWriter, r *http.Request) {
	if !s.conversations.Enabled() || !s.forms.Enabled() {
		http.Error(w, StatusDisabled, http.StatusServiceUnavailable)
		return
	}

	participantID := chi.URLParam(r, "participantID")
	info := ParticipantInfo{ParticipantID: participantID}

	conv, err := s.conversations.GetRecord(r.Context(), participantID)
	if err != nil {
		logger.Error("Error loading conversation", zap.String("participantId", participantID), zap.Error(err))
		http.Error(w, "Failed to load participant", http.StatusInternalServerError)
		return
	}
	if conv != nil {
		info.ConversationExists = true
		info.ConversationExchanges = conv.TotalExchanges
		info.ConversationCreated = &conv.CreatedAt
		info.LastConversationUpdate = &conv.LastUpdated
	}

	form, err := s.forms.Get(r.Context(), participantID)
	if err != nil {
		logger.Error("Error loading form", zap.String("participantId", participantID), zap.Error(err))
		http.Error(w, "Failed to load participant", http.StatusInternalServerError)
		return
	}
	if form != nil {
		info.FormExists = true
		info.FormCreated = &form.CreatedAt
		info.LastFormUpdate = &form.LastUpdated
	}

	writeJSON(w, http.StatusOK, info)
}

// Stats reports usage per model and context, and any participant stored
// more than once.
func (s *StudyService) Stats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, StatusDisabled, http.StatusServiceUnavailable)
		return
	}

	stats, err := s.stats.Collect(r.Context())
	if err != nil {
		logger.Error("Error collecting study stats", zap.Error(err))
		http.Error(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}
	if !stats.IntegrityOK {
		logger.Error("Participants stored more than once",
			zap.Int("conversations", len(stats.Conversations.DuplicateParticipants)),
			zap.Int("forms", len(stats.Forms.DuplicateParticipants)))
	}

	writeJSON(w, http.StatusOK, stats)
}

type ChatRequest struct {
	ParticipantID string         `json:"participantId"`
	Message       string         `json:"message"`
	History       []llm.Message  `json:"history"`
	Language      string         `json:"language"`
	Variant       string         `json:"variant"`
	Context       string         `json:"context"`
	Section       string         `json:"section"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (s *StudyService) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	reply := s.responder.Respond(r.Context(), chatbot.Request{
		ParticipantID: req.ParticipantID,
		Message:       req.Message,
		History:       req.History,
		Language:      req.Language,
		Variant:       chatbot.Variant(req.Variant),
		ContextTag:    req.Context,
		SectionTag:    req.Section,
		Metadata:      req.Metadata,
	})

	writeJSON(w, http.StatusOK, reply)
}

type ExchangeRequest struct {
	ParticipantID string         `json:"participantId"`
	UserMessage   string         `json:"userMessage"`
	BotResponse   string         `json:"botResponse"`
	Context       string         `json:"context"`
	Section       string         `json:"section"`
	ModelUsed     string         `json:"modelUsed"`
	ChatbotType   string         `json:"chatbotType"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// LogExchange records an exchange produced outside this service, such as
// scripted questionnaire prompts.
func (s *StudyService) LogExchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	saved := s.conversations.Append(r.Context(), req.ParticipantID, memory.Exchange{
		UserMessage: req.UserMessage,
		BotResponse: req.BotResponse,
		ModelUsed:   req.ModelUsed,
		Context:     req.Context,
		Section:     req.Section,
		ChatbotType: req.ChatbotType,
		Metadata:    req.Metadata,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

type FormResponse struct {
	Saved   bool   `json:"saved"`
	Message string `json:"message"`
}

// SaveFormFields merges arbitrary questionnaire fields into the
// participant's form record.
func (s *StudyService) SaveFormFields(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.saveFields(r.Context(), chi.URLParam(r, "participantID"), fields))
}

// SaveSection is SaveFormFields for one named study section; it also marks
// the section as completed.
func (s *StudyService) SaveSection(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	if !slices.Contains(session.KnownSections, section) {
		http.Error(w, "Unknown section: "+section, http.StatusNotFound)
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	fields[section+"_completed"] = true

	writeJSON(w, http.StatusOK, s.saveFields(r.Context(), chi.URLParam(r, "participantID"), fields))
}

func (s *StudyService) saveFields(ctx context.Context, participantID string, fields map[string]any) FormResponse {
	if !s.forms.Enabled() {
		return FormResponse{Message: StatusDisabled}
	}
	if s.forms.Upsert(ctx, participantID, fields) {
		return FormResponse{Saved: true, Message: StatusSaved}
	}
	return FormResponse{Message: StatusNotSaved}
}

func (s *StudyService) GetForm(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	record, err := s.forms.Get(r.Context(), participantID)
	if err != nil {
		logger.Error("Error loading form", zap.String("participantId", participantID), zap.Error(err))
		http.Error(w, "Failed to load form", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

type ConversationResponse struct {
	ParticipantID  string            `json:"participantId"`
	TotalExchanges int               `json:"totalExchanges"`
	Exchanges      []memory.Exchange `json:"exchanges"`
}

func (s *StudyService) GetConversation(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	exchanges, err := s.conversations.GetHistory(r.Context(), participantID)
	if err != nil {
		logger.Error("Error loading conversation", zap.String("participantId", participantID), zap.Error(err))
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ConversationResponse{
		ParticipantID:  participantID,
		TotalExchanges: len(exchanges),
		Exchanges:      exchanges,
	})
}

func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response", zap.Error(err))
	}
}

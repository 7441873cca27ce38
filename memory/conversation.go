package memory

import (
	"time"

	"github.com/piakoller/theranosticsChatbot/llm"
)

const DefaultContextTag = "main_chat"

// Exchange is one user message and the bot's reply.
type Exchange struct {
	Timestamp   time.Time      `bson:"timestamp" json:"timestamp"`
	UserMessage string         `bson:"user_message" json:"userMessage"`
	BotResponse string         `bson:"bot_response" json:"botResponse"`
	ModelUsed   string         `bson:"model_used" json:"modelUsed"`
	Context     string         `bson:"context" json:"context"`
	Section     string         `bson:"section,omitempty" json:"section,omitempty"`
	ChatbotType string         `bson:"chatbot_type,omitempty" json:"chatbotType,omitempty"`
	Metadata    map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// ConversationRecord holds every exchange of one participant. It is only
// ever grown through ConversationStore.Append. The document _id is not
// mapped: records migrated from user_id keys carry ObjectIds there.
type ConversationRecord struct {
	ParticipantID  string     `bson:"participant_id"`
	CreatedAt      time.Time  `bson:"created_at"`
	LastUpdated    time.Time  `bson:"last_updated"`
	TotalExchanges int        `bson:"total_exchanges"`
	History        []Exchange `bson:"conversation_history"`
}

func (m ConversationRecord) Id() string {
	return m.ParticipantID
}

func (m ConversationRecord) CollectionName() string {
	return "conversations"
}

// Messages flattens the exchanges into chat messages, oldest first.
func (m ConversationRecord) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(m.History))
	for _, ex := range m.History {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: ex.UserMessage},
			llm.Message{Role: llm.RoleAssistant, Content: ex.BotResponse})
	}
	return msgs
}

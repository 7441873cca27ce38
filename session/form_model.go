package session

import "time"

// FormRecord is the merged questionnaire state of one participant. Fields
// from every study section are stored flat at the top level of the document.
// The document _id is left to Fields and removed by FormStore.Get.
type FormRecord struct {
	ParticipantID       string         `bson:"participant_id" json:"participantId"`
	CreatedAt           time.Time      `bson:"created_at" json:"createdAt"`
	LastUpdated         time.Time      `bson:"last_updated" json:"lastUpdated"`
	SubmissionTimestamp time.Time      `bson:"submission_timestamp,omitempty" json:"submissionTimestamp"`
	Fields              map[string]any `bson:",inline" json:"fields"`
}

func (m FormRecord) Id() string {
	return m.ParticipantID
}

func (m FormRecord) CollectionName() string {
	return "forms"
}

// Study sections whose answers are merged into the form record.
const (
	SectionConsent          = "consent"
	SectionDemographics     = "demographics"
	SectionChatbotSelection = "chatbot_selection"
	SectionAttitude         = "attitude"
	SectionFeedback         = "feedback"
)

var KnownSections = []string{
	SectionConsent,
	SectionDemographics,
	SectionChatbotSelection,
	SectionAttitude,
	SectionFeedback,
}

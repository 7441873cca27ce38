package chatbot

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	TerminalMessage = "I encountered an issue with the language model. Please try again or contact support if this persists."

	ExhaustedMessage = "All language models are currently experiencing issues. Please try again in a few moments."

	// Used when the active model failed and every backup failed after it.
	DegradedMessage = "All language models are currently experiencing issues, including the primary model. Please try again in a few moments, and I'll do my best to help you."

	EmptyResponseMessage = "I understand your question. Could you please provide more details so I can give you a more specific answer?"

	cannedGerman = "Der Dienst ist derzeit nicht verfügbar. Bitte versuchen Sie es später erneut."
)

const (
	shortQuestionPrefix = "Please provide a comprehensive explanation about: "
	minQuestionWords    = 5
)

var cannedEnglish = []string{
	"I'm currently running in fallback mode. Please ensure OPENROUTER_API_KEY is set in your environment.",
	"I understand you have questions about your treatment. Please feel free to ask about anything that concerns you.",
	"Theranostics can seem complex, but I'm here to explain it in simple terms. What would you like to know?",
	"Many patients have similar concerns about nuclear medicine treatments. What specific questions do you have?",
}

// switchNotice tells the participant that a backup model answered.
func switchNotice(model string) string {
	return "*I've switched to a backup model (" + displayName(model) + ") to ensure I can help you.*\n\n"
}

// displayName turns "google/gemma-3-27b-it:free" into "Gemma 3 27b It".
func displayName(model string) string {
	name := model
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, ":free", "")
	name = strings.ReplaceAll(name, "-", " ")
	return cases.Title(language.English).String(name)
}

// expandShortQuestion rewrites questions of fewer than five words so the
// model gives a full explanation instead of a one-liner.
func expandShortQuestion(msg string) string {
	if len(strings.Fields(msg)) < minQuestionWords {
		return shortQuestionPrefix + msg
	}
	return msg
}

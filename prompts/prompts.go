package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	LanguageGerman  = "de"
	LanguageEnglish = "en"

	VariantBasic  = "basic"
	VariantExpert = "expert"
)

// RenderSystemPrompt returns the system instructions for a language and
// chatbot variant. Unknown values fall back to German and basic.
func RenderSystemPrompt(language, variant string) (string, error) {
	if language != LanguageEnglish {
		language = LanguageGerman
	}
	if variant != VariantExpert {
		variant = VariantBasic
	}

	content, err := templatesFS.ReadFile(fmt.Sprintf("templates/system_%s_%s.md", variant, language))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(content)), nil
}

type ContextDocument struct {
	Source  string
	Content string
}

type HistoryLine struct {
	Role    string
	Content string
}

// RenderExpertPrompt renders the single-shot retrieval prompt sent to the
// local expert model.
func RenderExpertPrompt(language, question string, docs []ContextDocument, history []HistoryLine) (string, error) {
	systemPrompt, err := RenderSystemPrompt(language, VariantExpert)
	if err != nil {
		return "", err
	}

	templateContent, err := templatesFS.ReadFile("templates/expert_answer.md")
	if err != nil {
		return "", err
	}

	tmpl, err := template.New("expert_answer").Parse(string(templateContent))
	if err != nil {
		return "", err
	}

	data := struct {
		SystemPrompt string
		Documents    []ContextDocument
		History      []HistoryLine
		Question     string
	}{
		SystemPrompt: systemPrompt,
		Documents:    docs,
		History:      history,
		Question:     question,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

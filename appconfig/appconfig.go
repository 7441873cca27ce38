package appconfig

import (
	"os"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/config"
)

type AppConfig struct {
	config.BootConfig `ini:",extends"`

	MongoURI      string `env:"MONGO_URI" ini:"mongo_uri"`
	Database      string `env:"MONGO-DATABASE" ini:"mongo_database"`
	EnableMongoDB bool   `env:"ENABLE-MONGODB" ini:"enable_mongodb"`

	OpenRouterURL    string `env:"OPENROUTER-URL" ini:"openrouter_url"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY" ini:"openrouter_api_key"`
	AppReferer       string `env:"APP-REFERER" ini:"app_referer"`
	AppTitle         string `env:"APP-TITLE" ini:"app_title"`

	PrimaryModel string `env:"PRIMARY-MODEL" ini:"primary_model"`
	// Comma separated, tried in order after the primary.
	BackupModels string `env:"BACKUP-MODELS" ini:"backup_models"`

	Temperature      float64 `ini:"temperature"`
	MaxTokens        int     `ini:"max_tokens"`
	TopP             float64 `ini:"top_p"`
	FrequencyPenalty float64 `ini:"frequency_penalty"`
	PresencePenalty  float64 `ini:"presence_penalty"`

	ExpandShortQuestions bool   `ini:"expand_short_questions"`
	DefaultLanguage      string `ini:"default_language"`
	// Prior user/assistant messages sent with each request.
	HistoryWindow int `ini:"history_window"`

	OllamaBaseURL      string  `env:"OLLAMA_BASE_URL" ini:"ollama_base_url"`
	OllamaModel        string  `env:"OLLAMA-MODEL" ini:"ollama_model"`
	OllamaEmbedModel   string  `env:"OLLAMA-EMBED-MODEL" ini:"ollama_embed_model"`
	OllamaTemperature  float64 `ini:"ollama_temperature"`
	OllamaMaxTokens    int     `ini:"ollama_max_tokens"`
	RetrievalTopK      int     `ini:"retrieval_top_k"`
	MaxMemoryLength    int     `ini:"max_memory_length"`
	EnableExpertChat   bool    `env:"ENABLE-EXPERT-CHAT" ini:"enable_expert_chat"`

	HTTPPort string `env:"HTTP-PORT" ini:"http_port"`
	GRPCPort string `env:"GRPC-PORT" ini:"grpc_port"`
}

// ApplyEnv overlays the secrets, which are only ever read from the
// environment, onto the ini values. ENABLE_MONGODB=0 turns persistence off.
func (c *AppConfig) ApplyEnv() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.OpenRouterAPIKey = key
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		c.MongoURI = uri
	} else if uri := os.Getenv("MONGODB_CONNECTION_STRING"); uri != "" {
		c.MongoURI = uri
	}
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		c.OllamaBaseURL = base
	}
	if os.Getenv("ENABLE_MONGODB") == "0" {
		c.EnableMongoDB = false
	}
}

// ApplyDefaults fills every unset value with the study's production defaults.
func (c *AppConfig) ApplyDefaults() {
	setString(&c.Database, "theranosticsChatbot")
	setString(&c.OpenRouterURL, "https://openrouter.ai/api/v1/chat/completions")
	setString(&c.AppReferer, "https://openrouter.ai/")
	setString(&c.AppTitle, "Theranostics Chatbot")
	setString(&c.PrimaryModel, "openai/gpt-oss-20b:free")
	setString(&c.BackupModels, "google/gemma-3-27b-it:free,qwen/qwen-2.5-coder-32b-instruct:free,google/gemini-2.0-flash-exp:free")
	setString(&c.DefaultLanguage, "de")
	setInt(&c.HistoryWindow, 10)

	setFloat(&c.Temperature, 0.1)
	setInt(&c.MaxTokens, 500)
	setFloat(&c.TopP, 0.9)
	setFloat(&c.FrequencyPenalty, 0.1)
	setFloat(&c.PresencePenalty, 0.1)

	setString(&c.OllamaBaseURL, "http://localhost:11434")
	setString(&c.OllamaModel, "gemma3")
	setString(&c.OllamaEmbedModel, "embeddinggemma")
	setFloat(&c.OllamaTemperature, 0.7)
	setInt(&c.OllamaMaxTokens, 512)
	setInt(&c.RetrievalTopK, 4)
	setInt(&c.MaxMemoryLength, 20)

	setString(&c.HTTPPort, ":8081")
	setString(&c.GRPCPort, ":50051")
}

// BackupModelList returns the configured backups with blanks removed.
func (c *AppConfig) BackupModelList() []string {
	var models []string
	for _, m := range strings.Split(c.BackupModels, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

func setString(v *string, def string) {
	if strings.TrimSpace(*v) == "" {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

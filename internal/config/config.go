package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	// HTTP service
	HTTPPort int `env:"HTTP_PORT" envDefault:"5000"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	ModelTemperature float64     `env:"MODEL_TEMPERATURE" envDefault:"0.7"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Storage
	ProfilesFilePath string `env:"PROFILES_FILE_PATH" envDefault:"data/profiles.json"`
	LogFilePath      string `env:"LOG_FILE_PATH" envDefault:"logs/chat.jsonl"`

	// Sessions
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`

	// Telegram frontend (optional)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

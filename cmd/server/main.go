package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"character-chat/internal/analytics"
	"character-chat/internal/config"
	"character-chat/internal/llm"
	"character-chat/internal/profile"
	"character-chat/internal/scheduler"
	"character-chat/internal/server"
	"character-chat/internal/session"
	"character-chat/internal/storage"
	"character-chat/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	factory := &llm.Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenaiModel:        cfg.OpenAIModel,
		Temperature:        float32(cfg.ModelTemperature),
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
	llmClient, err := factory.CreateClient(string(cfg.LLMProvider))
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	profiles, err := profile.NewFileRepository(cfg.ProfilesFilePath)
	if err != nil {
		log.Fatalf("failed to init profile repo: %v", err)
	}

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			rec = fr
		}
	}

	registry := session.NewRegistry(profiles, llmClient, rec)

	sched := scheduler.New()
	sched.SetSweepFunction(func() int {
		return registry.SweepIdle(cfg.SessionIdleTTL)
	})
	if rec != nil {
		sched.SetReportFunction(func(ctx context.Context) error {
			events, err := rec.LoadInteractions()
			if err != nil {
				return err
			}
			stats := analytics.AnalyzeDailyLogs(events, time.Now().UTC())
			log.Println(stats.FormatReport())
			return nil
		})
	}
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.New(cfg.TelegramBotToken, registry, profiles)
		if err != nil {
			log.Printf("failed to create telegram bot: %v", err)
		} else {
			go bot.Start(context.Background())
			log.Printf("🤖 Telegram frontend started")
		}
	}

	srv := server.New(registry, profiles, cfg.HTTPPort)
	if err := srv.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"character-chat/internal/profile"
	"character-chat/internal/session"
)

const resetCmd = "reset_ctx"

// Bot is a Telegram frontend to the character chat service. Each chat
// binds to one character via /use; plain messages then go to that
// character's session.
type Bot struct {
	api      *tgbotapi.BotAPI
	registry *session.Registry
	profiles profile.Repository

	mu    sync.Mutex
	bound map[int64]string // chatID -> character name
}

func New(botToken string, registry *session.Registry, profiles profile.Repository) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:      api,
		registry: registry,
		profiles: profiles,
		bound:    make(map[int64]string),
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message != nil {
			b.handleIncomingMessage(ctx, update.Message)
			continue
		}
		if update.CallbackQuery != nil {
			b.handleCallback(update.CallbackQuery)
			continue
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch {
	case msg.IsCommand():
		b.handleCommand(msg)
	default:
		b.handleChat(ctx, msg)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, "Commands:\n/characters — list characters\n/use <name> — talk to a character\n/reset — reset the current conversation")
	case "characters":
		profiles, err := b.profiles.LoadAll()
		if err != nil {
			log.Printf("failed to load profiles: %v", err)
			b.sendMessage(msg.Chat.ID, "Sorry, something went wrong.")
			return
		}
		if len(profiles) == 0 {
			b.sendMessage(msg.Chat.ID, "No characters defined yet.")
			return
		}
		var names []string
		for _, p := range profiles {
			names = append(names, p.Name)
		}
		b.sendMessage(msg.Chat.ID, "Characters: "+strings.Join(names, ", ")+"\nPick one with /use <name>")
	case "use":
		name := strings.TrimSpace(msg.CommandArguments())
		if name == "" {
			b.sendMessage(msg.Chat.ID, "Usage: /use <name>")
			return
		}
		if _, err := b.registry.GetOrCreate(name); err != nil {
			b.sendMessage(msg.Chat.ID, b.errorText(name, err))
			return
		}
		b.mu.Lock()
		b.bound[msg.Chat.ID] = name
		b.mu.Unlock()
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("You are now talking to %s.", name))
	case "reset":
		name, ok := b.boundCharacter(msg.Chat.ID)
		if !ok {
			b.sendMessage(msg.Chat.ID, "Pick a character first with /use <name>")
			return
		}
		if err := b.registry.Reset(name); err != nil {
			b.sendMessage(msg.Chat.ID, b.errorText(name, err))
			return
		}
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Conversation with %s reset.", name))
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command, try /help")
	}
}

func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) {
	name, ok := b.boundCharacter(msg.Chat.ID)
	if !ok {
		b.sendMessage(msg.Chat.ID, "Pick a character first with /use <name>")
		return
	}

	log.Printf("Incoming message from %d (@%s) to %q: %q", msg.From.ID, msg.From.UserName, name, msg.Text)

	sess, err := b.registry.GetOrCreate(name)
	if err != nil {
		b.sendMessage(msg.Chat.ID, b.errorText(name, err))
		return
	}
	answer, err := sess.Send(ctx, msg.Text)
	if err != nil {
		log.Printf("failed to generate text for %q: %v", name, err)
		b.sendMessage(msg.Chat.ID, b.errorText(name, err))
		return
	}

	// Reply with inline button to reset the conversation
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reset conversation", resetCmd),
		),
	)

	msgOut := tgbotapi.NewMessage(msg.Chat.ID, answer)
	msgOut.ReplyMarkup = kb
	if _, err := b.api.Send(msgOut); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Data != resetCmd {
		return
	}
	name, ok := b.boundCharacter(cb.Message.Chat.ID)
	if !ok {
		return
	}
	if err := b.registry.Reset(name); err != nil {
		log.Printf("failed to reset %q: %v", name, err)
		return
	}
	b.sendMessage(cb.Message.Chat.ID, fmt.Sprintf("Conversation with %s reset.", name))
}

func (b *Bot) boundCharacter(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.bound[chatID]
	return name, ok
}

func (b *Bot) errorText(name string, err error) string {
	switch {
	case errors.Is(err, session.ErrProfileNotFound):
		return fmt.Sprintf("Character %q not found, see /characters", name)
	case errors.Is(err, session.ErrSessionBusy):
		return fmt.Sprintf("%s is still answering, give it a moment.", name)
	case errors.Is(err, session.ErrInvalidInput):
		return "Say something first."
	default:
		return "Sorry, something went wrong."
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

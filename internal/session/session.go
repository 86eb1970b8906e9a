package session

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"character-chat/internal/llm"
	"character-chat/internal/profile"
	"character-chat/internal/prompt"
	"character-chat/internal/storage"
)

// Session is a live conversation bound to one character profile.
// The profile is snapshotted at creation time; later store edits only
// reach a fresh session created after a registry reset.
//
// At most one model call may be in flight per session. The busy mutex
// is held across the gateway call; concurrent sends, resets and
// example runs are rejected with ErrSessionBusy rather than queued.
type Session struct {
	name    string
	profile profile.Profile
	client  llm.Client
	rec     storage.Recorder

	busy sync.Mutex

	mu         sync.RWMutex
	history    []llm.Message
	lastActive time.Time
}

// ExampleResult is the outcome of replaying one stored example
// against the live model.
type ExampleResult struct {
	Question  string `json:"question"`
	Expected  string `json:"expected"`
	Generated string `json:"generated"`
	Err       error  `json:"-"`
}

func newSession(p profile.Profile, client llm.Client, rec storage.Recorder) *Session {
	return &Session{
		name:       p.Name,
		profile:    p,
		client:     client,
		rec:        rec,
		lastActive: time.Now(),
	}
}

// Send runs one buffered exchange: assemble, call the model, then
// append the user and assistant turns to history. A failed call
// leaves history untouched.
func (s *Session) Send(ctx context.Context, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrInvalidInput
	}
	if !s.busy.TryLock() {
		return "", ErrSessionBusy
	}
	defer s.busy.Unlock()

	msgs := prompt.Build(s.profile, s.History(), userText)
	resp, err := s.client.Generate(ctx, msgs)
	if err != nil {
		return "", &GatewayError{Err: err}
	}

	s.appendTurns(userText, resp.Content)
	s.record(userText, resp.Content, resp.Model, resp.TotalTokens)
	return resp.Content, nil
}

// SendStream runs one streamed exchange. Each chunk is handed to
// onToken in arrival order; the final text is their concatenation.
// Cancellation and stream errors count as failure: history stays
// untouched and no partial turn is persisted.
func (s *Session) SendStream(ctx context.Context, userText string, onToken func(chunk string)) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrInvalidInput
	}
	if !s.busy.TryLock() {
		return "", ErrSessionBusy
	}
	defer s.busy.Unlock()

	msgs := prompt.Build(s.profile, s.History(), userText)
	stream, err := s.client.GenerateStream(ctx, msgs)
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Printf("failed to close model stream for %q: %v", s.name, err)
		}
	}()

	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", &GatewayError{Err: err}
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &GatewayError{Err: err}
		}
		if onToken != nil {
			onToken(chunk)
		}
		b.WriteString(chunk)
	}

	final := b.String()
	s.appendTurns(userText, final)
	s.record(userText, final, "", 0)
	return final, nil
}

// RunExamples replays the profile's stored examples against the live
// model, one call per example with only the system prompt for
// context. A failing example records its error and does not stop the
// rest. History is not touched.
func (s *Session) RunExamples(ctx context.Context) ([]ExampleResult, error) {
	if !s.busy.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.busy.Unlock()

	results := make([]ExampleResult, 0, len(s.profile.Examples))
	for _, qa := range s.profile.Examples {
		res := ExampleResult{Question: qa.Question, Expected: qa.Answer}
		resp, err := s.client.Generate(ctx, prompt.ExampleMessages(s.profile.SystemPrompt, qa.Question))
		if err != nil {
			res.Err = &GatewayError{Err: err}
		} else {
			res.Generated = resp.Content
		}
		results = append(results, res)
	}
	return results, nil
}

// Reset clears the conversation history. The profile snapshot is
// kept; use the registry to discard the session entirely.
func (s *Session) Reset() error {
	if !s.busy.TryLock() {
		return ErrSessionBusy
	}
	defer s.busy.Unlock()
	s.mu.Lock()
	s.history = nil
	s.lastActive = time.Now()
	s.mu.Unlock()
	return nil
}

// History returns a copy of the turn sequence so far.
func (s *Session) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Profile returns the snapshot taken at session creation.
func (s *Session) Profile() profile.Profile {
	return s.profile
}

// Name returns the character name this session is bound to.
func (s *Session) Name() string {
	return s.name
}

// IdleSince reports the time of the last completed activity.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// appendTurns makes the user and assistant turns visible together;
// readers never observe a user turn without its response.
func (s *Session) appendTurns(userText, assistantText string) {
	s.mu.Lock()
	s.history = append(s.history,
		llm.Message{Role: "user", Content: userText},
		llm.Message{Role: "assistant", Content: assistantText},
	)
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) record(userText, assistantText, model string, totalTokens int) {
	if s.rec == nil {
		return
	}
	err := s.rec.AppendInteraction(storage.Event{
		Timestamp:         time.Now().UTC(),
		Character:         s.name,
		UserMessage:       userText,
		AssistantResponse: assistantText,
		Model:             model,
		TotalTokens:       totalTokens,
	})
	if err != nil {
		log.Printf("failed to record interaction for %q: %v", s.name, err)
	}
}

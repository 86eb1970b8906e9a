package prompt

import (
	"fmt"
	"strings"

	"character-chat/internal/llm"
	"character-chat/internal/profile"
)

const fewShotPreamble = "Below are example exchanges for this character. " +
	"Replicate their tone, style and phrasing exactly in your own answers."

// Build assembles the full message sequence for one model call:
// system prompt, few-shot block, conversation history, then the new
// user message. The few-shot message is omitted entirely when the
// profile has no examples. No validation happens here; an empty user
// text is assembled as-is.
func Build(p profile.Profile, history []llm.Message, userText string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+3)
	msgs = append(msgs, llm.Message{Role: "system", Content: p.SystemPrompt})
	if len(p.Examples) > 0 {
		msgs = append(msgs, llm.Message{Role: "system", Content: renderFewShot(p.Examples)})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: "user", Content: userText})
	return msgs
}

// ExampleMessages builds the minimal sequence used to test a stored
// example against the live model: just the system prompt and the
// example question, with no history and no few-shot block.
func ExampleMessages(systemPrompt, question string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	}
}

func renderFewShot(examples []profile.QA) string {
	var b strings.Builder
	b.WriteString(fewShotPreamble)
	for i, qa := range examples {
		b.WriteString(fmt.Sprintf("\n\nExample %d:\nUser: %s\nYou: %s", i+1, qa.Question, qa.Answer))
	}
	return b.String()
}

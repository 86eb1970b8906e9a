package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Stream is a finite, consume-once sequence of text chunks.
// Recv returns io.EOF after the final chunk; chunks arrive in
// provider emission order and are never empty.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
	GenerateStream(ctx context.Context, messages []Message) (Stream, error)
}

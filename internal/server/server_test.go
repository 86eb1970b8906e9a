package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"character-chat/internal/llm"
	"character-chat/internal/profile"
	"character-chat/internal/session"
)

// echoClient answers with the last user message, split into small
// chunks when streaming.
type echoClient struct{}

func (echoClient) lastUser(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (c echoClient) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	return llm.Response{Content: c.lastUser(messages), Model: "stub"}, nil
}

func (c echoClient) GenerateStream(ctx context.Context, messages []llm.Message) (llm.Stream, error) {
	return &chunkedStream{text: c.lastUser(messages)}, nil
}

type chunkedStream struct {
	text string
	pos  int
}

func (s *chunkedStream) Recv() (string, error) {
	if s.pos >= len(s.text) {
		return "", io.EOF
	}
	end := s.pos + 4
	if end > len(s.text) {
		end = len(s.text)
	}
	chunk := s.text[s.pos:end]
	s.pos = end
	return chunk, nil
}

func (s *chunkedStream) Close() error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := profile.NewFileRepository(filepath.Join(t.TempDir(), "profiles.json"))
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	err = repo.Upsert(profile.Profile{
		Name:         "Aria",
		SystemPrompt: "You are Aria.",
		Examples:     []profile.QA{{Question: "Hi", Answer: "Hello!"}},
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	registry := session.NewRegistry(repo, echoClient{}, nil)
	return New(registry, repo, 0)
}

func doJSON(t *testing.T, srv *Server, handler func(http.ResponseWriter, *http.Request), method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestListCharacters(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleCharacters, http.MethodGet, "/characters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "Aria" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestUpsertCharacter(t *testing.T) {
	srv := newTestServer(t)
	body := `{"name":"Bram","system_prompt":"You are Bram.","sample_qna":[]}`
	rec := doJSON(t, srv, srv.handleCharacters, http.MethodPost, "/characters", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	_, ok, err := srv.profiles.Get("Bram")
	if err != nil || !ok {
		t.Fatalf("profile not persisted: ok=%v err=%v", ok, err)
	}
}

func TestChatBuffered(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleChat, http.MethodPost, "/chat/Aria", `{"message":"How are you?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Character != "Aria" || resp.Response != "How are you?" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChatUnknownCharacter(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleChat, http.MethodPost, "/chat/Ghost", `{"message":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatEmptyMessage(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleChat, http.MethodPost, "/chat/Aria", `{"message":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatStreamEmitsChunksThenDone(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleChat, http.MethodPost, "/chat/Aria/stream", `{"message":"tell me something"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var rebuilt strings.Builder
	sawDone := false
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if line == "event: done" {
			sawDone = true
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && !sawDone {
			var chunk string
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				t.Fatalf("bad chunk frame %q: %v", line, err)
			}
			rebuilt.WriteString(chunk)
		}
	}
	if !sawDone {
		t.Fatalf("missing done event:\n%s", rec.Body.String())
	}
	if rebuilt.String() != "tell me something" {
		t.Fatalf("chunks rebuilt to %q", rebuilt.String())
	}
}

func TestResetFlow(t *testing.T) {
	srv := newTestServer(t)
	// No live session yet.
	rec := doJSON(t, srv, srv.handleReset, http.MethodPost, "/reset/Aria", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404 before any chat, got %d", rec.Code)
	}

	doJSON(t, srv, srv.handleChat, http.MethodPost, "/chat/Aria", `{"message":"hi"}`)
	rec = doJSON(t, srv, srv.handleReset, http.MethodPost, "/reset/Aria", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 after chat, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunExamplesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleExamples, http.MethodPost, "/examples/Aria", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var rows []exampleRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 row, got %d", len(rows))
	}
	if rows[0].Question != "Hi" || rows[0].Expected != "Hello!" || rows[0].Generated != "Hi" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, srv.handleStatus, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"character-chat/internal/config"
	"character-chat/internal/llm"
	"character-chat/internal/profile"
	"character-chat/internal/session"
)

// ChatParams arguments for chatting with a character
type ChatParams struct {
	Character string `json:"character" mcp:"the name of the character to talk to"`
	Message   string `json:"message" mcp:"the message to send to the character"`
}

// ResetParams arguments for resetting a conversation
type ResetParams struct {
	Character string `json:"character" mcp:"the name of the character whose conversation to reset"`
}

// RunExamplesParams arguments for replaying a character's stored examples
type RunExamplesParams struct {
	Character string `json:"character" mcp:"the name of the character whose examples to run"`
}

// ListParams arguments for listing characters (none)
type ListParams struct{}

// CharacterMCPServer exposes the character chat service as MCP tools
type CharacterMCPServer struct {
	registry *session.Registry
	profiles profile.Repository
}

func (s *CharacterMCPServer) ListCharacters(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[ListParams]) (*mcp.CallToolResultFor[any], error) {
	profiles, err := s.profiles.LoadAll()
	if err != nil {
		return toolError(fmt.Sprintf("❌ Failed to load characters: %v", err)), nil
	}
	if len(profiles) == 0 {
		return toolText("No characters defined yet"), nil
	}
	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	return toolText("Available characters: " + strings.Join(names, ", ")), nil
}

func (s *CharacterMCPServer) Chat(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[ChatParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	sess, err := s.registry.GetOrCreate(args.Character)
	if err != nil {
		return toolError(fmt.Sprintf("❌ %v", err)), nil
	}
	answer, err := sess.Send(ctx, args.Message)
	if err != nil {
		return toolError(fmt.Sprintf("❌ %v", err)), nil
	}
	return toolText(answer), nil
}

func (s *CharacterMCPServer) Reset(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[ResetParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if err := s.registry.Reset(args.Character); err != nil {
		return toolError(fmt.Sprintf("❌ %v", err)), nil
	}
	return toolText(fmt.Sprintf("✅ Conversation with %q reset", args.Character)), nil
}

func (s *CharacterMCPServer) RunExamples(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[RunExamplesParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	sess, err := s.registry.GetOrCreate(args.Character)
	if err != nil {
		return toolError(fmt.Sprintf("❌ %v", err)), nil
	}
	results, err := sess.RunExamples(ctx)
	if err != nil {
		return toolError(fmt.Sprintf("❌ %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ran %d example(s) for %q", len(results), args.Character)
	for i, res := range results {
		fmt.Fprintf(&b, "\n\nExample %d:\nQuestion: %s\nExpected: %s\n", i+1, res.Question, res.Expected)
		if res.Err != nil {
			fmt.Fprintf(&b, "Failed: %v", res.Err)
		} else {
			fmt.Fprintf(&b, "Generated: %s", res.Generated)
		}
	}
	return toolText(b.String()), nil
}

func toolText(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func toolError(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

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
		log.Fatalf("❌ failed to create llm client: %v", err)
	}

	profiles, err := profile.NewFileRepository(cfg.ProfilesFilePath)
	if err != nil {
		log.Fatalf("❌ failed to init profile repo: %v", err)
	}

	log.Printf("🚀 Starting Character Chat MCP Server")

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "character-chat-mcp",
		Version: "1.0.0",
	}, nil)

	charServer := &CharacterMCPServer{
		registry: session.NewRegistry(profiles, llmClient, nil),
		profiles: profiles,
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_characters",
		Description: "Lists the available character profiles",
	}, charServer.ListCharacters)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_with_character",
		Description: "Sends a message to a named character and returns its reply",
	}, charServer.Chat)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_conversation",
		Description: "Resets the conversation with a named character",
	}, charServer.Reset)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_character_examples",
		Description: "Replays a character's stored example questions against the live model",
	}, charServer.RunExamples)

	log.Printf("📋 Registered %d tools: list_characters, chat_with_character, reset_conversation, run_character_examples", 4)
	log.Printf("🔗 Starting server on stdin/stdout...")

	transport := mcp.NewStdioTransport()
	if err := server.Run(context.Background(), transport); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}

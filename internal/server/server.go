package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"character-chat/internal/profile"
	"character-chat/internal/session"
)

// Server exposes the character chat service over HTTP.
type Server struct {
	registry  *session.Registry
	profiles  profile.Repository
	server    *http.Server
	port      int
	startTime time.Time
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Character string `json:"character"`
	Message   string `json:"message"`
	Response  string `json:"response"`
}

type exampleRow struct {
	Question  string `json:"question"`
	Expected  string `json:"expected"`
	Generated string `json:"generated"`
	Error     string `json:"error,omitempty"`
}

func New(registry *session.Registry, profiles profile.Repository, port int) *Server {
	return &Server{
		registry:  registry,
		profiles:  profiles,
		port:      port,
		startTime: time.Now(),
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/characters", s.handleCharacters) // GET list / POST upsert
	mux.HandleFunc("/chat/", s.handleChat)            // POST buffered or .../stream
	mux.HandleFunc("/reset/", s.handleReset)          // POST reset session
	mux.HandleFunc("/examples/", s.handleExamples)    // POST run stored examples
	mux.HandleFunc("/api/status", s.handleStatus)     // Health check endpoint

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No write timeout: streamed chat responses may run long.
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("🌐 Starting character chat server on http://localhost:%d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profiles, err := s.profiles.LoadAll()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load profiles")
			return
		}
		names := make([]string, 0, len(profiles))
		for _, p := range profiles {
			names = append(names, p.Name)
		}
		writeJSON(w, http.StatusOK, names)
	case http.MethodPost:
		var p profile.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid profile body")
			return
		}
		if p.Name == "" {
			writeError(w, http.StatusBadRequest, "profile name is required")
			return
		}
		if err := s.profiles.Upsert(p); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save profile")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Profile %q saved", p.Name),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/chat/")
	streaming := false
	if rest, ok := strings.CutSuffix(name, "/stream"); ok {
		name = rest
		streaming = true
	}
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "character name missing")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, err := s.registry.GetOrCreate(name)
	if err != nil {
		writeSessionError(w, name, err)
		return
	}

	if streaming {
		s.streamChat(w, r, name, sess, req.Message)
		return
	}

	answer, err := sess.Send(r.Context(), req.Message)
	if err != nil {
		writeSessionError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Character: name, Message: req.Message, Response: answer})
}

// streamChat emits the model's chunks as Server-Sent Events in
// arrival order, then a final "done" event. A client disconnect
// cancels the model call via the request context.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, name string, sess *session.Session, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, err := sess.SendStream(r.Context(), message, func(chunk string) {
		data, merr := json.Marshal(chunk)
		if merr != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	})
	if err != nil {
		// Headers are already sent; report the failure in-band.
		fmt.Fprintf(w, "event: error\ndata: %q\n\n", userMessage(name, err))
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/reset/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "character name missing")
		return
	}
	if err := s.registry.Reset(name); err != nil {
		writeSessionError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Conversation reset for character %q", name),
	})
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/examples/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "character name missing")
		return
	}

	sess, err := s.registry.GetOrCreate(name)
	if err != nil {
		writeSessionError(w, name, err)
		return
	}
	results, err := sess.RunExamples(r.Context())
	if err != nil {
		writeSessionError(w, name, err)
		return
	}

	rows := make([]exampleRow, 0, len(results))
	for _, res := range results {
		row := exampleRow{Question: res.Question, Expected: res.Expected, Generated: res.Generated}
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
		"live_sessions": s.registry.Len(),
	})
}

func writeSessionError(w http.ResponseWriter, name string, err error) {
	var gw *session.GatewayError
	switch {
	case errors.Is(err, session.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Character %q not found", name))
	case errors.Is(err, session.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Message is required")
	case errors.Is(err, session.ErrSessionBusy):
		writeError(w, http.StatusConflict, fmt.Sprintf("Character %q is busy, retry shortly", name))
	case errors.As(err, &gw):
		writeError(w, http.StatusBadGateway, "The model is unavailable, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func userMessage(name string, err error) string {
	switch {
	case errors.Is(err, session.ErrProfileNotFound):
		return fmt.Sprintf("Character %q not found", name)
	case errors.Is(err, session.ErrInvalidInput):
		return "Message is required"
	case errors.Is(err, session.ErrSessionBusy):
		return fmt.Sprintf("Character %q is busy, retry shortly", name)
	default:
		return "The model is unavailable, try again"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package refine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// newMockRefiner points a refiner at an httptest server standing in for the
// chat completions endpoint.
func newMockRefiner(t *testing.T, handler http.HandlerFunc) *Refiner {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	return NewRefinerWithClient(openai.NewClientWithConfig(cfg), "gpt-4o-mini")
}

func completionResponse(content string) []byte {
	resp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestRefineSendsTranscriptAndNotes(t *testing.T) {
	var req openai.ChatCompletionRequest
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		if hr.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", hr.URL.Path)
		}
		if err := json.NewDecoder(hr.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("Hello everyone.\nLet's begin."))
	})

	got, err := r.Refine(context.Background(), "helo evryone\nlets begin", "Speaker: Dana")
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if got != "Hello everyone.\nLet's begin." {
		t.Fatalf("refined = %q", got)
	}

	if req.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q, want gpt-4o-mini", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first role = %q, want system", req.Messages[0].Role)
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "helo evryone") {
		t.Fatalf("user message missing transcript: %q", user)
	}
	if !strings.Contains(user, "Speaker: Dana") {
		t.Fatalf("user message missing notes: %q", user)
	}
}

func TestRefineOmitsEmptyNotes(t *testing.T) {
	var req openai.ChatCompletionRequest
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		json.NewDecoder(hr.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("Fine."))
	})

	if _, err := r.Refine(context.Background(), "fine", "   "); err != nil {
		t.Fatalf("refine: %v", err)
	}
	if strings.Contains(req.Messages[1].Content, "Context notes") {
		t.Fatalf("user message carries empty notes block: %q", req.Messages[1].Content)
	}
}

func TestRefineEmptyTranscript(t *testing.T) {
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		t.Error("request sent for empty transcript")
	})

	if _, err := r.Refine(context.Background(), "  \n ", ""); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}

func TestSummarizeUsesSummaryPrompt(t *testing.T) {
	var req openai.ChatCompletionRequest
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		json.NewDecoder(hr.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("## Overview\nShort sync."))
	})

	got, err := r.Summarize(context.Background(), "we synced on the launch", "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.HasPrefix(got, "## Overview") {
		t.Fatalf("summary = %q", got)
	}
	if !strings.Contains(req.Messages[0].Content, "summarize meeting transcripts") {
		t.Fatalf("system prompt = %q", req.Messages[0].Content)
	}
}

func TestNoChoicesIsAnError(t *testing.T) {
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	})

	if _, err := r.Refine(context.Background(), "something", ""); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestEmptyContentIsAnError(t *testing.T) {
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("   "))
	})

	if _, err := r.Summarize(context.Background(), "something", ""); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	r := newMockRefiner(t, func(w http.ResponseWriter, hr *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	})

	if _, err := r.Refine(context.Background(), "something", ""); err == nil {
		t.Fatal("expected error from server failure")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/decomp/internal/decompose"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	cfg := ClientConfig{
		APIKey: "test-key-123",
		Model:  anthropic.ModelClaudeSonnet4_20250514,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q, want %q", client.Model(), anthropic.ModelClaudeSonnet4_20250514)
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewClient_WithEnvVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-test-key")

	client, err := NewClient(ClientConfig{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	os.Unsetenv("ANTHROPIC_API_KEY")

	_, err := NewClient(ClientConfig{})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Default model = %q, want %q", client.Model(), anthropic.ModelClaudeSonnet4_20250514)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	tests := []struct {
		in   anthropic.Model
		want string
	}{
		{anthropic.ModelClaudeSonnet4_20250514, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{anthropic.ModelClaudeHaiku4_5_20251001, "us.anthropic.claude-haiku-4-5-20251001-v1:0"},
		{"custom-model", "custom-model"},
	}
	for _, tt := range tests {
		if got := translateModelForBedrock(tt.in); string(got) != tt.want {
			t.Errorf("translateModelForBedrock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClient_TranslateModelOnlyForBedrock(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if got := client.TranslateModel(anthropic.ModelClaudeSonnet4_20250514); got != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("direct client should not translate, got %q", got)
	}
}

// messagesServer fakes the Messages endpoint.
func messagesServer(t *testing.T, reply string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(body, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-sonnet-4-20250514",
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 120, "output_tokens": 30},
		})
	}))
}

func TestClient_Complete(t *testing.T) {
	var captured map[string]any
	server := messagesServer(t, `[{"id": "1", "title": "only"}]`, &captured)
	defer server.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: server.URL, DisableRetries: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Complete(context.Background(), decompose.ReasoningRequest{
		System:    "system text",
		Prompt:    "decompose this",
		MaxTokens: 512,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !strings.Contains(resp.Text, `"title": "only"`) {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if resp.InputTokens != 120 || resp.OutputTokens != 30 {
		t.Errorf("usage = %d/%d, want 120/30", resp.InputTokens, resp.OutputTokens)
	}
	in, out := client.Tracker().Total()
	if in != 120 || out != 30 || client.Tracker().Calls() != 1 {
		t.Errorf("tracker = %d/%d over %d calls", in, out, client.Tracker().Calls())
	}

	if captured["max_tokens"] != float64(512) {
		t.Errorf("max_tokens = %v, want 512", captured["max_tokens"])
	}
	if captured["model"] != string(anthropic.ModelClaudeSonnet4_20250514) {
		t.Errorf("model = %v", captured["model"])
	}
}

func TestClient_CompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: server.URL, DisableRetries: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Complete(context.Background(), decompose.ReasoningRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error from failing server")
	}
	if client.Tracker().Calls() != 0 {
		t.Error("failed calls must not be tracked")
	}
}

func TestTokenTrackerConcurrentAdds(t *testing.T) {
	tracker := NewTokenTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Add(7, 3)
		}()
	}
	wg.Wait()

	input, output := tracker.Total()
	if input != 350 || output != 150 {
		t.Errorf("Total() = %d/%d, want 350/150", input, output)
	}
	if tracker.Calls() != 50 {
		t.Errorf("Calls() = %d, want 50", tracker.Calls())
	}
}

func TestNewClient_Bedrock(t *testing.T) {
	if os.Getenv("AWS_REGION") == "" && os.Getenv("AWS_DEFAULT_REGION") == "" {
		t.Skip("AWS_REGION not set, skipping Bedrock test")
	}

	client, err := NewClient(ClientConfig{
		UseAWSBedrock: true,
		AWSRegion:     "us-west-2",
		Model:         anthropic.ModelClaudeSonnet4_20250514,
	})
	if err != nil {
		t.Fatalf("NewClient with Bedrock failed: %v", err)
	}
	if string(client.Model()) != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("Model = %q, want Bedrock inference profile", client.Model())
	}
}

package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maumtalk/counseling-server/internal/config"
)

func testConfigs(baseURL string) (config.OpenRouterConfig, config.ChatConfig) {
	return config.OpenRouterConfig{
			APIKey:         "test-key",
			Model:          "openai/gpt-oss-20b",
			BaseURL:        baseURL,
			SiteURL:        "http://localhost:8080",
			SiteName:       "test",
			RequestTimeout: 5 * time.Second,
		}, config.ChatConfig{
			MaxRetries:        3,
			RetryBaseDelay:    time.Millisecond,
			MinResponseLength: 10,
			Temperature:       0.7,
			MaxTokens:         2000,
		}
}

func completionBody(content string) chatResponse {
	return chatResponse{Choices: []choice{{Message: ChatMessage{Role: "assistant", Content: content}}}}
}

func TestSendReturnsCompletion(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(completionBody("네, 말씀해 주셔서 감사해요."))
	}))
	defer srv.Close()

	orCfg, chatCfg := testConfigs(srv.URL)
	client := NewClient(orCfg, chatCfg, nil)

	got, err := client.Send(context.Background(), "안녕하세요", "당신은 상담사입니다.", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got != "네, 말씀해 주셔서 감사해요." {
		t.Fatalf("unexpected completion %q", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 request, got %d", calls)
	}
}

func TestSendRetriesShortCompletions(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			_ = json.NewEncoder(w).Encode(completionBody(""))
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody("죄송해요, 조금 늦었네요. 다시 이야기해 볼까요?"))
	}))
	defer srv.Close()

	orCfg, chatCfg := testConfigs(srv.URL)
	client := NewClient(orCfg, chatCfg, nil)

	got, err := client.Send(context.Background(), "안녕하세요", "prompt", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty completion after retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendExhaustsRetriesOnBlankCompletions(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	orCfg, chatCfg := testConfigs(srv.URL)
	client := NewClient(orCfg, chatCfg, nil)

	_, err := client.Send(context.Background(), "안녕하세요", "prompt", nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if atomic.LoadInt32(&calls) != int32(chatCfg.MaxRetries) {
		t.Fatalf("expected %d attempts, got %d", chatCfg.MaxRetries, calls)
	}
}

func TestSendDoesNotRetryHTTPErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	orCfg, chatCfg := testConfigs(srv.URL)
	client := NewClient(orCfg, chatCfg, nil)

	_, err := client.Send(context.Background(), "안녕하세요", "prompt", nil)
	if err == nil {
		t.Fatal("expected error for HTTP 429")
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("HTTP errors must propagate, not exhaust retries: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestSendRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody("짧음"))
	}))
	defer srv.Close()

	orCfg, chatCfg := testConfigs(srv.URL)
	chatCfg.RetryBaseDelay = time.Second
	client := NewClient(orCfg, chatCfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, "안녕하세요", "prompt", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestSendOrdersMessages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		want := []string{"system", "user", "assistant", "user"}
		if len(req.Messages) != len(want) {
			t.Errorf("expected %d messages, got %d", len(want), len(req.Messages))
		} else {
			for i, role := range want {
				if req.Messages[i].Role != role {
					t.Errorf("message %d: expected role %q, got %q", i, role, req.Messages[i].Role)
				}
			}
		}
		_ = json.NewEncoder(w).Encode(completionBody("그 말씀을 들으니 마음이 쓰이네요."))
	}))
	defer srv.Close()

	orCfg, chatCfg := testConfigs(srv.URL)
	client := NewClient(orCfg, chatCfg, nil)

	history := []ChatMessage{
		{Role: "user", Content: "고민이 있어요 [단계: 관계 형성]"},
		{Role: "assistant", Content: "어떤 고민인가요? [단계: 관계 형성]"},
	}
	if _, err := client.Send(context.Background(), "사실은요...", "prompt", history); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
)

func sseFrame(t *testing.T, text string) string {
	t.Helper()
	payload, err := sonic.MarshalString(messages.NewDeltaChunk(text))
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return "data: " + payload + "\n\n"
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := gateway.NewClient(gateway.Config{BaseURL: srv.URL + "/functions/v1", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return NewClient(gw, Options{ReadSize: 7})
}

func TestSendStreamsReply(t *testing.T) {
	var got messages.ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/functions/v1/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": OPENROUTER PROCESSING\n\n")
		fmt.Fprint(w, sseFrame(t, "Hi "))
		fmt.Fprint(w, sseFrame(t, "there"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	conv := NewConversation()
	conv.AddUser("earlier")
	_ = conv.AddAssistant("answer", "")

	var deltas []string
	reply, err := client.Send(context.Background(), conv, "hello", func(d, _ string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Content != "Hi there" {
		t.Errorf("expected %q, got %q", "Hi there", reply.Content)
	}
	if len(deltas) != 2 {
		t.Errorf("expected 2 deltas, got %v", deltas)
	}

	if len(got.Messages) != 3 || got.Messages[2].Content != "hello" || got.Messages[2].Role != "user" {
		t.Errorf("unexpected request history: %+v", got.Messages)
	}

	msgs := conv.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].Role != RoleAssistant || msgs[3].Content != "Hi there" {
		t.Errorf("unexpected assistant message: %+v", msgs[3])
	}
	if conv.Streaming() {
		t.Error("expected turn to be closed")
	}
}

func TestSendStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		title  string
	}{
		{"rate limited", http.StatusTooManyRequests, gateway.ErrRateLimited, "Rate Limited"},
		{"credits exhausted", http.StatusPaymentRequired, gateway.ErrCreditsExhausted, "Credits Exhausted"},
		{"server error", http.StatusInternalServerError, nil, "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":"nope"}`)
			})

			conv := NewConversation()
			_, err := client.Send(context.Background(), conv, "hello", nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if gateway.StatusCode(err) != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, gateway.StatusCode(err))
			}
			if n := NoticeFor(err); n.Title != tt.title {
				t.Errorf("expected notice %q, got %q", tt.title, n.Title)
			}

			msgs := conv.Messages()
			if len(msgs) != 1 || msgs[0].Role != RoleUser {
				t.Errorf("expected only the user message, got %+v", msgs)
			}
		})
	}
}

func TestSendMidStreamDropKeepsPartialReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		partial := sseFrame(t, "Hel") + sseFrame(t, "lo")
		// Promise more than is sent so the connection drops mid-body.
		w.Header().Set("Content-Length", strconv.Itoa(len(partial)+100))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, partial)
	})

	conv := NewConversation()
	reply, err := client.Send(context.Background(), conv, "hello", nil)
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}
	if reply.Content != "Hello" {
		t.Errorf("expected partial reply %q, got %q", "Hello", reply.Content)
	}

	last, ok := conv.Last()
	if !ok || last.Role != RoleAssistant || last.Content != "Hello" {
		t.Errorf("expected partial assistant message to be kept, got %+v", last)
	}
}

func TestSendDropBeforeFirstDeltaLeavesNoEmptyMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
	})

	conv := NewConversation()
	_, err := client.Send(context.Background(), conv, "hello", nil)
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}
	for _, m := range conv.Messages() {
		if m.Content == "" {
			t.Errorf("found empty message: %+v", m)
		}
	}
	if conv.Len() != 1 {
		t.Errorf("expected only the user message, got %d messages", conv.Len())
	}
}

func TestSendRoutesImageRequests(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/functions/v1/generate-image" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req messages.ImageRequest
		body, _ := io.ReadAll(r.Body)
		_ = sonic.Unmarshal(body, &req)
		if !strings.Contains(req.Prompt, "cat") {
			t.Errorf("unexpected prompt %q", req.Prompt)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"imageUrl":"data:image/png;base64,AAAA","text":"Here is your cat"}`)
	})

	conv := NewConversation()
	reply, err := client.Send(context.Background(), conv, "Please DRAW a cat", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.ImageURL == "" || reply.Content != "Here is your cat" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if last, _ := conv.Last(); last.ImageURL != reply.ImageURL {
		t.Errorf("expected image message in conversation, got %+v", last)
	}
}

func TestIsImageRequest(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"generate image of a sunset", true},
		{"Can you draw me a horse?", true},
		{"ek tasveer dikhao", true},
		{"एक फोटो बना दो", true},
		{"what is the capital of France", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsImageRequest(tt.text); got != tt.want {
			t.Errorf("IsImageRequest(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

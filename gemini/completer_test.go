package gemini

import (
	"errors"
	"io"
	"iter"
	"strings"
	"testing"

	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
	"github.com/room4-2/chatai/stream"
	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

type step struct {
	resp *genai.GenerateContentResponse
	err  error
}

func fakeSeq(steps ...step) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, s := range steps {
			if !yield(s.resp, s.err) {
				return
			}
		}
	}
}

func TestToContents(t *testing.T) {
	contents, system := toContents([]messages.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "again"},
	})

	if system == nil || len(system.Parts) != 1 || system.Parts[0].Text != "be brief" {
		t.Fatalf("unexpected system instruction %+v", system)
	}
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	if len(contents) != len(wantRoles) {
		t.Fatalf("expected %d contents, got %d", len(wantRoles), len(contents))
	}
	for i, role := range wantRoles {
		if contents[i].Role != role {
			t.Errorf("content %d: expected role %s, got %s", i, role, contents[i].Role)
		}
	}
}

func TestEncodeStream(t *testing.T) {
	body, err := encodeStream(fakeSeq(
		step{resp: textResponse("Hel")},
		step{resp: textResponse("")},
		step{resp: textResponse("lo")},
	))
	if err != nil {
		t.Fatalf("encodeStream failed: %v", err)
	}
	defer body.Close()

	dec := stream.NewDecoder(nil)
	if _, err := stream.Pump(t.Context(), stream.FromReader(body, 0), dec); err != nil {
		t.Fatalf("Pump failed: %v", err)
	}
	if dec.Content() != "Hello" {
		t.Errorf("expected Hello, got %q", dec.Content())
	}
}

func TestEncodeStreamEndsWithDone(t *testing.T) {
	body, err := encodeStream(fakeSeq(step{resp: textResponse("x")}))
	if err != nil {
		t.Fatalf("encodeStream failed: %v", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.HasSuffix(string(data), "data: [DONE]\n\n") {
		t.Errorf("expected [DONE] terminator, got %q", data)
	}
	if !strings.Contains(string(data), `"finish_reason":"stop"`) {
		t.Errorf("expected finish chunk, got %q", data)
	}
}

func TestEncodeStreamFirstError(t *testing.T) {
	_, err := encodeStream(fakeSeq(step{err: genai.APIError{Code: 429, Message: "quota"}}))
	if !errors.Is(err, gateway.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if gateway.StatusCode(err) != 429 {
		t.Errorf("expected status 429, got %d", gateway.StatusCode(err))
	}
}

func TestEncodeStreamMidStreamError(t *testing.T) {
	boom := errors.New("connection reset")
	body, err := encodeStream(fakeSeq(
		step{resp: textResponse("partial")},
		step{err: boom},
	))
	if err != nil {
		t.Fatalf("encodeStream failed: %v", err)
	}
	data, err := io.ReadAll(body)
	if !errors.Is(err, boom) {
		t.Errorf("expected stream to abort with %v, got %v", boom, err)
	}
	if !strings.Contains(string(data), "partial") {
		t.Errorf("expected partial content before abort, got %q", data)
	}
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/functions/v1/text-to-speech" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"text":"hi"}` {
			t.Errorf("unexpected body %s", body)
		}
		fmt.Fprint(w, `{"audioContent":"AAAA"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/functions/v1/"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	in := struct {
		Text string `json:"text"`
	}{"hi"}
	if err := c.PostJSON(context.Background(), "/text-to-speech", in, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.AudioContent != "AAAA" {
		t.Errorf("unexpected response %+v", out)
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"rate limited", 429, `{"error":"Rate limits exceeded, please try again later."}`, ErrRateLimited, "Rate limits exceeded, please try again later."},
		{"credits", 402, `{"error":"AI credits exhausted."}`, ErrCreditsExhausted, "AI credits exhausted."},
		{"plain text", 502, "bad gateway", nil, "bad gateway"},
		{"empty", 500, "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c, _ := NewClient(Config{BaseURL: srv.URL})
			_, err := c.Stream(context.Background(), "chat", map[string]any{})

			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StatusError, got %v", err)
			}
			if se.Code != tt.status || se.Message != tt.message {
				t.Errorf("unexpected error %+v", se)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected errors.Is(%v)", tt.want)
			}
		})
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}

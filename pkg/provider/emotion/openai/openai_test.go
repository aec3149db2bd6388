package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/hearth/pkg/provider/emotion"
	"github.com/MrWong99/hearth/pkg/provider/emotion/openai"
)

func chatServer(t *testing.T, content string, gotUser *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if gotUser != nil && len(req.Messages) > 0 {
			*gotUser = req.Messages[len(req.Messages)-1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		want    emotion.Category
	}{
		{"exact", "joy", emotion.Joy},
		{"decorated", " Sadness.\n", emotion.Sadness},
		{"unknown", "confusion", emotion.Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var user string
			srv := chatServer(t, tt.content, &user)
			c, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/"))
			if err != nil {
				t.Fatal(err)
			}
			got, err := c.Classify(context.Background(), "The lights are on.")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
			if user != "The lights are on." {
				t.Errorf("user message = %q", user)
			}
		})
	}
}

func TestClassify_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/"))
	got, err := c.Classify(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if got != emotion.Neutral {
		t.Errorf("category on error = %q, want neutral", got)
	}
}

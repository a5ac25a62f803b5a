package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestClient points a Client at a stub generateContent endpoint.
func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient("test-key")
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	return c, srv
}

func TestComplete_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest

	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "Use trackBy."}},
				}},
			},
		})
	})
	defer srv.Close()

	reply, err := c.Complete(context.Background(), "why is my ngFor slow?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Use trackBy." {
		t.Errorf("unexpected reply: %q", reply)
	}
	if gotPath != "/models/"+defaultModel+":generateContent" {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if len(gotReq.Contents) != 1 || len(gotReq.Contents[0].Parts) != 1 {
		t.Fatalf("unexpected request shape: %+v", gotReq)
	}
	sent := gotReq.Contents[0].Parts[0].Text
	if !strings.Contains(sent, "why is my ngFor slow?") {
		t.Errorf("question missing from prompt: %q", sent)
	}
	if !strings.HasPrefix(sent, completionPrompt) {
		t.Errorf("prompt framing missing: %q", sent)
	}
}

func TestComplete_NoAPIKey(t *testing.T) {
	c := NewClient("")

	if _, err := c.Complete(context.Background(), "anything"); err == nil {
		t.Fatal("expected error without an API key")
	}
}

func TestComplete_APIError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 429, "message": "quota exceeded"},
		})
	})
	defer srv.Close()

	_, err := c.Complete(context.Background(), "question")
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected API message in error, got: %v", err)
	}
}

func TestComplete_EmptyCandidates(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	})
	defer srv.Close()

	if _, err := c.Complete(context.Background(), "question"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestComplete_ServerDown(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // refuse connections

	if _, err := c.Complete(context.Background(), "question"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestClassify_NeverErrors(t *testing.T) {
	c := NewClient("")

	match, err := c.Classify(context.Background(), "a typescript question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !match {
		t.Error("expected classification match")
	}
}

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 30 * time.Second

	// completionPrompt frames every question for reply-style answers.
	completionPrompt = "You are a professional senior full stack engineer and an expert in all Angular versions.\n" +
		"Answer concisely in a message/reply style (max 4 sentences).\nQuestion: "
)

// Client is the assistant collaborator. Classification runs against the
// local keyword classifier; completion calls the Gemini generateContent
// REST endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	classifier *Classifier
}

// NewClient creates a Client using the given API key. An empty key is
// accepted; completion calls will then fail and degrade through the
// invoker's generic-notice path.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		classifier: NewClassifier(),
	}
}

// Classify reports whether text is a programming-related question.
func (c *Client) Classify(ctx context.Context, text string) (bool, error) {
	return c.classifier.Matches(text), nil
}

// generateRequest is the generateContent call payload.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is the subset of the generateContent response the
// client reads.
type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete generates a reply for the question text. Timeouts, transport
// errors, API errors, and empty candidates all surface as errors for
// the caller to contain.
func (c *Client) Complete(ctx context.Context, text string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("assistant: no API key configured")
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: completionPrompt + text}}}},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant: completion call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("assistant: read response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("assistant: decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("assistant: API error %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant: unexpected status %d", resp.StatusCode)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("assistant: empty completion response")
	}

	return out.Candidates[0].Content.Parts[0].Text, nil
}

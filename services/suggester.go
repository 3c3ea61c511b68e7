package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledgermate/recon-api/models"
)

const defaultAnthropicURL = "https://api.anthropic.com/v1/messages"

// AISuggester asks Claude for a best-guess category. It is the optional last
// stage of the cascade: every failure is reported as an error and the
// resolver falls through silently.
type AISuggester struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAISuggester() *AISuggester {
	return &AISuggester{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		model:   "claude-3-haiku-20240307", // fast and cheap, short replies
		baseURL: defaultAnthropicURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// suggestionReply is the structured reply we ask the model for.
type suggestionReply struct {
	Category   *string `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SuggestCategory asks the model to pick one category from the vocabulary.
// Returns (nil, nil) when the model declines to pick.
func (s *AISuggester) SuggestCategory(ctx context.Context, text string, categories []string) (*models.Categorization, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if len(categories) == 0 {
		return nil, nil
	}

	systemPrompt := fmt.Sprintf(`You are a financial transaction classifier.
Pick exactly ONE category from this list for the user's transaction text:
%s

Respond ONLY with a JSON object of the form:
{"category": "<one of the listed categories>", "confidence": <0.0 to 1.0>}

If none of the categories fits, respond with {"category": null, "confidence": 0}.
No other text.`, strings.Join(categories, ", "))

	reqBody := anthropicRequest{
		Model:     s.model,
		MaxTokens: 100,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: fmt.Sprintf("Transaction: %s", text)},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic error %d: %s", resp.StatusCode, string(body))
	}

	var result anthropicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	return parseSuggestion(result.Content[0].Text)
}

// parseSuggestion extracts a category+confidence from the model's reply.
// Models occasionally wrap the JSON in prose, so after a failed direct parse
// we retry on the first object-shaped substring. A reply without a category
// field is rejected.
func parseSuggestion(text string) (*models.Categorization, error) {
	var reply suggestionReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("no JSON object in reply: %q", text)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
			return nil, fmt.Errorf("malformed reply: %w", err)
		}
	}

	if reply.Category == nil || strings.TrimSpace(*reply.Category) == "" {
		// The model declined; not an error.
		return nil, nil
	}

	result := &models.Categorization{
		Category:   strings.TrimSpace(*reply.Category),
		Confidence: reply.Confidence,
		Source:     models.SourceAI,
	}
	result.Clamp()
	return result, nil
}

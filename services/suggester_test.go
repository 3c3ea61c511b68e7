package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermate/recon-api/models"
)

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		category   string
		confidence float64
		declined   bool
		wantErr    bool
	}{
		{
			name:       "clean json",
			reply:      `{"category": "Cloud Services", "confidence": 0.85}`,
			category:   "Cloud Services",
			confidence: 0.85,
		},
		{
			name:       "json wrapped in prose",
			reply:      "Sure! Here is my answer:\n{\"category\": \"Meals\", \"confidence\": 0.7}\nHope that helps.",
			category:   "Meals",
			confidence: 0.7,
		},
		{
			name:       "confidence above one is clamped",
			reply:      `{"category": "Travel", "confidence": 12}`,
			category:   "Travel",
			confidence: 1.0,
		},
		{
			name:       "negative confidence is clamped",
			reply:      `{"category": "Travel", "confidence": -0.3}`,
			category:   "Travel",
			confidence: 0.0,
		},
		{
			name:     "model declines with null",
			reply:    `{"category": null, "confidence": 0}`,
			declined: true,
		},
		{
			name:     "model declines with blank",
			reply:    `{"category": "   ", "confidence": 0.9}`,
			declined: true,
		},
		{
			name:    "no json at all",
			reply:   "I cannot categorize this transaction.",
			wantErr: true,
		},
		{
			name:    "broken json substring",
			reply:   `answer: {"category": "Meals", "confidence": }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestion(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.declined {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, models.SourceAI, got.Source)
		})
	}
}

func newTestSuggester(url string) *AISuggester {
	return &AISuggester{
		apiKey:  "test-key",
		model:   "claude-3-haiku-20240307",
		baseURL: url,
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

func TestSuggestCategory_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": [{"text": "{\"category\": \"Software\", \"confidence\": 0.8}"}]}`))
	}))
	defer server.Close()

	s := newTestSuggester(server.URL)
	got, err := s.SuggestCategory(context.Background(), "github inc invoice", []string{"Software", "Meals"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Software", got.Category)
	assert.Equal(t, 0.8, got.Confidence)
}

func TestSuggestCategory_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	s := newTestSuggester(server.URL)
	got, err := s.SuggestCategory(context.Background(), "anything", []string{"Meals"})
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestSuggestCategory_MissingKey(t *testing.T) {
	s := &AISuggester{}
	_, err := s.SuggestCategory(context.Background(), "anything", []string{"Meals"})
	require.Error(t, err)
}

func TestSuggestCategory_EmptyVocabulary(t *testing.T) {
	s := newTestSuggester("http://127.0.0.1:0")
	got, err := s.SuggestCategory(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

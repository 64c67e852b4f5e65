package llmadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGeneratorCompleteReturnsFirstChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role":    "assistant",
						"content": "(instance Fluffy Cat)",
					},
					"finish_reason": "stop",
				},
			},
		})
	}))
	defer server.Close()

	gen := NewOpenAIGenerator("test-key", server.URL, "")
	got, err := gen.Complete(context.Background(), NotePrompt("Fluffy is a cat"))
	require.NoError(t, err)
	assert.Equal(t, "(instance Fluffy Cat)", got)
}

func TestOpenAIGeneratorCompleteReturnsErrorOnNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"model":   "gpt-4o",
			"choices": []map[string]any{},
		})
	}))
	defer server.Close()

	gen := NewOpenAIGenerator("test-key", server.URL, "")
	_, err := gen.Complete(context.Background(), "note")
	assert.Error(t, err)
}

func TestOpenAIGeneratorCompletePropagatesTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gen := NewOpenAIGenerator("test-key", server.URL, "")
	_, err := gen.Complete(context.Background(), "note")
	assert.Error(t, err)
}

func TestNotePromptEmbedsTheNoteVerbatim(t *testing.T) {
	prompt := NotePrompt("Socrates is a man")
	assert.Contains(t, prompt, "Socrates is a man")
}

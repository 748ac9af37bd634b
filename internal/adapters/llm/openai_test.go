package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/config"
	"github.com/chainscope/chainscope/internal/domain/research"
)

func testEvidence() []research.Evidence {
	return []research.Evidence{
		{URL: "https://a.example", Title: "Port strike", Content: "dock workers walked out"},
		{URL: "https://b.example", Title: "Chip shortage", Content: "fab capacity constrained"},
	}
}

func TestNewSynthesizer(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		_, err := NewSynthesizer(config.LLMConfig{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("defaults model", func(t *testing.T) {
		s, err := NewSynthesizer(config.LLMConfig{APIKey: "sk-test"}, slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", s.model)
	})
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt("semiconductors", testEvidence())

	assert.Contains(t, prompt, "Industry: semiconductors")
	assert.Contains(t, prompt, "[1] Port strike (https://a.example)")
	assert.Contains(t, prompt, "dock workers walked out")
	assert.Contains(t, prompt, "[2] Chip shortage (https://b.example)")
	assert.Contains(t, prompt, "Assess the supply chain fragility")
}

func TestFindingsSchema(t *testing.T) {
	schema, ok := findingsSchema.(*jsonschema.Schema)
	require.True(t, ok)

	// DoNotReference inlines everything, so the top level is the object itself.
	assert.Equal(t, "object", schema.Type)
	for _, key := range []string{"summary", "fragility_score", "risk_items", "alerts", "citations"} {
		_, present := schema.Properties.Get(key)
		assert.True(t, present, "schema missing property %q", key)
	}
}

func TestSynthesize(t *testing.T) {
	findingsJSON := `{
		"summary": "Supply is constrained.",
		"fragility_score": 7,
		"risk_items": [{"category": "logistics", "impact_score": 8, "description": "port congestion"}],
		"alerts": ["Port strike ongoing"],
		"citations": [{"url": "https://a.example", "title": "Port strike"}]
	}`

	t.Run("decodes structured output", func(t *testing.T) {
		var captured map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			resp := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"model":   "gpt-4o-mini",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": findingsJSON,
					},
				}},
				"usage": map[string]any{
					"prompt_tokens":     100,
					"completion_tokens": 50,
					"total_tokens":      150,
				},
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer srv.Close()

		s, err := NewSynthesizer(config.LLMConfig{
			APIKey:  "sk-test",
			BaseURL: srv.URL,
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Second,
		}, slog.New(slog.DiscardHandler))
		require.NoError(t, err)

		findings, err := s.Synthesize(context.Background(), "semiconductors", testEvidence())
		require.NoError(t, err)

		assert.Equal(t, "Supply is constrained.", findings.Summary)
		assert.Equal(t, 7, findings.FragilityScore)
		require.Len(t, findings.RiskItems, 1)
		assert.Equal(t, "logistics", findings.RiskItems[0].Category)
		assert.Equal(t, 8, findings.RiskItems[0].ImpactScore)
		require.Len(t, findings.Citations, 1)
		assert.Equal(t, "https://a.example", findings.Citations[0].URL)

		// The request carries the strict JSON schema response format.
		assert.Equal(t, "gpt-4o-mini", captured["model"])
		format, ok := captured["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_schema", format["type"])
		jsonSchema, ok := format["json_schema"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, findingsSchemaName, jsonSchema["name"])
		assert.Equal(t, true, jsonSchema["strict"])
	})

	t.Run("api error propagates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "upstream exploded"}}`))
		}))
		defer srv.Close()

		s, err := NewSynthesizer(config.LLMConfig{
			APIKey:  "sk-test",
			BaseURL: srv.URL,
		}, slog.New(slog.DiscardHandler))
		require.NoError(t, err)

		_, err = s.Synthesize(context.Background(), "semiconductors", testEvidence())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai chat")
	})

	t.Run("malformed content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]any{
				"id":     "chatcmpl-2",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": "not json at all",
					},
				}},
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer srv.Close()

		s, err := NewSynthesizer(config.LLMConfig{
			APIKey:  "sk-test",
			BaseURL: srv.URL,
		}, slog.New(slog.DiscardHandler))
		require.NoError(t, err)

		_, err = s.Synthesize(context.Background(), "semiconductors", testEvidence())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshal findings")
	})
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"rate limited", &openai.Error{StatusCode: 429}, true},
		{"server error", &openai.Error{StatusCode: 500}, true},
		{"bad gateway", &openai.Error{StatusCode: 502}, true},
		{"bad request", &openai.Error{StatusCode: 400}, false},
		{"unauthorized", &openai.Error{StatusCode: 401}, false},
		{"plain network error", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(ctx, tt.err))
		})
	}
}

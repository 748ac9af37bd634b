// Package llm implements the findings synthesis stage on top of the OpenAI
// Chat Completions API with strict structured output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chainscope/chainscope/config"
	"github.com/chainscope/chainscope/internal/domain/research"
)

const (
	findingsSchemaName  = "supply_chain_findings"
	maxCompletionTokens = 4096

	systemPrompt = "You are a supply chain risk analyst. Given raw web evidence " +
		"about an industry, produce a concise fragility assessment. Base every " +
		"claim on the supplied evidence and cite the sources you used. Fragility " +
		"and impact scores range from 1 (minimal risk) to 10 (severe risk)."
)

// findingsSchema is reflected once at init; the Findings shape is static.
var findingsSchema = generateSchema[research.Findings]()

// Synthesizer produces structured findings from gathered evidence.
type Synthesizer struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSynthesizer constructs an OpenAI-backed findings synthesizer.
func NewSynthesizer(cfg config.LLMConfig, logger *slog.Logger) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Synthesizer{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "llm_synthesizer"),
	}, nil
}

// Synthesize runs one structured completion over the evidence and decodes the
// result into findings. Score bounds are not enforced here; the caller treats
// out-of-range scores as advisory.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	topic string,
	evidence []research.Evidence,
) (*research.Findings, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        findingsSchemaName,
		Description: openai.String("Structured supply chain fragility assessment"),
		Schema:      findingsSchema,
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(topic, evidence)),
		},
		MaxTokens: openai.Int(maxCompletionTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	}

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	s.logger.DebugContext(ctx, "synthesis completed",
		"model", s.model,
		"topic", topic,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	var findings research.Findings
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &findings); err != nil {
		return nil, fmt.Errorf("unmarshal findings: %w", err)
	}

	return &findings, nil
}

func buildUserPrompt(topic string, evidence []research.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Industry: %s\n\nEvidence:\n\n", topic)
	b.WriteString(research.CombinedText(evidence))
	b.WriteString("\nAssess the supply chain fragility of this industry based on the evidence above.")
	return b.String()
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// IsRetryable reports whether an LLM call failure is worth another attempt.
// Rate limits and server-side errors are transient; client errors are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	return true
}

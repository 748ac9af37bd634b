package config

import (
	"strings"
	"time"
)

// ResearchConfig groups configuration for the external providers used by the
// research pipeline: the web search API for evidence collection and the LLM
// API for structured synthesis.
type ResearchConfig struct {
	Search SearchConfig `envPrefix:"SEARCH_"`
	LLM    LLMConfig    `envPrefix:"LLM_"`
}

// Sanitize applies guardrails to research provider sub-configs.
func (c *ResearchConfig) Sanitize() {
	c.Search.Sanitize()
	c.LLM.Sanitize()
}

// SearchConfig contains web search API configuration for evidence gathering.
type SearchConfig struct {
	// APIKey authenticates against the search API. Required for the
	// research-runner service mode.
	APIKey string `env:"API_KEY"`

	// BaseURL is the search API endpoint.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.tavily.com"`

	// MaxResults caps how many evidence documents are gathered per job.
	MaxResults int `env:"MAX_RESULTS" envDefault:"5"`

	// Timeout bounds a single search API call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to search configuration values.
func (c *SearchConfig) Sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.MaxResults < 1 {
		c.MaxResults = 1
	}
	if c.MaxResults > 20 {
		c.MaxResults = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// LLMConfig contains LLM API configuration for findings synthesis.
type LLMConfig struct {
	// APIKey authenticates against the LLM API. Required for the
	// research-runner service mode.
	APIKey string `env:"API_KEY"`

	// BaseURL overrides the LLM API endpoint. Leave empty for the provider default.
	BaseURL string `env:"BASE_URL"`

	// Model is the model identifier used for synthesis.
	Model string `env:"MODEL" envDefault:"gpt-4o-mini"`

	// Timeout bounds a single synthesis call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"120s"`
}

// Sanitize applies guardrails to LLM configuration values.
func (c *LLMConfig) Sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Model = strings.TrimSpace(c.Model); c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
}

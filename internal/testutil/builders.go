// Package testutil provides testing utilities and helpers for the chainscope job system.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/chainscope/chainscope/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Topic:      "Semiconductors",
			Kind:       model.JobKindManual,
			Priority:   50,
			MaxRetries: 3,
		},
	}
}

// WithTopic sets the research topic.
func (b *JobRequestBuilder) WithTopic(topic string) *JobRequestBuilder {
	b.req.Topic = topic
	return b
}

// WithKind sets the job kind.
func (b *JobRequestBuilder) WithKind(kind model.JobKind) *JobRequestBuilder {
	b.req.Kind = kind
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithMetadata sets the job metadata.
func (b *JobRequestBuilder) WithMetadata(metadata json.RawMessage) *JobRequestBuilder {
	b.req.Metadata = metadata
	return b
}

// WithMetadataString sets the job metadata from a string.
func (b *JobRequestBuilder) WithMetadataString(metadata string) *JobRequestBuilder {
	b.req.Metadata = json.RawMessage(metadata)
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// Common test job request presets

// ManualJobRequest creates a manually submitted research job request with default values.
func ManualJobRequest(topic string) *model.CreateJobRequest {
	return NewJobRequest().
		WithTopic(topic).
		Build()
}

// ScheduledTopicJobRequest creates a scheduler-originated job request.
func ScheduledTopicJobRequest(topic, fireKey string) *model.CreateJobRequest {
	metadata, _ := json.Marshal(map[string]string{"scheduler.fire_key": fireKey})
	return NewJobRequest().
		WithTopic(topic).
		WithKind(model.JobKindScheduled).
		WithMetadata(metadata).
		Build()
}

// HighPriorityJobRequest creates a high priority job request.
func HighPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(100).
		Build()
}

// LowPriorityJobRequest creates a low priority job request.
func LowPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(10).
		Build()
}

// FutureJobRequest creates a job request scheduled for the future.
func FutureJobRequest(scheduledAt time.Time) *model.CreateJobRequest {
	return NewJobRequest().
		WithScheduledAt(scheduledAt).
		Build()
}

// RetryableJobRequest creates a job request with custom retry settings.
func RetryableJobRequest(maxRetries int) *model.CreateJobRequest {
	return NewJobRequest().
		WithMaxRetries(maxRetries).
		Build()
}

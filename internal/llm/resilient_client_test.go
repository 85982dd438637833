package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerbuildr/internal/retry"
)

type scriptedClient struct {
	responses []string
	errors    []error
	calls     int
}

func (m *scriptedClient) Generate(ctx context.Context, prompt string) (string, error) {
	i := m.calls
	m.calls++
	if i < len(m.errors) && m.errors[i] != nil {
		return "", m.errors[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "default response", nil
}

func testRetryConfig() retry.RetryConfig {
	return retry.RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		Retryable:  retry.IsRetryableError,
	}
}

func TestResilientClient_Success(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"Headline": "headline"}`}}
	rc := NewResilientClient(client, testRetryConfig())

	var got map[string]string
	resp := rc.GenerateJSON(context.Background(), Request{Prompt: "p"}, &got)

	require.True(t, resp.Success)
	assert.Equal(t, 1, resp.AttemptsMade)
	assert.False(t, resp.JSONRepaired)
	assert.Equal(t, map[string]string{"Headline": "headline"}, got)
	assert.Equal(t, Stats{Requests: 1, Successful: 1}, rc.Stats())
}

func TestResilientClient_RepairsJSON(t *testing.T) {
	client := &scriptedClient{responses: []string{"```json\n{\"Headline\": \"headline\",}\n```"}}
	rc := NewResilientClient(client, testRetryConfig())

	var got map[string]string
	resp := rc.GenerateJSON(context.Background(), Request{Prompt: "p"}, &got)

	require.True(t, resp.Success)
	assert.True(t, resp.JSONRepaired)
	require.NotNil(t, resp.RepairStats)
	assert.Contains(t, resp.RepairStats.RepairStrategies, "trailing_commas")
	assert.Equal(t, int64(1), rc.Stats().JSONRepairs)
}

func TestResilientClient_RetriesTransientAndGarbage(t *testing.T) {
	client := &scriptedClient{
		errors:    []error{errors.New("HTTP 503 Service Unavailable")},
		responses: []string{"", "I cannot help with that", `{"a": "b"}`},
	}
	rc := NewResilientClient(client, testRetryConfig())

	var got map[string]string
	resp := rc.GenerateJSON(context.Background(), Request{Prompt: "p"}, &got)

	require.True(t, resp.Success)
	assert.Equal(t, 3, resp.AttemptsMade)
	assert.Equal(t, []string{"HTTP 503 Service Unavailable", "json_processing_failed"}, resp.RetryReasons)
	assert.Equal(t, int64(2), rc.Stats().Retries)
}

func TestResilientClient_NonRetryableStops(t *testing.T) {
	client := &scriptedClient{errors: []error{errors.New("invalid api key")}}
	rc := NewResilientClient(client, testRetryConfig())

	var got map[string]string
	resp := rc.GenerateJSON(context.Background(), Request{Prompt: "p"}, &got)

	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.AttemptsMade)
	assert.EqualError(t, resp.Err, "invalid api key")
}

func TestResilientClient_Timeout(t *testing.T) {
	slow := ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		select {
		case <-time.After(time.Second):
			return `{}`, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	rc := NewResilientClient(slow, testRetryConfig())

	var got map[string]string
	resp := rc.GenerateJSON(context.Background(), Request{Prompt: "p", Timeout: 20 * time.Millisecond}, &got)

	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), rc.Stats().Timeouts)
}

package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bannerbuildr/internal/logging"
	"github.com/bannerbuildr/internal/retry"
)

// Client generates a completion for a single prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Client.
func (f ClientFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Request is one structured generation request.
type Request struct {
	Prompt  string
	Model   string
	Timeout time.Duration
	Logger  *logging.OperationLogger
}

// Response reports how a request went.
type Response struct {
	Raw           string
	Success       bool
	AttemptsMade  int
	TotalDuration time.Duration
	JSONRepaired  bool
	RepairStats   *RepairStats
	RetryReasons  []string
	Err           error
}

// Stats are cumulative counters over the lifetime of a ResilientClient.
type Stats struct {
	Requests    int64 `json:"requests"`
	Successful  int64 `json:"successful"`
	Retries     int64 `json:"retries"`
	JSONRepairs int64 `json:"json_repairs"`
	Timeouts    int64 `json:"timeouts"`
}

// ResilientClient retries a Client with backoff and retries responses whose
// JSON cannot be recovered.
type ResilientClient struct {
	client      Client
	retryConfig retry.RetryConfig

	requests    atomic.Int64
	successful  atomic.Int64
	retries     atomic.Int64
	jsonRepairs atomic.Int64
	timeouts    atomic.Int64
}

// NewResilientClient wraps client.
func NewResilientClient(client Client, config retry.RetryConfig) *ResilientClient {
	return &ResilientClient{client: client, retryConfig: config}
}

// GenerateJSON generates a response and decodes its JSON payload into target.
func (rc *ResilientClient) GenerateJSON(ctx context.Context, req Request, target interface{}) Response {
	rc.requests.Add(1)
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cfg := rc.retryConfig
	retryable := cfg.Retryable
	cfg.Retryable = func(err error) bool {
		if errors.Is(err, ErrUnrecoverableJSON) {
			return true
		}
		return retryable == nil || retryable(err)
	}

	response := Response{}
	result := retry.RetryWithBackoffAndReason(ctx, cfg, func() (error, string) {
		req.Logger.LogRequest(req.Model, req.Prompt)
		raw, err := rc.client.Generate(ctx, req.Prompt)
		if err != nil {
			return err, err.Error()
		}
		req.Logger.LogResponse(raw)
		response.Raw = raw

		processed, err := ProcessResponse(raw, target, req.Logger)
		if err != nil {
			return errors.Join(ErrUnrecoverableJSON, err), "json_processing_failed"
		}
		if processed.RepairStats.WasRepaired {
			response.JSONRepaired = true
			stats := processed.RepairStats
			response.RepairStats = &stats
		}
		return nil, "success"
	}, req.Logger)

	response.Success = result.Success
	response.AttemptsMade = result.Attempts
	response.TotalDuration = result.TotalDuration
	response.RetryReasons = result.RetryReasons
	response.Err = result.LastError

	rc.retries.Add(int64(result.Attempts - 1))
	if result.Success {
		rc.successful.Add(1)
	}
	if response.JSONRepaired {
		rc.jsonRepairs.Add(1)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rc.timeouts.Add(1)
		req.Logger.Log("LLM request timed out after %v", response.TotalDuration)
	}
	return response
}

// ErrUnrecoverableJSON marks attempts whose response could not be decoded.
var ErrUnrecoverableJSON = errors.New("unrecoverable JSON in model response")

// Stats returns a snapshot of the counters.
func (rc *ResilientClient) Stats() Stats {
	return Stats{
		Requests:    rc.requests.Load(),
		Successful:  rc.successful.Load(),
		Retries:     rc.retries.Load(),
		JSONRepairs: rc.jsonRepairs.Load(),
		Timeouts:    rc.timeouts.Load(),
	}
}

// RetryConfig returns the retry configuration in use.
func (rc *ResilientClient) RetryConfig() retry.RetryConfig {
	return rc.retryConfig
}

package aiconnectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/llm"
	"github.com/bannerbuildr/internal/logging"
	"github.com/bannerbuildr/internal/retry"
	"github.com/bannerbuildr/pkg/models"
)

const (
	// MappingRole frames the model for the mapping task.
	MappingRole = "You map spreadsheet column names onto the variables of a JavaScript configuration file used by an HTML5 display ad."

	// MappingInstructions explains the expected answer.
	MappingInstructions = `Read the configuration script and the list of column names below.
Return a single JSON object whose keys are column names and whose values are the
names of the variables (or object properties) in the script that each column should
populate. Judge by the meaning and purpose of each variable, not only by spelling.
Leave out any column that has no sensible variable. Do not invent variables that
are not in the script. Answer with the JSON object only.`
)

// BuildMappingPrompt renders the mapping prompt for a script and its columns.
func BuildMappingPrompt(scriptText string, fieldNames []string) string {
	var b strings.Builder
	b.WriteString(MappingRole)
	b.WriteString("\n\n")
	b.WriteString(MappingInstructions)
	b.WriteString("\n\nConfiguration script:\n```javascript\n")
	b.WriteString(strings.TrimSpace(scriptText))
	b.WriteString("\n```\n\nColumns:\n")
	for _, f := range fieldNames {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("\nJSON mapping:\n")
	return b.String()
}

// Inferrer is a mapping.NameInferenceService backed by an LLM.
type Inferrer struct {
	client  *llm.ResilientClient
	model   string
	timeout time.Duration
}

// InferrerOptions configures an Inferrer.
type InferrerOptions struct {
	Model   string
	Timeout time.Duration
	Retry   retry.RetryConfig
}

// NewInferrer wraps client with retries and JSON recovery.
func NewInferrer(client llm.Client, opts InferrerOptions) *Inferrer {
	cfg := opts.Retry
	if cfg.MaxRetries == 0 && cfg.BaseDelay == 0 {
		cfg = retry.LLMRetryConfig()
	}
	return &Inferrer{
		client:  llm.NewResilientClient(client, cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
	}
}

// NewConnectorInferrer builds an Inferrer over a Connector.
func NewConnectorInferrer(c *Connector, timeout time.Duration, cfg retry.RetryConfig) *Inferrer {
	return NewInferrer(c, InferrerOptions{Model: c.Model(), Timeout: timeout, Retry: cfg})
}

// Infer implements mapping.NameInferenceService.
func (i *Inferrer) Infer(ctx context.Context, scriptText string, fieldNames []string) (map[string]string, error) {
	op := logging.StartOperation("field_mapping", uuid.NewString())
	defer op.Close()
	op.LogSection(fmt.Sprintf("Mapping %d fields", len(fieldNames)))

	var raw map[string]interface{}
	resp := i.client.GenerateJSON(ctx, llm.Request{
		Prompt:  BuildMappingPrompt(scriptText, fieldNames),
		Model:   i.model,
		Timeout: i.timeout,
		Logger:  op,
	}, &raw)
	if !resp.Success {
		op.LogError("infer", resp.Err)
		return nil, fmt.Errorf("mapping inference failed after %d attempts: %w", resp.AttemptsMade, resp.Err)
	}

	out := make(map[string]string, len(raw))
	for field, v := range raw {
		if name := strings.TrimSpace(models.ScalarString(v)); name != "" {
			out[field] = name
		}
	}
	log.Debug().
		Str("model", i.model).
		Int("fields", len(fieldNames)).
		Int("proposed", len(out)).
		Bool("json_repaired", resp.JSONRepaired).
		Msg("Mapping inference completed")
	return out, nil
}

// Stats exposes the underlying client counters.
func (i *Inferrer) Stats() llm.Stats {
	return i.client.Stats()
}

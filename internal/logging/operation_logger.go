package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OperationLogger tags every line of one logical operation (a generation, a
// batch download, an inference call) with the operation id and the time
// elapsed since it started. A nil *OperationLogger discards everything.
type OperationLogger struct {
	kind      string
	id        string
	startTime time.Time
	logger    zerolog.Logger

	mutex sync.Mutex
	lines int
}

// StartOperation creates a logger for a new operation.
func StartOperation(kind, id string) *OperationLogger {
	return StartOperationWith(log.Logger, kind, id)
}

// StartOperationWith derives the operation logger from base.
func StartOperationWith(base zerolog.Logger, kind, id string) *OperationLogger {
	o := &OperationLogger{
		kind:      kind,
		id:        id,
		startTime: time.Now(),
		logger:    base.With().Str("operation", kind).Str("operation_id", id).Logger(),
	}
	o.logger.Debug().Msg("operation started")
	return o
}

// ID returns the operation id.
func (o *OperationLogger) ID() string {
	if o == nil {
		return ""
	}
	return o.id
}

// Zerolog exposes the tagged logger for structured fields.
func (o *OperationLogger) Zerolog() *zerolog.Logger {
	if o == nil {
		l := zerolog.Nop()
		return &l
	}
	return &o.logger
}

// Log writes a formatted informational line.
func (o *OperationLogger) Log(format string, args ...interface{}) {
	if o == nil {
		return
	}
	o.emit(o.logger.Info(), fmt.Sprintf(format, args...))
}

// LogSection writes a section marker.
func (o *OperationLogger) LogSection(title string) {
	if o == nil {
		return
	}
	o.emit(o.logger.Info().Str("section", title), "== "+title+" ==")
}

// LogRequest records an LLM request without the prompt body.
func (o *OperationLogger) LogRequest(model, prompt string) {
	if o == nil {
		return
	}
	o.emit(o.logger.Debug().
		Str("model", model).
		Int("prompt_length", len(prompt)).
		Str("prompt_head", truncateString(prompt, 200)), "llm request")
}

// LogResponse records an LLM response summary.
func (o *OperationLogger) LogResponse(response string) {
	if o == nil {
		return
	}
	o.emit(o.logger.Debug().
		Int("response_length", len(response)).
		Str("response_head", truncateString(response, 200)), "llm response")
}

// LogError records a failure with context.
func (o *OperationLogger) LogError(context string, err error) {
	if o == nil {
		return
	}
	o.emit(o.logger.Error().Err(err).Str("context", context), "operation error")
}

// Close logs the operation summary.
func (o *OperationLogger) Close() {
	if o == nil {
		return
	}
	o.mutex.Lock()
	lines := o.lines
	o.mutex.Unlock()
	o.logger.Debug().
		Dur("elapsed", time.Since(o.startTime)).
		Int("lines", lines).
		Msg("operation finished")
}

func (o *OperationLogger) emit(e *zerolog.Event, msg string) {
	o.mutex.Lock()
	o.lines++
	o.mutex.Unlock()
	e.Dur("elapsed", time.Since(o.startTime).Round(time.Millisecond)).Msg(msg)
}

func truncateString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

package batch

import (
	"runtime"
	"time"
)

// Config holds configuration for batch processing
type Config struct {
	MaxWorkers int           `koanf:"max_workers"`
	MaxRetries int           `koanf:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// DefaultConfig returns a default configuration for batch processing
func DefaultConfig() Config {
	return Config{
		MaxWorkers: runtime.NumCPU(),
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

// ConfigureTaskQueue configures a TaskQueue based on Config
func ConfigureTaskQueue[T any](config Config) *TaskQueue[T] {
	queue := NewTaskQueue[T](config.MaxWorkers)
	queue.SetMaxRetries(config.MaxRetries)
	queue.SetRetryDelay(config.RetryDelay)
	return queue
}

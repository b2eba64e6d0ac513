package orchestrator

import "time"

// Config holds the orchestrator's slice of the configuration surface
// documented in spec.md §6. Other components (bus, registry, correlation)
// own the rest of that surface themselves.
type Config struct {
	MaxConcurrentRequests int
	DefaultTimeoutMs      int
	TaskTimeoutMs         int
	LLMTimeoutMs          int
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 100,
		DefaultTimeoutMs:      30000,
		TaskTimeoutMs:         15000,
		LLMTimeoutMs:          30000,
	}
}

func (c Config) taskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMs) * time.Millisecond
}

func (c Config) llmTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMs) * time.Millisecond
}

// rootTimeoutSeconds computes the root correlation context's timeout:
// defaultTimeoutMs per task, capped at 5 minutes, per spec.md §4.7 step 1.
func (c Config) rootTimeoutSeconds(taskCount int) int {
	if taskCount < 1 {
		taskCount = 1
	}
	totalMs := c.DefaultTimeoutMs * taskCount
	const capMs = 5 * 60 * 1000
	if totalMs > capMs {
		totalMs = capMs
	}
	secs := totalMs / 1000
	if secs < 1 {
		secs = 1
	}
	return secs
}

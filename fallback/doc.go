// Package fallback implements the Fallback & Health component: bounded
// per-task retry with a non-retryable short-circuit, a canned
// emergency-message dictionary the orchestrator falls back to when
// synthesis itself fails, and a health monitor tracking per-agent
// heartbeat age and per-component health level.
package fallback

// Package prompt builds model-specific prompts for the planner and
// orchestrator: task planning, capability detection, parameter
// extraction, and response synthesis. Prompt structure and per-model
// tuning knobs (few-shot example budget, strict JSON mode, token cap)
// are data-driven from an embedded profile table rather than hardcoded
// per call site, and every generated prompt can be scored against a set
// of structural heuristics before it is sent to the model.
package prompt

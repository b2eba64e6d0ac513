// Package planner decomposes a natural-language query into an ordered,
// dependency-annotated task plan by calling the configured LLM through a
// task-planning prompt, validating the response as an acyclic graph, and
// repairing malformed output with a bounded number of follow-up attempts
// before falling back to a degenerate single-task plan.
//
// The planner itself is stateless: all retry state lives on the stack of
// a single Plan call, nothing is retained between calls.
package planner

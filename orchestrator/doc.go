// Package orchestrator implements the end-to-end pipeline described in
// spec.md §4.7: plan a user query into a task DAG, dispatch each task as
// an event, correlate and collect the asynchronous replies, apply
// fallback on timeout/failure, and synthesize a final natural-language
// response. It is the component every other package in this module
// exists to support.
package orchestrator

package orchestrator

import (
	"time"

	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/planner"
	"github.com/agentmesh/amcp/prompt"
)

// Well-known topics the orchestrator publishes and subscribes to.
const (
	TopicTaskRequest  = "orchestrator.task.request"
	TopicTaskResponse = "orchestrator.task.response"
	// TopicFinalResponse is where ProcessRequest's final, synthesized
	// response is also published as an event, for observers that want to
	// watch completed requests rather than call ProcessRequest directly.
	TopicFinalResponse = "orchestrator.response.final"
)

// Status is a completed request's outcome classification.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusPartialSuccess  Status = "PARTIAL_SUCCESS"
	StatusFailed          Status = "FAILED"
)

// Request is the input to ProcessRequest: a natural-language task
// description plus the context the planner and synthesis stages need.
type Request struct {
	TaskDescription   string
	InputData         map[string]any
	AgentCapabilities []prompt.AgentSummary
	Model             string
	Metadata          map[string]string
}

// TaskOutcome is one dispatched task's terminal result.
type TaskOutcome struct {
	TaskID     string
	Capability string
	Success    bool
	Result     map[string]any
	Error      *event.TaskError
}

// Response is ProcessRequest's return value.
type Response struct {
	CorrelationID        string
	Status               Status
	Results              map[string]TaskOutcome
	TaskPlan             planner.TaskPlan
	ResponseText         string
	ProcessingTimeMillis int64
	Timestamp            time.Time
}

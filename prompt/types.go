package prompt

import "fmt"

// Type identifies which JSON-output contract a built prompt targets.
type Type int

const (
	TaskPlanning Type = iota
	CapabilityDetection
	ParameterExtraction
	ResponseSynthesis
)

func (t Type) String() string {
	switch t {
	case TaskPlanning:
		return "TASK_PLANNING"
	case CapabilityDetection:
		return "CAPABILITY_DETECTION"
	case ParameterExtraction:
		return "PARAMETER_EXTRACTION"
	case ResponseSynthesis:
		return "RESPONSE_SYNTHESIS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// isJSON reports whether the prompt type demands a JSON-object reply.
// ResponseSynthesis is the one natural-language exception.
func (t Type) isJSON() bool {
	return t != ResponseSynthesis
}

// AgentSummary is the context handed to BuildTaskPlanningPrompt describing
// one agent available for dispatch.
type AgentSummary struct {
	AgentID      string
	AgentType    string
	Capabilities []string
	Description  string
}

// TaskResult is one completed (or failed) task's outcome fed into
// BuildResponseSynthesisPrompt.
type TaskResult struct {
	TaskID     string
	Capability string
	Success    bool
	Result     any
	Error      string
}

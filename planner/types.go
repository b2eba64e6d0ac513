package planner

// TaskDefinition is one unit of work in a TaskPlan.
type TaskDefinition struct {
	TaskID       string
	Capability   string
	TargetAgent  string
	Parameters   map[string]any
	Priority     int
	Dependencies []string
}

// TaskPlan is an ordered, dependency-annotated decomposition of a query.
// Confidence is the planner's self-reported confidence in [0, 1].
type TaskPlan struct {
	Tasks      []TaskDefinition
	Confidence float64
}

// FallbackCapability is the capability named on the degenerate
// single-task plan emitted when planning fails after all repair
// attempts are exhausted.
const FallbackCapability = "general.fallback"

package planner

import "fmt"

// ErrCycle reports that a task plan's dependency graph is not acyclic.
type ErrCycle struct {
	Remaining []string
}

func (e *ErrCycle) Error() string {
	return fmt.Sprintf("planner: dependency cycle detected among tasks %v", e.Remaining)
}

// ErrUnknownDependency reports a task referencing a dependency taskId not
// present in the plan.
type ErrUnknownDependency struct {
	TaskID       string
	DependencyID string
}

func (e *ErrUnknownDependency) Error() string {
	return fmt.Sprintf("planner: task %q depends on unknown task %q", e.TaskID, e.DependencyID)
}

// validateDAG checks that every dependency id resolves to a task in the
// same plan and that the dependency graph has no cycles.
func validateDAG(tasks []TaskDefinition) error {
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.TaskID] = true
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return &ErrUnknownDependency{TaskID: t.TaskID, DependencyID: dep}
			}
		}
	}
	_, err := topologicalLevels(tasks)
	return err
}

// topologicalLevels runs Kahn's algorithm, returning tasks grouped into
// dispatch levels: level 0 has no dependencies, level N depends only on
// tasks in levels < N. Returns ErrCycle if the graph is not a DAG.
func topologicalLevels(tasks []TaskDefinition) ([][]TaskDefinition, error) {
	byID := make(map[string]TaskDefinition, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, t := range tasks {
		byID[t.TaskID] = t
		if _, ok := inDegree[t.TaskID]; !ok {
			inDegree[t.TaskID] = 0
		}
	}
	for _, t := range tasks {
		inDegree[t.TaskID] += len(t.Dependencies)
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.TaskID)
		}
	}

	var levels [][]TaskDefinition
	remaining := len(tasks)

	frontier := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		level := make([]TaskDefinition, 0, len(frontier))
		var next []string
		for _, id := range frontier {
			level = append(level, byID[id])
			remaining--
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		levels = append(levels, level)
		frontier = next
	}

	if remaining > 0 {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, &ErrCycle{Remaining: stuck}
	}
	return levels, nil
}

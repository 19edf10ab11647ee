// Package deps resolves and validates predecessor links between the tasks of
// one procedure.
package deps

import (
	"fmt"
	"strings"

	"fiscalops/internal/domain"
)

// CycleError reports a dependency cycle. Path starts and ends on the same id
// and each id depends on the one after it.
type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap lets callers treat a cycle as a validation failure.
func (e CycleError) Unwrap() error {
	return domain.ValidationError{Field: "predecessors", Message: e.Error()}
}

// Resolve annotates every task with the id and title of its known
// predecessors. Ids that do not exist in tasks are left out of the
// annotation.
func Resolve(tasks []domain.Task) {
	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}
	for i := range tasks {
		refs := make([]domain.DependencyRef, 0, len(tasks[i].Predecessors))
		for _, id := range tasks[i].Predecessors {
			title, ok := titles[id]
			if !ok {
				continue
			}
			refs = append(refs, domain.DependencyRef{ID: id, Title: title})
		}
		tasks[i].ResolvedDependencies = refs
	}
}

// Validate returns a CycleError when the predecessor graph is not acyclic.
func Validate(tasks []domain.Task) error {
	_, err := TopologicalOrder(tasks)
	return err
}

// TopologicalOrder returns task ids so that every task follows its
// predecessors. Ties keep slice order.
func TopologicalOrder(tasks []domain.Task) ([]string, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	inDegree := make(map[string]int, len(tasks))
	forward := make(map[string][]string)
	edges := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		inDegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, p := range t.Predecessors {
			if !known[p] {
				continue
			}
			inDegree[t.ID]++
			forward[p] = append(forward[p], t.ID)
			edges[t.ID] = append(edges[t.ID], p)
		}
	}

	var queue []string
	for _, t := range tasks {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	sorted := make([]string, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, dep := range forward[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(sorted) == len(inDegree) {
		return sorted, nil
	}
	return nil, CycleError{Path: cyclePath(tasks, edges, inDegree)}
}

// cyclePath walks predecessor edges depth first from the nodes Kahn's
// algorithm could not release.
func cyclePath(tasks []domain.Task, edges map[string][]string, inDegree map[string]int) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(tasks))
	parent := make(map[string]string, len(tasks))
	var path []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		for _, next := range edges[id] {
			switch color[next] {
			case gray:
				path = []string{next}
				for cur := id; cur != next; cur = parent[cur] {
					path = append(path, cur)
				}
				path = append(path, next)
				// each id in the reversed path depends on the next one
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return true
			case white:
				parent[next] = id
				if dfs(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if inDegree[t.ID] > 0 && color[t.ID] == white && dfs(t.ID) {
			return path
		}
	}
	return []string{"(cycle)"}
}

// Dependents returns the ids of tasks that list id as a predecessor, in slice
// order.
func Dependents(tasks []domain.Task, id string) []string {
	var out []string
	for _, t := range tasks {
		for _, p := range t.Predecessors {
			if p == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}

// Incomplete returns the predecessors of task that exist and are not yet
// completed.
func Incomplete(tasks []domain.Task, task domain.Task) []string {
	status := make(map[string]domain.TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}
	var out []string
	for _, p := range task.Predecessors {
		s, ok := status[p]
		if ok && s != domain.TaskCompleted {
			out = append(out, p)
		}
	}
	return out
}

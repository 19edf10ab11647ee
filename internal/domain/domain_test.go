package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fiscalops/internal/domain"
)

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestSortTasksPlacesPredecessorFirstOnTies(t *testing.T) {
	due := time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: "T-001", Priority: domain.PriorityMedium, DueDate: &due, Predecessors: []string{"T-002"}},
		{ID: "T-002", Priority: domain.PriorityMedium, DueDate: &due},
	}
	domain.SortTasks(tasks, []string{"T-002", "T-001"})
	assert.Equal(t, []string{"T-002", "T-001"}, ids(tasks))
}

func TestSortTasksDueDateAndPriorityComeFirst(t *testing.T) {
	early := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: "T-001", Priority: domain.PriorityLow},
		{ID: "T-002", Priority: domain.PriorityLow, DueDate: &late},
		{ID: "T-003", Priority: domain.PriorityHigh, DueDate: &late, Predecessors: []string{"T-002"}},
		{ID: "T-004", Priority: domain.PriorityLow, DueDate: &early},
	}
	domain.SortTasks(tasks, []string{"T-001", "T-002", "T-004", "T-003"})
	assert.Equal(t, []string{"T-004", "T-003", "T-002", "T-001"}, ids(tasks))
}

func TestSortTasksWithoutOrderIsStable(t *testing.T) {
	due := time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: "T-002", Priority: domain.PriorityMedium, DueDate: &due},
		{ID: "T-001", Priority: domain.PriorityMedium, DueDate: &due},
	}
	domain.SortTasks(tasks, nil)
	assert.Equal(t, []string{"T-002", "T-001"}, ids(tasks))
}

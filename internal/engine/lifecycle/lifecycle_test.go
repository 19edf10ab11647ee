package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/lifecycle"
)

var now = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func dueIn(days int) *time.Time {
	d := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &d
}

func mkTask(id string, pr domain.Priority, due *time.Time, preds ...string) domain.Task {
	return domain.Task{
		ID: id, Title: "task " + id, Priority: pr, Status: domain.TaskPending,
		DueDate: due, Predecessors: preds, Deadline: domain.Monthly(30),
		History: []domain.StatusHistoryEntry{{Status: domain.TaskPending, Kind: domain.HistoryCreated, ActorID: domain.SystemActor}},
	}
}

// A <- B <- C, with C also depending on A; D is independent.
func fixture() *domain.Procedure {
	p := &domain.Procedure{
		ID:     "proc-1",
		Status: domain.ProcedureActive,
		Tasks: []domain.Task{
			mkTask("T-001", domain.PriorityHigh, dueIn(-3)),
			mkTask("T-002", domain.PriorityMedium, dueIn(5), "T-001"),
			mkTask("T-003", domain.PriorityHigh, dueIn(10), "T-001", "T-002"),
			mkTask("T-004", domain.PriorityLow, nil),
		},
		NextTaskSeq: 5,
	}
	lifecycle.Recompute(p, now)
	return p
}

func task(t *testing.T, p *domain.Procedure, id string) domain.Task {
	t.Helper()
	i := p.TaskIndex(id)
	require.GreaterOrEqual(t, i, 0, "task %s", id)
	return p.Tasks[i]
}

func unlocksBy(tk domain.Task, trigger string) int {
	n := 0
	for _, h := range tk.History {
		if h.Kind == domain.HistoryUnlock && h.TriggeredBy == trigger {
			n++
		}
	}
	return n
}

func update(t *testing.T, p *domain.Procedure, id string, patch lifecycle.Patch) lifecycle.Change {
	t.Helper()
	ch, err := lifecycle.UpdateTaskStatus(p, id, patch, now, lifecycle.Options{})
	require.NoError(t, err)
	return ch
}

func TestUpdateUnknownTask(t *testing.T) {
	_, err := lifecycle.UpdateTaskStatus(fixture(), "T-999", lifecycle.Patch{}, now, lifecycle.Options{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	_, err := lifecycle.UpdateTaskStatus(fixture(), "T-001", lifecycle.Patch{Status: ptr(domain.TaskStatus("done"))}, now, lifecycle.Options{})
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestProgressHundredAutoCompletes(t *testing.T) {
	p := fixture()
	ch := update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskInProgress), Progress: ptr(100), ActorID: "alice"})
	assert.True(t, ch.AutoCompleted)

	tk := task(t, p, "T-004")
	assert.Equal(t, domain.TaskCompleted, tk.Status)
	assert.Equal(t, 100, tk.Progress)
	require.Len(t, tk.History, 3)
	assert.Equal(t, domain.HistoryStatus, tk.History[1].Kind)
	assert.Equal(t, domain.TaskInProgress, tk.History[1].Status)
	assert.Equal(t, "alice", tk.History[1].ActorID)
	last := tk.History[2]
	assert.Equal(t, domain.HistoryAutoComplete, last.Kind)
	assert.Equal(t, domain.TaskCompleted, last.Status)
	assert.Equal(t, domain.SystemActor, last.ActorID)
	require.NotNil(t, tk.CompletedAt)
}

func TestProgressIsClamped(t *testing.T) {
	p := fixture()
	update(t, p, "T-004", lifecycle.Patch{Progress: ptr(-20)})
	assert.Equal(t, 0, task(t, p, "T-004").Progress)

	update(t, p, "T-004", lifecycle.Patch{Progress: ptr(250)})
	tk := task(t, p, "T-004")
	assert.Equal(t, 100, tk.Progress)
	assert.Equal(t, domain.TaskCompleted, tk.Status)
}

func TestCompletingSetsFullProgress(t *testing.T) {
	p := fixture()
	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskCompleted), Progress: ptr(40)})
	tk := task(t, p, "T-004")
	assert.Equal(t, 100, tk.Progress)
	require.Len(t, tk.History, 2, "explicit completion needs no auto-complete entry")
}

func TestReopenResetsProgress(t *testing.T) {
	p := fixture()
	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskInProgress), Note: "client sent more invoices"})
	tk := task(t, p, "T-004")
	assert.Equal(t, domain.TaskInProgress, tk.Status)
	assert.Equal(t, 0, tk.Progress)
	assert.Nil(t, tk.CompletedAt)
	assert.Equal(t, "client sent more invoices", tk.History[len(tk.History)-1].Note)

	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskPending), Progress: ptr(60)})
	assert.Equal(t, 60, task(t, p, "T-004").Progress)
}

func TestAssigneeAndNote(t *testing.T) {
	p := fixture()
	update(t, p, "T-002", lifecycle.Patch{AssigneeID: ptr("bob"), Note: "assigned"})
	tk := task(t, p, "T-002")
	assert.Equal(t, "bob", tk.AssigneeID)
	assert.Equal(t, domain.TaskPending, tk.Status)
	assert.Equal(t, "assigned", tk.History[len(tk.History)-1].Note)
}

func TestCascadingUnlock(t *testing.T) {
	p := fixture()
	ch := update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	assert.Equal(t, []string{"T-002"}, ch.Unlocked, "T-003 still waits on T-002")
	b := task(t, p, "T-002")
	assert.Equal(t, 1, unlocksBy(b, "T-001"))
	lastB := b.History[len(b.History)-1]
	assert.Equal(t, domain.SystemActor, lastB.ActorID)
	assert.Equal(t, domain.TaskPending, lastB.Status)

	ch = update(t, p, "T-002", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	assert.Equal(t, []string{"T-003"}, ch.Unlocked)
	assert.Equal(t, 1, unlocksBy(task(t, p, "T-003"), "T-002"))
}

func TestUnlockIsIdempotent(t *testing.T) {
	p := fixture()
	update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted), Note: "again"})
	update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskInProgress)})
	ch := update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	assert.Empty(t, ch.Unlocked)
	assert.Equal(t, 1, unlocksBy(task(t, p, "T-002"), "T-001"))
}

func TestCompletedDependentsAreNotUnlocked(t *testing.T) {
	p := fixture()
	update(t, p, "T-002", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	ch := update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	assert.Equal(t, []string{"T-003"}, ch.Unlocked)
	assert.Zero(t, unlocksBy(task(t, p, "T-002"), "T-001"))
}

func TestEnforcedGating(t *testing.T) {
	p := fixture()
	opts := lifecycle.Options{Gating: lifecycle.GatingEnforced}

	_, err := lifecycle.UpdateTaskStatus(p, "T-002", lifecycle.Patch{Status: ptr(domain.TaskInProgress)}, now, opts)
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "predecessors", ve.Field)
	assert.Len(t, task(t, p, "T-002").History, 1, "rejected updates leave no trace")

	_, err = lifecycle.UpdateTaskStatus(p, "T-002", lifecycle.Patch{Progress: ptr(100)}, now, opts)
	require.Error(t, err, "auto-completion is gated too")

	_, err = lifecycle.UpdateTaskStatus(p, "T-002", lifecycle.Patch{Note: "waiting"}, now, opts)
	require.NoError(t, err)

	_, err = lifecycle.UpdateTaskStatus(p, "T-002", lifecycle.Patch{Status: ptr(domain.TaskInProgress), Force: true}, now, opts)
	require.NoError(t, err)

	_, err = lifecycle.UpdateTaskStatus(p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted)}, now, opts)
	require.NoError(t, err)
	_, err = lifecycle.UpdateTaskStatus(p, "T-002", lifecycle.Patch{Status: ptr(domain.TaskCompleted)}, now, opts)
	require.NoError(t, err)
}

func TestRecomputeSummary(t *testing.T) {
	p := fixture()
	assert.Equal(t, 4, p.Summary.Total)
	assert.Equal(t, 4, p.Summary.Pending)
	assert.Equal(t, 2, p.Summary.HighPriorityOutstanding)
	assert.Equal(t, 1, p.Summary.Overdue)
	require.NotNil(t, p.Summary.NextDueDate)
	assert.Equal(t, *dueIn(5), *p.Summary.NextDueDate)

	update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	update(t, p, "T-002", lifecycle.Patch{Status: ptr(domain.TaskInProgress), Progress: ptr(50)})
	assert.Equal(t, 1, p.Summary.Completed)
	assert.Equal(t, 1, p.Summary.InProgress)
	assert.Equal(t, 2, p.Summary.Pending)
	assert.Equal(t, 0, p.Summary.Overdue)
	assert.Equal(t, 1, p.Summary.HighPriorityOutstanding)
	// (100 + 50 + 0 + 0) / 4
	assert.Equal(t, 38, p.CompletionPercentage)
}

func TestCompletionPercentageRounds(t *testing.T) {
	p := &domain.Procedure{Tasks: []domain.Task{
		{ID: "T-001", Progress: 100, Status: domain.TaskCompleted},
		{ID: "T-002", Progress: 50, Status: domain.TaskInProgress},
		{ID: "T-003", Progress: 0, Status: domain.TaskPending},
	}}
	lifecycle.Recompute(p, now)
	assert.Equal(t, 50, p.CompletionPercentage)
	assert.Equal(t, domain.ProcedureActive, p.Status)

	empty := &domain.Procedure{Status: domain.ProcedureActive}
	lifecycle.Recompute(empty, now)
	assert.Equal(t, 0, empty.CompletionPercentage)
	assert.Equal(t, domain.ProcedureActive, empty.Status, "an empty procedure is never complete")
}

func TestProcedureStatusFollowsTasks(t *testing.T) {
	p := fixture()
	for _, id := range []string{"T-001", "T-002", "T-003", "T-004"} {
		update(t, p, id, lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	}
	assert.Equal(t, domain.ProcedureCompleted, p.Status)
	assert.Equal(t, 100, p.CompletionPercentage)
	assert.Nil(t, p.Summary.NextDueDate)

	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskInProgress)})
	assert.Equal(t, domain.ProcedureActive, p.Status)

	require.NoError(t, lifecycle.SetStatus(p, domain.ProcedureArchived, now))
	update(t, p, "T-004", lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	assert.Equal(t, domain.ProcedureArchived, p.Status, "archived is sticky")
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	p := fixture()
	err := lifecycle.SetStatus(p, "paused", now)
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ProcedureActive, p.Status)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	p := fixture()
	update(t, p, "T-001", lifecycle.Patch{Status: ptr(domain.TaskInProgress), ActorID: "alice"})
	before := append([]domain.StatusHistoryEntry(nil), task(t, p, "T-001").History...)
	update(t, p, "T-001", lifecycle.Patch{Progress: ptr(100), ActorID: "alice"})
	after := task(t, p, "T-001").History
	require.Len(t, after, len(before)+2)
	assert.Equal(t, before, after[:len(before)])
}

func TestAddTaskDefaults(t *testing.T) {
	p := fixture()
	tk, err := lifecycle.AddTask(p, lifecycle.TaskSpec{Title: "  Payroll review ", ActorID: "alice"}, now, lifecycle.Options{})
	require.NoError(t, err)
	assert.Equal(t, "T-005", tk.ID)
	assert.Equal(t, "Payroll review", tk.Title)
	assert.Equal(t, domain.PriorityMedium, tk.Priority)
	assert.Equal(t, domain.Monthly(30), tk.Deadline)
	assert.Equal(t, time.Date(2026, time.October, 30, 0, 0, 0, 0, time.UTC), *tk.DueDate)
	require.Len(t, tk.History, 1)
	assert.Equal(t, domain.HistoryCreated, tk.History[0].Kind)
	assert.Equal(t, "alice", tk.History[0].ActorID)
	assert.Equal(t, 6, p.NextTaskSeq)
	assert.Equal(t, 5, p.Summary.Total)
}

func TestAddTaskExplicitDueAndPredecessors(t *testing.T) {
	p := fixture()
	due := time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC)
	tk, err := lifecycle.AddTask(p, lifecycle.TaskSpec{
		Title: "Chase missing receipts", Priority: domain.PriorityHigh, DueDate: &due, Predecessors: []string{"T-001"},
	}, now, lifecycle.Options{})
	require.NoError(t, err)
	assert.Equal(t, due, *tk.DueDate)
	assert.Equal(t, []domain.DependencyRef{{ID: "T-001", Title: "task T-001"}}, tk.ResolvedDependencies)
	// sorted after T-001 (overdue) and before T-002
	assert.Equal(t, tk.ID, p.Tasks[1].ID)
}

func TestAddTaskValidation(t *testing.T) {
	cases := []struct {
		name  string
		spec  lifecycle.TaskSpec
		field string
	}{
		{"missing title", lifecycle.TaskSpec{Title: "   "}, "title"},
		{"bad priority", lifecycle.TaskSpec{Title: "x", Priority: "urgent"}, "priority"},
		{"unknown predecessor", lifecycle.TaskSpec{Title: "x", Predecessors: []string{"T-404"}}, "predecessors"},
		{"bad rule", lifecycle.TaskSpec{Title: "x", Deadline: &domain.DeadlineRule{Kind: domain.RuleMonthly, DayOfMonth: 40}}, "deadline.day_of_month"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := fixture()
			_, err := lifecycle.AddTask(p, tc.spec, now, lifecycle.Options{})
			var ve domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Len(t, p.Tasks, 4)
		})
	}
}

func TestAddTaskReopensCompletedProcedure(t *testing.T) {
	p := fixture()
	for _, id := range []string{"T-001", "T-002", "T-003", "T-004"} {
		update(t, p, id, lifecycle.Patch{Status: ptr(domain.TaskCompleted)})
	}
	require.Equal(t, domain.ProcedureCompleted, p.Status)
	_, err := lifecycle.AddTask(p, lifecycle.TaskSpec{Title: "Late adjustment"}, now, lifecycle.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.ProcedureActive, p.Status)
}

func TestAddTaskSkipsTakenIDs(t *testing.T) {
	p := fixture()
	p.NextTaskSeq = 0
	p.Tasks = append(p.Tasks, mkTask("T-006", domain.PriorityLow, nil))
	tk, err := lifecycle.AddTask(p, lifecycle.TaskSpec{Title: "Extra"}, now, lifecycle.Options{})
	require.NoError(t, err)
	assert.Equal(t, "T-007", tk.ID)
	assert.Equal(t, 8, p.NextTaskSeq)
}

package domain

import (
	"fmt"
	"sort"
	"time"
)

type EntityType string

const (
	EntitySoleProprietor EntityType = "sole_proprietor"
	EntityPartnership    EntityType = "partnership"
	EntityCorporation    EntityType = "corporation"
	EntityLLC            EntityType = "llc"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntitySoleProprietor, EntityPartnership, EntityCorporation, EntityLLC:
		return true
	}
	return false
}

// Corporate reports whether the entity files corporate tax and financial statements.
func (e EntityType) Corporate() bool {
	return e == EntityCorporation || e == EntityLLC
}

type Regime string

const (
	RegimeFlatRate    Regime = "flat_rate"
	RegimeSimplified  Regime = "simplified"
	RegimeOrdinary    Regime = "ordinary"
	RegimeUnspecified Regime = "unspecified"
)

func (r Regime) Valid() bool {
	switch r {
	case RegimeFlatRate, RegimeSimplified, RegimeOrdinary, RegimeUnspecified:
		return true
	}
	return false
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities for sorting: high < medium < low. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

type ProcedureStatus string

const (
	ProcedureActive    ProcedureStatus = "active"
	ProcedureCompleted ProcedureStatus = "completed"
	ProcedureArchived  ProcedureStatus = "archived"
)

func (s ProcedureStatus) Valid() bool {
	switch s {
	case ProcedureActive, ProcedureCompleted, ProcedureArchived:
		return true
	}
	return false
}

type RuleKind string

const (
	RuleMonthly   RuleKind = "monthly"
	RuleQuarterly RuleKind = "quarterly"
	RuleAnnual    RuleKind = "annual"
)

// DeadlineRule is a relative deadline. DayOfMonth is used by monthly rules,
// Category by annual rules.
type DeadlineRule struct {
	Kind       RuleKind `json:"kind" enum:"monthly,quarterly,annual"`
	DayOfMonth int      `json:"day_of_month,omitempty"`
	Category   string   `json:"category,omitempty"`
}

func Monthly(day int) DeadlineRule { return DeadlineRule{Kind: RuleMonthly, DayOfMonth: day} }

func Quarterly() DeadlineRule { return DeadlineRule{Kind: RuleQuarterly} }

func Annual(category string) DeadlineRule {
	return DeadlineRule{Kind: RuleAnnual, Category: category}
}

type ClientProfile struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	EntityType    EntityType `json:"entity_type" enum:"sole_proprietor,partnership,corporation,llc"`
	Sector        string     `json:"sector,omitempty"`
	Regime        Regime     `json:"regime" enum:"flat_rate,simplified,ordinary,unspecified"`
	AnnualRevenue float64    `json:"annual_revenue"`
	EmployeeCount int        `json:"employee_count"`
	FoundedAt     *time.Time `json:"founded_at,omitempty" format:"date-time"`
	HasTaxID      bool       `json:"has_tax_id"`
	CreatedAt     time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time  `json:"updated_at" format:"date-time"`
}

type TaskSeed struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority"`
	Category    string   `json:"category"`
}

type ProcedureRequirements struct {
	ProcedureType          string     `json:"procedure_type"`
	Complexity             Complexity `json:"complexity" enum:"low,medium,high"`
	SectorSeeds            []TaskSeed `json:"sector_seeds"`
	FiscalRequirements     []string   `json:"fiscal_requirements"`
	AccountingRequirements []string   `json:"accounting_requirements"`
	NeedsQuarterlyReview   bool       `json:"needs_quarterly_review"`
	NeedsAudit             bool       `json:"needs_audit"`
	IsNewlyFounded         bool       `json:"is_newly_founded"`
	NeedsAnnualPlanning    bool       `json:"needs_annual_planning"`
}

func (r ProcedureRequirements) HasFiscal(tag string) bool {
	for _, t := range r.FiscalRequirements {
		if t == tag {
			return true
		}
	}
	return false
}

type HistoryKind string

const (
	HistoryCreated      HistoryKind = "created"
	HistoryStatus       HistoryKind = "status"
	HistoryAutoComplete HistoryKind = "auto_complete"
	HistoryUnlock       HistoryKind = "unlock"
)

// SystemActor attributes history entries written by the engine itself.
const SystemActor = "system"

type StatusHistoryEntry struct {
	Status      TaskStatus  `json:"status"`
	Kind        HistoryKind `json:"kind"`
	Timestamp   time.Time   `json:"timestamp" format:"date-time"`
	Note        string      `json:"note,omitempty"`
	ActorID     string      `json:"actor_id"`
	TriggeredBy string      `json:"triggered_by,omitempty"`
}

type DependencyRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Task struct {
	ID                   string               `json:"id"`
	Key                  string               `json:"key,omitempty"`
	Title                string               `json:"title"`
	Description          string               `json:"description,omitempty"`
	Priority             Priority             `json:"priority" enum:"high,medium,low"`
	Status               TaskStatus           `json:"status" enum:"pending,in_progress,completed"`
	Progress             int                  `json:"progress"`
	Deadline             DeadlineRule         `json:"deadline"`
	DueDate              *time.Time           `json:"due_date,omitempty" format:"date-time"`
	Predecessors         []string             `json:"predecessors,omitempty"`
	ResolvedDependencies []DependencyRef      `json:"resolved_dependencies,omitempty"`
	Tags                 []string             `json:"tags,omitempty"`
	AssigneeID           string               `json:"assignee_id,omitempty"`
	History              []StatusHistoryEntry `json:"history"`
	CreatedAt            time.Time            `json:"created_at" format:"date-time"`
	UpdatedAt            time.Time            `json:"updated_at" format:"date-time"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty" format:"date-time"`
}

func (t Task) Completed() bool { return t.Status == TaskCompleted }

// TaskID formats the n-th task id of a procedure.
func TaskID(n int) string { return fmt.Sprintf("T-%03d", n) }

// SortTasks orders tasks by due date ascending, undated last, then by
// priority, then by position in order (a topological id order) so a
// predecessor comes before its dependents when the rest ties. Ids missing
// from order keep their emitted order after the ranked ones.
func SortTasks(tasks []Task, order []string) {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	pos := func(id string) int {
		if r, ok := rank[id]; ok {
			return r
		}
		return len(order)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		return pos(a.ID) < pos(b.ID)
	})
}

type Summary struct {
	Total                   int        `json:"total"`
	Completed               int        `json:"completed"`
	InProgress              int        `json:"in_progress"`
	Pending                 int        `json:"pending"`
	HighPriorityOutstanding int        `json:"high_priority_outstanding"`
	NextDueDate             *time.Time `json:"next_due_date,omitempty" format:"date-time"`
	Overdue                 int        `json:"overdue"`
}

type Procedure struct {
	ID                   string                `json:"id"`
	ClientID             string                `json:"client_id"`
	Name                 string                `json:"name"`
	Status               ProcedureStatus       `json:"status" enum:"active,completed,archived"`
	ProcedureType        string                `json:"procedure_type"`
	Complexity           Complexity            `json:"complexity" enum:"low,medium,high"`
	Requirements         ProcedureRequirements `json:"requirements"`
	Tasks                []Task                `json:"tasks"`
	Summary              Summary               `json:"summary"`
	CompletionPercentage int                   `json:"completion_percentage"`
	NextTaskSeq          int                   `json:"next_task_seq"`
	Version              int                   `json:"version"`
	CreatedAt            time.Time             `json:"created_at" format:"date-time"`
	UpdatedAt            time.Time             `json:"updated_at" format:"date-time"`
}

// TaskIndex returns the slice index of the task with id, or -1.
func (p *Procedure) TaskIndex(id string) int {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	ProcedureID string `json:"procedure_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

package server

import (
	"encoding/json"
	"time"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine"
	"fiscalops/internal/engine/lifecycle"
)

// Request payloads

type CreateClientRequest struct {
	Name          string     `json:"name" minLength:"1"`
	EntityType    string     `json:"entity_type" enum:"sole_proprietor,partnership,corporation,llc"`
	Sector        string     `json:"sector,omitempty"`
	Regime        string     `json:"regime,omitempty" enum:"flat_rate,simplified,ordinary,unspecified"`
	AnnualRevenue float64    `json:"annual_revenue,omitempty"`
	EmployeeCount int        `json:"employee_count,omitempty"`
	FoundedAt     *time.Time `json:"founded_at,omitempty" format:"date-time"`
	HasTaxID      bool       `json:"has_tax_id,omitempty"`
}

type UpdateClientRequest struct {
	Name          *string    `json:"name,omitempty"`
	EntityType    *string    `json:"entity_type,omitempty"`
	Sector        *string    `json:"sector,omitempty"`
	Regime        *string    `json:"regime,omitempty"`
	AnnualRevenue *float64   `json:"annual_revenue,omitempty"`
	EmployeeCount *int       `json:"employee_count,omitempty"`
	FoundedAt     *time.Time `json:"founded_at,omitempty" format:"date-time"`
	HasTaxID      *bool      `json:"has_tax_id,omitempty"`
}

type GenerateProcedureRequest struct {
	Name string `json:"name,omitempty"`
	// ReferenceDate anchors deadline resolution; the server clock when absent.
	ReferenceDate *time.Time `json:"reference_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Status     string  `json:"status,omitempty" enum:"pending,in_progress,completed"`
	Progress   *int    `json:"progress,omitempty"`
	Note       string  `json:"note,omitempty"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	Force      bool    `json:"force,omitempty"`
}

type AddTaskRequest struct {
	Title        string               `json:"title" minLength:"1"`
	Description  string               `json:"description,omitempty"`
	Priority     string               `json:"priority,omitempty" enum:"high,medium,low"`
	Deadline     *domain.DeadlineRule `json:"deadline,omitempty"`
	DueDate      *time.Time           `json:"due_date,omitempty" format:"date-time"`
	Predecessors []string             `json:"predecessors,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
	AssigneeID   string               `json:"assignee_id,omitempty"`
}

type SetProcedureStatusRequest struct {
	Status string `json:"status" enum:"active,completed,archived"`
}

type DevLoginRequest struct {
	ActorID    string `json:"actor_id" minLength:"1"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ProcedureSummaryResponse struct {
	ID                   string                 `json:"id"`
	ClientID             string                 `json:"client_id"`
	Name                 string                 `json:"name"`
	Status               domain.ProcedureStatus `json:"status"`
	ProcedureType        string                 `json:"procedure_type"`
	Complexity           domain.Complexity      `json:"complexity"`
	CompletionPercentage int                    `json:"completion_percentage"`
	Summary              domain.Summary         `json:"summary"`
	Version              int                    `json:"version"`
	UpdatedAt            time.Time              `json:"updated_at" format:"date-time"`
}

type TaskUpdateResponse struct {
	Task           domain.Task              `json:"task"`
	PreviousStatus domain.TaskStatus        `json:"previous_status"`
	AutoCompleted  bool                     `json:"auto_completed"`
	Unlocked       []string                 `json:"unlocked"`
	Procedure      ProcedureSummaryResponse `json:"procedure"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	ProcedureID string         `json:"procedure_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

type paginatedClients struct {
	Items []domain.ClientProfile `json:"items"`
}

type paginatedProcedures struct {
	Items []ProcedureSummaryResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func createClientInput(req CreateClientRequest, actorID string) engine.ClientInput {
	return engine.ClientInput{
		Name:          req.Name,
		EntityType:    domain.EntityType(req.EntityType),
		Sector:        req.Sector,
		Regime:        domain.Regime(req.Regime),
		AnnualRevenue: req.AnnualRevenue,
		EmployeeCount: req.EmployeeCount,
		FoundedAt:     req.FoundedAt,
		HasTaxID:      req.HasTaxID,
		ActorID:       actorID,
	}
}

func clientPatch(req UpdateClientRequest, actorID string) engine.ClientPatch {
	patch := engine.ClientPatch{
		Name:          req.Name,
		Sector:        req.Sector,
		AnnualRevenue: req.AnnualRevenue,
		EmployeeCount: req.EmployeeCount,
		FoundedAt:     req.FoundedAt,
		HasTaxID:      req.HasTaxID,
		ActorID:       actorID,
	}
	if req.EntityType != nil {
		et := domain.EntityType(*req.EntityType)
		patch.EntityType = &et
	}
	if req.Regime != nil {
		r := domain.Regime(*req.Regime)
		patch.Regime = &r
	}
	return patch
}

func taskSpec(req AddTaskRequest, actorID string) lifecycle.TaskSpec {
	return lifecycle.TaskSpec{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     domain.Priority(req.Priority),
		Deadline:     req.Deadline,
		DueDate:      req.DueDate,
		Predecessors: req.Predecessors,
		Tags:         req.Tags,
		AssigneeID:   req.AssigneeID,
		ActorID:      actorID,
	}
}

func procedureSummary(p domain.Procedure) ProcedureSummaryResponse {
	return ProcedureSummaryResponse{
		ID:                   p.ID,
		ClientID:             p.ClientID,
		Name:                 p.Name,
		Status:               p.Status,
		ProcedureType:        p.ProcedureType,
		Complexity:           p.Complexity,
		CompletionPercentage: p.CompletionPercentage,
		Summary:              p.Summary,
		Version:              p.Version,
		UpdatedAt:            p.UpdatedAt,
	}
}

func taskUpdateResponse(u engine.TaskUpdate) TaskUpdateResponse {
	return TaskUpdateResponse{
		Task:           u.Task,
		PreviousStatus: u.PreviousStatus,
		AutoCompleted:  u.AutoCompleted,
		Unlocked:       nonNilSlice(u.Unlocked),
		Procedure:      procedureSummary(u.Procedure),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		ProcedureID: e.ProcedureID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Payload:     decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

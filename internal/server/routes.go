package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine"
	"fiscalops/internal/engine/report"
	"fiscalops/internal/repo"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type clientPath struct {
	ClientID string `path:"client_id"`
}

type procedurePath struct {
	ProcedureID string `path:"procedure_id"`
}

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Create client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.ClientProfile `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateClient(ctx, createClientInput(input.Body, actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClientProfile `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityType string `query:"entity_type" enum:"sole_proprietor,partnership,corporation,llc"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedClients `json:"body"`
	}, error) {
		items, err := e.ListClients(ctx, repo.ClientFilters{EntityType: input.EntityType, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedClients `json:"body"`
		}{Body: paginatedClients{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{client_id}",
		Summary:     "Get client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *clientPath) (*struct {
		Body domain.ClientProfile `json:"body"`
	}, error) {
		c, err := e.GetClient(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClientProfile `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client",
		Method:      http.MethodPatch,
		Path:        "/clients/{client_id}",
		Summary:     "Update client",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClientID string              `path:"client_id"`
		Body     UpdateClientRequest `json:"body"`
	}) (*struct {
		Body domain.ClientProfile `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateClient(ctx, input.ClientID, clientPatch(input.Body, actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClientProfile `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-procedure",
		Method:        http.MethodPost,
		Path:          "/clients/{client_id}/procedures",
		Summary:       "Generate a procedure for a client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ClientID string                   `path:"client_id"`
		Body     GenerateProcedureRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Procedure `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GenerateForClient(ctx, engine.GenerateForClientOptions{
			ClientID: input.ClientID,
			Name:     input.Body.Name,
			Ref:      input.Body.ReferenceDate,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Procedure `json:"body"`
		}{Body: p}, nil
	})
}

func registerProcedures(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-procedures",
		Method:      http.MethodGet,
		Path:        "/procedures",
		Summary:     "List procedures",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Status   string `query:"status" enum:"active,completed,archived"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedProcedures `json:"body"`
	}, error) {
		items, err := e.ListProcedures(ctx, repo.ProcedureFilters{
			ClientID: input.ClientID,
			Status:   input.Status,
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProcedures{Items: []ProcedureSummaryResponse{}}
		for _, p := range items {
			resp.Items = append(resp.Items, procedureSummary(p))
		}
		return &struct {
			Body paginatedProcedures `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-procedure",
		Method:      http.MethodGet,
		Path:        "/procedures/{procedure_id}",
		Summary:     "Get procedure",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *procedurePath) (*struct {
		Body domain.Procedure `json:"body"`
	}, error) {
		p, err := e.GetProcedure(ctx, input.ProcedureID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Procedure `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-procedure-status",
		Method:      http.MethodPut,
		Path:        "/procedures/{procedure_id}/status",
		Summary:     "Set procedure status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcedureID string                    `path:"procedure_id"`
		Body        SetProcedureStatusRequest `json:"body"`
	}) (*struct {
		Body ProcedureSummaryResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetProcedureStatus(ctx, input.ProcedureID, domain.ProcedureStatus(input.Body.Status), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcedureSummaryResponse `json:"body"`
		}{Body: procedureSummary(p)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/procedures/{procedure_id}/tasks/{task_id}",
		Summary:     "Update task status or progress",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcedureID string            `path:"procedure_id"`
		TaskID      string            `path:"task_id"`
		Body        UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskUpdateResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskUpdateOptions{
			ProcedureID: input.ProcedureID,
			TaskID:      input.TaskID,
			Progress:    input.Body.Progress,
			Note:        input.Body.Note,
			AssigneeID:  input.Body.AssigneeID,
			ActorID:     actorID,
			Force:       input.Body.Force,
		}
		if input.Body.Status != "" {
			st := domain.TaskStatus(input.Body.Status)
			opts.Status = &st
		}
		res, err := e.UpdateTaskStatus(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskUpdateResponse `json:"body"`
		}{Body: taskUpdateResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-task",
		Method:        http.MethodPost,
		Path:          "/procedures/{procedure_id}/tasks",
		Summary:       "Add a manual task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcedureID string         `path:"procedure_id"`
		Body        AddTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddTask(ctx, engine.AddTaskOptions{ProcedureID: input.ProcedureID, Spec: taskSpec(input.Body, actorID)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "progress-report",
		Method:      http.MethodGet,
		Path:        "/reports/progress",
		Summary:     "Progress report across procedures",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body report.ProgressReport `json:"body"`
	}, error) {
		rep, err := e.ProgressReport(ctx, engine.ReportFilters{ClientID: input.ClientID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body report.ProgressReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "overdue-tasks",
		Method:      http.MethodGet,
		Path:        "/reports/overdue",
		Summary:     "Overdue tasks, most urgent first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClientID    string `query:"client_id"`
		ProcedureID string `query:"procedure_id"`
		Priority    string `query:"priority" enum:"high,medium,low"`
		Limit       int    `query:"limit"`
	}) (*struct {
		Body struct {
			Items []report.OverdueTask `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.OverdueTasks(ctx, report.OverdueFilters{
			ClientID:    input.ClientID,
			ProcedureID: input.ProcedureID,
			Priority:    domain.Priority(input.Priority),
			Limit:       input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []report.OverdueTask `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = nonNilSlice(items)
		return out, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProcedureID string `query:"procedure_id"`
		Type        string `query:"type"`
		EntityKind  string `query:"entity_kind" enum:"client,procedure,task"`
		EntityID    string `query:"entity_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			ProcedureID: input.ProcedureID,
			Type:        input.Type,
			EntityKind:  input.EntityKind,
			EntityID:    input.EntityID,
			Before:      before,
			Limit:       limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		ttl := time.Duration(input.Body.TTLSeconds) * time.Second
		// tokens are checked against the wall clock, never the engine clock
		token, err := SignToken(authCfg.JWTSecret, input.Body.ActorID, ttl, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

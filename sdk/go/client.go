package fiscalopssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal fiscalops HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ClientProfile is the API client model.
type ClientProfile struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	EntityType    string     `json:"entity_type"`
	Sector        string     `json:"sector,omitempty"`
	Regime        string     `json:"regime,omitempty"`
	AnnualRevenue float64    `json:"annual_revenue"`
	EmployeeCount int        `json:"employee_count"`
	FoundedAt     *time.Time `json:"founded_at,omitempty"`
	HasTaxID      bool       `json:"has_tax_id"`
}

// NewClient is the payload for CreateClient.
type NewClient struct {
	Name          string     `json:"name"`
	EntityType    string     `json:"entity_type"`
	Sector        string     `json:"sector,omitempty"`
	Regime        string     `json:"regime,omitempty"`
	AnnualRevenue float64    `json:"annual_revenue,omitempty"`
	EmployeeCount int        `json:"employee_count,omitempty"`
	FoundedAt     *time.Time `json:"founded_at,omitempty"`
	HasTaxID      bool       `json:"has_tax_id,omitempty"`
}

// HistoryEntry is one status history record of a task.
type HistoryEntry struct {
	Status      string    `json:"status"`
	Kind        string    `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Note        string    `json:"note,omitempty"`
	ActorID     string    `json:"actor_id"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID           string         `json:"id"`
	Key          string         `json:"key,omitempty"`
	Title        string         `json:"title"`
	Priority     string         `json:"priority"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	Predecessors []string       `json:"predecessors,omitempty"`
	AssigneeID   string         `json:"assignee_id,omitempty"`
	History      []HistoryEntry `json:"history"`
}

type Summary struct {
	Total                   int        `json:"total"`
	Completed               int        `json:"completed"`
	InProgress              int        `json:"in_progress"`
	Pending                 int        `json:"pending"`
	HighPriorityOutstanding int        `json:"high_priority_outstanding"`
	NextDueDate             *time.Time `json:"next_due_date,omitempty"`
	Overdue                 int        `json:"overdue"`
}

// Procedure represents a generated procedure. Tasks are empty in list
// responses.
type Procedure struct {
	ID                   string  `json:"id"`
	ClientID             string  `json:"client_id"`
	Name                 string  `json:"name"`
	Status               string  `json:"status"`
	ProcedureType        string  `json:"procedure_type"`
	Complexity           string  `json:"complexity"`
	Tasks                []Task  `json:"tasks,omitempty"`
	Summary              Summary `json:"summary"`
	CompletionPercentage int     `json:"completion_percentage"`
	Version              int     `json:"version"`
}

// TaskUpdate is the result of UpdateTask.
type TaskUpdate struct {
	Task           Task      `json:"task"`
	PreviousStatus string    `json:"previous_status"`
	AutoCompleted  bool      `json:"auto_completed"`
	Unlocked       []string  `json:"unlocked"`
	Procedure      Procedure `json:"procedure"`
}

// TaskPatch is a partial task update; nil fields are omitted.
type TaskPatch struct {
	Status     string  `json:"status,omitempty"`
	Progress   *int    `json:"progress,omitempty"`
	Note       string  `json:"note,omitempty"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	Force      bool    `json:"force,omitempty"`
}

// NewTask describes a manual task.
type NewTask struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Predecessors []string   `json:"predecessors,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
}

type OverdueTask struct {
	ProcedureID string    `json:"procedure_id"`
	ClientID    string    `json:"client_id"`
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Priority    string    `json:"priority"`
	DueDate     time.Time `json:"due_date"`
	DaysOverdue int       `json:"days_overdue"`
}

type ProgressReport struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	TotalProcedures    int            `json:"total_procedures"`
	ByStatus           map[string]int `json:"by_status"`
	CompletionRate     float64        `json:"completion_rate"`
	TotalTasks         int            `json:"total_tasks"`
	CompletedTasks     int            `json:"completed_tasks"`
	TaskCompletionRate float64        `json:"task_completion_rate"`
	OverdueTasks       int            `json:"overdue_tasks"`
	TopOverdue         []OverdueTask  `json:"top_overdue"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	ProcedureID string         `json:"procedure_id"`
	EntityID    string         `json:"entity_id"`
	EntityKind  string         `json:"entity_kind"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Code returns the error code from the response envelope, if any.
func (e *APIError) Code() string {
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &env) != nil {
		return ""
	}
	return env.Error.Code
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateClient registers a client.
func (c *Client) CreateClient(ctx context.Context, in NewClient) (ClientProfile, error) {
	var resp ClientProfile
	err := c.do(ctx, http.MethodPost, "v0/clients", in, &resp)
	return resp, err
}

// GetClient fetches a client by id.
func (c *Client) GetClient(ctx context.Context, id string) (ClientProfile, error) {
	var resp ClientProfile
	err := c.do(ctx, http.MethodGet, "v0/clients/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListClients lists clients, optionally filtered by entity type.
func (c *Client) ListClients(ctx context.Context, entityType string) ([]ClientProfile, error) {
	endpoint := withQuery("v0/clients", url.Values{"entity_type": nonEmpty(entityType)})
	var resp struct {
		Items []ClientProfile `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GenerateProcedure classifies a client and creates its procedure. A nil ref
// uses the server clock.
func (c *Client) GenerateProcedure(ctx context.Context, clientID, name string, ref *time.Time) (Procedure, error) {
	body := map[string]any{}
	if name != "" {
		body["name"] = name
	}
	if ref != nil {
		body["reference_date"] = ref.UTC().Format(time.RFC3339)
	}
	var resp Procedure
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/clients/%s/procedures", url.PathEscape(clientID)), body, &resp)
	return resp, err
}

// GetProcedure fetches a procedure with its tasks.
func (c *Client) GetProcedure(ctx context.Context, id string) (Procedure, error) {
	var resp Procedure
	err := c.do(ctx, http.MethodGet, "v0/procedures/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProcedures lists procedure summaries.
func (c *Client) ListProcedures(ctx context.Context, clientID, status string) ([]Procedure, error) {
	endpoint := withQuery("v0/procedures", url.Values{"client_id": nonEmpty(clientID), "status": nonEmpty(status)})
	var resp struct {
		Items []Procedure `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateTask patches a task's status, progress or assignee.
func (c *Client) UpdateTask(ctx context.Context, procedureID, taskID string, patch TaskPatch) (TaskUpdate, error) {
	var resp TaskUpdate
	endpoint := fmt.Sprintf("v0/procedures/%s/tasks/%s", url.PathEscape(procedureID), url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, patch, &resp)
	return resp, err
}

// AddTask appends a manual task to a procedure.
func (c *Client) AddTask(ctx context.Context, procedureID string, task NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/procedures/%s/tasks", url.PathEscape(procedureID)), task, &resp)
	return resp, err
}

// SetProcedureStatus archives, reactivates or completes a procedure.
func (c *Client) SetProcedureStatus(ctx context.Context, procedureID, status string) (Procedure, error) {
	var resp Procedure
	endpoint := fmt.Sprintf("v0/procedures/%s/status", url.PathEscape(procedureID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]string{"status": status}, &resp)
	return resp, err
}

// ProgressReport returns the portfolio progress report.
func (c *Client) ProgressReport(ctx context.Context, clientID string) (ProgressReport, error) {
	var resp ProgressReport
	err := c.do(ctx, http.MethodGet, withQuery("v0/reports/progress", url.Values{"client_id": nonEmpty(clientID)}), nil, &resp)
	return resp, err
}

// OverdueTasks lists overdue tasks, most urgent first.
func (c *Client) OverdueTasks(ctx context.Context, procedureID, priority string, limit int) ([]OverdueTask, error) {
	q := url.Values{"procedure_id": nonEmpty(procedureID), "priority": nonEmpty(priority)}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []OverdueTask `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("v0/reports/overdue", q), nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, procedureID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, procedureID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, procedureID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{"procedure_id": nonEmpty(procedureID), "cursor": nonEmpty(cursor)}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("v0/events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func withQuery(endpoint string, q url.Values) string {
	for k, v := range q {
		if len(v) == 0 {
			q.Del(k)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

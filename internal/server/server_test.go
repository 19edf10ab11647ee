package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalops/internal/config"
	"fiscalops/internal/db"
	"fiscalops/internal/engine"
	"fiscalops/internal/migrate"
	"fiscalops/internal/repo"
	fiscalopssdk "fiscalops/sdk/go"
)

var clock = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	Engine engine.Engine
}

func newTestServer(t *testing.T, auth AuthConfig, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	e := engine.New(conn, cfg, nil)
	e.Now = func() time.Time { return clock }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String(), Engine: e}
}

func (s *testServer) sdk(actor string) *fiscalopssdk.Client {
	c := fiscalopssdk.New(s.URL)
	c.ActorID = actor
	return c
}

func apiErr(t *testing.T, err error) *fiscalopssdk.APIError {
	t.Helper()
	var ae *fiscalopssdk.APIError
	require.True(t, errors.As(err, &ae), "expected api error, got %v", err)
	return ae
}

var corporation = fiscalopssdk.NewClient{
	Name:          "Acme SA",
	EntityType:    "corporation",
	Regime:        "ordinary",
	AnnualRevenue: 2_000_000,
	EmployeeCount: 25,
	HasTaxID:      true,
}

func TestHealthAndDocs(t *testing.T) {
	srv := newTestServer(t, AuthConfig{Required: true})
	res, err := http.Get(srv.URL + "/v0/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// the spec stays public so /docs can load it
	res, err = http.Get(srv.URL + "/v0/openapi.json")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var oas map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&oas))
	paths, ok := oas["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/procedures/{procedure_id}/tasks/{task_id}")
	assert.Contains(t, paths, "/v0/reports/overdue")
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	const n = 8
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			b, _ := io.ReadAll(res.Body)
			bodies[i] = string(b)
		}(i)
	}
	wg.Wait()
	require.NotEmpty(t, bodies[0])
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestProcedureLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	ctx := context.Background()
	api := srv.sdk("alice")

	client, err := api.CreateClient(ctx, corporation)
	require.NoError(t, err)
	require.NotEmpty(t, client.ID)

	p, err := api.GenerateProcedure(ctx, client.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "high", p.Complexity)
	assert.Equal(t, "active", p.Status)
	require.NotEmpty(t, p.Tasks)

	first := p.Tasks[0]
	progress := 100
	upd, err := api.UpdateTask(ctx, p.ID, first.ID, fiscalopssdk.TaskPatch{Progress: &progress, Note: "done early"})
	require.NoError(t, err)
	assert.True(t, upd.AutoCompleted)
	assert.Equal(t, "completed", upd.Task.Status)
	assert.Equal(t, 2, upd.Procedure.Version)
	hist := upd.Task.History
	require.GreaterOrEqual(t, len(hist), 3)
	assert.Equal(t, "alice", hist[len(hist)-2].ActorID)
	assert.Equal(t, "system", hist[len(hist)-1].ActorID)

	added, err := api.AddTask(ctx, p.ID, fiscalopssdk.NewTask{Title: "Chase missing invoices", Priority: "high", Predecessors: []string{first.ID}})
	require.NoError(t, err)
	assert.Equal(t, "high", added.Priority)

	got, err := api.GetProcedure(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, len(p.Tasks)+1)

	list, err := api.ListProcedures(ctx, client.ID, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Tasks)

	archived, err := api.SetProcedureStatus(ctx, p.ID, "archived")
	require.NoError(t, err)
	assert.Equal(t, "archived", archived.Status)

	rep, err := api.ProgressReport(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.TotalProcedures)
	assert.Equal(t, 1, rep.ByStatus["archived"])

	evs, err := api.Events(ctx, p.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, "procedure.status.updated", evs[0].Type)
	assert.Equal(t, "alice", evs[0].ActorID)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	ctx := context.Background()
	api := srv.sdk("alice")

	_, err := api.GetProcedure(ctx, "missing")
	ae := apiErr(t, err)
	assert.Equal(t, http.StatusNotFound, ae.StatusCode)
	assert.Equal(t, "not_found", ae.Code())

	noRegime, err := api.CreateClient(ctx, fiscalopssdk.NewClient{Name: "Jane", EntityType: "sole_proprietor"})
	require.NoError(t, err)
	_, err = api.GenerateProcedure(ctx, noRegime.ID, "", nil)
	ae = apiErr(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, ae.StatusCode)
	assert.Equal(t, "classification_failed", ae.Code())

	client, err := api.CreateClient(ctx, corporation)
	require.NoError(t, err)
	p, err := api.GenerateProcedure(ctx, client.ID, "FY2026", nil)
	require.NoError(t, err)
	assert.Equal(t, "FY2026", p.Name)

	_, err = api.UpdateTask(ctx, p.ID, p.Tasks[0].ID, fiscalopssdk.TaskPatch{Status: "blocked"})
	ae = apiErr(t, err)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)

	_, err = api.AddTask(ctx, p.ID, fiscalopssdk.NewTask{Title: "orphan", Predecessors: []string{"T-999"}})
	ae = apiErr(t, err)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)
	assert.Equal(t, "bad_request", ae.Code())

	_, err = api.SetProcedureStatus(ctx, p.ID, "completed")
	ae = apiErr(t, err)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)

	_, err = api.UpdateTask(ctx, p.ID, "T-999", fiscalopssdk.TaskPatch{Status: "completed"})
	ae = apiErr(t, err)
	assert.Equal(t, http.StatusNotFound, ae.StatusCode)
}

func TestEnforcedGatingOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{}, func(c *config.Config) { c.Lifecycle.DependencyGating = "enforced" })
	ctx := context.Background()
	api := srv.sdk("")

	client, err := api.CreateClient(ctx, corporation)
	require.NoError(t, err)
	p, err := api.GenerateProcedure(ctx, client.ID, "", nil)
	require.NoError(t, err)
	var blocked fiscalopssdk.Task
	for _, tk := range p.Tasks {
		if len(tk.Predecessors) > 0 {
			blocked = tk
			break
		}
	}
	require.NotEmpty(t, blocked.ID)

	_, err = api.UpdateTask(ctx, p.ID, blocked.ID, fiscalopssdk.TaskPatch{Status: "in_progress"})
	ae := apiErr(t, err)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)

	upd, err := api.UpdateTask(ctx, p.ID, blocked.ID, fiscalopssdk.TaskPatch{Status: "in_progress", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", upd.Task.Status)
	assert.Equal(t, AnonymousActor, upd.Task.History[len(upd.Task.History)-1].ActorID)
}

func TestJWTAuth(t *testing.T) {
	secret := "test-secret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret, Required: true})
	ctx := context.Background()

	anon := srv.sdk("")
	_, err := anon.ListClients(ctx, "")
	ae := apiErr(t, err)
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)

	// the legacy header is ignored unless enabled
	legacy := srv.sdk("mallory")
	_, err = legacy.ListClients(ctx, "")
	ae = apiErr(t, err)
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)

	bad := srv.sdk("")
	bad.BearerToken = "not-a-token"
	_, err = bad.ListClients(ctx, "")
	ae = apiErr(t, err)
	assert.Equal(t, "invalid_credentials", ae.Code())

	token, err := SignToken(secret, "bob", time.Hour, time.Now())
	require.NoError(t, err)
	authed := srv.sdk("")
	authed.BearerToken = token
	c, err := authed.CreateClient(ctx, corporation)
	require.NoError(t, err)

	evs, err := srv.Engine.Repo.LatestEvents(ctx, repo.EventFilters{EntityID: c.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "bob", evs[0].ActorID)

	res, err := http.Post(srv.URL+"/v0/auth/dev/login", "application/json", strings.NewReader(`{"actor_id":"carol"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var login DevLoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&login))
	p, err := authenticateJWT(login.Token, secret)
	require.NoError(t, err)
	assert.Equal(t, "carol", p.ActorID)
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	ctx := context.Background()
	api := srv.sdk("")
	for i := 0; i < 5; i++ {
		_, err := api.CreateClient(ctx, corporation)
		require.NoError(t, err)
	}
	page, err := api.EventsPage(ctx, "", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	seen := map[int64]bool{}
	for _, e := range page.Items {
		seen[e.ID] = true
	}
	for page.NextCursor != "" {
		page, err = api.EventsPage(ctx, "", 2, page.NextCursor)
		require.NoError(t, err)
		for _, e := range page.Items {
			assert.False(t, seen[e.ID], "event %d returned twice", e.ID)
			seen[e.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	ctx := context.Background()
	api := srv.sdk("")
	client, err := api.CreateClient(ctx, corporation)
	require.NoError(t, err)
	_, err = api.GenerateProcedure(ctx, client.ID, "", nil)
	require.NoError(t, err)

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "fiscalops_engine_procedures_generated_total")
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err == nil {
			mu.Lock()
			received = append(received, evt)
			headers = append(headers, r.Header.Clone())
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv := newTestServer(t, AuthConfig{}, func(c *config.Config) {
		c.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"procedure.generated"}, Secret: "s3cret"}}
	})
	ctx := context.Background()
	api := srv.sdk("")
	before, err := api.CreateClient(ctx, corporation)
	require.NoError(t, err)
	_, err = api.GenerateProcedure(ctx, before.ID, "", nil)
	require.NoError(t, err)

	d := newWebhookDispatcher(srv.Engine, nil)
	require.NotNil(t, d)
	// the first pass only positions the cursor
	d.dispatchAll(ctx)

	p, err := api.GenerateProcedure(ctx, before.ID, "second", nil)
	require.NoError(t, err)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "procedure.generated", received[0].Type)
	assert.Equal(t, p.ID, received[0].ProcedureID)
	assert.Equal(t, "procedure.generated", headers[0].Get("X-Fiscalops-Event"))
	assert.Equal(t, "s3cret", headers[0].Get("X-Fiscalops-Secret"))
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{" ", ""}).match("anything"))
	f := newEventFilter([]string{"task.unlocked"})
	assert.True(t, f.match("task.unlocked"))
	assert.False(t, f.match("task.added"))
}

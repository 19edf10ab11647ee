package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fiscalops/internal/app"
	"fiscalops/internal/config"
	"fiscalops/internal/db"
	"fiscalops/internal/domain"
	"fiscalops/internal/engine"
	"fiscalops/internal/engine/lifecycle"
	"fiscalops/internal/engine/report"
	"fiscalops/internal/lock"
	"fiscalops/internal/repo"
	"fiscalops/internal/server"
)

const dateLayout = "2006-01-02"

var rootCmd = &cobra.Command{
	Use:   "fops",
	Short: "fiscalops CLI",
	Long: `fiscalops turns client profiles into compliance procedures and tracks their tasks.
- Client: a company or sole proprietor with an entity type, tax regime, revenue and headcount.
- Procedure: the classified task list generated for one client, with deadlines resolved against a reference date.
- Tasks: pending -> in_progress -> completed; progress 100 completes a task and unlocks its dependents.
- Reports: portfolio progress and overdue tasks, most urgent first.
- Event log: every change, view with 'fops log'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FISCALOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(procedureCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// --- clients ---

func clientCmd() *cobra.Command {
	c := &cobra.Command{Use: "client", Short: "Manage clients"}
	c.AddCommand(clientCreateCmd())
	c.AddCommand(clientListCmd())
	c.AddCommand(clientShowCmd())
	c.AddCommand(clientUpdateCmd())
	return c
}

func clientCreateCmd() *cobra.Command {
	var in engine.ClientInput
	var entityType, regime, founded string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.EntityType = domain.EntityType(entityType)
			in.Regime = domain.Regime(regime)
			at, err := parseDate("founded", founded)
			if err != nil {
				return err
			}
			in.FoundedAt = at
			in.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateClient(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "client name")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "sole_proprietor, partnership, corporation or llc")
	cmd.Flags().StringVar(&in.Sector, "sector", "", "business sector")
	cmd.Flags().StringVar(&regime, "regime", "", "flat_rate, simplified, ordinary or unspecified")
	cmd.Flags().Float64Var(&in.AnnualRevenue, "revenue", 0, "annual revenue")
	cmd.Flags().IntVar(&in.EmployeeCount, "employees", 0, "employee count")
	cmd.Flags().StringVar(&founded, "founded", "", "founding date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&in.HasTaxID, "has-tax-id", false, "client holds a tax id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("entity-type")
	return cmd
}

func clientListCmd() *cobra.Command {
	var f repo.ClientFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListClients(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Entity", "Regime", "Revenue", "Employees"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.EntityType, c.Regime, c.AnnualRevenue, c.EmployeeCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.EntityType, "entity-type", "", "entity type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max clients")
	return cmd
}

func clientShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <client-id>",
		Short: "Show a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetClient(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func clientUpdateCmd() *cobra.Command {
	var (
		name, entityType, sector, regime, founded string
		revenue                                   float64
		employees                                 int
		hasTaxID                                  bool
	)
	cmd := &cobra.Command{
		Use:   "update <client-id>",
		Short: "Update a client profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.ClientPatch{ActorID: viper.GetString("actor-id")}
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("entity-type") {
				et := domain.EntityType(entityType)
				patch.EntityType = &et
			}
			if flags.Changed("sector") {
				patch.Sector = &sector
			}
			if flags.Changed("regime") {
				rg := domain.Regime(regime)
				patch.Regime = &rg
			}
			if flags.Changed("revenue") {
				patch.AnnualRevenue = &revenue
			}
			if flags.Changed("employees") {
				patch.EmployeeCount = &employees
			}
			if flags.Changed("has-tax-id") {
				patch.HasTaxID = &hasTaxID
			}
			if flags.Changed("founded") {
				at, err := parseDate("founded", founded)
				if err != nil {
					return err
				}
				patch.FoundedAt = at
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateClient(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client name")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type")
	cmd.Flags().StringVar(&sector, "sector", "", "business sector")
	cmd.Flags().StringVar(&regime, "regime", "", "tax regime")
	cmd.Flags().Float64Var(&revenue, "revenue", 0, "annual revenue")
	cmd.Flags().IntVar(&employees, "employees", 0, "employee count")
	cmd.Flags().StringVar(&founded, "founded", "", "founding date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&hasTaxID, "has-tax-id", false, "client holds a tax id")
	return cmd
}

// --- procedures ---

func procedureCmd() *cobra.Command {
	c := &cobra.Command{Use: "procedure", Aliases: []string{"proc"}, Short: "Generate and inspect procedures"}
	c.AddCommand(procedureGenerateCmd())
	c.AddCommand(procedureListCmd())
	c.AddCommand(procedureShowCmd())
	c.AddCommand(procedureStatusCmd())
	return c
}

func procedureGenerateCmd() *cobra.Command {
	var name, ref string
	cmd := &cobra.Command{
		Use:   "generate <client-id>",
		Short: "Classify a client and generate its procedure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseDate("ref", ref)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GenerateForClient(ctx, engine.GenerateForClientOptions{
					ClientID: args[0],
					Name:     name,
					Ref:      at,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProcedure(p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "procedure name")
	cmd.Flags().StringVar(&ref, "ref", "", "reference date for deadlines (YYYY-MM-DD, default today)")
	return cmd
}

func procedureListCmd() *cobra.Command {
	var f repo.ProcedureFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List procedures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProcedures(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Client", "Name", "Status", "Complexity", "Done", "Overdue"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.ClientID, p.Name, p.Status, p.Complexity,
						fmt.Sprintf("%d%%", p.CompletionPercentage), p.Summary.Overdue})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client id filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "active, completed or archived")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max procedures")
	return cmd
}

func procedureShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <procedure-id>",
		Short: "Show a procedure with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProcedure(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProcedure(p)
				return nil
			})
		},
	}
}

func procedureStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <procedure-id> <active|completed|archived>",
		Short: "Set a procedure's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetProcedureStatus(ctx, args[0], domain.ProcedureStatus(args[1]), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Procedure %s is %s (version %d)\n", p.ID, p.Status, p.Version)
				return nil
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	c := &cobra.Command{Use: "task", Short: "Update procedure tasks"}
	c.AddCommand(taskUpdateCmd())
	c.AddCommand(taskAddCmd())
	return c
}

func taskUpdateCmd() *cobra.Command {
	var (
		status, note, assignee string
		progress               int
		force                  bool
	)
	cmd := &cobra.Command{
		Use:   "update <procedure-id> <task-id>",
		Short: "Change a task's status, progress or assignee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ProcedureID: args[0],
				TaskID:      args[1],
				Note:        note,
				ActorID:     viper.GetString("actor-id"),
				Force:       force,
			}
			flags := cmd.Flags()
			if flags.Changed("status") {
				st := domain.TaskStatus(status)
				opts.Status = &st
			}
			if flags.Changed("progress") {
				opts.Progress = &progress
			}
			if flags.Changed("assignee") {
				opts.AssigneeID = &assignee
			}
			if opts.Status == nil && opts.Progress == nil && opts.AssigneeID == nil {
				return errors.New("one of --status, --progress or --assignee is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateTaskStatus(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s -> %s (%d%%)\n", res.Task.ID, res.PreviousStatus, res.Task.Status, res.Task.Progress)
				if res.AutoCompleted {
					fmt.Println("  completed automatically at 100% progress")
				}
				if len(res.Unlocked) > 0 {
					fmt.Printf("  unlocked: %s\n", strings.Join(res.Unlocked, ", "))
				}
				fmt.Printf("Procedure %s: %d%% complete, %s\n", res.Procedure.ID, res.Procedure.CompletionPercentage, res.Procedure.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, in_progress or completed")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage (0-100)")
	cmd.Flags().StringVar(&note, "note", "", "history note")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee id (empty to clear)")
	cmd.Flags().BoolVar(&force, "force", false, "ignore incomplete predecessors when gating is enforced")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var (
		spec     lifecycle.TaskSpec
		priority string
		due      string
	)
	cmd := &cobra.Command{
		Use:   "add <procedure-id>",
		Short: "Add a manual task to a procedure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Priority = domain.Priority(priority)
			at, err := parseDate("due", due)
			if err != nil {
				return err
			}
			spec.DueDate = at
			spec.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddTask(ctx, engine.AddTaskOptions{ProcedureID: args[0], Spec: spec})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&spec.Title, "title", "", "task title")
	cmd.Flags().StringVar(&spec.Description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low (default medium)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&spec.Predecessors, "depends-on", nil, "predecessor task ids")
	cmd.Flags().StringSliceVar(&spec.Tags, "tag", nil, "tags")
	cmd.Flags().StringVar(&spec.AssigneeID, "assignee", "", "assignee id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// --- reports ---

func reportCmd() *cobra.Command {
	c := &cobra.Command{Use: "report", Short: "Portfolio reports"}
	c.AddCommand(reportProgressCmd())
	c.AddCommand(reportOverdueCmd())
	return c
}

func reportProgressCmd() *cobra.Command {
	var f engine.ReportFilters
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Progress across procedures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.ProgressReport(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("Procedures: %d (active %d, completed %d, archived %d)\n", rep.TotalProcedures,
					rep.ByStatus[domain.ProcedureActive], rep.ByStatus[domain.ProcedureCompleted], rep.ByStatus[domain.ProcedureArchived])
				fmt.Printf("Completion rate: %.1f%%\n", rep.CompletionRate)
				fmt.Printf("Tasks: %d/%d completed (%.1f%%), %d overdue\n",
					rep.CompletedTasks, rep.TotalTasks, rep.TaskCompletionRate, rep.OverdueTasks)
				if len(rep.TopOverdue) > 0 {
					printOverdue(rep.TopOverdue)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client id filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max overdue tasks listed (default from config)")
	return cmd
}

func reportOverdueCmd() *cobra.Command {
	var f report.OverdueFilters
	var priority string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Overdue tasks, most urgent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Priority = domain.Priority(priority)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.OverdueTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if len(items) == 0 {
					fmt.Println("No overdue tasks")
					return nil
				}
				printOverdue(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client id filter")
	cmd.Flags().StringVar(&f.ProcedureID, "procedure", "", "procedure id filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max tasks (0 for all)")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ProcedureID, "procedure", "", "procedure id filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "client, procedure or task")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage fiscalops.yml",
		Long:  "fiscalops.yml holds classification thresholds, the annual deadline calendar, gating mode, logging and webhooks. Built-in defaults apply when the file is absent.",
	}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configValidateCmd())
	return c
}

func configInitCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default fiscalops.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("%s already exists (use --overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate fiscalops.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

// --- server ---

func serveCmd() *cobra.Command {
	var (
		addr, basePath    string
		allowActorHeader  bool
		requireAuth       bool
		disableMetrics    bool
		disableDispatcher bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			dir, err := db.EnsureWorkspace(workspace)
			if err != nil {
				return err
			}
			fl := lock.NewFileLock(filepath.Join(dir, "serve.lock"))
			if err := fl.TryLock(); err != nil {
				return err
			}
			defer fl.Unlock()

			ws, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer ws.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt_secret"),
				AllowLegacyActorHeader: allowActorHeader,
				Required:               requireAuth,
				Logger:                 ws.Logger,
			}
			if authCfg.Required && authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return errors.New("--require-auth needs FISCALOPS_JWT_SECRET or --allow-actor-header")
			}
			handler, err := server.New(server.Config{
				Engine:         ws.Engine,
				BasePath:       basePath,
				Auth:           authCfg,
				Logger:         ws.Logger,
				DisableMetrics: disableMetrics,
			})
			if err != nil {
				return err
			}
			if !disableDispatcher {
				server.StartWebhookDispatcher(cmd.Context(), ws.Engine, ws.Logger)
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			ws.Logger.Info("serving fiscalops API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Bool("jwt", authCfg.JWTSecret != ""),
				zap.Bool("auth_required", authCfg.Required))
			fmt.Printf("Serving fiscalops API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept unauthenticated X-Actor-Id")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", false, "reject anonymous requests")
	cmd.Flags().BoolVar(&disableMetrics, "no-metrics", false, "do not expose /metrics")
	cmd.Flags().BoolVar(&disableDispatcher, "no-webhooks", false, "do not deliver webhooks")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return errors.New("FISCALOPS_JWT_SECRET is required")
			}
			token, err := server.SignToken(secret, viper.GetString("actor-id"), ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func parseDate(flag, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return &t, nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printProcedure(p domain.Procedure) {
	fmt.Printf("Procedure %s: %s\n", p.ID, p.Name)
	fmt.Printf("Client %s, %s (%s complexity), %s, %d%% complete\n",
		p.ClientID, p.ProcedureType, p.Complexity, p.Status, p.CompletionPercentage)
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Progress", "Due", "After"})
	for _, t := range p.Tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Format(dateLayout)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Status, fmt.Sprintf("%d%%", t.Progress), due, strings.Join(t.Predecessors, ",")})
	}
	tw.Render()
}

func printOverdue(items []report.OverdueTask) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Procedure", "Task", "Title", "Priority", "Due", "Days"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ProcedureID, t.TaskID, t.Title, t.Priority, t.DueDate.Format(dateLayout), t.DaysOverdue})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

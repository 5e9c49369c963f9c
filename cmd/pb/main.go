package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pulseboard/internal/analytics"
	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
	"pulseboard/internal/repo"
	"pulseboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pb",
	Short: "Pulseboard CLI",
	Long: `Pulseboard tracks projects, tasks, and logged time, and turns them into
role-scoped reports.
- Workspace: your .pulseboard directory holding the database.
- Projects: own tasks and members; admins and managers see every project,
  developers and viewers only the ones they belong to.
- Tasks: flow todo -> in_progress -> in_review -> done.
- Time entries: hours logged against tasks, billable or not.
- Reports: overview, team, productivity, per-project, personal, and system,
  each assembled from the same aggregators the HTTP API uses.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PULSEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userLoginCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Role, "role", "developer", "role (admin, manager, developer, viewer)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Last login"})
				for _, u := range users {
					last := ""
					if u.LastLoginAt != nil {
						last = *u.LastLoginAt
					}
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, last})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <id>",
		Short: "Stamp a user's last login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RecordLogin(ctx, args[0])
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(memberCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "end date (RFC3339)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filters := repo.ProjectFilters{}
				if status != "" {
					filters.StatusIn = []string{status}
				}
				projects, err := r.ListProjects(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Priority", "Created"})
				for _, p := range projects {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Priority, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				counts, err := r.CountTasksByStatus(ctx, []string{p.ID})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(struct {
						Project       domain.Project `json:"project"`
						TasksByStatus map[string]int `json:"tasks_by_status"`
					}{p, counts})
				}
				if err := printJSONOrTable(p); err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Tasks"})
				for _, s := range []string{domain.TaskTodo, domain.TaskInProgress, domain.TaskInReview, domain.TaskDone} {
					if n := counts[s]; n > 0 {
						tw.AppendRow(table.Row{s, n})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Update project status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--set required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProjectStatus(ctx, args[0], status, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "new status (planning, active, on_hold, completed, cancelled)")
	return cmd
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage project members"}
	member.AddCommand(memberAddCmd())
	member.AddCommand(memberRemoveCmd())
	member.AddCommand(memberListCmd())
	return member
}

func memberAddCmd() *cobra.Command {
	var projectID, userID, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a project member",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := domain.Role("")
			if role != "" {
				var err error
				parsed, err = domain.ParseRole(role)
				if err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, projectID, userID, parsed, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "membership role")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var projectID, userID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a project member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, projectID, userID, viper.GetString("user-id"))
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func memberListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				members, err := r.ListMembers(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(members)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var projectID, status, priority, assignee string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filters := repo.TaskFilters{
					AssignedTo: assignee,
					Limit:      limit,
				}
				if projectID != "" {
					filters.ProjectIDs = []string{projectID}
				}
				if status != "" {
					filters.StatusIn = []string{status}
				}
				if priority != "" {
					filters.PriorityIn = []string{priority}
				}
				tasks, err := r.ListTasks(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee"})
				for _, t := range tasks {
					assigned := ""
					if t.AssignedTo != nil {
						assigned = *t.AssignedTo
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, assigned})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var opts engine.TaskUpdateOptions
	var assignee, due string
	var hours float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			opts.ActorID = viper.GetString("user-id")
			if cmd.Flags().Changed("assignee") {
				opts.Assign = &assignee
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			if cmd.Flags().Changed("hours") {
				opts.ActualHours = &hours
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (todo, in_progress, in_review, done)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id (empty clears)")
	cmd.Flags().StringVar(&due, "due", "", "due date (empty clears)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "actual hours spent")
	return cmd
}

func timeCmd() *cobra.Command {
	tc := &cobra.Command{Use: "time", Short: "Log time"}
	tc.AddCommand(timeLogCmd())
	return tc
}

func timeLogCmd() *cobra.Command {
	var opts engine.TimeLogOptions
	cmd := &cobra.Command{
		Use:   "log <task-id>",
		Short: "Log hours against a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TaskID = args[0]
			if opts.UserID == "" {
				opts.UserID = viper.GetString("user-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.LogTime(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().Float64Var(&opts.Hours, "hours", 0, "hours spent")
	cmd.Flags().BoolVar(&opts.Billable, "billable", false, "billable entry")
	cmd.Flags().StringVar(&opts.WorkDate, "date", "", "work date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (defaults to --user-id)")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func commentCmd() *cobra.Command {
	cc := &cobra.Command{Use: "comment", Short: "Comment on tasks"}
	cc.AddCommand(commentAddCmd())
	cc.AddCommand(commentListCmd())
	return cc
}

func commentAddCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, args[0], content, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&content, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func commentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List comments on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				comments, err := r.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(comments)
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyRevokeCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		Long:  "The key is printed once and only its hash is stored; requests send it in the X-Api-Key header.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("user-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				secret := "pbk_" + uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					UserID:  userID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key (save it now, it is not stored): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id (defaults to --user-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by owning user")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filters := repo.EventFilters{
					Type:       evtType,
					EntityKind: entityKind,
					Limit:      n,
				}
				if projectID != "" {
					filters.ProjectIDs = []string{projectID}
				}
				events, err := r.ListRecentEvents(ctx, filters)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Assemble reports",
		Long:  "Reports run locally against the workspace database using the acting user's role for scoping, exactly as the HTTP API would.",
	}
	rep.AddCommand(reportOverviewCmd())
	rep.AddCommand(reportTeamCmd())
	rep.AddCommand(reportProductivityCmd())
	rep.AddCommand(reportProjectCmd())
	rep.AddCommand(reportMeCmd())
	rep.AddCommand(reportSystemCmd())
	rep.AddCommand(reportExportCmd())
	return rep
}

func withReportRequest(ctx context.Context, rangeStr, projectID string, fn func(context.Context, *analytics.Assembler, analytics.Request) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		caller, err := e.Repo.GetUser(ctx, viper.GetString("user-id"))
		if err != nil {
			return fmt.Errorf("acting user not found (--user-id): %w", err)
		}
		a := analytics.NewAssembler(e.Repo)
		a.Now = e.Now
		if e.Config != nil {
			a.Timeout = e.Config.ReportTimeout()
			a.ActivityLimit = e.Config.Reports.ActivityLimit
		}
		req := analytics.Request{
			CallerID:  caller.ID,
			Role:      caller.Role,
			Range:     rangeStr,
			ProjectID: projectID,
		}
		return fn(ctx, a, req)
	})
}

func reportOverviewCmd() *cobra.Command {
	var rangeStr, projectID string
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Dashboard overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, projectID, func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.Overview(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Value"})
				tw.AppendRow(table.Row{"Projects", rep.Projects.Total})
				tw.AppendRow(table.Row{"Active projects", rep.Projects.Active})
				tw.AppendRow(table.Row{"Overdue projects", rep.Projects.Overdue})
				tw.AppendRow(table.Row{"Tasks", rep.Tasks.Total})
				tw.AppendRow(table.Row{"Overdue tasks", rep.Tasks.Overdue})
				tw.AppendRow(table.Row{"Completion rate", fmt.Sprintf("%d%%", rep.Tasks.CompletionRate)})
				tw.AppendRow(table.Row{"Hours logged", rep.Time.TotalHours})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range, e.g. 7d or 30")
	cmd.Flags().StringVar(&projectID, "project", "", "narrow to one project")
	return cmd
}

func reportTeamCmd() *cobra.Command {
	var rangeStr string
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Team performance (admin or manager)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, "", func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.TeamPerformance(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Role", "Assigned", "Done", "Rate", "Hours", "Utilization"})
				for _, m := range rep.Members {
					tw.AppendRow(table.Row{m.Name, m.Role, m.AssignedTasks, m.CompletedTasks,
						fmt.Sprintf("%d%%", m.CompletionRate), m.HoursLogged, fmt.Sprintf("%.1f%%", m.Utilization)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range")
	return cmd
}

func reportProductivityCmd() *cobra.Command {
	var rangeStr, projectID string
	cmd := &cobra.Command{
		Use:   "productivity",
		Short: "Completion trend and time allocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, projectID, func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.Productivity(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Completed", "Total", "Rate"})
				for _, pt := range rep.Trend {
					tw.AppendRow(table.Row{pt.Date, pt.Completed, pt.Total, fmt.Sprintf("%d%%", pt.CompletionRate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range")
	cmd.Flags().StringVar(&projectID, "project", "", "narrow to one project")
	return cmd
}

func reportProjectCmd() *cobra.Command {
	var rangeStr string
	cmd := &cobra.Command{
		Use:   "project <id>",
		Short: "Single project statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, args[0], func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.ProjectStatistics(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range")
	return cmd
}

func reportMeCmd() *cobra.Command {
	var rangeStr string
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Personal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, "", func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.Dashboard(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range")
	return cmd
}

func reportSystemCmd() *cobra.Command {
	var rangeStr string
	cmd := &cobra.Command{
		Use:   "system",
		Short: "System-wide analytics (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, "", func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.SystemAnalytics(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range")
	return cmd
}

func reportExportCmd() *cobra.Command {
	var rangeStr, projectID, format, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the overview report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReportRequest(cmd.Context(), rangeStr, projectID, func(ctx context.Context, a *analytics.Assembler, req analytics.Request) error {
				rep, err := a.Overview(ctx, req)
				if err != nil {
					return err
				}
				payload, _, err := analytics.ExportOverview(rep, req.CallerID, format, a.Now())
				if err != nil {
					return err
				}
				if outPath == "" {
					_, err = os.Stdout.Write(payload)
					return err
				}
				return os.WriteFile(outPath, payload, 0o644)
			})
		},
	}
	cmd.Flags().StringVar(&rangeStr, "range", "", "day range")
	cmd.Flags().StringVar(&projectID, "project", "", "narrow to one project")
	cmd.Flags().StringVar(&format, "format", "json", "export format (json, csv)")
	cmd.Flags().StringVar(&outPath, "out", "", "write to file instead of stdout")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PULSEBOARD_JWT_SECRET"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = cfg.Auth.JWTSecret
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PULSEBOARD_JWT_SECRET is required for bearer auth")
			}
			assembler := analytics.NewAssembler(e.Repo)
			assembler.Now = e.Now
			assembler.Timeout = cfg.ReportTimeout()
			assembler.ActivityLimit = cfg.Reports.ActivityLimit
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:    e,
				Assembler: assembler,
				BasePath:  basePath,
				Auth:      authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pulseboard API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

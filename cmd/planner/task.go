package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/planner/internal/manifest"
	"github.com/aristath/planner/internal/planner"
	"github.com/aristath/planner/internal/task"
)

func newTaskCmd(a *app) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	taskCmd.AddCommand(
		newTaskAddCmd(a),
		newTaskListCmd(a),
		newTaskShowCmd(a),
		newTaskUpdateCmd(a),
		newTaskStatusCmd(a),
		newTaskDeleteCmd(a),
		newTaskImportCmd(a),
	)
	return taskCmd
}

func newTaskAddCmd(a *app) *cobra.Command {
	var (
		in       planner.TaskInput
		deadline string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deadline != "" {
				d, err := manifest.ParseDeadline(deadline, a.svc.Location())
				if err != nil {
					return err
				}
				in.Deadline = &d
			}

			t, err := a.svc.CreateTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task: %s\n", t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.ID, "id", "", "Task id (default: generated)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Task name (required)")
	cmd.Flags().StringVar(&in.Description, "desc", "", "Task description")
	cmd.Flags().IntVar(&in.Duration, "duration", 0, "Duration in minutes (required)")
	cmd.Flags().IntVar(&in.Priority, "priority", 3, "Priority from 1 (low) to 5 (high)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline (RFC 3339, YYYY-MM-DD or YYYY-MM-DDTHH:MM)")
	cmd.Flags().StringSliceVar(&in.Dependencies, "dep", nil, "Dependency task id (repeatable)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("duration")
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []task.Status
			if status != "" {
				s, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = append(filter, s)
			}

			tasks, err := a.svc.ListTasks(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks found")
				return nil
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, in_progress, completed, cancelled)")
	return cmd
}

func newTaskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:          %s\n", t.ID)
			fmt.Fprintf(out, "Name:        %s\n", t.Name)
			if t.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", t.Description)
			}
			fmt.Fprintf(out, "Status:      %s\n", t.Status)
			fmt.Fprintf(out, "Duration:    %dm\n", t.Duration)
			fmt.Fprintf(out, "Priority:    %d\n", t.Priority)
			fmt.Fprintf(out, "Deadline:    %s\n", formatTime(t.Deadline))
			fmt.Fprintf(out, "Scheduled:   %s\n", formatSlot(t))
			if t.ActualStart != nil {
				fmt.Fprintf(out, "Started:     %s\n", formatTime(t.ActualStart))
			}
			if t.ActualEnd != nil {
				fmt.Fprintf(out, "Finished:    %s\n", formatTime(t.ActualEnd))
			}

			if len(t.Dependencies) > 0 {
				status, err := a.svc.DependencyStatus(t.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Dependencies:")
				for _, dep := range t.Dependencies {
					// Completed dependencies are no longer tracked as edges.
					state := "completed"
					if done, tracked := status[dep]; tracked && !done {
						state = "waiting"
					}
					fmt.Fprintf(out, "  %s (%s)\n", dep, state)
				}
			}
			return nil
		},
	}
}

func newTaskUpdateCmd(a *app) *cobra.Command {
	var (
		name, desc, deadline string
		duration, priority   int
		clearDeadline        bool
		deps                 []string
	)

	cmd := &cobra.Command{
		Use:   "update [task-id]",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd planner.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				upd.Name = &name
			}
			if flags.Changed("desc") {
				upd.Description = &desc
			}
			if flags.Changed("duration") {
				upd.Duration = &duration
			}
			if flags.Changed("priority") {
				upd.Priority = &priority
			}
			if flags.Changed("dep") {
				upd.Dependencies = &deps
			}
			if clearDeadline {
				upd.ClearDeadline = true
			} else if deadline != "" {
				d, err := manifest.ParseDeadline(deadline, a.svc.Location())
				if err != nil {
					return err
				}
				upd.Deadline = &d
			}

			t, err := a.svc.UpdateTask(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task: %s\n", t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&desc, "desc", "", "New description")
	cmd.Flags().IntVar(&duration, "duration", 0, "New duration in minutes")
	cmd.Flags().IntVar(&priority, "priority", 0, "New priority (1-5)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "New deadline")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "Remove the deadline")
	cmd.Flags().StringSliceVar(&deps, "dep", nil, "Replace dependencies (repeatable; pass --dep= to clear)")
	return cmd
}

func newTaskStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [task-id] [status]",
		Short: "Change task status (pending, in_progress, completed, cancelled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.SetStatus(cmd.Context(), args[0], task.Status(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", t.ID, t.Status)
			return nil
		},
	}
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task: %s\n", args[0])
			return nil
		},
	}
}

func newTaskImportCmd(a *app) *cobra.Command {
	var vars map[string]string

	cmd := &cobra.Command{
		Use:   "import [manifest.hcl]",
		Short: "Import tasks from an HCL manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := manifest.Load(args[0], manifest.Options{Vars: vars, Location: a.svc.Location()})
			if err != nil {
				return err
			}

			created, err := a.svc.ImportTasks(cmd.Context(), batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks\n", len(created))
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&vars, "var", nil, "Manifest variable as name=value (repeatable)")
	return cmd
}

func printTasks(w io.Writer, tasks []*task.Task) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPRI\tDUR\tDEADLINE\tSCHEDULED\tDEPENDS ON")
	for _, t := range tasks {
		deps := append([]string(nil), t.Dependencies...)
		sort.Strings(deps)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dm\t%s\t%s\t%s\n",
			truncateID(t.ID),
			t.Name,
			t.Status,
			t.Priority,
			t.Duration,
			formatTime(t.Deadline),
			formatSlot(t),
			strings.Join(deps, ","),
		)
	}
	tw.Flush()
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:8] + "..."
	}
	return id
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func formatSlot(t *task.Task) string {
	if !t.IsScheduled() {
		return "-"
	}
	return fmt.Sprintf("%s-%s", t.ScheduledStart.Format("2006-01-02 15:04"), t.ScheduledEnd.Format("15:04"))
}

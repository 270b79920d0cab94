package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDepsCmd(a *app) *cobra.Command {
	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "Inspect and repair the dependency graph",
	}

	statusCmd := &cobra.Command{
		Use:   "status [task-id]",
		Short: "Show which dependencies of a task are completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.svc.DependencyStatus(args[0])
			if err != nil {
				return err
			}
			if len(status) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no outstanding dependencies\n", args[0])
				return nil
			}

			ids := make([]string, 0, len(status))
			for id := range status {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				state := "waiting"
				if status[id] {
					state = "completed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, state)
			}
			return nil
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum := a.svc.Summary()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tasks:     %d\n", sum.TotalTasks)
			fmt.Fprintf(out, "Completed: %d\n", sum.CompletedTasks)
			fmt.Fprintf(out, "Waiting:   %d\n", sum.WaitingTasks)
			fmt.Fprintf(out, "Deadlocks: %d\n", sum.Deadlocks)
			for _, cycle := range sum.DeadlockCycles {
				fmt.Fprintf(out, "  %s\n", strings.Join(cycle, " -> "))
			}

			waiting := a.svc.WaitingTasks()
			if len(waiting) > 0 {
				ids := make([]string, 0, len(waiting))
				for id := range waiting {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				fmt.Fprintln(out, "\nWaiting on:")
				for _, id := range ids {
					fmt.Fprintf(out, "  %s <- %s\n", id, strings.Join(waiting[id], ", "))
				}
			}
			return nil
		},
	}

	deadlocksCmd := &cobra.Command{
		Use:   "deadlocks",
		Short: "List dependency cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cycles := a.svc.Deadlocks()
			if len(cycles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deadlocks")
				return nil
			}
			for _, cycle := range cycles {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(cycle, " -> "))
			}
			return nil
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Break every dependency cycle and save the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolutions, err := a.svc.ResolveDeadlocks(cmd.Context())
			if err != nil {
				return err
			}
			if len(resolutions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deadlocks")
				return nil
			}
			for _, r := range resolutions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s no longer waits on %s (cycle %s)\n",
					r.TaskID, r.RemovedDep, strings.Join(r.Cycle, " -> "))
			}
			return nil
		},
	}

	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Print task ids with dependencies first",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := a.svc.Order()
			if err != nil {
				return err
			}
			for _, id := range order {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	repairsCmd := &cobra.Command{
		Use:   "repairs",
		Short: "List dependency edges removed to break cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			repairs, err := a.svc.Repairs(cmd.Context())
			if err != nil {
				return err
			}
			if len(repairs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No repairs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK\tREMOVED\tCYCLE\tAT")
			for _, r := range repairs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.TaskID, r.RemovedDep,
					strings.Join(r.Cycle, " -> "), r.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	depsCmd.AddCommand(statusCmd, summaryCmd, deadlocksCmd, resolveCmd, orderCmd, repairsCmd)
	return depsCmd
}

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/planner/internal/planner"
)

// windowFlags are shared by generate and compare.
type windowFlags struct {
	date   string
	start  string
	end    string
	policy string
}

func (f *windowFlags) register(cmd *cobra.Command, withPolicy bool) {
	cmd.Flags().StringVar(&f.date, "date", "", "Day to schedule as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.start, "start", "", "Window start HH:MM (default from config)")
	cmd.Flags().StringVar(&f.end, "end", "", "Window end HH:MM (default from config)")
	if withPolicy {
		cmd.Flags().StringVar(&f.policy, "policy", "", "Policy: round_robin, fcfs, sjf, ljf, priority")
	}
}

func (f *windowFlags) request(a *app) (planner.ScheduleRequest, error) {
	date, err := a.parseDate(f.date)
	if err != nil {
		return planner.ScheduleRequest{}, err
	}
	return planner.ScheduleRequest{
		Date:    date,
		Start:   f.start,
		End:     f.end,
		Policy:  f.policy,
		Profile: a.profile,
	}, nil
}

func (a *app) parseDate(s string) (time.Time, error) {
	return planner.ParseDate(s, a.svc.Location(), time.Now())
}

func newScheduleCmd(a *app) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate and inspect daily schedules",
	}
	scheduleCmd.AddCommand(
		newScheduleGenerateCmd(a),
		newScheduleShowCmd(a),
		newScheduleResetCmd(a),
		newScheduleCompareCmd(a),
		newScheduleRunsCmd(a),
	)
	return scheduleCmd
}

func newScheduleGenerateCmd(a *app) *cobra.Command {
	var wf windowFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Schedule every open, unscheduled task into the day",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := wf.request(a)
			if err != nil {
				return err
			}

			report, err := a.svc.GenerateSchedule(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Schedule for %s (%s, %s-%s)\n\n", report.Date, report.Policy,
				report.WindowStart.Format("15:04"), report.WindowEnd.Format("15:04"))

			for _, r := range report.Resolutions {
				fmt.Fprintf(out, "Broke dependency cycle: %s no longer waits on %s\n", r.TaskID, r.RemovedDep)
			}

			if len(report.Scheduled) == 0 {
				fmt.Fprintln(out, "Nothing scheduled")
			} else {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "START\tEND\tID\tNAME")
				for _, t := range report.Scheduled {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						t.ScheduledStart.Format("15:04"), t.ScheduledEnd.Format("15:04"), truncateID(t.ID), t.Name)
				}
				tw.Flush()
			}

			if len(report.Unscheduled) > 0 {
				fmt.Fprintf(out, "\nUnscheduled (%d):\n", len(report.Unscheduled))
				for _, u := range report.Unscheduled {
					fmt.Fprintf(out, "  %s %s: %s\n", truncateID(u.Task.ID), u.Task.Name, u.Reason)
				}
			}
			return nil
		},
	}

	wf.register(cmd, true)
	return cmd
}

func newScheduleShowCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the tasks scheduled on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.parseDate(date)
			if err != nil {
				return err
			}

			tasks, err := a.svc.DailySchedule(cmd.Context(), day)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing scheduled on %s\n", day.Format("2006-01-02"))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "START\tEND\tID\tNAME\tSTATUS")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					t.ScheduledStart.Format("15:04"), t.ScheduledEnd.Format("15:04"), truncateID(t.ID), t.Name, t.Status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day as YYYY-MM-DD (default today)")
	return cmd
}

func newScheduleResetCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the slots of every task scheduled on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.parseDate(date)
			if err != nil {
				return err
			}

			n, err := a.svc.ResetSchedule(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d scheduled tasks\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day as YYYY-MM-DD (default today)")
	return cmd
}

func newScheduleCompareCmd(a *app) *cobra.Command {
	var wf windowFlags

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run every policy on the open tasks without saving",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := wf.request(a)
			if err != nil {
				return err
			}

			results, err := a.svc.ComparePolicies(cmd.Context(), req)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "POLICY\tSCHEDULED\tUNSCHEDULED\tBUSY\tENDS")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", r.Policy, r.Scheduled, r.Unscheduled, r.Busy, r.End.Format("15:04"))
			}
			return tw.Flush()
		},
	}

	wf.register(cmd, false)
	return cmd
}

func newScheduleRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent schedule generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.svc.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tPOLICY\tWINDOW\tSCHEDULED\tUNSCHEDULED\tAT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s-%s\t%d\t%d\t%s\n",
					r.Date, r.Policy, r.WindowStart.Format("15:04"), r.WindowEnd.Format("15:04"),
					r.Scheduled, r.Unscheduled, r.CreatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show (0 for all)")
	return cmd
}

package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/planner/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive schedule viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.parseDate(date)
			if err != nil {
				return err
			}

			model := tui.New(tui.Options{
				Bus:         a.bus,
				Planner:     a.svc,
				Config:      a.cfg,
				Date:        day,
				Profile:     a.profile,
				GlobalPath:  a.globalPath,
				ProjectPath: a.projectPath,
			})

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to show as YYYY-MM-DD (default today)")
	return cmd
}

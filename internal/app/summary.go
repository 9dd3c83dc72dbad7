package app

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"fitgrid/internal/posterior"
)

// printSummary renders the per-parameter posterior summary table.
func (a *App) printSummary(fit *posterior.FitResult) {
	t := table.NewWriter()
	t.SetOutputMirror(a.outW)
	t.AppendHeader(table.Row{"Parameter", "Mean", "SD", "5%", "95%"})
	for _, s := range fit.Draws.Summary() {
		t.AppendRow(table.Row{
			s.Name,
			fmt.Sprintf("%.3f", s.Mean),
			fmt.Sprintf("%.3f", s.SD),
			fmt.Sprintf("%.3f", s.Q5),
			fmt.Sprintf("%.3f", s.Q95),
		})
	}
	t.Render()
}

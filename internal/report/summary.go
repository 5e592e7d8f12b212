package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/pipeline"
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, Label.Render(fmt.Sprintf("%-20s", label)), Value.Render(value))
}

func stability(sys lti.StateSpace) string {
	if lti.IsStable(sys) {
		return Good.Render("stable")
	}
	return Bad.Render("unstable")
}

// Summary formats the headline numbers of a synthesis run.
func Summary(r *pipeline.Report) string {
	lines := []string{
		Title.Render(r.Scenario.Name),
		"",
		row("Final Gamma", fmt.Sprintf("%.6g", r.Result.Gamma)),
		row("Max Singular Value", fmt.Sprintf("%.6g at %.4g rad/s", r.Peak.Value, r.Peak.Omega)),
		row("Plant", fmt.Sprintf("%d states, %d inputs, %d outputs", r.Plant.States(), r.Plant.Inputs(), r.Plant.Outputs())),
		row("Controller", fmt.Sprintf("%d states", r.Result.Controller.States())),
		row("Closed loop", stability(r.Result.ClosedLoop)),
		row("Bisection steps", fmt.Sprintf("%d", len(r.Result.Iterations))),
		row("Elapsed", r.Elapsed.Round(time.Millisecond).String()),
	}
	return Panel.Render(strings.Join(lines, "\n"))
}

// DKSummary tabulates the iterations of a D-K run.
func DKSummary(r *pipeline.DKReport) string {
	lines := []string{
		Title.Render(r.Scenario.Name + " (D-K)"),
		"",
		Subtle.Render(fmt.Sprintf("%-6s %-12s %-12s %-12s", "iter", "gamma", "mu peak", "omega")),
	}
	for _, it := range r.History {
		line := fmt.Sprintf("%-6d %-12.5g %-12.5g %-12.4g", it.Index, it.Gamma, it.MuPeak, it.MuOmega)
		if it.Index == r.Best.Index {
			line = Good.Render(line)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "",
		row("State", r.State.String()),
		row("Best mu", fmt.Sprintf("%.6g", r.Best.MuPeak)),
		row("Elapsed", r.Elapsed.Round(time.Millisecond).String()),
	)
	return Panel.Render(strings.Join(lines, "\n"))
}

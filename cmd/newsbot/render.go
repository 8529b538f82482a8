package main

import (
	"fmt"
	"strings"

	"newsbot/orchestrator"
	"newsbot/types"

	"github.com/charmbracelet/lipgloss"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)
)

func styleFor(status types.ThreadStatus) lipgloss.Style {
	switch status {
	case types.ThreadPublished:
		return statusStyle
	case types.ThreadPartial, types.ThreadSkipped:
		return warnStyle
	case types.ThreadFailed:
		return errorStyle
	default:
		return infoStyle
	}
}

func firstLine(s string, max int) string {
	line, _, _ := strings.Cut(s, "\n")
	r := []rune(line)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return line
}

func renderDates(dates []string) string {
	if len(dates) == 0 {
		return infoStyle.Render("no stored runs")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Stored runs"))
	for _, d := range dates {
		b.WriteString("\n  " + d)
	}
	return b.String()
}

func renderState(state *types.RunState) string {
	var b strings.Builder

	header := fmt.Sprintf("Run %s  id=%s\nposts published: %d", state.RunDate, state.RunID, state.PublishedPosts())
	if state.Degraded {
		header += "  " + warnStyle.Render("degraded")
	}
	b.WriteString(boxStyle.Render(header))
	b.WriteString("\n")

	for _, th := range state.Threads {
		label := fmt.Sprintf("%-9s", th.Status)
		fmt.Fprintf(&b, "\n%s thread %2d (%s) %d/%d posts",
			styleFor(th.Status).Render(label), th.Index, th.Kind, th.PublishedCount(), len(th.Posts))
		if th.Fallback {
			b.WriteString(" fallback")
		}
		if th.Error != "" {
			b.WriteString("  " + errorStyle.Render(th.Error))
		}
		for i, p := range th.Posts {
			id := p.ID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(&b, "\n    %d. [%s] %s", i+1, id, infoStyle.Render(firstLine(p.Text, 60)))
		}
	}

	if len(state.Notes) > 0 {
		b.WriteString("\n" + titleStyle.Render("Notes"))
		for _, n := range state.Notes {
			b.WriteString("\n  " + n)
		}
	}
	return b.String()
}

func renderResult(res *orchestrator.Result) string {
	c := res.Counts
	lines := []string{
		fmt.Sprintf("Run date:   %s", res.RunDate),
		fmt.Sprintf("Fetched:    %d items (%d feeds failed)", c.Fetched, c.SourceErrors),
		fmt.Sprintf("Candidates: %d, selected %d (%d fallback)", c.Candidates, c.Selected, c.Fallbacks),
		fmt.Sprintf("Threads:    %d, posts published %d", c.Threads, c.PublishedPosts),
	}
	if res.Resumed {
		lines = append(lines, warnStyle.Render("resumed from stored plan"))
	}
	if res.ExportPath != "" {
		lines = append(lines, "Export:     "+res.ExportPath)
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

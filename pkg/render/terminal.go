package render

import (
	"fmt"
	"strings"
	"time"

	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/ticket"

	"github.com/charmbracelet/lipgloss"
)

var (
	faintColor  = lipgloss.Color("#6B7280")
	normalColor = lipgloss.Color("#E5E7EB")

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(faintColor).
			Padding(0, 1)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(normalColor)
)

// TerminalCards renders tickets as bordered cards for a terminal of the given
// width. A width of zero or less leaves the cards unconstrained.
func TerminalCards(now time.Time, tickets []ticket.Ticket, width int) string {
	cards := make([]string, 0, len(tickets))
	for _, t := range tickets {
		cards = append(cards, terminalCard(now, t, width))
	}
	return strings.Join(cards, "\n")
}

func terminalCard(now time.Time, t ticket.Ticket, width int) string {
	style := SentimentStyleFor(t.Sentiment)

	badge := lipgloss.NewStyle().
		Foreground(lipgloss.Color(style.Terminal)).
		Bold(true).
		Render(fmt.Sprintf("%s %s", style.Emoji, t.Sentiment))

	dot := lipgloss.NewStyle().
		Foreground(lipgloss.Color(priorityTerminalColor(t.Priority))).
		Render("●")

	id := lipgloss.NewStyle().Foreground(faintColor).Render("#" + t.ID)
	footer := lipgloss.NewStyle().
		Foreground(faintColor).
		Render(fmt.Sprintf("%s · %s priority", TimeAgo(now, t.Timestamp), t.Priority))

	body := lipgloss.JoinVertical(lipgloss.Left,
		badge+" "+dot+"  "+id,
		lipgloss.NewStyle().Foreground(normalColor).Render(t.Message),
		footer,
	)

	s := cardStyle
	if width > 0 {
		s = s.Width(width - 2)
	}
	return s.Render(body)
}

// TerminalStats renders the counters and the sentiment proportions as bars
func TerminalStats(stats feed.Stats, origin feed.Origin) string {
	var b strings.Builder

	counters := lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Total", stats.Total, normalColor),
		statBox("Urgent", stats.UrgentCount, lipgloss.Color("#EF4444")),
		statBox("Positive", stats.PositiveCount, lipgloss.Color("#22C55E")),
	)
	b.WriteString(counters)
	b.WriteString("\n")

	if origin == feed.OriginFallback {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Render("Showing sample data"))
		b.WriteString("\n")
	}

	data := NewChartData(stats.Frequency)
	for _, seg := range data.Segments {
		bar := lipgloss.NewStyle().
			Foreground(lipgloss.Color(seg.Color)).
			Render(strings.Repeat("█", (seg.Percent+4)/5))
		b.WriteString(fmt.Sprintf("%-10s %s %s\n", seg.Label, bar, seg.Tooltip))
	}

	return b.String()
}

func statBox(label string, value int, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(faintColor).
		Padding(0, 2).
		MarginRight(1).
		Render(headingStyle.Render(label) + "\n" +
			lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprint(value)))
}

// TerminalAnalysis renders an analysis outcome on one or two lines
func TerminalAnalysis(outcome AnalysisOutcome) string {
	if outcome.Err != nil {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Render("Analysis failed: " + FailureReason(outcome.Err))
	}
	if outcome.Result == nil {
		return ""
	}

	r := outcome.Result
	style := SentimentStyleFor(r.Category)
	line := lipgloss.NewStyle().
		Foreground(lipgloss.Color(style.Terminal)).
		Bold(true).
		Render(fmt.Sprintf("%s %s", style.Emoji, r.Category)) +
		fmt.Sprintf("  Score: %.3f", r.Score)

	if r.Confidence != nil {
		line += fmt.Sprintf("  Confidence: %.1f%%", *r.Confidence*100)
	}
	if r.HasProportions() {
		line += fmt.Sprintf("\nPositive %.1f%%  Negative %.1f%%  Neutral %.1f%%",
			*r.Positive*100, *r.Negative*100, *r.Neutral*100)
	}
	return line
}

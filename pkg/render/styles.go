// Package render turns a ticket feed into dashboard output: ticket cards, the
// sentiment chart, analysis results and the dashboard page itself.
package render

import (
	"ticketfeed-server/pkg/ticket"
)

// SentimentStyle holds the CSS classes and emoji used for a sentiment badge
type SentimentStyle struct {
	Background string `json:"bg"`
	Text       string `json:"text"`
	Border     string `json:"border"`
	Emoji      string `json:"emoji"`
	// Terminal is the hex color used by the terminal rendition
	Terminal string `json:"-"`
}

var (
	angerStyle = SentimentStyle{
		Background: "bg-red-100",
		Text:       "text-red-800",
		Border:     "border-red-200",
		Emoji:      "😠",
		Terminal:   "#EF4444",
	}
	joyStyle = SentimentStyle{
		Background: "bg-green-100",
		Text:       "text-green-800",
		Border:     "border-green-200",
		Emoji:      "😊",
		Terminal:   "#22C55E",
	}
	confusionStyle = SentimentStyle{
		Background: "bg-yellow-100",
		Text:       "text-yellow-800",
		Border:     "border-yellow-200",
		Emoji:      "🤔",
		Terminal:   "#F59E0B",
	}
	neutralStyle = SentimentStyle{
		Background: "bg-gray-100",
		Text:       "text-gray-800",
		Border:     "border-gray-200",
		Emoji:      "😐",
		Terminal:   "#6B7280",
	}

	sentimentStyles = map[string]SentimentStyle{
		ticket.SentimentAnger:     angerStyle,
		ticket.SentimentJoy:       joyStyle,
		ticket.SentimentConfusion: confusionStyle,
		ticket.SentimentPositive:  joyStyle,
		ticket.SentimentNegative:  angerStyle,
		ticket.SentimentNeutral:   neutralStyle,
	}

	priorityColors = map[string]string{
		ticket.PriorityHigh:   "bg-red-500",
		ticket.PriorityMedium: "bg-yellow-500",
		ticket.PriorityLow:    "bg-green-500",
	}

	priorityTerminalColors = map[string]string{
		ticket.PriorityHigh:   "#EF4444",
		ticket.PriorityMedium: "#F59E0B",
		ticket.PriorityLow:    "#22C55E",
	}
)

// SentimentStyleFor returns the style for label. Unknown labels get the
// Neutral style.
func SentimentStyleFor(label string) SentimentStyle {
	if style, ok := sentimentStyles[label]; ok {
		return style
	}
	return neutralStyle
}

// PriorityColorFor returns the indicator class for priority. Unknown values
// get the medium color.
func PriorityColorFor(priority string) string {
	if color, ok := priorityColors[priority]; ok {
		return color
	}
	return priorityColors[ticket.PriorityMedium]
}

func priorityTerminalColor(priority string) string {
	if color, ok := priorityTerminalColors[priority]; ok {
		return color
	}
	return priorityTerminalColors[ticket.PriorityMedium]
}

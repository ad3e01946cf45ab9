// Package ticket defines the support ticket record shown on the dashboard and
// normalizes the shapes in which ticket sources deliver it.
package ticket

import (
	"time"
)

// Sentiment labels known to the presentation tables. The label set is open:
// sources may deliver other labels, which render with the Neutral style.
const (
	SentimentAnger     = "Anger"
	SentimentJoy       = "Joy"
	SentimentConfusion = "Confusion"
	SentimentPositive  = "Positive"
	SentimentNegative  = "Negative"
	SentimentNeutral   = "Neutral"
)

// Priority values known to the presentation tables
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Ticket is a support request with its sentiment label and priority
type Ticket struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Sentiment string    `json:"sentiment"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// IsUrgent reports whether the ticket carries the high priority
func (t Ticket) IsUrgent() bool {
	return t.Priority == PriorityHigh
}

// IsPositive reports whether the ticket's sentiment counts toward the positive counter
func (t Ticket) IsPositive() bool {
	return t.Sentiment == SentimentJoy || t.Sentiment == SentimentPositive
}

// Fallback returns the fixed sample sequence shown when the ticket source is
// unreachable. Timestamps are relative to now.
func Fallback(now time.Time) []Ticket {
	return []Ticket{
		{
			ID:        "001",
			Message:   "I absolutely love this new feature! It works perfectly and saves me so much time. Great job!",
			Sentiment: SentimentJoy,
			Priority:  PriorityLow,
			Timestamp: now.Add(-2 * time.Hour),
		},
		{
			ID:        "002",
			Message:   "This is completely broken! I've been trying for hours and nothing works. Very frustrated!",
			Sentiment: SentimentAnger,
			Priority:  PriorityHigh,
			Timestamp: now.Add(-30 * time.Minute),
		},
		{
			ID:        "003",
			Message:   "I'm not sure how to use this feature. The documentation is unclear and I'm confused about the next steps.",
			Sentiment: SentimentConfusion,
			Priority:  PriorityMedium,
			Timestamp: now.Add(-4 * time.Hour),
		},
		{
			ID:        "004",
			Message:   "Thank you for the quick response! The solution worked perfectly. Excellent support team!",
			Sentiment: SentimentJoy,
			Priority:  PriorityLow,
			Timestamp: now.Add(-1 * time.Hour),
		},
		{
			ID:        "005",
			Message:   "The system keeps crashing when I try to upload files. This is blocking my work completely!",
			Sentiment: SentimentAnger,
			Priority:  PriorityHigh,
			Timestamp: now.Add(-15 * time.Minute),
		},
	}
}

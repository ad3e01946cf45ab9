package analyzer

import "ticketfeed-server/pkg/ticket"

// Score thresholds separating the three categories
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// CategoryFor maps a compound score to Positive, Negative or Neutral
func CategoryFor(score float64) string {
	switch {
	case score >= PositiveThreshold:
		return ticket.SentimentPositive
	case score <= NegativeThreshold:
		return ticket.SentimentNegative
	default:
		return ticket.SentimentNeutral
	}
}

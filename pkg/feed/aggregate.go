package feed

import (
	"encoding/json"
	"math"

	"ticketfeed-server/pkg/ticket"
)

// Frequency maps sentiment labels to occurrence counts. Labels keep the order
// in which they were first seen.
type Frequency struct {
	labels []string
	counts map[string]int
}

// NewFrequency counts sentiment labels over tickets in a single pass
func NewFrequency(tickets []ticket.Ticket) Frequency {
	f := Frequency{counts: make(map[string]int)}
	for _, t := range tickets {
		if _, seen := f.counts[t.Sentiment]; !seen {
			f.labels = append(f.labels, t.Sentiment)
		}
		f.counts[t.Sentiment]++
	}
	return f
}

// Labels returns the distinct labels in first-seen order
func (f Frequency) Labels() []string {
	out := make([]string, len(f.labels))
	copy(out, f.labels)
	return out
}

// Count returns the count for label, zero when absent
func (f Frequency) Count(label string) int {
	return f.counts[label]
}

// Len returns the number of distinct labels
func (f Frequency) Len() int {
	return len(f.labels)
}

// Sum returns the total of all counts
func (f Frequency) Sum() int {
	sum := 0
	for _, c := range f.counts {
		sum += c
	}
	return sum
}

// Map returns a copy of the counts as a plain map
func (f Frequency) Map() map[string]int {
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the frequency as a JSON object
func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

// Stats holds the dashboard counters computed from one ticket sequence
type Stats struct {
	Total         int       `json:"total"`
	UrgentCount   int       `json:"urgent_count"`
	PositiveCount int       `json:"positive_count"`
	Frequency     Frequency `json:"sentiment_frequency"`
}

// Aggregate computes the dashboard counters. It is recomputed from scratch on
// every render.
func Aggregate(tickets []ticket.Ticket) Stats {
	stats := Stats{
		Total:     len(tickets),
		Frequency: NewFrequency(tickets),
	}

	for _, t := range tickets {
		if t.IsUrgent() {
			stats.UrgentCount++
		}
		if t.IsPositive() {
			stats.PositiveCount++
		}
	}

	return stats
}

// SummaryEntry is one label's share of the feed
type SummaryEntry struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary returns each label's share of the total, rounded to one decimal
func (s Stats) Summary() []SummaryEntry {
	if s.Total == 0 {
		return nil
	}

	entries := make([]SummaryEntry, 0, s.Frequency.Len())
	for _, label := range s.Frequency.labels {
		count := s.Frequency.counts[label]
		pct := float64(count) * 100 / float64(s.Total)
		entries = append(entries, SummaryEntry{
			Label:   label,
			Count:   count,
			Percent: math.Round(pct*10) / 10,
		})
	}
	return entries
}

package render

import (
	"fmt"
	"math"
	"time"
)

// TimeAgo formats the age of ts relative to now in whole hours or days.
// Timestamps in the future read "Just now"; a zero timestamp reads "Unknown".
func TimeAgo(now, ts time.Time) string {
	if ts.IsZero() {
		return "Unknown"
	}

	hours := int(math.Floor(now.Sub(ts).Hours()))
	switch {
	case hours < 1:
		return "Just now"
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	default:
		return fmt.Sprintf("%dd ago", hours/24)
	}
}

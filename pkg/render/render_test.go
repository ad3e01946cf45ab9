package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/ticket"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestSentimentStyleFor(t *testing.T) {
	assert.Equal(t, "bg-red-100", SentimentStyleFor("Anger").Background)
	assert.Equal(t, "😊", SentimentStyleFor("Positive").Emoji)
	assert.Equal(t, "text-yellow-800", SentimentStyleFor("Confusion").Text)

	neutral := SentimentStyleFor("Neutral")
	for _, label := range []string{"Sarcasm", "", "joy"} {
		assert.Equal(t, neutral, SentimentStyleFor(label), "label %q", label)
	}
}

func TestPriorityColorFor(t *testing.T) {
	assert.Equal(t, "bg-red-500", PriorityColorFor("high"))
	assert.Equal(t, "bg-green-500", PriorityColorFor("low"))
	for _, p := range []string{"medium", "critical", ""} {
		assert.Equal(t, "bg-yellow-500", PriorityColorFor(p), "priority %q", p)
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, 7, 18, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		elapsed  time.Duration
		expected string
	}{
		{0, "Just now"},
		{59 * time.Minute, "Just now"},
		{90 * time.Minute, "1h ago"},
		{23*time.Hour + 59*time.Minute, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{50 * time.Hour, "2d ago"},
		{-2 * time.Hour, "Just now"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, TimeAgo(now, now.Add(-tc.elapsed)), "elapsed %v", tc.elapsed)
	}

	assert.Equal(t, "Unknown", TimeAgo(now, time.Time{}))
}

func TestCards(t *testing.T) {
	now := time.Date(2025, 7, 18, 12, 0, 0, 0, time.UTC)
	tickets := []ticket.Ticket{
		{ID: "001", Message: "Fine", Sentiment: "Joy", Priority: "low", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "002", Message: "<script>alert(1)</script>", Sentiment: "Sarcasm", Priority: "critical", Timestamp: now},
	}

	html, err := Cards(now, tickets)
	require.NoError(t, err)
	out := string(html)

	assert.Equal(t, 2, strings.Count(out, `class="ticket-card`))
	assert.Less(t, strings.Index(out, "#001"), strings.Index(out, "#002"))
	assert.Contains(t, out, "2h ago")
	assert.Contains(t, out, "bg-green-100 text-green-800 border-green-200")

	// Unknown labels fall back to the neutral badge and the medium dot
	assert.Contains(t, out, "bg-gray-100 text-gray-800 border-gray-200")
	assert.Contains(t, out, "😐 Sarcasm")
	assert.Contains(t, out, "bg-yellow-500")

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestCardsEmpty(t *testing.T) {
	html, err := Cards(time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(html)))
}

func frequencyOf(labels ...string) feed.Frequency {
	tickets := make([]ticket.Ticket, len(labels))
	for i, l := range labels {
		tickets[i] = ticket.Ticket{Sentiment: l}
	}
	return feed.NewFrequency(tickets)
}

func TestChartDataTooltips(t *testing.T) {
	data := NewChartData(frequencyOf("Joy", "Joy", "Anger", "Joy"))

	require.Len(t, data.Segments, 2)
	assert.Equal(t, "Joy: 3 (75%)", data.Segments[0].Tooltip)
	assert.Equal(t, "Anger: 1 (25%)", data.Segments[1].Tooltip)
	assert.Equal(t, ChartPalette[0], data.Segments[0].Color)
	assert.Equal(t, ChartPalette[1], data.Segments[1].Color)
	assert.Equal(t, 4, data.Total)
}

func TestChartDataRounding(t *testing.T) {
	// 1/8 = 12.5% rounds half up, 3/8 = 37.5% rounds half up
	data := NewChartData(frequencyOf("A", "B", "B", "B", "C", "C", "C", "C"))
	require.Len(t, data.Segments, 3)
	assert.Equal(t, 13, data.Segments[0].Percent)
	assert.Equal(t, 38, data.Segments[1].Percent)
	assert.Equal(t, 50, data.Segments[2].Percent)
}

func TestChartPaletteCycles(t *testing.T) {
	data := NewChartData(frequencyOf("A", "B", "C", "D", "E"))
	require.Len(t, data.Segments, 5)
	assert.Equal(t, ChartPalette[0], data.Segments[4].Color)
}

func TestChartDataEmpty(t *testing.T) {
	data := NewChartData(frequencyOf())
	assert.Empty(t, data.Segments)
	assert.Equal(t, 0, data.Total)
}

func draw(t *testing.T, m *ChartManager, freq feed.Frequency) *Chart {
	t.Helper()
	chart, _, err := m.Draw(freq)
	require.NoError(t, err)
	return chart
}

func TestChartManagerKeepsOneInstance(t *testing.T) {
	manager := NewChartManager(testLogger())
	assert.Nil(t, manager.Current())
	assert.Equal(t, 0, manager.Active())

	first := draw(t, manager, frequencyOf("Joy"))
	second := draw(t, manager, frequencyOf("Anger", "Joy"))

	assert.True(t, first.Destroyed())
	assert.False(t, second.Destroyed())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, second, manager.Current())
	assert.Equal(t, 1, manager.Active())
}

func TestDestroyedChartRefusesToRender(t *testing.T) {
	manager := NewChartManager(testLogger())
	first := draw(t, manager, frequencyOf("Joy"))
	draw(t, manager, frequencyOf("Anger"))

	svg, err := first.SVG()
	assert.Empty(t, svg)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Equal(t, first.ID, errors.GetErrorFields(err)["chart_id"])
}

func TestChartManagerConcurrentDraws(t *testing.T) {
	manager := NewChartManager(testLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, svg, err := manager.Draw(frequencyOf("Joy", "Anger"))
			if err == nil && svg == "" {
				err = fmt.Errorf("empty chart markup")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, manager.Active())
}

func TestChartSVGAndJSON(t *testing.T) {
	chart := draw(t, NewChartManager(testLogger()), frequencyOf("Joy", "Joy", "Joy", "Anger"))

	svg, err := chart.SVG()
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(svg), `class="chart-segment"`))
	assert.Contains(t, string(svg), "<title>Joy: 3 (75%)</title>")
	assert.Contains(t, string(svg), `stroke="#EF4444"`)

	data, err := json.Marshal(chart)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "doughnut", decoded["type"])
	assert.Equal(t, []interface{}{"Joy", "Anger"}, decoded["labels"])
	assert.Equal(t, []interface{}{float64(3), float64(1)}, decoded["data"])
}

func TestAnalysisFragmentInline(t *testing.T) {
	html, err := AnalysisFragment(analyzer.VariantInline, AnalysisOutcome{
		Result: &analyzer.Result{Score: 0.6369, Category: "Positive"},
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "😊 Positive")
	assert.Contains(t, out, "Score: <strong>0.64</strong>")
	assert.Contains(t, out, "bg-green-100 text-green-800")
}

func TestAnalysisFragmentModal(t *testing.T) {
	html, err := AnalysisFragment(analyzer.VariantModal, AnalysisOutcome{
		Result: &analyzer.Result{
			Score:    -0.4216,
			Category: "Negative",
			Positive: floatPtr(0.1),
			Negative: floatPtr(0.35),
			Neutral:  floatPtr(0.55),
		},
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "😠 Negative")
	assert.Contains(t, out, "-0.422")
	assert.Contains(t, out, "10.0%")
	assert.Contains(t, out, "35.0%")
	assert.Contains(t, out, "55.0%")
	assert.NotContains(t, out, "Confidence")
}

func TestAnalysisFragmentFailure(t *testing.T) {
	html, err := AnalysisFragment(analyzer.VariantInline, AnalysisOutcome{
		Err: errors.NewScoringFailed("Server error: 500"),
	})
	require.NoError(t, err)
	assert.Equal(t, `<div class="text-red-600">Analysis failed: Server error: 500</div>`, string(html))
}

func TestPresenterAndPage(t *testing.T) {
	presenter := NewPresenter("Support Dashboard", NewChartManager(testLogger()))
	result := feed.Result{
		Tickets: ticket.Fallback(time.Now()),
		Origin:  feed.OriginFallback,
		Source:  "tickets.json",
	}

	first, err := presenter.Present(result)
	require.NoError(t, err)
	second, err := presenter.Present(result)
	require.NoError(t, err)

	assert.True(t, first.Chart.Destroyed())
	assert.Equal(t, 1, presenter.Charts().Active())
	assert.Equal(t, 5, second.Stats.Total)
	assert.Equal(t, 2, second.Stats.UrgentCount)
	assert.Len(t, second.Summary, 3)

	var buf bytes.Buffer
	require.NoError(t, Page(&buf, PageData{
		Snapshot: second,
		Inline:   analyzer.State{Variant: analyzer.VariantInline, Label: "Analyze Sentiment"},
		Modal:    analyzer.State{Variant: analyzer.VariantModal, Label: "🔍 Analyze Sentiment"},
	}))
	page := buf.String()
	assert.Contains(t, page, "<title>Support Dashboard</title>")
	assert.Contains(t, page, "Showing sample data")
	assert.Equal(t, 5, strings.Count(page, `class="ticket-card`))
	assert.Contains(t, page, `id="urgentCount">2<`)

	assert.Error(t, Page(&buf, PageData{}))
}

func TestTerminalRendering(t *testing.T) {
	now := time.Now()
	tickets := ticket.Fallback(now)

	cards := TerminalCards(now, tickets, 60)
	assert.Contains(t, cards, "#001")
	assert.Contains(t, cards, "Just now")

	stats := TerminalStats(feed.Aggregate(tickets), feed.OriginFallback)
	assert.Contains(t, stats, "Showing sample data")
	assert.Contains(t, stats, "Joy: 2 (40%)")

	line := TerminalAnalysis(AnalysisOutcome{Result: &analyzer.Result{Score: 0.2, Category: "Positive"}})
	assert.Contains(t, line, "Score: 0.200")
	assert.Contains(t, TerminalAnalysis(AnalysisOutcome{Err: errors.ErrInFlight}), "already in progress")
}

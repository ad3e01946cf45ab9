package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"sync"
	"time"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChartPalette is applied to segments by index and wraps around
var ChartPalette = []string{"#EF4444", "#22C55E", "#F59E0B", "#6B7280"}

// Segment is one slice of the sentiment doughnut
type Segment struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent int     `json:"percent"`
	Color   string  `json:"color"`
	Tooltip string  `json:"tooltip"`
	Share   float64 `json:"-"`
	Offset  float64 `json:"-"`
}

// ChartData is the chart input derived from a sentiment frequency
type ChartData struct {
	Segments []Segment `json:"segments"`
	Total    int       `json:"total"`
}

// NewChartData builds one segment per label in first-seen order
func NewChartData(freq feed.Frequency) ChartData {
	data := ChartData{Total: freq.Sum()}
	if data.Total == 0 {
		return data
	}

	// Segments start at twelve o'clock and run clockwise
	offset := 25.0
	for i, label := range freq.Labels() {
		count := freq.Count(label)
		share := float64(count) * 100 / float64(data.Total)
		pct := roundHalfUp(share)

		data.Segments = append(data.Segments, Segment{
			Label:   label,
			Count:   count,
			Percent: pct,
			Color:   ChartPalette[i%len(ChartPalette)],
			Tooltip: fmt.Sprintf("%s: %d (%d%%)", label, count, pct),
			Share:   share,
			Offset:  offset,
		})
		offset -= share
	}
	return data
}

// Labels returns segment labels in order
func (d ChartData) Labels() []string {
	labels := make([]string, len(d.Segments))
	for i, s := range d.Segments {
		labels[i] = s.Label
	}
	return labels
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

const chartSVGTemplate = `<svg class="sentiment-chart" data-chart-id="{{.ID}}" viewBox="0 0 42 42" width="100%" height="100%" role="img">
<circle cx="21" cy="21" r="15.91549430918954" fill="#ffffff"></circle>
{{- range .Data.Segments}}
<circle class="chart-segment" cx="21" cy="21" r="15.91549430918954" fill="transparent" stroke="{{.Color}}" stroke-width="6" stroke-dasharray="{{dash .Share}}" stroke-dashoffset="{{printf "%.4f" .Offset}}"><title>{{.Tooltip}}</title></circle>
{{- end}}
</svg>
<ul class="chart-legend flex flex-wrap justify-center gap-4 mt-4 text-xs">
{{- range .Data.Segments}}
<li class="flex items-center space-x-1"><span class="inline-block w-3 h-3 rounded-full" style="background-color: {{.Color | css}}"></span><span>{{.Label}}</span></li>
{{- end}}
</ul>`

var chartTmpl = template.Must(template.New("chart").Funcs(template.FuncMap{
	"dash": func(share float64) string {
		return fmt.Sprintf("%.4f %.4f", share, 100-share)
	},
	"css": func(color string) template.CSS {
		return template.CSS(color)
	},
}).Parse(chartSVGTemplate))

// Chart is one rendered instance of the sentiment doughnut
type Chart struct {
	ID        string
	Data      ChartData
	CreatedAt time.Time

	mu        sync.Mutex
	destroyed bool
}

// Destroy releases the chart. Destroying twice is a no-op.
func (c *Chart) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

// Destroyed reports whether Destroy was called
func (c *Chart) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// SVG renders the chart and its legend as inline markup. A destroyed chart
// refuses to render.
func (c *Chart) SVG() (template.HTML, error) {
	if c.Destroyed() {
		return "", errors.Wrap(errors.ErrUnavailable, "chart has been destroyed").WithField("chart_id", c.ID)
	}

	var buf bytes.Buffer
	if err := chartTmpl.Execute(&buf, c); err != nil {
		return "", errors.Wrap(err, "failed to render sentiment chart").WithField("chart_id", c.ID)
	}
	return template.HTML(buf.String()), nil
}

// MarshalJSON encodes the chart in a doughnut chart configuration shape
func (c *Chart) MarshalJSON() ([]byte, error) {
	counts := make([]int, len(c.Data.Segments))
	colors := make([]string, len(c.Data.Segments))
	for i, s := range c.Data.Segments {
		counts[i] = s.Count
		colors[i] = s.Color
	}

	return json.Marshal(struct {
		ID       string    `json:"id"`
		Type     string    `json:"type"`
		Labels   []string  `json:"labels"`
		Data     []int     `json:"data"`
		Colors   []string  `json:"background_color"`
		Segments []Segment `json:"segments"`
		Total    int       `json:"total"`
	}{
		ID:       c.ID,
		Type:     "doughnut",
		Labels:   c.Data.Labels(),
		Data:     counts,
		Colors:   colors,
		Segments: c.Data.Segments,
		Total:    c.Data.Total,
	})
}

// ChartManager owns the single live chart instance. Every Draw destroys the
// previous instance before creating its replacement, and a destroyed instance
// no longer renders markup.
type ChartManager struct {
	logger *logrus.Entry

	mu      sync.Mutex
	current *Chart
	active  int
}

// NewChartManager creates a chart manager with no live chart
func NewChartManager(logger *logrus.Logger) *ChartManager {
	return &ChartManager{
		logger: logger.WithField("component", "chart_manager"),
	}
}

// Draw replaces the live chart with one built from freq and renders its
// markup before any other caller can replace it in turn
func (m *ChartManager) Draw(freq feed.Frequency) (*Chart, template.HTML, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chart := m.replace(freq)
	svg, err := chart.SVG()
	if err != nil {
		return nil, "", err
	}
	return chart, svg, nil
}

// replace destroys the previous chart and installs a new one. Callers hold m.mu.
func (m *ChartManager) replace(freq feed.Frequency) *Chart {
	if m.current != nil {
		m.current.Destroy()
		m.active--
		m.logger.WithField("chart_id", m.current.ID).Debug("Destroyed previous chart")
	}

	chart := &Chart{
		ID:        uuid.New().String(),
		Data:      NewChartData(freq),
		CreatedAt: time.Now(),
	}
	m.current = chart
	m.active++

	metrics.SetChartInstances(m.active)
	return chart
}

// Current returns the live chart, or nil before the first render
func (m *ChartManager) Current() *Chart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Active returns the number of live chart instances
func (m *ChartManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

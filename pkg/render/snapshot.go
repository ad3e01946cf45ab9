package render

import (
	"html/template"
	"time"

	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/metrics"
	"ticketfeed-server/pkg/ticket"
)

// Snapshot is the complete output of one render cycle. Each refresh builds a
// new snapshot that replaces the previous one in full.
type Snapshot struct {
	Title       string              `json:"title"`
	Origin      feed.Origin         `json:"origin"`
	Source      string              `json:"source"`
	GeneratedAt time.Time           `json:"generated_at"`
	Tickets     []ticket.Ticket     `json:"tickets"`
	Stats       feed.Stats          `json:"stats"`
	Summary     []feed.SummaryEntry `json:"summary"`
	Chart       *Chart              `json:"chart"`
	CardsHTML   template.HTML       `json:"cards_html"`
	ChartSVG    template.HTML       `json:"chart_svg"`
}

// Presenter turns fetch results into snapshots, routing every chart through
// one ChartManager
type Presenter struct {
	title  string
	charts *ChartManager
	now    func() time.Time
}

// NewPresenter creates a presenter drawing charts with charts
func NewPresenter(title string, charts *ChartManager) *Presenter {
	return &Presenter{
		title:  title,
		charts: charts,
		now:    time.Now,
	}
}

// Charts returns the presenter's chart manager
func (p *Presenter) Charts() *ChartManager {
	return p.charts
}

// Present renders cards, counters and the chart for one fetch result
func (p *Presenter) Present(result feed.Result) (*Snapshot, error) {
	now := p.now()
	stats := feed.Aggregate(result.Tickets)

	cards, err := Cards(now, result.Tickets)
	if err != nil {
		return nil, err
	}

	chart, svg, err := p.charts.Draw(stats.Frequency)
	if err != nil {
		return nil, err
	}

	tickets := result.Tickets
	if tickets == nil {
		tickets = []ticket.Ticket{}
	}

	metrics.RecordRender(len(tickets))

	return &Snapshot{
		Title:       p.title,
		Origin:      result.Origin,
		Source:      result.Source,
		GeneratedAt: now,
		Tickets:     tickets,
		Stats:       stats,
		Summary:     stats.Summary(),
		Chart:       chart,
		CardsHTML:   cards,
		ChartSVG:    svg,
	}, nil
}

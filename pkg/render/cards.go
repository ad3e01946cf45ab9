package render

import (
	"bytes"
	"html/template"
	"time"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/ticket"
)

const cardTemplate = `{{define "card"}}
<div class="ticket-card p-4 border rounded-lg hover:shadow-md transition-shadow bg-white" data-ticket-id="{{.ID}}">
    <div class="flex items-start justify-between mb-3">
        <div class="flex items-center space-x-2">
            <span class="inline-flex items-center px-2.5 py-0.5 rounded-full text-xs font-medium {{.Style.Background}} {{.Style.Text}} {{.Style.Border}} border">
                {{.Style.Emoji}} {{.Sentiment}}
            </span>
            <div class="w-2 h-2 rounded-full {{.PriorityColor}}" title="{{.Priority}} priority"></div>
        </div>
        <span class="text-xs text-gray-500">#{{.ID}}</span>
    </div>
    <p class="text-gray-700 text-sm leading-relaxed mb-3">{{.Message}}</p>
    <div class="flex items-center justify-between text-xs text-gray-500">
        <span>{{.Age}}</span>
        <span class="capitalize">{{.Priority}} priority</span>
    </div>
</div>
{{end}}{{define "cards"}}{{range .}}{{template "card" .}}{{end}}{{end}}`

var cardTmpl = template.Must(template.New("cards").Parse(cardTemplate))

// cardView is the per-ticket data the card template reads
type cardView struct {
	ID            string
	Message       string
	Sentiment     string
	Priority      string
	Style         SentimentStyle
	PriorityColor string
	Age           string
}

func newCardView(now time.Time, t ticket.Ticket) cardView {
	return cardView{
		ID:            t.ID,
		Message:       t.Message,
		Sentiment:     t.Sentiment,
		Priority:      t.Priority,
		Style:         SentimentStyleFor(t.Sentiment),
		PriorityColor: PriorityColorFor(t.Priority),
		Age:           TimeAgo(now, t.Timestamp),
	}
}

// Cards renders one card fragment per ticket, in input order, concatenated.
// All ticket text is HTML-escaped.
func Cards(now time.Time, tickets []ticket.Ticket) (template.HTML, error) {
	views := make([]cardView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, newCardView(now, t))
	}

	var buf bytes.Buffer
	if err := cardTmpl.ExecuteTemplate(&buf, "cards", views); err != nil {
		return "", errors.Wrap(err, "failed to render ticket cards")
	}
	return template.HTML(buf.String()), nil
}

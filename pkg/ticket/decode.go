package ticket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ticketfeed-server/pkg/errors"
)

// wireTicket accepts both the dashboard's flat ticket objects and the
// backend's tickets carrying a nested sentiment result.
type wireTicket struct {
	ID                json.RawMessage `json:"id"`
	Message           string          `json:"message"`
	Sentiment         json.RawMessage `json:"sentiment"`
	SentimentAnalysis *wireSentiment  `json:"sentiment_analysis"`
	Priority          string          `json:"priority"`
	Timestamp         string          `json:"timestamp"`
}

type wireSentiment struct {
	Sentiment string `json:"sentiment"`
}

type envelope struct {
	Tickets *[]json.RawMessage `json:"tickets"`
}

// timestamp layouts accepted on the wire; zone-less layouts are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Decode normalizes a ticket source body. The body is either a bare JSON array
// of tickets or an object with a "tickets" array.
func Decode(body []byte) ([]Ticket, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.NewMalformedSource("empty body")
	}

	var elements []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &elements); err != nil {
			return nil, errors.NewMalformedSource(err.Error())
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, errors.NewMalformedSource(err.Error())
		}
		if env.Tickets == nil {
			return nil, errors.NewMalformedSource(`object without "tickets" field`)
		}
		elements = *env.Tickets
	default:
		return nil, errors.NewMalformedSource(fmt.Sprintf("unexpected leading byte %q", body[0]))
	}

	tickets := make([]Ticket, 0, len(elements))
	for i, raw := range elements {
		t, err := decodeOne(raw)
		if err != nil {
			return nil, errors.NewMalformedSource(fmt.Sprintf("ticket %d: %v", i, err))
		}
		tickets = append(tickets, t)
	}

	return tickets, nil
}

func decodeOne(raw json.RawMessage) (Ticket, error) {
	var w wireTicket
	if err := json.Unmarshal(raw, &w); err != nil {
		return Ticket{}, err
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return Ticket{}, err
	}

	sentiment, err := decodeSentiment(w.Sentiment, w.SentimentAnalysis)
	if err != nil {
		return Ticket{}, err
	}

	return Ticket{
		ID:        id,
		Message:   w.Message,
		Sentiment: sentiment,
		Priority:  strings.ToLower(strings.TrimSpace(w.Priority)),
		Timestamp: ParseTimestamp(w.Timestamp),
	}, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}

func decodeSentiment(raw json.RawMessage, nested *wireSentiment) (string, error) {
	if len(raw) > 0 && string(raw) != "null" {
		var label string
		if err := json.Unmarshal(raw, &label); err == nil {
			return label, nil
		}

		var result wireSentiment
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", fmt.Errorf("sentiment must be a label or a result object: %w", err)
		}
		return titleCase(result.Sentiment), nil
	}

	if nested != nil {
		return titleCase(nested.Sentiment), nil
	}

	return "", nil
}

func titleCase(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + strings.ToLower(label[1:])
}

// ParseTimestamp parses an ISO-8601 timestamp. Unparseable values yield the zero time.
func ParseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}

	return time.Time{}
}

// Package messaging publishes analysis events to a message broker so other
// services can follow what users score on the dashboard.
package messaging

import (
	"context"
	"time"

	"ticketfeed-server/pkg/analyzer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AnalysisEvent describes one completed analysis. The analyzed text is never
// included: submissions are not persisted anywhere.
type AnalysisEvent struct {
	EventID    string    `json:"event_id"`
	Variant    string    `json:"variant"`
	Score      float64   `json:"score"`
	Category   string    `json:"category"`
	Label      string    `json:"label,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Positive   *float64  `json:"positive,omitempty"`
	Negative   *float64  `json:"negative,omitempty"`
	Neutral    *float64  `json:"neutral,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAnalysisEvent builds an event for result with a fresh id
func NewAnalysisEvent(variant analyzer.Variant, result *analyzer.Result, now time.Time) AnalysisEvent {
	return AnalysisEvent{
		EventID:    uuid.New().String(),
		Variant:    string(variant),
		Score:      result.Score,
		Category:   result.Category,
		Label:      result.Label,
		Confidence: result.Confidence,
		Positive:   result.Positive,
		Negative:   result.Negative,
		Neutral:    result.Neutral,
		Timestamp:  now.UTC(),
	}
}

// Publisher delivers analysis events
type Publisher interface {
	PublishAnalysis(ctx context.Context, event AnalysisEvent) error
	IsConnected() bool
	Close()
}

// NoopPublisher drops every event. It is used when messaging is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishAnalysis(context.Context, AnalysisEvent) error { return nil }
func (NoopPublisher) IsConnected() bool                                     { return false }
func (NoopPublisher) Close()                                                {}

// AnalysisNotifier forwards completed analyses to a publisher. Publish
// failures are logged and never reach the user.
type AnalysisNotifier struct {
	logger    *logrus.Entry
	publisher Publisher
	now       func() time.Time
}

// NewAnalysisNotifier creates a notifier publishing through publisher
func NewAnalysisNotifier(logger *logrus.Logger, publisher Publisher) *AnalysisNotifier {
	return &AnalysisNotifier{
		logger:    logger.WithField("component", "analysis_notifier"),
		publisher: publisher,
		now:       time.Now,
	}
}

// AnalysisCompleted implements analyzer.Listener
func (n *AnalysisNotifier) AnalysisCompleted(ctx context.Context, variant analyzer.Variant, result *analyzer.Result) {
	if result == nil {
		return
	}

	event := NewAnalysisEvent(variant, result, n.now())
	if err := n.publisher.PublishAnalysis(ctx, event); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"variant":  event.Variant,
		}).Warn("Failed to publish analysis event")
	}
}

// Package analyzer submits free text to the remote sentiment scoring endpoint
// and tracks the state of the controls that trigger those submissions.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// maxResponseBytes bounds how much of a scoring response is read
const maxResponseBytes = 1 << 20

// Result is a scoring response. Optional fields are nil when the endpoint did
// not report them.
type Result struct {
	Score      float64  `json:"score"`
	Confidence *float64 `json:"confidence,omitempty"`
	Positive   *float64 `json:"positive,omitempty"`
	Negative   *float64 `json:"negative,omitempty"`
	Neutral    *float64 `json:"neutral,omitempty"`
	Label      string   `json:"label,omitempty"`
	Language   string   `json:"language,omitempty"`
	Category   string   `json:"category"`
}

// HasProportions reports whether all three proportion fields are present
func (r *Result) HasProportions() bool {
	return r.Positive != nil && r.Negative != nil && r.Neutral != nil
}

// Scorer scores a single text
type Scorer interface {
	Score(ctx context.Context, text string) (*Result, error)
}

// scoreRequest carries the text under both field names the scoring services accept
type scoreRequest struct {
	Text       string `json:"text"`
	Message    string `json:"message"`
	SaveTicket bool   `json:"save_ticket"`
}

type scoreResponse struct {
	Compound   *float64        `json:"compound"`
	Score      *float64        `json:"score"`
	Pos        *float64        `json:"pos"`
	Positive   *float64        `json:"positive"`
	Neg        *float64        `json:"neg"`
	Negative   *float64        `json:"negative"`
	Neu        *float64        `json:"neu"`
	Neutral    *float64        `json:"neutral"`
	Confidence *float64        `json:"confidence"`
	Sentiment  json.RawMessage `json:"sentiment"`
	Language   string          `json:"language_detected"`
}

// Client posts text to the scoring endpoint
type Client struct {
	logger   *logrus.Entry
	endpoint string
	client   *http.Client
}

// NewClient creates a scoring client. A nil client uses a client with the
// default transport and no timeout.
func NewClient(logger *logrus.Logger, endpoint string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}

	return &Client{
		logger:   logger.WithField("component", "scoring_client"),
		endpoint: endpoint,
		client:   client,
	}
}

// Endpoint returns the scoring endpoint URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Score sends one request and decodes the result. It never retries.
func (c *Client) Score(ctx context.Context, text string) (*Result, error) {
	payload, err := json.Marshal(scoreRequest{Text: text, Message: text})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode scoring request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewScoringFailed(err.Error(), map[string]interface{}{"endpoint": c.endpoint})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCanceled, "scoring request canceled").
				WithField("endpoint", c.endpoint)
		}
		return nil, errors.NewScoringFailed(err.Error(), map[string]interface{}{"endpoint": c.endpoint})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NewScoringFailed(err.Error(), map[string]interface{}{"endpoint": c.endpoint})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(body), 200),
		}).Debug("Scoring endpoint returned an error status")

		return nil, errors.NewScoringFailed(fmt.Sprintf("Server error: %d", resp.StatusCode),
			map[string]interface{}{"endpoint": c.endpoint, "status": resp.StatusCode})
	}

	result, err := decodeResult(body)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decodeResult(body []byte) (*Result, error) {
	var wire scoreResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.NewScoringFailed("Invalid response: " + err.Error())
	}

	score := firstOf(wire.Compound, wire.Score)
	if score == nil {
		return nil, errors.NewScoringFailed("Invalid response: no score")
	}

	result := &Result{
		Score:      *score,
		Confidence: wire.Confidence,
		Positive:   firstOf(wire.Pos, wire.Positive),
		Negative:   firstOf(wire.Neg, wire.Negative),
		Neutral:    firstOf(wire.Neu, wire.Neutral),
		Language:   wire.Language,
		Category:   CategoryFor(*score),
	}

	var label string
	if len(wire.Sentiment) > 0 && json.Unmarshal(wire.Sentiment, &label) == nil {
		result.Label = label
	}

	return result, nil
}

func firstOf(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

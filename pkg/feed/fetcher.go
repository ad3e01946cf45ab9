// Package feed retrieves the ticket feed and derives its aggregate counters.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/metrics"
	"ticketfeed-server/pkg/ticket"
	"ticketfeed-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds how much of a source response is read
const maxBodyBytes = 10 << 20

// Origin tells whether a fetch produced live data or the fallback sample
type Origin string

const (
	OriginLive     Origin = "live"
	OriginFallback Origin = "fallback"
)

// Result is the outcome of one fetch. Err holds the reason the fallback was
// used; it is informational and never needs handling by the caller.
type Result struct {
	Tickets   []ticket.Ticket
	Origin    Origin
	Source    string
	FetchedAt time.Time
	Err       error
}

// Fetcher loads tickets from a static file or a remote JSON endpoint
type Fetcher struct {
	logger *logrus.Entry
	source string
	client *http.Client
	now    func() time.Time
}

// NewFetcher creates a fetcher for source. A nil client uses a client with the
// default transport and no timeout.
func NewFetcher(logger *logrus.Logger, source string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}

	return &Fetcher{
		logger: logger.WithField("component", "feed_fetcher"),
		source: source,
		client: client,
		now:    time.Now,
	}
}

// Source returns the configured ticket source
func (f *Fetcher) Source() string {
	return f.source
}

// Fetch returns the live ticket sequence, or the fallback sequence when the
// source cannot be read or decoded. It never fails.
func (f *Fetcher) Fetch(ctx context.Context) Result {
	start := f.now()

	tickets, err := f.load(ctx)
	result := Result{
		Tickets:   tickets,
		Origin:    OriginLive,
		Source:    f.source,
		FetchedAt: start,
	}

	if err != nil {
		result.Tickets = ticket.Fallback(start)
		result.Origin = OriginFallback
		result.Err = err

		f.logger.WithError(err).WithFields(logrus.Fields{
			"source":  f.source,
			"tickets": len(result.Tickets),
		}).Warn("Loading sample data, ticket source unavailable")
	} else {
		f.logger.WithFields(logrus.Fields{
			"source":  f.source,
			"tickets": len(result.Tickets),
		}).Info("Dashboard loaded from ticket source")
	}

	metrics.RecordFetch(string(result.Origin), time.Since(start))
	return result
}

func (f *Fetcher) load(ctx context.Context) ([]ticket.Ticket, error) {
	var (
		body []byte
		err  error
	)

	if isRemote(f.source) {
		body, err = f.fetchRemote(ctx)
	} else {
		body, err = f.readFile()
	}
	if err != nil {
		return nil, err
	}

	return ticket.Decode(body)
}

func (f *Fetcher) fetchRemote(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source, nil)
	if err != nil {
		return nil, errors.NewSourceUnavailable(f.source, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewSourceUnavailable(f.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewSourceUnavailable(f.source, fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithField("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewSourceUnavailable(f.source, err)
	}
	return body, nil
}

func (f *Fetcher) readFile() ([]byte, error) {
	path := f.source
	if strings.HasPrefix(path, "file://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, errors.NewSourceUnavailable(f.source, err)
		}
		path = u.Path
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSourceUnavailable(f.source, err)
	}
	return body, nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

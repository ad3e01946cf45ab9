package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/correlation"
	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/ratelimit"
	"ticketfeed-server/pkg/render"
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

type stubFeed struct {
	result feed.Result
	calls  int
}

func (s *stubFeed) Fetch(ctx context.Context) feed.Result {
	s.calls++
	return s.result
}

func (s *stubFeed) Source() string { return "stub://tickets" }

func sampleTickets() []ticket.Ticket {
	now := time.Now()
	return []ticket.Ticket{
		{ID: "001", Message: "Love it", Sentiment: ticket.SentimentJoy, Priority: ticket.PriorityLow, Timestamp: now.Add(-time.Hour)},
		{ID: "002", Message: "Broken <again>", Sentiment: ticket.SentimentAnger, Priority: ticket.PriorityHigh, Timestamp: now.Add(-30 * time.Minute)},
		{ID: "003", Message: "Thanks", Sentiment: ticket.SentimentJoy, Priority: ticket.PriorityMedium, Timestamp: now.Add(-2 * time.Hour)},
	}
}

type testEnv struct {
	server  *Server
	feed    *stubFeed
	scoring *httptest.Server
}

// newTestEnv wires a server against a stub feed and a scoring endpoint that
// answers with handler
func newTestEnv(t *testing.T, scoring http.HandlerFunc) *testEnv {
	t.Helper()

	logger := testLogger()
	scoringSrv := httptest.NewServer(scoring)
	t.Cleanup(scoringSrv.Close)

	source := &stubFeed{result: feed.Result{
		Tickets:   sampleTickets(),
		Origin:    feed.OriginLive,
		Source:    "stub://tickets",
		FetchedAt: time.Now(),
	}}

	config := DefaultConfig()
	config.EnableMetrics = false

	server := NewServer(logger, config, Dependencies{
		Feed:      source,
		Presenter: render.NewPresenter("Sentiment Watchdog", render.NewChartManager(logger)),
		Analyzers: analyzer.NewPanel(logger, analyzer.NewClient(logger, scoringSrv.URL, scoringSrv.Client()), nil),
		Hub:       NewDashboardHub(logger),
	})
	server.SetCorrelationMiddleware(correlation.NewHTTPMiddleware(logger, false))

	return &testEnv{server: server, feed: source, scoring: scoringSrv}
}

func scoreHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDashboardPage(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.NotEmpty(t, rec.Header().Get(correlation.HTTPHeader))
	assert.Equal(t, "ticketfeed/1.0.0", rec.Header().Get("Server"))

	body := rec.Body.String()
	assert.Contains(t, body, `id="totalTickets"`)
	assert.Contains(t, body, "Broken &lt;again&gt;")
	assert.Contains(t, body, "Analyze Sentiment")
	assert.Equal(t, 1, env.feed.calls)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	first := env.do(httptest.NewRequest(http.MethodPost, "/refresh", nil))
	second := env.do(httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var snapshot struct {
		Stats struct {
			Total         int            `json:"total"`
			UrgentCount   int            `json:"urgent_count"`
			PositiveCount int            `json:"positive_count"`
			Frequency     map[string]int `json:"sentiment_frequency"`
		} `json:"stats"`
		Origin string `json:"origin"`
		Chart  struct {
			ID     string   `json:"id"`
			Labels []string `json:"labels"`
		} `json:"chart"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &snapshot))

	assert.Equal(t, 3, snapshot.Stats.Total)
	assert.Equal(t, 1, snapshot.Stats.UrgentCount)
	assert.Equal(t, 2, snapshot.Stats.PositiveCount)
	assert.Equal(t, map[string]int{"Joy": 2, "Anger": 1}, snapshot.Stats.Frequency)
	assert.Equal(t, "live", snapshot.Origin)
	assert.Equal(t, []string{"Joy", "Anger"}, snapshot.Chart.Labels)

	// Only the latest chart survives a refresh
	charts := env.server.deps.Presenter.Charts()
	assert.Equal(t, 1, charts.Active())
	assert.Equal(t, snapshot.Chart.ID, charts.Current().ID)
}

func TestTicketsEndpoint(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	testCases := []struct {
		name     string
		query    string
		status   int
		expected []string
	}{
		{"all", "", http.StatusOK, []string{"001", "002", "003"}},
		{"filter is case-insensitive", "?sentiment=joy", http.StatusOK, []string{"001", "003"}},
		{"limit", "?limit=2", http.StatusOK, []string{"001", "002"}},
		{"filter and limit", "?sentiment=JOY&limit=1", http.StatusOK, []string{"001"}},
		{"non-positive limit means no limit", "?limit=0", http.StatusOK, []string{"001", "002", "003"}},
		{"unknown label", "?sentiment=Confusion", http.StatusOK, []string{}},
		{"invalid limit", "?limit=ten", http.StatusBadRequest, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/tickets"+tc.query, nil))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusOK {
				return
			}

			var resp TicketsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			ids := []string{}
			for _, tk := range resp.Tickets {
				ids = append(ids, tk.ID)
			}
			assert.Equal(t, tc.expected, ids)
			assert.Equal(t, len(tc.expected), resp.TotalCount)
			assert.Equal(t, feed.OriginLive, resp.Origin)
		})
	}
}

func TestTicketByID(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/tickets/002", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sentiment":"Anger"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/tickets/999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "TICKET_NOT_FOUND", body["code"])
}

func TestFilterTickets(t *testing.T) {
	tickets := sampleTickets()

	assert.Len(t, FilterTickets(tickets, "", 0), 3)
	assert.Len(t, FilterTickets(tickets, "  anger ", 0), 1)
	assert.Len(t, FilterTickets(tickets, "", -1), 3)
	assert.Len(t, FilterTickets(nil, "Joy", 5), 0)
}

func TestAnalyzeJSON(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": -0.6, "pos": 0.0, "neg": 0.7, "neu": 0.3}`))

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"text": "It broke again", "variant": "modal"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result analyzer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, -0.6, result.Score, 1e-9)
	assert.Equal(t, "Negative", result.Category)
}

func TestAnalyzeJSONErrors(t *testing.T) {
	failing := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	testCases := []struct {
		name   string
		body   string
		status int
	}{
		{"empty text", `{"text": "   "}`, http.StatusBadRequest},
		{"malformed body", `not json`, http.StatusBadRequest},
		{"unknown variant", `{"text": "hi", "variant": "popup"}`, http.StatusBadRequest},
		{"scoring failure", `{"text": "hi"}`, http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(tc.body))
			rec := failing.do(req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func postForm(path, text string) *http.Request {
	form := url.Values{"text": {text}}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAnalyzeFragment(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.6369, "pos": 0.4, "neg": 0.0, "neu": 0.6}`))

	rec := env.do(postForm("/analyze/modal", "I love it"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "0.637")
	assert.Contains(t, body, "40.0%")
	assert.Contains(t, body, "Positive")

	rec = env.do(postForm("/analyze/inline", "I love it"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>0.64</strong>")

	rec = env.do(postForm("/analyze/inline", "   "))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.do(postForm("/analyze/popup", "hi"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeFragmentFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := env.do(postForm("/analyze/inline", "hello"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `<div class="text-red-600">Analysis failed: Server error: 500</div>`, strings.TrimSpace(rec.Body.String()))

	// The control is usable again after a failure
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/analyze/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Controls []analyzer.State `json:"controls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.Controls, 2)
	for _, state := range status.Controls {
		assert.False(t, state.Disabled)
		assert.Equal(t, analyzer.IdleLabel(state.Variant), state.Label)
	}
}

func TestAnalysisInFlightDoesNotLeakAcrossClients(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "hold" {
			entered <- struct{}{}
			<-release
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"compound": 0.6}`))
	})

	fromClient := func(req *http.Request, ip string) *http.Request {
		req.Header.Set("X-Forwarded-For", ip)
		return req
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- env.do(fromClient(postForm("/analyze/inline", "hold"), "10.0.0.1"))
	}()
	<-entered

	page := env.do(fromClient(httptest.NewRequest(http.MethodGet, "/", nil), "10.0.0.2"))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `rounded-lg">Analyze Sentiment</button>`)
	assert.NotContains(t, page.Body.String(), `disabled>`)

	rec := env.do(fromClient(postForm("/analyze/inline", "fine"), "10.0.0.2"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>0.60</strong>")

	// A reload by the busy client is rendered idle too
	page = env.do(fromClient(httptest.NewRequest(http.MethodGet, "/", nil), "10.0.0.1"))
	assert.NotContains(t, page.Body.String(), `disabled>`)

	// Only the busy client's own resubmission is refused
	rec = env.do(fromClient(postForm("/analyze/inline", "again"), "10.0.0.1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")

	close(release)
	first := <-done
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "<strong>0.60</strong>")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	// The hub is not running in this test
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "healthy", health.Checks["ticket_source"].Status)
	assert.Equal(t, "degraded", health.Checks["websocket"].Status)
	assert.NotContains(t, health.Checks, "amqp")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthUnhealthyWithoutPipeline(t *testing.T) {
	server := NewServer(testLogger(), nil, Dependencies{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, scoreHandler(`{"compound": 0.5}`))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "stub://tickets", status["ticket_source"])
	assert.Equal(t, float64(0), status["dashboard_subscribers"])
	assert.Equal(t, env.scoring.URL, status["scoring_url"])
	assert.Equal(t, float64(0), status["analyses_in_flight"])
	assert.NotContains(t, status, "chart_id")

	env.do(httptest.NewRequest(http.MethodPost, "/refresh", nil))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.NotEmpty(t, status["chart_id"])
}

func TestAnalyzeRateLimited(t *testing.T) {
	logger := testLogger()
	scoring := httptest.NewServer(scoreHandler(`{"compound": 0.2}`))
	defer scoring.Close()

	limiter := ratelimit.NewHTTPMiddleware(&ratelimit.Config{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		BurstSize:         2,
		BlockDuration:     time.Minute,
	}, logger)
	defer limiter.Stop()

	server := NewServer(logger, nil, Dependencies{
		Analyzers: analyzer.NewPanel(logger, analyzer.NewClient(logger, scoring.URL, nil), nil),
		Limiter:   limiter,
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, postForm("/analyze/inline", "fine"))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Read-only endpoints are not limited
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyze/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/correlation"
	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/ratelimit"
	"ticketfeed-server/pkg/render"
	"ticketfeed-server/pkg/ticket"

	"github.com/sirupsen/logrus"
)

// maxAnalyzeBody bounds the size of an analysis submission
const maxAnalyzeBody = 64 << 10

func (s *Server) requestLogger(r *http.Request) *logrus.Entry {
	return correlation.LoggerFromContext(r.Context(), s.logger)
}

// refresh runs one full render cycle and pushes the result to subscribers
func (s *Server) refresh(r *http.Request) (*render.Snapshot, error) {
	if s.deps.Feed == nil || s.deps.Presenter == nil {
		return nil, errors.NewInternalError("dashboard pipeline not configured")
	}

	result := s.deps.Feed.Fetch(r.Context())
	snapshot, err := s.deps.Presenter.Present(result)
	if err != nil {
		return nil, err
	}

	s.requestLogger(r).WithFields(logrus.Fields{
		"origin":   result.Origin,
		"tickets":  snapshot.Stats.Total,
		"chart_id": snapshot.Chart.ID,
	}).Debug("Dashboard refreshed")

	if s.deps.Hub != nil {
		s.deps.Hub.BroadcastSnapshot(snapshot)
	}
	return snapshot, nil
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.refresh(r)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	// Triggers always start idle; the browser disables its own trigger while
	// its request is outstanding.
	data := render.PageData{
		Snapshot: snapshot,
		Inline:   analyzer.IdleState(analyzer.VariantInline),
		Modal:    analyzer.IdleState(analyzer.VariantModal),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Page(w, data); err != nil {
		s.requestLogger(r).WithError(err).Error("Failed to write dashboard page")
	}
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.refresh(r)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// TicketsResponse is the body of GET /api/tickets
type TicketsResponse struct {
	Tickets     []ticket.Ticket     `json:"tickets"`
	TotalCount  int                 `json:"total_count"`
	Summary     []feed.SummaryEntry `json:"summary"`
	Origin      feed.Origin         `json:"origin"`
	RetrievedAt time.Time           `json:"retrieved_at"`
}

func (s *Server) ticketsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Feed == nil {
		s.ErrorResponse(w, r, errors.NewInternalError("ticket source not configured"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.ErrorResponse(w, r, errors.NewInvalidInput("limit must be an integer").WithField("limit", raw))
			return
		}
		limit = n
	}

	result := s.deps.Feed.Fetch(r.Context())
	tickets := FilterTickets(result.Tickets, r.URL.Query().Get("sentiment"), limit)

	writeJSON(w, http.StatusOK, TicketsResponse{
		Tickets:     tickets,
		TotalCount:  len(tickets),
		Summary:     feed.Aggregate(tickets).Summary(),
		Origin:      result.Origin,
		RetrievedAt: time.Now().UTC(),
	})
}

// FilterTickets keeps tickets whose sentiment matches label case-insensitively
// (all tickets when label is empty), then truncates to limit when limit > 0
func FilterTickets(tickets []ticket.Ticket, label string, limit int) []ticket.Ticket {
	out := make([]ticket.Ticket, 0, len(tickets))
	label = strings.TrimSpace(label)
	for _, t := range tickets {
		if label == "" || strings.EqualFold(t.Sentiment, label) {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Server) ticketHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Feed == nil {
		s.ErrorResponse(w, r, errors.NewInternalError("ticket source not configured"))
		return
	}

	id := r.PathValue("id")
	result := s.deps.Feed.Fetch(r.Context())
	for _, t := range result.Tickets {
		if t.ID == id {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"ticket":       t,
				"origin":       result.Origin,
				"retrieved_at": time.Now().UTC(),
			})
			return
		}
	}

	s.ErrorResponse(w, r, errors.NewNotFound("Ticket with ID "+id+" not found").
		WithField("ticket_id", id).
		WithCode("TICKET_NOT_FOUND"))
}

// analyzeRequest is the body of POST /api/analyze. Message is accepted as an
// alias of Text.
type analyzeRequest struct {
	Text    string `json:"text"`
	Message string `json:"message"`
	Variant string `json:"variant"`
}

func (s *Server) variant(name string) (analyzer.Variant, error) {
	if s.deps.Analyzers == nil {
		return "", errors.NewInternalError("analyzer not configured")
	}
	return analyzer.ParseVariant(name)
}

func (s *Server) analyzeJSONHandler(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody)).Decode(&req); err != nil {
		s.ErrorResponse(w, r, errors.Wrap(errors.ErrInvalidInput, "request body must be a JSON object").
			WithField("cause", err.Error()))
		return
	}

	if req.Variant == "" {
		req.Variant = string(analyzer.VariantInline)
	}
	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = req.Message
	}

	variant, err := s.variant(req.Variant)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	result, err := s.deps.Analyzers.Submit(r.Context(), ratelimit.ClientIP(r), variant, text)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// analyzeFragmentHandler serves the HTML result area for the dashboard forms.
// Failures render as an inline message with a 200 status; empty text yields
// 204 and leaves the result area untouched.
func (s *Server) analyzeFragmentHandler(w http.ResponseWriter, r *http.Request) {
	variant, err := s.variant(r.PathValue("variant"))
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBody)
	if err := r.ParseForm(); err != nil {
		s.ErrorResponse(w, r, errors.Wrap(errors.ErrInvalidInput, "malformed form body"))
		return
	}

	result, err := s.deps.Analyzers.Submit(r.Context(), ratelimit.ClientIP(r), variant, r.PostForm.Get("text"))
	if errors.IsErrorType(err, errors.ErrEmptyText) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	fragment, renderErr := render.AnalysisFragment(variant, render.AnalysisOutcome{Result: result, Err: err})
	if renderErr != nil {
		s.ErrorResponse(w, r, renderErr)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(fragment))
}

func (s *Server) analyzeStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzers == nil {
		s.ErrorResponse(w, r, errors.NewInternalError("analyzer not configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"controls":  s.deps.Analyzers.States(ratelimit.ClientIP(r)),
		"in_flight": s.deps.Analyzers.InFlight(),
	})
}

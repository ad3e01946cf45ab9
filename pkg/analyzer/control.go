package analyzer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Variant identifies one analysis surface on the dashboard
type Variant string

const (
	VariantInline Variant = "inline"
	VariantModal  Variant = "modal"
)

// BusyLabel is shown on a control while its request is outstanding
const BusyLabel = "Analyzing..."

var idleLabels = map[Variant]string{
	VariantInline: "Analyze Sentiment",
	VariantModal:  "🔍 Analyze Sentiment",
}

// IdleLabel returns the resting label of a variant's trigger
func IdleLabel(v Variant) string {
	if label, ok := idleLabels[v]; ok {
		return label
	}
	return idleLabels[VariantInline]
}

// ParseVariant validates a variant name
func ParseVariant(name string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := idleLabels[v]; !ok {
		return "", errors.NewInvalidInput("unknown analysis variant").WithField("variant", name)
	}
	return v, nil
}

// Listener is notified after every successful analysis
type Listener interface {
	AnalysisCompleted(ctx context.Context, variant Variant, result *Result)
}

// State is a snapshot of a control's trigger
type State struct {
	Variant  Variant `json:"variant"`
	Label    string  `json:"label"`
	Disabled bool    `json:"disabled"`
}

// Control guards one analysis trigger: while a request is outstanding the
// trigger is disabled and shows BusyLabel, and it is restored on every outcome.
type Control struct {
	logger   *logrus.Entry
	variant  Variant
	scorer   Scorer
	listener Listener

	mu    sync.Mutex
	busy  bool
	label string
}

// NewControl creates an idle control. listener may be nil.
func NewControl(logger *logrus.Logger, variant Variant, scorer Scorer, listener Listener) *Control {
	return &Control{
		logger:   logger.WithFields(logrus.Fields{"component": "analyzer", "variant": string(variant)}),
		variant:  variant,
		scorer:   scorer,
		listener: listener,
		label:    IdleLabel(variant),
	}
}

// Variant returns the surface the control belongs to
func (c *Control) Variant() Variant {
	return c.variant
}

// State returns the current trigger state
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Variant: c.variant, Label: c.label, Disabled: c.busy}
}

// Submit scores text. Whitespace-only text returns ErrEmptyText without a
// request or any state change. A submission while another is outstanding
// returns ErrInFlight.
func (c *Control) Submit(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.ErrEmptyText
	}

	if !c.acquire() {
		metrics.RecordAnalysis(string(c.variant), "rejected")
		return nil, errors.ErrInFlight
	}
	defer c.release()

	observe := metrics.ObserveAnalysisLatency(string(c.variant))
	result, err := c.scorer.Score(ctx, text)
	observe()

	if err != nil {
		metrics.RecordAnalysis(string(c.variant), "error")
		c.logger.WithError(err).Warn("Analysis failed")
		return nil, err
	}

	metrics.RecordAnalysis(string(c.variant), "success")
	c.logger.WithFields(logrus.Fields{
		"score":    result.Score,
		"category": result.Category,
	}).Debug("Analysis completed")

	if c.listener != nil {
		c.listener.AnalysisCompleted(ctx, c.variant, result)
	}
	return result, nil
}

func (c *Control) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	c.label = BusyLabel
	return true
}

func (c *Control) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.label = IdleLabel(c.variant)
}

// IdleState returns the resting state of a variant's trigger
func IdleState(v Variant) State {
	return State{Variant: v, Label: IdleLabel(v)}
}

// Panel hands out one control per client and variant. A client's control
// exists only while one of its submissions is outstanding, so clients never
// see or block on each other's analyses.
type Panel struct {
	logger   *logrus.Logger
	scorer   Scorer
	listener Listener

	mu     sync.Mutex
	leases map[controlKey]*lease
}

type controlKey struct {
	client  string
	variant Variant
}

type lease struct {
	control *Control
	refs    int
}

// NewPanel creates a panel whose controls share one scorer
func NewPanel(logger *logrus.Logger, scorer Scorer, listener Listener) *Panel {
	return &Panel{
		logger:   logger,
		scorer:   scorer,
		listener: listener,
		leases:   make(map[controlKey]*lease),
	}
}

// Submit scores text on client's control for v. A second submission from the
// same client and variant while the first is outstanding returns ErrInFlight.
func (p *Panel) Submit(ctx context.Context, client string, v Variant, text string) (*Result, error) {
	if _, ok := idleLabels[v]; !ok {
		return nil, errors.NewInvalidInput("unknown analysis variant").WithField("variant", string(v))
	}

	control, release := p.acquire(controlKey{client: client, variant: v})
	defer release()

	return control.Submit(ctx, text)
}

func (p *Panel) acquire(key controlKey) (*Control, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.leases[key]
	if !ok {
		l = &lease{control: NewControl(p.logger, key.variant, p.scorer, p.listener)}
		p.leases[key] = l
	}
	l.refs++

	return l.control, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(p.leases, key)
		}
	}
}

// State returns client's trigger state for v
func (p *Panel) State(client string, v Variant) State {
	p.mu.Lock()
	l, ok := p.leases[controlKey{client: client, variant: v}]
	p.mu.Unlock()

	if !ok {
		return IdleState(v)
	}
	return l.control.State()
}

// States returns client's trigger states ordered by variant
func (p *Panel) States(client string) []State {
	variants := make([]Variant, 0, len(idleLabels))
	for v := range idleLabels {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

	states := make([]State, 0, len(variants))
	for _, v := range variants {
		states = append(states, p.State(client, v))
	}
	return states
}

// InFlight returns the number of controls with an outstanding submission
func (p *Panel) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases)
}

// Endpoint returns the scoring endpoint when the scorer exposes one
func (p *Panel) Endpoint() string {
	if e, ok := p.scorer.(interface{ Endpoint() string }); ok {
		return e.Endpoint()
	}
	return ""
}

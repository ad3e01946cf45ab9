package render

import (
	"bytes"
	"fmt"
	"html/template"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/errors"
)

// AnalysisOutcome is what a single submission produced: a result or an error
type AnalysisOutcome struct {
	Result *analyzer.Result
	Err    error
}

const analysisTemplate = `{{define "inline"}}
<div class="flex items-center space-x-3">
    <span class="inline-flex items-center px-3 py-1 rounded-full text-sm font-medium {{.Style.Background}} {{.Style.Text}}">
        {{.Style.Emoji}} {{.Category}}
    </span>
    <div class="text-sm text-gray-600">
        Score: <strong>{{fixed 2 .Score}}</strong>{{if .Confidence}} &middot; Confidence: <strong>{{percent (deref .Confidence)}}</strong>{{end}}
    </div>
</div>
{{end}}{{define "modal"}}
<div class="text-center mb-4">
    <span class="inline-flex items-center px-4 py-2 rounded-full text-lg font-medium {{.Style.Background}} {{.Style.Text}}">
        {{.Style.Emoji}} {{.Category}}
    </span>
</div>
<div class="grid grid-cols-2 gap-4">
    <div class="text-center">
        <div class="text-2xl font-bold text-gray-900">{{fixed 3 .Score}}</div>
        <div class="text-sm text-gray-600">Compound Score</div>
    </div>
    {{- if .Confidence}}
    <div class="text-center">
        <div class="text-2xl font-bold text-gray-900">{{percent (deref .Confidence)}}</div>
        <div class="text-sm text-gray-600">Confidence</div>
    </div>
    {{- end}}
    {{- if .Positive}}
    <div class="text-center">
        <div class="text-2xl font-bold text-green-600">{{percent (deref .Positive)}}</div>
        <div class="text-sm text-gray-600">Positive</div>
    </div>
    {{- end}}
    {{- if .Negative}}
    <div class="text-center">
        <div class="text-2xl font-bold text-red-600">{{percent (deref .Negative)}}</div>
        <div class="text-sm text-gray-600">Negative</div>
    </div>
    {{- end}}
    {{- if .Neutral}}
    <div class="text-center">
        <div class="text-2xl font-bold text-gray-600">{{percent (deref .Neutral)}}</div>
        <div class="text-sm text-gray-600">Neutral</div>
    </div>
    {{- end}}
</div>
{{end}}{{define "failure"}}<div class="text-red-600">Analysis failed: {{.}}</div>{{end}}`

var analysisTmpl = template.Must(template.New("analysis").Funcs(template.FuncMap{
	"fixed": func(digits int, v float64) string {
		return fmt.Sprintf("%.*f", digits, v)
	},
	"percent": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"deref": func(v *float64) float64 {
		return *v
	},
}).Parse(analysisTemplate))

type analysisView struct {
	*analyzer.Result
	Style SentimentStyle
}

// AnalysisFragment renders the result area of an analysis surface. The inline
// variant shows the score to two decimals; the modal variant shows it to three
// decimals along with any reported confidence and proportions.
func AnalysisFragment(variant analyzer.Variant, outcome AnalysisOutcome) (template.HTML, error) {
	var buf bytes.Buffer
	var err error

	switch {
	case outcome.Err != nil:
		err = analysisTmpl.ExecuteTemplate(&buf, "failure", FailureReason(outcome.Err))
	case outcome.Result == nil:
		err = analysisTmpl.ExecuteTemplate(&buf, "failure", "no result")
	default:
		name := "inline"
		if variant == analyzer.VariantModal {
			name = "modal"
		}
		err = analysisTmpl.ExecuteTemplate(&buf, name, analysisView{
			Result: outcome.Result,
			Style:  SentimentStyleFor(outcome.Result.Category),
		})
	}

	if err != nil {
		return "", errors.Wrap(err, "failed to render analysis result").WithField("variant", string(variant))
	}
	return template.HTML(buf.String()), nil
}

// FailureReason is the user-facing text for a failed submission
func FailureReason(err error) string {
	if errors.IsErrorType(err, errors.ErrInFlight) {
		return "an analysis is already in progress"
	}
	return errors.GetErrorMessage(err)
}

package render

import (
	"html/template"
	"io"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/errors"
)

// PageData is the input of the dashboard page template
type PageData struct {
	*Snapshot
	Inline analyzer.State
	Modal  analyzer.State
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-50 min-h-screen">
<div class="max-w-7xl mx-auto px-4 py-8">
  <header class="flex items-center justify-between mb-8">
    <div>
      <h1 class="text-3xl font-bold text-gray-900">{{.Title}}</h1>
      <p class="text-sm text-gray-500" id="feedOrigin">{{if eq .Origin "fallback"}}Showing sample data{{else}}Live data from {{.Source}}{{end}} &middot; {{.GeneratedAt.Format "15:04:05"}}</p>
    </div>
    <div class="flex space-x-2">
      <button id="refreshBtn" class="px-4 py-2 bg-blue-600 text-white rounded-lg hover:bg-blue-700">Refresh</button>
      <button id="analyzeNewBtn" class="px-4 py-2 bg-gray-800 text-white rounded-lg hover:bg-gray-900">Analyze New</button>
    </div>
  </header>

  <section class="grid grid-cols-1 md:grid-cols-3 gap-4 mb-8">
    <div class="bg-white p-6 rounded-lg shadow"><div class="text-sm text-gray-500">Total Tickets</div><div class="text-3xl font-bold" id="totalTickets">{{.Stats.Total}}</div></div>
    <div class="bg-white p-6 rounded-lg shadow"><div class="text-sm text-gray-500">Urgent</div><div class="text-3xl font-bold text-red-600" id="urgentCount">{{.Stats.UrgentCount}}</div></div>
    <div class="bg-white p-6 rounded-lg shadow"><div class="text-sm text-gray-500">Positive</div><div class="text-3xl font-bold text-green-600" id="positiveCount">{{.Stats.PositiveCount}}</div></div>
  </section>

  <div class="grid grid-cols-1 lg:grid-cols-3 gap-8">
    <section class="lg:col-span-2">
      <h2 class="text-xl font-semibold mb-4">Recent Tickets</h2>
      <div id="ticketsContainer" class="space-y-4">{{.CardsHTML}}</div>
    </section>
    <aside class="space-y-8">
      <div class="bg-white p-6 rounded-lg shadow">
        <h2 class="text-xl font-semibold mb-4">Sentiment Distribution</h2>
        <div id="sentimentChart" class="h-64">{{.ChartSVG}}</div>
      </div>
      <form class="bg-white p-6 rounded-lg shadow analyze-form" data-variant="inline" data-idle-label="{{.Inline.Label}}" action="/analyze/inline" method="post">
        <h2 class="text-xl font-semibold mb-4">Quick Analyze</h2>
        <textarea id="quickAnalyzeText" name="text" rows="3" class="w-full p-2 border rounded mb-2"></textarea>
        <button id="quickAnalyzeBtn" type="submit" class="w-full px-4 py-2 bg-blue-600 text-white rounded-lg"{{if .Inline.Disabled}} disabled{{end}}>{{.Inline.Label}}</button>
        <div id="quickResults" class="mt-4 hidden"><div id="quickResultsContent" class="analysis-results"></div></div>
      </form>
    </aside>
  </div>
</div>

<div id="analyzeModal" class="fixed inset-0 bg-black bg-opacity-50 hidden items-center justify-center">
  <form class="bg-white p-6 rounded-lg shadow-xl w-full max-w-lg analyze-form" data-variant="modal" data-idle-label="{{.Modal.Label}}" action="/analyze/modal" method="post">
    <div class="flex justify-between mb-4"><h2 class="text-xl font-semibold">Analyze Sentiment</h2><button type="button" id="closeModal">&times;</button></div>
    <textarea id="modalAnalyzeText" name="text" rows="5" class="w-full p-2 border rounded mb-2"></textarea>
    <button id="modalAnalyzeBtn" type="submit" class="w-full px-4 py-2 bg-blue-600 text-white rounded-lg"{{if .Modal.Disabled}} disabled{{end}}>{{.Modal.Label}}</button>
    <div id="modalResults" class="mt-4 hidden"><div id="modalResultsContent" class="analysis-results"></div></div>
  </form>
</div>

<script>
(function () {
  var modal = document.getElementById('analyzeModal');
  function closeModal() {
    modal.classList.add('hidden');
    modal.classList.remove('flex');
    document.getElementById('modalResults').classList.add('hidden');
    document.getElementById('modalAnalyzeText').value = '';
  }
  document.getElementById('analyzeNewBtn').addEventListener('click', function () {
    modal.classList.remove('hidden');
    modal.classList.add('flex');
  });
  document.getElementById('closeModal').addEventListener('click', closeModal);
  modal.addEventListener('click', function (e) { if (e.target.id === 'analyzeModal') closeModal(); });

  function apply(snapshot) {
    document.getElementById('ticketsContainer').innerHTML = snapshot.cards_html;
    document.getElementById('sentimentChart').innerHTML = snapshot.chart_svg;
    document.getElementById('totalTickets').textContent = snapshot.stats.total;
    document.getElementById('urgentCount').textContent = snapshot.stats.urgent_count;
    document.getElementById('positiveCount').textContent = snapshot.stats.positive_count;
  }

  document.getElementById('refreshBtn').addEventListener('click', function () {
    fetch('/refresh', { method: 'POST' }).then(function (r) { return r.json(); }).then(apply);
  });

  document.querySelectorAll('.analyze-form').forEach(function (form) {
    form.addEventListener('submit', function (e) {
      e.preventDefault();
      var text = form.querySelector('textarea').value.trim();
      if (!text) return;
      var btn = form.querySelector('button[type=submit]');
      var results = form.querySelector('.analysis-results');
      btn.textContent = 'Analyzing...';
      btn.disabled = true;
      fetch(form.action, { method: 'POST', body: new URLSearchParams({ text: text }) })
        .then(function (r) { return r.text(); })
        .then(function (html) { results.innerHTML = html; })
        .catch(function (err) { results.innerHTML = '<div class="text-red-600">Analysis failed: ' + err.message + '</div>'; })
        .finally(function () {
          results.parentElement.classList.remove('hidden');
          btn.textContent = form.dataset.idleLabel;
          btn.disabled = false;
        });
    });
  });

  if (window.WebSocket) {
    var scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
    var ws = new WebSocket(scheme + location.host + '/ws/dashboard');
    ws.onmessage = function (msg) {
      var data = JSON.parse(msg.data);
      if (data.type === 'snapshot') apply(data.snapshot);
    };
  }
})();
</script>
</body>
</html>`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// Page writes the full dashboard document
func Page(w io.Writer, data PageData) error {
	if data.Snapshot == nil {
		return errors.NewInternalError("dashboard page rendered without a snapshot")
	}
	if err := pageTmpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "failed to render dashboard page")
	}
	return nil
}

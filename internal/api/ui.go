package api

import (
	"html/template"
	"net/http"

	twmerge "github.com/Oudwins/tailwind-merge-go"
	"github.com/narvanalabs/qrscan/internal/models"
	"github.com/narvanalabs/qrscan/internal/scanner"
)

const badgeBase = "inline-flex items-center rounded-full px-3 py-1 text-sm font-medium bg-gray-100 text-gray-700"

// badgeVariants override the base badge colors per status kind.
var badgeVariants = map[string]string{
	"idle":      "",
	"running":   "bg-green-100 text-green-800",
	"error":     "bg-red-100 text-red-800",
	"duplicate": "bg-yellow-100 text-yellow-800 px-2",
}

// BadgeKind classifies a status for display.
func BadgeKind(s models.ScannerStatus) string {
	switch {
	case s.IsErrorStatus:
		return "error"
	case scanner.IsDuplicateStatus(s.StatusMessage):
		return "duplicate"
	case s.IsRunning:
		return "running"
	default:
		return "idle"
	}
}

// BadgeClasses returns the merged class list for every badge kind.
func BadgeClasses() map[string]string {
	classes := make(map[string]string, len(badgeVariants))
	for kind, variant := range badgeVariants {
		classes[kind] = twmerge.Merge(badgeBase, variant)
	}
	return classes
}

type pageData struct {
	Status     models.ScannerStatus
	BadgeClass string
	Badges     map[string]string
	MountID    string
}

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Scanner.Status()
	badges := BadgeClasses()
	data := pageData{
		Status:     status,
		BadgeClass: badges[BadgeKind(status)],
		Badges:     badges,
		MountID:    s.config.Scanner.MountID,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>QR Scanner</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="min-h-screen bg-gray-50 text-gray-900">
<main class="mx-auto grid max-w-7xl gap-4 p-4 lg:grid-cols-3">
    <section class="rounded-lg bg-white p-4 shadow">
        <div class="mb-2 flex items-center justify-between">
            <h2 class="text-lg font-semibold">Event Log</h2>
            <button id="clear-logs" class="text-sm text-gray-500 hover:text-gray-800">Clear</button>
        </div>
        <ul id="logs" class="h-96 space-y-1 overflow-y-auto font-mono text-xs"></ul>
    </section>

    <section id="{{.MountID}}" class="flex flex-col items-center gap-4 rounded-lg bg-white p-4 shadow">
        <h2 class="text-lg font-semibold">Scanner</h2>
        <span id="status" class="{{.BadgeClass}}">{{if .Status.StatusMessage}}{{.Status.StatusMessage}}{{else}}{{.Status.State}}{{end}}</span>
        <div class="flex gap-2">
            <button id="start" class="rounded bg-indigo-600 px-4 py-2 text-white disabled:opacity-50">Start Scanning</button>
            <button id="stop" class="rounded bg-gray-600 px-4 py-2 text-white disabled:opacity-50">Stop</button>
        </div>
        <label class="flex items-center gap-2 text-sm">
            <input id="zoomed" type="checkbox" {{if .Status.Zoomed}}checked{{end}}> Distance mode
        </label>
        <div id="camera-prompt" class="hidden w-full">
            <p class="mb-2 text-sm text-gray-600">Select a camera</p>
            <ul id="camera-list" class="space-y-1"></ul>
        </div>
    </section>

    <section class="rounded-lg bg-white p-4 shadow">
        <div class="mb-2 flex items-center justify-between">
            <h2 class="text-lg font-semibold">Scanned Values</h2>
            <button id="clear-history" class="text-sm text-gray-500 hover:text-gray-800">Clear</button>
        </div>
        <ul id="history" class="h-96 space-y-2 overflow-y-auto text-sm"></ul>
    </section>
</main>
<script>
const badges = {{.Badges}};
const el = (id) => document.getElementById(id);
let logs = [], history = [], status = null, statusTimer = null;

function badgeKind(s) {
    if (s.is_error_status) return 'error';
    if (s.status_message.startsWith('already scanned: ')) return 'duplicate';
    return s.is_running ? 'running' : 'idle';
}

function renderStatus(s) {
    status = s;
    const badge = el('status');
    badge.className = badges[badgeKind(s)];
    badge.textContent = s.status_message || s.state;
    el('start').disabled = !s.actions.includes('start');
    el('stop').disabled = !s.actions.includes('stop');
    el('zoomed').checked = s.zoomed;
    clearTimeout(statusTimer);
    if (s.status_message && s.display_for > 0) {
        statusTimer = setTimeout(() => { badge.textContent = s.state; }, s.display_for / 1e6);
    }
}

function renderLogs() {
    el('logs').replaceChildren(...logs.map((e) => {
        const li = document.createElement('li');
        li.textContent = new Date(e.timestamp).toLocaleTimeString() + ' [' + e.level + '] ' + e.message;
        if (e.level === 'ERROR') li.className = 'text-red-600';
        return li;
    }));
}

function renderHistory() {
    el('history').replaceChildren(...history.map((e) => {
        const li = document.createElement('li');
        if (e.is_link) {
            const a = document.createElement('a');
            a.href = e.content; a.target = '_blank'; a.rel = 'noopener';
            a.className = 'text-indigo-600 underline break-all';
            a.textContent = e.content;
            li.appendChild(a);
        } else {
            li.textContent = e.content;
            li.className = 'break-all';
        }
        return li;
    }));
}

function connect() {
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/feed');
    ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        switch (msg.type) {
        case 'snapshot':
            logs = msg.data.logs || []; history = msg.data.history || [];
            renderLogs(); renderHistory(); renderStatus(msg.data.status);
            break;
        case 'log':
            if (msg.data.kind === 'cleared') logs = []; else logs = [msg.data.entry, ...logs].slice(0, 100);
            renderLogs();
            break;
        case 'scan':
            if (msg.data.kind === 'cleared') history = []; else history = [msg.data.entry, ...history].slice(0, 50);
            renderHistory();
            break;
        case 'status':
            renderStatus(msg.data);
            break;
        }
    };
    ws.onclose = () => setTimeout(connect, 2000);
}

async function post(path, body) {
    const res = await fetch(path, { method: 'POST', headers: { 'Content-Type': 'application/json' }, body: JSON.stringify(body || {}) });
    return res.json();
}

async function start(deviceId) {
    el('camera-prompt').classList.add('hidden');
    await post('/api/scanner/start', deviceId ? { device_id: deviceId } : {});
}

el('start').onclick = async () => {
    const res = await fetch('/api/cameras');
    const data = await res.json();
    if (!res.ok || !data.prompt) { await start(); return; }
    el('camera-list').replaceChildren(...data.cameras.map((c) => {
        const li = document.createElement('li');
        const b = document.createElement('button');
        b.className = 'w-full rounded border px-3 py-2 text-left hover:bg-gray-50';
        b.textContent = c.label || ('Camera (' + c.id.slice(0, 8) + '...)');
        b.onclick = () => start(c.id);
        li.appendChild(b);
        return li;
    }));
    el('camera-prompt').classList.remove('hidden');
};
el('stop').onclick = () => post('/api/scanner/stop');
el('zoomed').onchange = (ev) => post('/api/scanner/mode', { zoomed: ev.target.checked });
el('clear-logs').onclick = () => fetch('/api/logs', { method: 'DELETE' });
el('clear-history').onclick = () => fetch('/api/history', { method: 'DELETE' });
connect();
</script>
</body>
</html>
`

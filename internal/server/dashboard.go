/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"html/template"
	"net/http"
	"time"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8"/>
<title>MSX Bridge</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #111; color: #eee; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.4em 0.8em; border-bottom: 1px solid #333; }
form { display: inline; }
button { background: #c0392b; color: #fff; border: none; padding: 0.3em 0.8em; cursor: pointer; }
button.alt { background: #555; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>MSX Bridge</h1>
<p class="muted">{{.Count}} player(s) · {{.Streams}} active stream(s) · {{.Sockets}} push channel(s)</p>
<table>
<tr><th>Player</th><th>State</th><th>Now Playing</th><th>Last Activity</th><th></th></tr>
{{range .Players}}
<tr>
<td>{{.Key}}{{if .Disabled}} <span class="muted">(disabled)</span>{{end}}</td>
<td>{{.State}}</td>
<td>{{if .Media}}{{.Media.Title}} &middot; {{.Media.Artist}}{{else}}<span class="muted">-</span>{{end}}</td>
<td>{{.LastActivity.Format "15:04:05"}}</td>
<td>
<form method="post" action="/api/quick-stop/{{.Key}}"><button>Stop</button></form>
{{if .Disabled}}
<form method="post" action="/api/players/{{.Key}}/enable"><button class="alt">Enable</button></form>
{{else}}
<form method="post" action="/api/players/{{.Key}}/disable"><button class="alt">Disable</button></form>
{{end}}
</td>
</tr>
{{end}}
</table>
<p class="muted">Generated {{.Now.Format "2006-01-02 15:04:05"}}</p>
</body>
</html>
`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	players := s.directory.List()
	snapshots := make([]any, 0, len(players))
	for _, p := range players {
		snapshots = append(snapshots, p.Snapshot())
	}
	data := map[string]any{
		"Players": snapshots,
		"Count":   len(players),
		"Streams": s.registry.Total(),
		"Sockets": s.notifier.TotalSubscribers(),
		"Now":     time.Now(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("Dashboard render failed")
	}
}

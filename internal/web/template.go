package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/foosball-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"clock": gameClock,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

// gameClock renders elapsed game ticks as m:ss of wall time.
func gameClock(ticks uint64, tickMs int64) string {
	seconds := ticks * uint64(tickMillis(tickMs)) / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// tickMillis falls back to the default one-second tick when unset.
func tickMillis(ms int64) int64 {
	if ms <= 0 {
		return 1000
	}
	return ms
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Foosball</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.board { display: flex; justify-content: space-around; font-size: 3em; margin: 0.5em 0; }
.blue { color: #1f5fbf; }
.red { color: #c0392b; }
.clock { text-align: center; font-size: 2em; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Foosball<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<div class="board">
<span class="blue" id="blue-goals">{{.Game.BlueGoals}}</span>
<span>:</span>
<span class="red" id="red-goals">{{.Game.RedGoals}}</span>
</div>
<div class="clock" id="clock">{{clock .Game.Time .Config.TickMs}}</div>

<h2>Game</h2>
<table>
<tr><th>State</th><td>{{stateOrUnknown .State}}</td></tr>
<tr><th>First to</th><td>{{.Config.MaxScore}}</td></tr>
<tr><th>Last winner</th><td>{{if .LastWin}}{{.LastWin.String}} ({{.LastWin.Final.BlueGoals}}:{{.LastWin.Final.RedGoals}}){{else}}none{{end}}</td></tr>
<tr><th>Wins</th><td><span class="blue">{{.BlueWins}}</span> / <span class="red">{{.RedWins}}</span></td></tr>
</table>

<h2>Sensors</h2>
<table>
<tr><th>Role</th><td>accepted / suppressed</td></tr>
{{range $role, $c := .Sensors}}<tr><th>{{$role}}</th><td>{{$c.Accepted}} / {{$c.Suppressed}}</td></tr>
{{end}}<tr><th>Pending events</th><td>{{.PendingEvents}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Viewers</th><td>{{.Viewers}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms ({{.Config.DebouncePolicy}})</td></tr>
<tr><th>HTTP</th><td>{{.Config.ListenAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var blue = document.getElementById("blue-goals");
  var red = document.getElementById("red-goals");
  var clock = document.getElementById("clock");
  var tickMs = {{.TickMs}};

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function pad(n) { return n < 10 ? "0" + n : "" + n; }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data);
        blue.textContent = s.blue_goals;
        red.textContent = s.red_goals;
        var secs = Math.floor(s.time * tickMs / 1000);
        clock.textContent = Math.floor(secs / 60) + ":" + pad(secs % 60);
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		TickMs int64
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		TickMs:   tickMillis(snap.Config.TickMs),
	}
	return indexTmpl.Execute(w, data)
}

package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/raspitherm/internal/heating"
	"github.com/sweeney/raspitherm/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"onOff":  onOff,
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Raspitherm</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Raspitherm</h1>

<h2>Heating</h2>
<table>
<tr><th><label for="ch">Central Heating</label></th><td><input type="checkbox" id="ch" data-channel="ch"{{if .Status.CH}} checked="checked"{{end}}> <span id="ch-state" class="{{onOff .Status.CH}}">{{onOff .Status.CH}}</span></td></tr>
<tr><th><label for="hw">Hot Water</label></th><td><input type="checkbox" id="hw" data-channel="hw"{{if .Status.HW}} checked="checked"{{end}}> <span id="hw-state" class="{{onOff .Status.HW}}">{{onOff .Status.HW}}</span></td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>GPIO daemon</th><td class="{{if .Daemon.Connected}}connected{{else}}disconnected{{end}}">{{.Daemon.Endpoint}}</td></tr>
{{if .Daemon.LastError}}<tr><th>Last error</th><td>{{.Daemon.LastError}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{else}}disabled{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Activity</h2>
<table>
<tr><th>CH pulses</th><td>{{.Daemon.PulsesCH}}</td></tr>
<tr><th>HW pulses</th><td>{{.Daemon.PulsesHW}}</td></tr>
<tr><th>CH ON / OFF</th><td>{{.Counts.CHOn}} / {{.Counts.CHOff}}</td></tr>
<tr><th>HW ON / OFF</th><td>{{.Counts.HWOn}} / {{.Counts.HWOff}}</td></tr>
{{if .LastEvent}}<tr><th>Last change</th><td>{{.LastEvent.Type}} at {{.LastEvent.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Pins</th><td>CH {{.Config.Pins.CHToggle}}/{{.Config.Pins.CHStatus}}, HW {{.Config.Pins.HWToggle}}/{{.Config.Pins.HWStatus}}</td></tr>
<tr><th>Pulse</th><td>{{.Config.PulseMs}}ms</td></tr>
<tr><th>Relay delay</th><td>{{.Config.RelayDelayMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/?status=1">JSON</a> | <a href="/index.json">System JSON</a></p>
<script>
(function() {
  function show(channel, state) {
    var el = document.getElementById(channel + "-state");
    el.textContent = state;
    el.className = state;
    document.getElementById(channel).checked = state === "on";
  }

  document.querySelectorAll("input[data-channel]").forEach(function(box) {
    box.addEventListener("change", function() {
      var channel = box.getAttribute("data-channel");
      var wanted = box.checked ? "on" : "off";
      box.disabled = true;
      fetch("/?" + channel + "=" + wanted)
        .then(function(r) { return r.json(); })
        .then(function(s) { show("ch", s.ch); show("hw", s.hw); })
        .finally(function() { box.disabled = false; });
    });
  });
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, st heating.Status, snap status.Snapshot) error {
	// Snapshot has an Uptime() method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Status heating.Status
		Uptime time.Duration
	}{
		Snapshot: snap,
		Status:   st,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}

package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const metricName = "us_server_events_total"

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// PrometheusHandler exposes the counter registry in Prometheus' text
// exposition format. One counter family with an `event` label covers the
// whole registry, so no client library is needed.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		names := make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		b.WriteString("# HELP " + metricName + " Signaling and transport event counters.\n")
		b.WriteString("# TYPE " + metricName + " counter\n")
		for _, name := range names {
			b.WriteString(metricName)
			b.WriteString(`{event="`)
			b.WriteString(labelEscaper.Replace(name))
			b.WriteString(`"} `)
			b.WriteString(strconv.FormatUint(snap[name], 10))
			b.WriteByte('\n')
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(b.String()))
	})
}

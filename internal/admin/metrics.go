// Package admin exposes IoTM's read/write HTTP surface: session and rule
// introspection, an OIDC-protected configuration write-back API, a
// Prometheus collector over the live core state, and a WebSocket feed of
// routed commands.
//
// Grounded on the teacher's prometheus.go/frontend.go/live_ws.go/auth.go:
// same custom prometheus.Collector pattern, same gofiber + gofiber/contrib
// websocket surface, same go-oidc/oauth2 login flow — generalised from a
// fixed room/virtual-device dashboard onto the session registry, rule
// index, and tag store.
package admin

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/session"
)

var (
	sessionCountDesc = prometheus.NewDesc(
		"iotm_sessions", "Number of currently-registered sessions.", nil, nil)
	reportCountDesc = prometheus.NewDesc(
		"iotm_session_reports_total", "Reports sent by a session.", []string{"session"}, nil)
	commandsRoutedDesc = prometheus.NewDesc(
		"iotm_commands_routed_total", "Commands dispatched to a session.", []string{"session", "action"}, nil)
)

// Collector adapts the session registry and the router's dispatch stream
// into Prometheus metrics, mirroring the teacher's PrometheusCollector: an
// unchecked Describe (the metric set is dynamic, same rationale as the
// source) and a Collect that walks live state on every scrape.
type Collector struct {
	sessions *session.Registry

	mu     sync.Mutex
	routed map[[2]string]float64 // [session, action] -> count
}

// NewCollector builds a Collector bound to the live session registry.
// Register it with a prometheus.Registry and assign its OnDispatch method
// to router.Router.OnDispatch.
func NewCollector(sessions *session.Registry) *Collector {
	return &Collector{sessions: sessions, routed: make(map[[2]string]float64)}
}

// OnDispatch matches router.Router.OnDispatch's signature; assign it
// directly: r.OnDispatch = collector.OnDispatch.
func (c *Collector) OnDispatch(adapterName string, cmd *event.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routed[[2]string{normalizeLabel(adapterName), normalizeLabel(cmd.Action)}]++
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	count := 0
	c.sessions.ForEach(func(s *session.Session) {
		count++
		ch <- prometheus.MustNewConstMetric(reportCountDesc, prometheus.CounterValue, float64(s.ReportCount), normalizeLabel(s.Name))
	})
	ch <- prometheus.MustNewConstMetric(sessionCountDesc, prometheus.GaugeValue, float64(count))

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, n := range c.routed {
		ch <- prometheus.MustNewConstMetric(commandsRoutedDesc, prometheus.CounterValue, n, key[0], key[1])
	}
}

// normalizeLabel lower-cases and replaces runs of non [a-z0-9] characters
// with "_", mirroring the teacher's util.go NormalizeName — used so
// free-form session/action names stay well-behaved Prometheus label
// values when surfaced outside their natural desc dimensions.
func normalizeLabel(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

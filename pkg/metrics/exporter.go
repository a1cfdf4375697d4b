package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exposes per-rank phase clocks as Prometheus gauges, scraped
// during a long `-i` sweep to watch a run's progress live.
//
// This is the one deliberate adaptation of the teacher's Prometheus usage:
// pkg/monitoring/prometheus/client.go (teacher) wraps the client_golang
// *query* API (api/v1) against an already-running external Prometheus
// server. shufflebench has no such server to query — it is itself the
// process whose metrics matter — so this exporter uses the same
// dependency's *instrumentation* side instead (see DESIGN.md pkg/metrics).
type Exporter struct {
	registry *prometheus.Registry
	post     *prometheus.GaugeVec
	waitSend *prometheus.GaugeVec
	waitRecv *prometheus.GaugeVec
	barrier  *prometheus.GaugeVec
	total    *prometheus.GaugeVec
}

// NewExporter builds an Exporter with its own registry, so embedding it in
// a long-running sweep never collides with the default global registry.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	labels := []string{"rank", "variant"}
	mk := func(name, help string) *prometheus.GaugeVec {
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shufflebench",
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(gv)
		return gv
	}
	return &Exporter{
		registry: reg,
		post:     mk("phase_post_seconds", "cumulative post-request time"),
		waitSend: mk("phase_wait_send_seconds", "cumulative send wait-all time"),
		waitRecv: mk("phase_wait_recv_seconds", "cumulative recv wait-all time"),
		barrier:  mk("phase_barrier_seconds", "cumulative barrier time"),
		total:    mk("phase_total_seconds", "cumulative round total time"),
	}
}

// Observe publishes one rank's latest round timings under variant's label.
func (e *Exporter) Observe(rank int, variant string, rt RoundTimes) {
	labels := prometheus.Labels{"rank": strconv.Itoa(rank), "variant": variant}
	e.post.With(labels).Set(rt.Post.Seconds())
	e.waitSend.With(labels).Set(rt.WaitSend.Seconds())
	e.waitRecv.With(labels).Set(rt.WaitRecv.Seconds())
	e.barrier.With(labels).Set(rt.Barrier.Seconds())
	e.total.With(labels).Set(rt.Total.Seconds())
}

// Handler returns an http.Handler serving this Exporter's registry in the
// Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

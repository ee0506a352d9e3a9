package clamp

import "github.com/prometheus/client_golang/prometheus"

// Metrics 汇总截断计算的 prometheus 指标。nil 值可以直接使用，什么都不记录。
type Metrics struct {
	passes   *prometheus.CounterVec
	probes   prometheus.Histogram
	triggers *prometheus.CounterVec
}

const (
	outcomeFits       = "fits"
	outcomeTruncated  = "truncated"
	outcomeCollapsed  = "collapsed"
	outcomeError      = "error"
	outcomeSuperseded = "superseded"
)

// NewMetrics 创建指标并注册到 reg。reg 为 nil 时不注册。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textfit_fit_passes_total",
				Help: "Total number of fit passes by outcome",
			},
			[]string{"outcome"},
		),
		probes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "textfit_fit_probes",
			Help:    "Measurement calls per completed fit pass",
			Buckets: prometheus.LinearBuckets(1, 2, 12),
		}),
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textfit_triggers_total",
				Help: "Total number of enqueued triggers by kind",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.passes, m.probes, m.triggers)
	}
	return m
}

func (m *Metrics) trigger(t Trigger) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) pass(outcome string, probes int) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	if outcome != outcomeError && outcome != outcomeSuperseded {
		m.probes.Observe(float64(probes))
	}
}

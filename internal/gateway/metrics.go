package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/portgate/go-portgate/pkg/interfaces"
)

// newMetrics 构造网关的 Prometheus 注册表
//
// 指标都是读取端采样（GaugeFunc/CounterFunc），采集时走注册表
// 和带宽计数器的只读快照，不引入额外的写路径。
func newMetrics(engine interfaces.Engine, bw interfaces.BandwidthReporter) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "portgate",
			Name:      "active_proxies",
			Help:      "Number of currently running proxy listeners.",
		},
		func() float64 {
			return float64(len(engine.Status()))
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "portgate",
			Name:      "active_connections",
			Help:      "Number of currently forwarded connection pairings.",
		},
		func() float64 {
			total := 0
			for _, snap := range engine.Status() {
				total += snap.ActiveConns
			}
			return float64(total)
		},
	))

	if bw != nil {
		reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "portgate",
				Name:      "connections_accepted_total",
				Help:      "Total number of connections accepted across all proxies.",
			},
			func() float64 {
				return float64(bw.AcceptedTotal())
			},
		))

		reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   "portgate",
				Name:        "relayed_bytes_total",
				Help:        "Total bytes relayed.",
				ConstLabels: prometheus.Labels{"direction": "in"},
			},
			func() float64 {
				return float64(bw.Totals().TotalIn)
			},
		))

		reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   "portgate",
				Name:        "relayed_bytes_total",
				Help:        "Total bytes relayed.",
				ConstLabels: prometheus.Labels{"direction": "out"},
			},
			func() float64 {
				return float64(bw.Totals().TotalOut)
			},
		))
	}

	return reg
}

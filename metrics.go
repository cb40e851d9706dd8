package imapstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imapstore_connections_active",
			Help: "Currently authenticated IMAP sessions.",
		},
	)
	metricConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapstore_connects_total",
			Help: "Connection attempts and results.",
		},
		[]string{
			"result", // ok, error
		},
	)
)

// ConnectionObserver is notified of session lifecycle events. The
// connection manager guarantees symmetry: one ConnectionClosed per
// successful ConnectSucceeded, never more.
type ConnectionObserver interface {
	ConnectSucceeded()
	ConnectFailed()
	ConnectionClosed()
}

// prometheusObserver is the default observer, feeding the package's
// prometheus collectors.
type prometheusObserver struct{}

func (prometheusObserver) ConnectSucceeded() {
	metricConnectionsActive.Inc()
	metricConnects.WithLabelValues("ok").Inc()
}

func (prometheusObserver) ConnectFailed() {
	metricConnects.WithLabelValues("error").Inc()
}

func (prometheusObserver) ConnectionClosed() {
	metricConnectionsActive.Dec()
}

package output

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkjaer/ping/internal/shared"
)

type metrics struct {
	probesSent *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	rtt        *prometheus.HistogramVec
	lastRTT    *prometheus.GaugeVec
	lossRatio  *prometheus.GaugeVec
}

func newMetricsWithRegistry(reg prometheus.Registerer) *metrics {
	m := &metrics{
		probesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ping_probes_sent_total",
				Help: "Total number of probes with a final outcome",
			},
			[]string{"destination"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ping_outcomes_total",
				Help: "Probe outcomes by kind",
			},
			[]string{"destination", "kind"},
		),
		rtt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ping_rtt_seconds",
				Help:    "Round-trip time of echo replies",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"destination"},
		),
		lastRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ping_last_rtt_seconds",
				Help: "Round-trip time of the most recent echo reply",
			},
			[]string{"destination"},
		),
		lossRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ping_loss_ratio",
				Help: "Fraction of probes without an echo reply (0-1)",
			},
			[]string{"destination"},
		),
	}
	reg.MustRegister(m.probesSent, m.outcomes, m.rtt, m.lastRTT, m.lossRatio)
	return m
}

// MetricsOutput exposes run statistics for Prometheus scraping while the
// run is in progress.
type MetricsOutput struct {
	m           *metrics
	destination string
	server      *http.Server
	listener    net.Listener
	done        chan struct{}
}

// NewMetricsOutput listens on addr and serves /metrics and /health.
func NewMetricsOutput(addr string) (*MetricsOutput, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	mo := newMetricsOutput(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mo.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	mo.listener = ln
	mo.done = make(chan struct{})

	go func() {
		defer close(mo.done)
		if err := mo.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("Serving metrics", "addr", ln.Addr().String())
	return mo, nil
}

func newMetricsOutput(reg prometheus.Registerer) *MetricsOutput {
	return &MetricsOutput{m: newMetricsWithRegistry(reg)}
}

// Addr returns the address the metrics server listens on.
func (mo *MetricsOutput) Addr() string {
	if mo.listener == nil {
		return ""
	}
	return mo.listener.Addr().String()
}

func (mo *MetricsOutput) Start(info shared.RunInfo) {
	mo.destination = info.Address
}

func (mo *MetricsOutput) Outcome(o shared.Outcome, running shared.Summary) {
	mo.m.probesSent.WithLabelValues(mo.destination).Inc()
	mo.m.outcomes.WithLabelValues(mo.destination, o.Kind.String()).Inc()
	if o.Kind == shared.KindReply {
		mo.m.rtt.WithLabelValues(mo.destination).Observe(o.RTT.Seconds())
		mo.m.lastRTT.WithLabelValues(mo.destination).Set(o.RTT.Seconds())
	}
	mo.m.lossRatio.WithLabelValues(mo.destination).Set(running.LossPct / 100)
}

func (mo *MetricsOutput) Summary(s shared.Summary) {
	mo.m.lossRatio.WithLabelValues(mo.destination).Set(s.LossPct / 100)
}

func (mo *MetricsOutput) Close() error {
	if mo.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := mo.server.Shutdown(ctx)
	<-mo.done
	return err
}

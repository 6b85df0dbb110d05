package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

func (m *ServerMetrics) Observe(handler string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(d.Milliseconds()))
}

// ConsumerMetrics fulfillment worker 的處理結果
type ConsumerMetrics struct {
	Submissions      *prometheus.CounterVec
	FulfillmentMS    prometheus.Histogram
	FanoutDeliveries *prometheus.CounterVec
	DeadLetters      prometheus.Counter
}

func NewConsumerMetrics(reg prometheus.Registerer, service string) *ConsumerMetrics {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "submissions_total",
		Help:      "Order submissions handled, by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "fulfillment_duration_ms",
		Help:      "Time from message receipt to acknowledgement in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "fanout_deliveries_total",
		Help:      "Notification fan-out deliveries, by result.",
	}, []string{"result"})
	deadLetters := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "dead_letters_total",
		Help:      "Messages moved to the dead letter topic.",
	})

	reg.MustRegister(submissions, duration, deliveries, deadLetters)
	return &ConsumerMetrics{
		Submissions:      submissions,
		FulfillmentMS:    duration,
		FanoutDeliveries: deliveries,
		DeadLetters:      deadLetters,
	}
}

func (m *ConsumerMetrics) ObserveSubmission(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
	m.FulfillmentMS.Observe(float64(d.Milliseconds()))
}

func (m *ConsumerMetrics) ObserveFanOut(delivered, failed, skipped int) {
	if m == nil {
		return
	}
	m.FanoutDeliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.FanoutDeliveries.WithLabelValues("failed").Add(float64(failed))
	m.FanoutDeliveries.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *ConsumerMetrics) IncDeadLetter() {
	if m == nil {
		return
	}
	m.DeadLetters.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HistogramBuckets are request latency buckets in milliseconds. Webhook calls
// are short synchronous DB work, so the range stops at 30s.
var HistogramBuckets = []float64{
	5, 10, 25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 10000, 30000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
			m.Args,
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	}
	return metric
}

var webhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_events_total",
	Description: "Razorpay webhook deliveries by event type and outcome.",
	Type:        "counter_vec",
	Args:        []string{"event", "outcome"},
}

var publishFailures = &Metric{
	ID:          "publishFailures",
	Name:        "entitlement_publish_failures_total",
	Description: "Entitlement change events that could not be delivered to a sink.",
	Type:        "counter_vec",
	Args:        []string{"sink"},
}

var expiredSubscriptions = &Metric{
	ID:          "expiredSubscriptions",
	Name:        "expired_subscriptions_total",
	Description: "Subscriptions moved to expired by the grace period sweep.",
	Type:        "counter",
}

// Webhook outcomes.
const (
	OutcomeApplied         = "applied"
	OutcomeDuplicate       = "duplicate"
	OutcomeIgnored         = "ignored"
	OutcomeStale           = "stale"
	OutcomeRejected        = "rejected"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeMalformed       = "malformed"
	OutcomeFailed          = "failed"
)

// Billing groups the domain counters.
type Billing struct {
	events  *prometheus.CounterVec
	publish *prometheus.CounterVec
	expired prometheus.Counter
}

// NewBilling registers the billing collectors on reg.
func NewBilling(reg prometheus.Registerer) (*Billing, error) {
	b := &Billing{
		events:  NewMetric(webhookEvents, "razorpay").(*prometheus.CounterVec),
		publish: NewMetric(publishFailures, "billing").(*prometheus.CounterVec),
		expired: NewMetric(expiredSubscriptions, "billing").(prometheus.Counter),
	}
	for _, c := range []prometheus.Collector{b.events, b.publish, b.expired} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// NopBilling returns counters that are never exported.
func NopBilling() *Billing {
	b, _ := NewBilling(prometheus.NewRegistry())
	return b
}

func (b *Billing) WebhookEvent(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	b.events.WithLabelValues(event, outcome).Inc()
}

func (b *Billing) PublishFailed(sink string) { b.publish.WithLabelValues(sink).Inc() }

func (b *Billing) Expired(n int) { b.expired.Add(float64(n)) }

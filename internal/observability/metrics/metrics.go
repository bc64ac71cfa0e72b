package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for the lead ingestion flow.
type WebhookMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	leadsTotal      *prometheus.CounterVec
	enrichmentTotal *prometheus.CounterVec
	batchLatency    *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadbridge",
			Subsystem: "facebook",
			Name:      "webhook_deliveries_total",
			Help:      "Total inbound lead webhook deliveries",
		}, []string{"status"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadbridge",
			Subsystem: "facebook",
			Name:      "leads_total",
			Help:      "Total lead changes seen, by processing outcome",
		}, []string{"outcome"}),
		enrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadbridge",
			Subsystem: "facebook",
			Name:      "enrichment_total",
			Help:      "Total Graph API enrichment attempts",
		}, []string{"result"}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadbridge",
			Subsystem: "facebook",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of lead webhook batch processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.leadsTotal, m.enrichmentTotal, m.batchLatency)
	return m
}

func (m *WebhookMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(status).Inc()
}

func (m *WebhookMetrics) ObserveLead(outcome string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(outcome).Inc()
}

func (m *WebhookMetrics) ObserveEnrichment(result string) {
	if m == nil {
		return
	}
	m.enrichmentTotal.WithLabelValues(result).Inc()
}

func (m *WebhookMetrics) ObserveBatchLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.batchLatency.WithLabelValues(status).Observe(seconds)
}

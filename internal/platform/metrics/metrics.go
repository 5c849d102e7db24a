package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	DocumentsCreated   prometheus.Counter
	QuestionsGenerated prometheus.Counter
	AnswersSubmitted   prometheus.Counter
	LessonsCompleted   prometheus.Counter
	QuotaDenials       *prometheus.CounterVec
	GuestTransfers     prometheus.Counter
	BillingEvents      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_documents_created_total",
			Help: "Total number of documents created",
		}),
		QuestionsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_questions_generated_total",
			Help: "Total number of AI-generated questions persisted",
		}),
		AnswersSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_answers_submitted_total",
			Help: "Total number of answers submitted across all lessons",
		}),
		LessonsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_lessons_completed_total",
			Help: "Total number of completed lesson attempts",
		}),
		QuotaDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quizdeck_quota_denials_total",
			Help: "Total number of quota-denied actions, by reason",
		}, []string{"reason"}),
		GuestTransfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_guest_transfers_total",
			Help: "Total number of completed guest-to-account transfers",
		}),
		BillingEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quizdeck_billing_events_total",
			Help: "Total number of applied billing provider events, by type",
		}, []string{"type"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizdeck_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// IncQuotaDenial records a quota denial with its reason label.
func (m *Metrics) IncQuotaDenial(reason string) {
	if m == nil {
		return
	}
	m.QuotaDenials.WithLabelValues(reason).Inc()
}

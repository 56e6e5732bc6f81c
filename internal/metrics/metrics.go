package metrics

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	prometheus_metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"

	"github.com/zaqqye/inhouse_attendance/internal/events"
)

const (
	metricsNamespace = "attendance"
	outcomeLabel     = "outcome"
	actionLabel      = "action"
	methodLabel      = "method"
)

type Service struct {
	registry       *prometheus.Registry
	middleware     middleware.Middleware
	enrollCount    *prometheus.CounterVec
	verifyCount    *prometheus.CounterVec
	matchScore     prometheus.Histogram
	attendanceSeen *prometheus.CounterVec
}

func NewService() *Service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	enrollCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "biometric",
			Name:      "enroll_total",
			Help:      "Total number of fingerprint enrollment attempts",
		},
		[]string{outcomeLabel},
	)
	reg.MustRegister(enrollCount)

	verifyCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "biometric",
			Name:      "verify_total",
			Help:      "Total number of fingerprint verifications",
		},
		[]string{outcomeLabel},
	)
	reg.MustRegister(verifyCount)

	matchScore := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "biometric",
		Name:      "match_score",
		Help:      "Similarity score of accepted fingerprint matches",
		Buckets:   prometheus.LinearBuckets(50, 10, 6),
	})
	reg.MustRegister(matchScore)

	attendanceSeen := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Attendance check-ins and check-outs",
		},
		[]string{actionLabel, methodLabel},
	)
	reg.MustRegister(attendanceSeen)

	return &Service{
		registry: reg,
		middleware: middleware.New(middleware.Config{
			Service: metricsNamespace,
			Recorder: prometheus_metrics.NewRecorder(prometheus_metrics.Config{
				Registry: reg,
			}),
		}),
		enrollCount:    enrollCount,
		verifyCount:    verifyCount,
		matchScore:     matchScore,
		attendanceSeen: attendanceSeen,
	}
}

// Middleware records request metrics labelled by route template, not raw path.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		handlerID := c.FullPath()
		if handlerID == "" {
			handlerID = "unmatched"
		}
		ginmiddleware.Handler(handlerID, s.middleware)(c)
	}
}

func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Service) EnrollmentObserved(outcome string) {
	s.enrollCount.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func (s *Service) VerificationObserved(outcome string, score int) {
	s.verifyCount.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
	if score > 0 {
		s.matchScore.Observe(float64(score))
	}
}

// Publish counts attendance events, so the service can sit in the event fan-out.
func (s *Service) Publish(_ context.Context, ev events.Event) error {
	method := ""
	if ev.Attendance != nil {
		method = string(ev.Attendance.Method)
	}
	s.attendanceSeen.With(prometheus.Labels{actionLabel: ev.Type, methodLabel: method}).Inc()
	return nil
}

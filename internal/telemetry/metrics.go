package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

const namespace = "livequiz"

// Metrics turns domain events into prometheus series.
type Metrics struct {
	sessionsCreated   prometheus.Counter
	sessionsLive      prometheus.Gauge
	sessionsCompleted *prometheus.CounterVec
	participants      prometheus.Counter
	answers           *prometheus.CounterVec
	points            prometheus.Histogram
	answerTime        prometheus.Histogram
	questionsAdvanced prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		sessionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions created and not yet completed by this process.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions completed, by whether the host ended them early.",
		}, []string{"forced"}),
		participants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_joined_total",
			Help:      "Participants joined.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_submitted_total",
			Help:      "Answers recorded, by correctness.",
		}, []string{"correct"}),
		points: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_points",
			Help:      "Points awarded per correct answer.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}),
		answerTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_time_seconds",
			Help:      "Server-clamped time spent per answer.",
			Buckets:   prometheus.LinearBuckets(1, 2, 15),
		}),
		questionsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_advanced_total",
			Help:      "Host advances to a next question.",
		}),
	}

	reg.MustRegister(
		m.sessionsCreated,
		m.sessionsLive,
		m.sessionsCompleted,
		m.participants,
		m.answers,
		m.points,
		m.answerTime,
		m.questionsAdvanced,
	)

	return m
}

// Subscribe registers the metric handlers on the bus.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSessionCreated, func(context.Context, event.Event) error {
		m.sessionsCreated.Inc()
		m.sessionsLive.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameParticipantJoined, func(context.Context, event.Event) error {
		m.participants.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAnswerSubmitted, func(_ context.Context, e event.Event) error {
		rec := e.(domain.EventAnswerSubmitted).Record
		m.answers.WithLabelValues(strconv.FormatBool(rec.Correct)).Inc()
		m.answerTime.Observe(float64(rec.TimeSpentMs) / 1000)
		if rec.Correct {
			m.points.Observe(float64(rec.PointsAwarded))
		}
		return nil
	})

	eb.Subscribe(domain.EventNameQuestionAdvanced, func(context.Context, event.Event) error {
		m.questionsAdvanced.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionCompleted, func(_ context.Context, e event.Event) error {
		m.sessionsCompleted.WithLabelValues(strconv.FormatBool(e.(domain.EventSessionCompleted).Forced)).Inc()
		m.sessionsLive.Dec()
		return nil
	})
}

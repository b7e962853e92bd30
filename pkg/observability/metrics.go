package observability

import (
	"context"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var statuses = []domain.MachineStatus{
	domain.MachineUnknown,
	domain.MachineInitialized,
	domain.MachineLoading,
	domain.MachineRunning,
	domain.MachinePaused,
}

// Metrics records engine activity as Prometheus collectors.
type Metrics struct {
	StateVisits   *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	SkillDuration *prometheus.HistogramVec
	SkillResults  *prometheus.CounterVec
	Exceptions    *prometheus.CounterVec
	ActiveStates  prometheus.Gauge
	MachineStatus *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StateVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonsai_state_visits_total",
			Help: "Total number of state entries",
		}, []string{"state_id"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonsai_transitions_total",
			Help: "Total number of fired transitions",
		}, []string{"event"}),
		SkillDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bonsai_skill_duration_seconds",
			Help:    "Duration of skill runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"skill"}),
		SkillResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonsai_skill_results_total",
			Help: "Skill runs by exit token",
		}, []string{"skill", "token"}),
		Exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonsai_exceptions_total",
			Help: "Skill failures caught by runners",
		}, []string{"state_id"}),
		ActiveStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bonsai_active_states",
			Help: "Number of active states",
		}),
		MachineStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bonsai_machine_status",
			Help: "1 for the current machine status, 0 otherwise",
		}, []string{"status"}),
	}
	reg.MustRegister(m.StateVisits, m.Transitions, m.SkillDuration, m.SkillResults,
		m.Exceptions, m.ActiveStates, m.MachineStatus)
	return m
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.StateVisits.WithLabelValues(e.StateID).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(e.Event).Inc()
		},
		OnSkillDone: func(_ context.Context, e *domain.SkillEvent) {
			m.SkillDuration.WithLabelValues(e.Skill).Observe(e.Duration.Seconds())
			m.SkillResults.WithLabelValues(e.Skill, e.Token).Inc()
		},
	}
}

func (m *Metrics) OnStatus(_ context.Context, report domain.StatusReport) error {
	for _, s := range statuses {
		v := 0.0
		if s == report.Status {
			v = 1
		}
		m.MachineStatus.WithLabelValues(string(s)).Set(v)
	}
	return nil
}

func (m *Metrics) OnStatesChanged(_ context.Context, change domain.StateChange) error {
	m.ActiveStates.Set(float64(len(change.Active)))
	return nil
}

func (m *Metrics) OnException(_ context.Context, ev domain.ExceptionEvent) error {
	m.Exceptions.WithLabelValues(ev.StateID).Inc()
	return nil
}

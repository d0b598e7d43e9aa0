package call

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики ядра. Регистрируются в реестре по умолчанию при
// загрузке пакета.
var (
	metricDialogsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conf_call",
		Subsystem: "core",
		Name:      "dialogs_total",
		Help:      "Total number of dialogs created",
	})

	metricDialogsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "conf_call",
		Subsystem: "core",
		Name:      "dialogs_active",
		Help:      "Number of currently active dialogs",
	})

	metricInviteAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conf_call",
		Subsystem: "core",
		Name:      "invite_attempts_total",
		Help:      "Outbound invite attempts by outcome",
	}, []string{"outcome"})

	metricRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conf_call",
		Subsystem: "core",
		Name:      "registrations_total",
		Help:      "Registration operations by outcome",
	}, []string{"outcome"})

	metricRenegotiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conf_call",
		Subsystem: "core",
		Name:      "renegotiations_total",
		Help:      "Dialog renegotiation attempts by outcome",
	}, []string{"outcome"})
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

const namespace = "tictactoe"

// Metrics counts what happens on the boards of all sessions.
type Metrics struct {
	movesApplied     prometheus.Counter
	roundsFinished   *prometheus.CounterVec
	validationFailed prometheus.Counter
	liveSessions     prometheus.Gauge
}

// New registers the collectors on registerer. Registering twice on the same registerer panics.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		movesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_applied_total",
			Help:      "Number of moves placed on a board.",
		}),
		roundsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finished_total",
			Help:      "Number of rounds that reached a terminal board, by outcome.",
		}, []string{"outcome"}),
		validationFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_validation_failures_total",
			Help:      "Number of match starts refused because a player name was blank.",
		}),
		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Number of sessions with at least one open connection.",
		}),
	}
}

func (that *Metrics) MoveApplied() {
	that.movesApplied.Inc()
}

// RoundFinished counts a terminal outcome. Ongoing results are ignored.
func (that *Metrics) RoundFinished(outcome entity.Outcome) {
	if outcome == entity.OutcomeOngoing {
		return
	}

	that.roundsFinished.WithLabelValues(string(outcome)).Inc()
}

func (that *Metrics) ValidationFailed() {
	that.validationFailed.Inc()
}

func (that *Metrics) SessionOpened() {
	that.liveSessions.Inc()
}

func (that *Metrics) SessionClosed() {
	that.liveSessions.Dec()
}

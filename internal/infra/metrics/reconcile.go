package metrics

import (
	"donation-subscription-bot/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(reconcileOutcomesTotal) }

var reconcileOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconcile_outcomes_total",
		Help: "Per-user outcomes of expired subscription reconciliation.",
	},
	[]string{"outcome"}, // 'removed', 'not_member', 'skipped', 'error'
)

func ObserveReconcile(r *model.ReconcileReport) {
	if r == nil {
		return
	}
	reconcileOutcomesTotal.WithLabelValues("removed").Add(float64(r.Removed))
	reconcileOutcomesTotal.WithLabelValues("not_member").Add(float64(r.NotMember))
	reconcileOutcomesTotal.WithLabelValues("skipped").Add(float64(r.Skipped))
	reconcileOutcomesTotal.WithLabelValues("error").Add(float64(r.Errors))
}

package metrics

import (
	"donation-subscription-bot/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		ledgerUpsertsTotal,
		subscriptionsTotal,
	)
}

var (
	ledgerUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upserts_total",
			Help: "Donations applied to the ledger, labeled by result.",
		},
		[]string{"result"}, // 'inserted', 'updated', 'duplicate', 'failed'
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of ledger entries by status.",
		},
		[]string{"status"}, // 'active', 'expired'
	)
)

func ObserveBatch(s model.BatchStats) {
	ledgerUpsertsTotal.WithLabelValues("inserted").Add(float64(s.Inserted))
	ledgerUpsertsTotal.WithLabelValues("updated").Add(float64(s.Updated))
	ledgerUpsertsTotal.WithLabelValues("duplicate").Add(float64(s.Duplicates))
	ledgerUpsertsTotal.WithLabelValues("failed").Add(float64(s.Failed))
}

func SetSubscriptionsTotal(st *model.LedgerStats) {
	if st == nil {
		return
	}
	subscriptionsTotal.WithLabelValues("active").Set(float64(st.Active))
	subscriptionsTotal.WithLabelValues("expired").Set(float64(st.Expired))
}

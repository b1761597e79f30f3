package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbPoolEmptyAcquires) }

// PoolSnapshot is a point-in-time view of the database pool.
type PoolSnapshot struct {
	Total, Idle, InUse, Max int32
	// EmptyAcquires counts acquires that had to wait for a connection.
	EmptyAcquires int64
}

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Ledger database pool connections by state.",
		},
		[]string{"state"}, // total | idle | in_use | max
	)

	dbPoolEmptyAcquires = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_empty_acquires",
			Help: "Cumulative acquires that found the pool empty.",
		},
	)
)

func SetDBPool(s PoolSnapshot) {
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(s.InUse))
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
}

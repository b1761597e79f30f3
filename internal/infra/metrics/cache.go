package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(memberCacheLookups) }

var memberCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "member_cache_lookups_total",
		Help: "Member registry lookups by index and whether redis answered.",
	},
	[]string{"index", "result"}, // index: tg_id | username, result: hit | miss
)

// ObserveMemberCache records one cached registry lookup.
func ObserveMemberCache(index string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	memberCacheLookups.WithLabelValues(norm(index), result).Inc()
}

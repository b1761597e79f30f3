package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		feedRequestsTotal,
		feedEventsSkippedTotal,
		feedFetchAbortedTotal,
	)
}

var (
	feedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_feed_requests_total",
			Help: "Donation feed page requests by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'auth', 'rate_limited', 'transient'
	)

	feedEventsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_feed_events_skipped_total",
			Help: "Donation records dropped while reading the feed.",
		},
		[]string{"reason"}, // 'parse', 'duplicate'
	)

	feedFetchAbortedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "donation_feed_fetch_aborted_total",
			Help: "Ranged fetches that stopped after consecutive page failures.",
		},
	)
)

func IncFeedRequest(outcome string) {
	feedRequestsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncFeedEventSkipped(reason string) {
	feedEventsSkippedTotal.WithLabelValues(norm(reason)).Inc()
}

func IncFeedFetchAborted() {
	feedFetchAbortedTotal.Inc()
}

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, startTime) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "donation_bot_build_info",
			Help: "Always 1; labelled with the running build.",
		},
		[]string{"version", "commit", "go_version"},
	)

	startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "donation_bot_start_time_seconds",
			Help: "Unix time the process started.",
		},
	)
)

// SetBuildInfo publishes the build labels and the process start time.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
	startTime.Set(float64(time.Now().Unix()))
}

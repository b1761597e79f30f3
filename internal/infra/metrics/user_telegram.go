package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		membersRegisteredTotal,
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		inviteLinksTotal,
	)
}

var (
	membersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "members_registered_total",
			Help: "Total number of Telegram users the bot learned about.",
		},
	)

	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	inviteLinksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invite_links_created_total",
			Help: "Single-use channel invite links handed to subscribers.",
		},
	)
)

func IncMembersRegistered() {
	membersRegisteredTotal.Inc()
}

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncInviteLink() {
	inviteLinksTotal.Inc()
}

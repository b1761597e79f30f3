package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/infra/scheduler"
	"donation-subscription-bot/internal/usecase"
)

type NotificationWorker struct {
	interval time.Duration
	timeout  time.Duration
	notifUC  usecase.NotificationUseCase
	log      *zerolog.Logger
}

func NewNotificationWorker(interval, timeout time.Duration, notifUC usecase.NotificationUseCase, logger *zerolog.Logger) *NotificationWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	compLog := logger.With().Str("component", "NotificationWorker").Logger()
	return &NotificationWorker{
		interval: interval,
		timeout:  timeout,
		notifUC:  notifUC,
		log:      &compLog,
	}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting notification worker")
	err := every(ctx, w.interval, w.runCheck)
	w.log.Info().Msg("Stopping notification worker")
	return err
}

func (w *NotificationWorker) runCheck(ctx context.Context) {
	var sent int
	_ = scheduler.Run(ctx, w.log, "reminders", w.timeout, func(ctx context.Context) error {
		var err error
		sent, err = w.notifUC.SendExpiryReminders(ctx)
		return err
	})
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("expiry reminders sent")
	}
}

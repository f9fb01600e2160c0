package worker

import (
	"context"
	"fmt"
	"strings"

	"registration-service/internal/broker"
	"registration-service/internal/mailer"
	"registration-service/internal/models"
	"registration-service/internal/pricing"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes RegistrationConfirmed events and sends
// receipt mail. It sits on the far side of the broker from the webhook
// handler on purpose: a mail outage can never fail or delay a webhook
// response.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	mailer       mailer.Mailer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, m mailer.Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		mailer:   m,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnRegistrationConfirmed(w.handleConfirmed)
	w.eventHandler = eventHandler
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// handleConfirmed sends one receipt per registrant. Send failures are
// logged and counted, never returned: the confirmation already happened.
func (w *NotificationWorker) handleConfirmed(ctx context.Context, event *models.RegistrationConfirmedEvent) error {
	subject := fmt.Sprintf("Registration confirmed: %s", event.EventName)
	body := renderReceipt(event)

	sent := map[string]bool{}
	for _, item := range event.Items {
		if item.Email == "" || sent[item.Email] {
			continue
		}
		sent[item.Email] = true

		if err := w.mailer.Send(item.Email, subject, body); err != nil {
			util.NotificationsFailedTotal.Inc()
			w.logger.Error("Failed to send receipt",
				zap.String("email", item.Email),
				zap.String("event_id", event.EventID),
				zap.Error(err))
			continue
		}
		util.NotificationsSentTotal.Inc()
	}
	return nil
}

func renderReceipt(event *models.RegistrationConfirmedEvent) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<h2>%s</h2>", event.EventName))
	b.WriteString("<p>Your registration is confirmed.</p><ul>")
	for _, item := range event.Items {
		b.WriteString(fmt.Sprintf("<li>%s: %s (%s)</li>",
			item.Name, item.Detail, pricing.Dollars(item.Amount)))
	}
	b.WriteString("</ul>")
	if event.AmountTotal > 0 {
		b.WriteString(fmt.Sprintf("<p>Total paid: %s</p>", pricing.Dollars(event.AmountTotal)))
	}
	return b.String()
}

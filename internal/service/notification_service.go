package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/events"
)

// NotificationService turns lifecycle events into outbound notifications.
// Delivery is stubbed: messages are logged with their channel and subject.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("notifications"),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.notify(true, true))
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.notify(false, true))
	n.dispatcher.Subscribe(events.EventUpdateAppended, n.notify(true, false))
	n.dispatcher.Subscribe(events.EventTicketDeleted, n.notify(false, true))
}

func (n *NotificationService) notify(email, webhook bool) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		subject := notificationSubject(event)
		n.logger.Info(subject, zap.String("ticket_id", event.TicketID), zap.String("actor_id", event.ActorID))
		if email {
			n.sendEmail(ctx, subject, event)
		}
		if webhook {
			n.sendWebhook(ctx, event)
		}
		return nil
	}
}

func notificationSubject(event events.Event) string {
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		return fmt.Sprintf("Protocolo %d aberto", p.Number)
	case events.TicketStatusChangedPayload:
		return fmt.Sprintf("Protocolo %d: %s -> %s", p.Number, p.OldStatus.Label(), p.NewStatus.Label())
	case events.UpdateAppendedPayload:
		return fmt.Sprintf("Protocolo %d: nova atualização", p.Number)
	case events.TicketDeletedPayload:
		return fmt.Sprintf("Protocolo %d removido", p.Number)
	}
	return string(event.Type)
}

func (n *NotificationService) sendEmail(_ context.Context, subject string, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("email notification",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("subject", subject),
		zap.String("event_id", event.ID))
}

func (n *NotificationService) sendWebhook(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID))
}

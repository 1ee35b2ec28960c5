package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/notification"
)

// NotificationService mirrors workflow events into operator notifications.
// Hook-driven mails are the template's responsibility; this service covers
// the ambient "something happened to a ticket" audit trail.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     notification.Sender
	logger     *zap.Logger
	addresses  map[string]string
}

// NewNotificationService creates the service. addresses maps role names to
// notification targets.
func NewNotificationService(dispatcher events.Dispatcher, sender notification.Sender, addresses map[string]string, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		addresses:  addresses,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to workflow events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTransitionExecuted, n.handleTransitionExecuted)
	n.dispatcher.Subscribe(events.EventTransitionFailed, n.handleTransitionFailed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("ticket created",
		zap.String("ticket_id", event.TicketID),
		zap.String("ticket_type", payload.TicketType),
		zap.String("initial_status", payload.InitialStatus))
	n.notifyRoles(ctx, payload.NextRoles, "ticket_created", event)
	return nil
}

func (n *NotificationService) handleTransitionExecuted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TransitionExecutedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("transition executed",
		zap.String("ticket_id", event.TicketID),
		zap.String("before", payload.BeforeStatus),
		zap.String("after", payload.AfterStatus))
	n.notifyRoles(ctx, payload.NextRoles, "transition_executed", event)
	return nil
}

func (n *NotificationService) handleTransitionFailed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TransitionFailedPayload)
	if !ok {
		return nil
	}
	n.logger.Warn("transition failed after commit",
		zap.String("ticket_id", event.TicketID),
		zap.String("after", payload.AfterStatus),
		zap.String("reason", payload.Reason))
	return nil
}

// notifyRoles mails everyone who could act next. Delivery failures are logged
// and swallowed; workflow state must never depend on this path.
func (n *NotificationService) notifyRoles(ctx context.Context, roles []string, templateRef string, event events.Event) {
	var addresses []string
	for _, role := range roles {
		if addr, ok := n.addresses[role]; ok && addr != "" {
			addresses = append(addresses, addr)
		}
	}
	if len(addresses) == 0 {
		return
	}
	data := map[string]any{"ticket_id": event.TicketID, "event": string(event.Type)}
	if err := n.sender.Send(ctx, addresses, templateRef, data); err != nil {
		n.logger.Warn("event notification failed",
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

package worker

import (
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/service"
)

// StartEventSubscribers registers the notification and cache invalidation handlers.
func StartEventSubscribers(dispatcher events.Dispatcher, notifications *service.NotificationService, reports *service.ReportService) {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if reports != nil {
		reports.RegisterHandlers(dispatcher)
	}
}

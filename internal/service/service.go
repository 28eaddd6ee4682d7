package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

// Clock returns the current time. Services stamp postedAt and finalizedAt with it.
type Clock func() time.Time

// Dependencies bundles collaborators shared by every service.
type Dependencies struct {
	Repos      repository.Repositories
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Dispatcher == nil {
		d.Dispatcher = events.NewInMemoryDispatcher()
	}
	return d
}

// publish delivers event after commit; handler failures never fail the request.
func publish(ctx context.Context, d Dependencies, event events.Event) {
	if err := d.Dispatcher.Publish(ctx, event); err != nil {
		d.Logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// mapRepoError translates repository sentinels that need no call-site context.
func mapRepoError(err error, resource string, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrNumberConflict):
		return numberConflict()
	case errors.Is(err, repository.ErrReferenced):
		return apperrors.NewReferentialIntegrity(resource+" is still referenced", map[string]any{"id": id})
	case errors.Is(err, repository.ErrInvalidReference):
		return apperrors.NewValidationError("referenced record does not exist", nil)
	}
	return err
}

func statusConflict() error {
	return apperrors.NewConflict("ticket status was changed concurrently, please retry",
		map[string]any{"retryable": true})
}

func numberConflict() error {
	return apperrors.NewConflict("ticket number was taken concurrently, please retry",
		map[string]any{"retryable": true})
}

func transitionError(err error) error {
	var invalid *domain.ErrInvalidTransition
	if errors.As(err, &invalid) {
		return apperrors.NewInvalidTransition(string(invalid.From), string(invalid.To))
	}
	return err
}

func requireSuperuser(actor domain.Actor) error {
	if actor.UserID == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !actor.Superuser {
		return apperrors.NewForbidden("superuser required")
	}
	return nil
}

func requireActor(actor domain.Actor) error {
	if actor.UserID == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	return nil
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func preview(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

const updatePreviewLength = 80

// TimelineService appends and lists ticket updates.
type TimelineService struct {
	deps      Dependencies
	lifecycle *TicketService
}

// AppendResult carries the stored update and the ticket as it stands afterwards.
type AppendResult struct {
	Update   domain.Update
	Ticket   domain.Ticket
	Promoted bool
}

// AppendUpdate stores a note on the ticket and promotes an Open ticket to InProgress,
// both in one unit of work.
func (s *TimelineService) AppendUpdate(ctx context.Context, actor domain.Actor, ticketID, text string) (*AppendResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var result *AppendResult
	err := s.deps.Repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.appendInUnit(ctx, actor, ticketID, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishAppend(ctx, actor, result)
	return result, nil
}

func (s *TimelineService) appendInUnit(ctx context.Context, actor domain.Actor, ticketID, text string) (*AppendResult, error) {
	clean := apperrors.SanitizeText(text)
	if clean == "" {
		return nil, apperrors.NewFieldError("text", "text is required")
	}

	// The row lock also orders concurrent appends on the same ticket.
	if _, err := s.deps.Repos.Tickets.GetForUpdate(ctx, ticketID); err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}

	postedAt := s.deps.Clock()
	latest, err := s.deps.Repos.Updates.Latest(ctx, ticketID)
	switch {
	case err == nil:
		if latest.PostedAt.After(postedAt) {
			postedAt = latest.PostedAt
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	update := domain.Update{
		TicketID: ticketID,
		Text:     clean,
		AuthorID: actor.UserID,
		PostedAt: postedAt,
	}
	if err := s.deps.Repos.Updates.Create(ctx, &update); err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}

	// Promotion reads the ticket again so it sees the state after the update was stored.
	ticket, change, err := s.lifecycle.promote(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &AppendResult{Update: update, Ticket: *ticket, Promoted: change != nil}, nil
}

func (s *TimelineService) publishAppend(ctx context.Context, actor domain.Actor, result *AppendResult) {
	s.deps.Logger.Info("update appended",
		zap.String("ticket_id", result.Ticket.ID),
		zap.String("update_id", result.Update.ID),
		zap.Bool("promoted", result.Promoted))
	publish(ctx, s.deps, events.New(events.EventUpdateAppended, result.Ticket.ID, actor.UserID, result.Update.PostedAt,
		events.UpdateAppendedPayload{
			UpdateID:    result.Update.ID,
			Number:      result.Ticket.Number,
			TextPreview: preview(result.Update.Text, updatePreviewLength),
		}))
	if result.Promoted {
		s.lifecycle.publishStatusChange(ctx, actor, &result.Ticket, &statusChange{
			from: domain.TicketStatusOpen,
			to:   domain.TicketStatusInProgress,
		})
	}
}

// ListUpdates returns the ticket timeline newest first.
func (s *TimelineService) ListUpdates(ctx context.Context, ticketID string) ([]domain.Update, error) {
	if _, err := s.deps.Repos.Tickets.GetByID(ctx, ticketID); err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	return s.deps.Repos.Updates.ListByTicket(ctx, ticketID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

const (
	maxDeviceIDLength = 100
	// numberAttempts is the first insert plus one retry after a number conflict.
	numberAttempts = 2
	// statusAttempts bounds the re-reads after a status write lost a race.
	statusAttempts = 3
)

// TicketService coordinates numbering and the ticket lifecycle.
type TicketService struct {
	deps     Dependencies
	timeline *TimelineService
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ClientIDs     []string
	DeviceID      string
	ProblemTypeID string
	Description   string
	// FirstUpdate, when not blank, is appended right after creation in the same unit of work.
	FirstUpdate string
}

// TicketQuery filters ticket listings.
type TicketQuery struct {
	ProblemTypeID *string
	Statuses      []domain.TicketStatus
	Limit         int
	Offset        int
}

// TicketPatch lists the fields a superuser may edit. Nil fields are left unchanged.
type TicketPatch struct {
	ClientIDs     *[]string
	DeviceID      *string
	ProblemTypeID *string
	Description   *string
	Status        *domain.TicketStatus
}

// TicketDetail is a ticket with its resolved references and timeline.
type TicketDetail struct {
	Ticket      domain.Ticket
	Clients     []domain.Client
	ProblemType *domain.ProblemType
	Creator     *domain.User
	Updates     []domain.Update
}

// AdminTicketRow is one line of the back-office ticket listing.
type AdminTicketRow struct {
	Ticket            domain.Ticket
	PrimaryClientName string
	ProblemTypeName   string
	LatestUpdate      *domain.Update
}

type statusChange struct {
	from domain.TicketStatus
	to   domain.TicketStatus
}

// NewTicketService constructs the service together with its timeline.
func NewTicketService(deps Dependencies) *TicketService {
	s := &TicketService{deps: deps.withDefaults()}
	s.timeline = &TimelineService{deps: s.deps, lifecycle: s}
	return s
}

// Timeline returns the update timeline bound to this lifecycle.
func (s *TicketService) Timeline() *TimelineService {
	return s.timeline
}

// Create validates the draft, assigns the next number and persists the ticket as Open.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	draft, err := s.draftFromInput(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	firstUpdate := apperrors.SanitizeText(input.FirstUpdate)

	var (
		created  *domain.Ticket
		appended *AppendResult
	)
	err = s.deps.Repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		ticket, err := s.insertNumbered(ctx, draft)
		if err != nil {
			return err
		}
		created = ticket
		if firstUpdate == "" {
			return nil
		}
		appended, err = s.timeline.appendInUnit(ctx, actor, ticket.ID, firstUpdate)
		if err != nil {
			return err
		}
		created = &appended.Ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("ticket created",
		zap.String("ticket_id", created.ID),
		zap.Int("number", created.Number),
		zap.String("created_by", actor.UserID))
	publish(ctx, s.deps, events.New(events.EventTicketCreated, created.ID, actor.UserID, created.CreatedAt,
		events.TicketCreatedPayload{
			Number:        created.Number,
			ProblemTypeID: created.ProblemTypeID,
			ClientIDs:     created.ClientIDs,
			Status:        domain.TicketStatusOpen,
		}))
	if appended != nil {
		s.timeline.publishAppend(ctx, actor, appended)
	}
	return created, nil
}

// insertNumbered persists draft, retrying once with a fresh number when a concurrent writer took it.
func (s *TicketService) insertNumbered(ctx context.Context, draft domain.Ticket) (*domain.Ticket, error) {
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		ticket := draft
		ticket.ClientIDs = append([]string(nil), draft.ClientIDs...)
		err := s.deps.Repos.Tickets.CreateNumbered(ctx, &ticket)
		if err == nil {
			return &ticket, nil
		}
		if !errors.Is(err, repository.ErrNumberConflict) {
			return nil, mapRepoError(err, "ticket", "")
		}
		s.deps.Logger.Warn("ticket number conflict", zap.Int("attempt", attempt))
	}
	return nil, numberConflict()
}

// draftFromInput applies the create endpoint rules: references must exist and be active.
func (s *TicketService) draftFromInput(ctx context.Context, actor domain.Actor, input TicketCreateInput) (domain.Ticket, error) {
	fields := map[string]string{}

	deviceID := apperrors.SanitizeText(input.DeviceID)
	description := apperrors.SanitizeText(input.Description)
	clientIDs := uniqueIDs(input.ClientIDs)

	if deviceID == "" {
		fields["device_id"] = "device_id is required"
	} else if tooLong(deviceID, maxDeviceIDLength) {
		fields["device_id"] = fmt.Sprintf("device_id must be at most %d characters long", maxDeviceIDLength)
	}
	if description == "" {
		fields["description"] = "description is required"
	}

	if len(clientIDs) == 0 {
		fields["client_ids"] = "at least one client is required"
	} else if msg, err := s.checkClients(ctx, clientIDs, true); err != nil {
		return domain.Ticket{}, err
	} else if msg != "" {
		fields["client_ids"] = msg
	}

	if strings.TrimSpace(input.ProblemTypeID) == "" {
		fields["problem_type_id"] = "problem_type_id is required"
	} else if msg, err := s.checkProblemType(ctx, input.ProblemTypeID, true); err != nil {
		return domain.Ticket{}, err
	} else if msg != "" {
		fields["problem_type_id"] = msg
	}

	if len(fields) > 0 {
		return domain.Ticket{}, apperrors.NewValidationError("invalid ticket", map[string]any{"fields": fields})
	}

	return domain.Ticket{
		ClientIDs:     clientIDs,
		DeviceID:      deviceID,
		ProblemTypeID: input.ProblemTypeID,
		Description:   description,
		Status:        domain.TicketStatusOpen,
		CreatedBy:     actor.UserID,
	}, nil
}

// checkClients returns a field message when a client is unknown, or inactive while requireActive is set.
func (s *TicketService) checkClients(ctx context.Context, ids []string, requireActive bool) (string, error) {
	clients, err := s.deps.Repos.Clients.GetByIDs(ctx, ids)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}
	found := make(map[string]domain.Client, len(clients))
	for _, c := range clients {
		found[c.ID] = c
	}
	for _, id := range ids {
		client, ok := found[id]
		if !ok {
			return fmt.Sprintf("client %s does not exist", id), nil
		}
		if requireActive && !client.Active {
			return fmt.Sprintf("client %s is inactive", id), nil
		}
	}
	return "", nil
}

func (s *TicketService) checkProblemType(ctx context.Context, id string, requireActive bool) (string, error) {
	pt, err := s.deps.Repos.ProblemTypes.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("problem type %s does not exist", id), nil
	}
	if err != nil {
		return "", err
	}
	if requireActive && !pt.Active {
		return fmt.Sprintf("problem type %s is inactive", id), nil
	}
	return "", nil
}

// ChangeStatus moves the ticket through the lifecycle table.
func (s *TicketService) ChangeStatus(ctx context.Context, actor domain.Actor, ticketID string, next domain.TicketStatus) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, apperrors.NewFieldError("status", "status must be one of: OPEN IN_PROGRESS FINALIZED")
	}

	var (
		ticket *domain.Ticket
		change *statusChange
	)
	err := s.deps.Repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ticket, change, err = s.applyStatus(ctx, ticketID, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, actor, ticket, change)
	return ticket, nil
}

// Finalize is ChangeStatus(Finalized). Finalizing twice keeps the first finalizedAt.
func (s *TicketService) Finalize(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.ChangeStatus(ctx, actor, ticketID, domain.TicketStatusFinalized)
}

// applyStatus is the single transition path. It must run inside a unit of work.
func (s *TicketService) applyStatus(ctx context.Context, ticketID string, next domain.TicketStatus) (*domain.Ticket, *statusChange, error) {
	return s.writeStatus(ctx, ticketID, func(ticket *domain.Ticket) (bool, error) {
		changed, err := ticket.Transition(next, s.deps.Clock())
		if err != nil {
			return false, transitionError(err)
		}
		return changed, nil
	})
}

// promote moves an Open ticket to InProgress and leaves any other status alone.
func (s *TicketService) promote(ctx context.Context, ticketID string) (*domain.Ticket, *statusChange, error) {
	return s.writeStatus(ctx, ticketID, func(ticket *domain.Ticket) (bool, error) {
		if ticket.Status != domain.TicketStatusOpen {
			return false, nil
		}
		changed, err := ticket.Transition(domain.TicketStatusInProgress, s.deps.Clock())
		if err != nil {
			return false, transitionError(err)
		}
		return changed, nil
	})
}

// writeStatus locks the ticket, lets mutate change it and stores the result only while the
// stored status is still the one mutate saw. A lost race re-reads the ticket and runs mutate again.
func (s *TicketService) writeStatus(ctx context.Context, ticketID string, mutate func(*domain.Ticket) (bool, error)) (*domain.Ticket, *statusChange, error) {
	for attempt := 1; ; attempt++ {
		ticket, err := s.deps.Repos.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return nil, nil, mapRepoError(err, "ticket", ticketID)
		}
		from := ticket.Status
		changed, err := mutate(ticket)
		if err != nil {
			return nil, nil, err
		}
		if !changed {
			return ticket, nil, nil
		}

		err = s.deps.Repos.Tickets.Update(ctx, ticket, from)
		if errors.Is(err, repository.ErrStaleWrite) {
			s.deps.Logger.Warn("ticket status changed concurrently",
				zap.String("ticket_id", ticketID),
				zap.Int("attempt", attempt))
			if attempt >= statusAttempts {
				return nil, nil, statusConflict()
			}
			continue
		}
		if err != nil {
			return nil, nil, mapRepoError(err, "ticket", ticketID)
		}
		if from == ticket.Status {
			return ticket, nil, nil
		}
		return ticket, &statusChange{from: from, to: ticket.Status}, nil
	}
}

func (s *TicketService) publishStatusChange(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, change *statusChange) {
	if change == nil {
		return
	}
	s.deps.Logger.Info("ticket status changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(change.from)),
		zap.String("to", string(change.to)))
	publish(ctx, s.deps, events.New(events.EventTicketStatusChanged, ticket.ID, actor.UserID, s.deps.Clock(),
		events.TicketStatusChangedPayload{Number: ticket.Number, OldStatus: change.from, NewStatus: change.to}))
}

// NextNumber previews the number the next Create would assign. Nothing is reserved.
func (s *TicketService) NextNumber(ctx context.Context) (int, error) {
	return s.deps.Repos.Tickets.NextNumber(ctx)
}

// Get returns the ticket with its clients, problem type, creator and timeline.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.deps.Repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	detail := &TicketDetail{Ticket: *ticket}

	if len(ticket.ClientIDs) > 0 {
		clients, err := s.deps.Repos.Clients.GetByIDs(ctx, ticket.ClientIDs)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		detail.Clients = clients
	}
	pt, err := s.deps.Repos.ProblemTypes.GetByID(ctx, ticket.ProblemTypeID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	detail.ProblemType = pt
	creator, err := s.deps.Repos.Users.GetByID(ctx, ticket.CreatedBy)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	detail.Creator = creator
	updates, err := s.deps.Repos.Updates.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	detail.Updates = updates
	return detail, nil
}

// List returns tickets newest first.
func (s *TicketService) List(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	for _, status := range query.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewFieldError("status", fmt.Sprintf("unknown status %q", status))
		}
	}
	return s.deps.Repos.Tickets.List(ctx, repository.TicketFilter{
		ProblemTypeID: query.ProblemTypeID,
		Statuses:      query.Statuses,
		Order:         repository.OrderCreatedDesc,
		Limit:         query.Limit,
		Offset:        query.Offset,
	})
}

// AdminList returns every ticket by status rank with the primary client and the latest update.
func (s *TicketService) AdminList(ctx context.Context, actor domain.Actor) ([]AdminTicketRow, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	tickets, err := s.deps.Repos.Tickets.List(ctx, repository.TicketFilter{Order: repository.OrderStatusRank})
	if err != nil {
		return nil, err
	}

	clientNames := map[string]string{}
	typeNames := map[string]string{}
	rows := make([]AdminTicketRow, 0, len(tickets))
	for _, ticket := range tickets {
		row := AdminTicketRow{Ticket: ticket}
		if len(ticket.ClientIDs) > 0 {
			primary := ticket.ClientIDs[0]
			name, ok := clientNames[primary]
			if !ok {
				client, err := s.deps.Repos.Clients.GetByID(ctx, primary)
				if err != nil && !errors.Is(err, repository.ErrNotFound) {
					return nil, err
				}
				if client != nil {
					name = client.Name
				}
				clientNames[primary] = name
			}
			row.PrimaryClientName = name
		}
		name, ok := typeNames[ticket.ProblemTypeID]
		if !ok {
			pt, err := s.deps.Repos.ProblemTypes.GetByID(ctx, ticket.ProblemTypeID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			if pt != nil {
				name = pt.Name
			}
			typeNames[ticket.ProblemTypeID] = name
		}
		row.ProblemTypeName = name

		latest, err := s.deps.Repos.Updates.Latest(ctx, ticket.ID)
		switch {
		case err == nil:
			row.LatestUpdate = latest
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AdminUpdate edits the allowed ticket fields. A status change goes through the lifecycle table.
func (s *TicketService) AdminUpdate(ctx context.Context, actor domain.Actor, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperrors.NewFieldError("status", "status must be one of: OPEN IN_PROGRESS FINALIZED")
	}

	var (
		ticket *domain.Ticket
		change *statusChange
	)
	err := s.deps.Repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ticket, change, err = s.writeStatus(ctx, ticketID, func(current *domain.Ticket) (bool, error) {
			if err := s.applyPatch(ctx, current, patch); err != nil {
				return false, err
			}
			if patch.Status != nil {
				if _, err := current.Transition(*patch.Status, s.deps.Clock()); err != nil {
					return false, transitionError(err)
				}
			}
			return true, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.deps, events.New(events.EventTicketEdited, ticket.ID, actor.UserID, s.deps.Clock(), nil))
	s.publishStatusChange(ctx, actor, ticket, change)
	return ticket, nil
}

// applyPatch validates and copies the non-status patch fields. Admin edits may reference inactive records.
func (s *TicketService) applyPatch(ctx context.Context, ticket *domain.Ticket, patch TicketPatch) error {
	fields := map[string]string{}

	if patch.DeviceID != nil {
		deviceID := apperrors.SanitizeText(*patch.DeviceID)
		switch {
		case deviceID == "":
			fields["device_id"] = "device_id is required"
		case tooLong(deviceID, maxDeviceIDLength):
			fields["device_id"] = fmt.Sprintf("device_id must be at most %d characters long", maxDeviceIDLength)
		default:
			ticket.DeviceID = deviceID
		}
	}
	if patch.Description != nil {
		description := apperrors.SanitizeText(*patch.Description)
		if description == "" {
			fields["description"] = "description is required"
		} else {
			ticket.Description = description
		}
	}
	if patch.ClientIDs != nil {
		ids := uniqueIDs(*patch.ClientIDs)
		if len(ids) == 0 {
			fields["client_ids"] = "at least one client is required"
		} else if msg, err := s.checkClients(ctx, ids, false); err != nil {
			return err
		} else if msg != "" {
			fields["client_ids"] = msg
		} else {
			ticket.ClientIDs = ids
		}
	}
	if patch.ProblemTypeID != nil {
		if msg, err := s.checkProblemType(ctx, *patch.ProblemTypeID, false); err != nil {
			return err
		} else if msg != "" {
			fields["problem_type_id"] = msg
		} else {
			ticket.ProblemTypeID = *patch.ProblemTypeID
		}
	}

	if len(fields) > 0 {
		return apperrors.NewValidationError("invalid ticket", map[string]any{"fields": fields})
	}
	return nil
}

// Delete removes the ticket and its timeline. The number stays retired.
func (s *TicketService) Delete(ctx context.Context, actor domain.Actor, ticketID string) error {
	if err := requireSuperuser(actor); err != nil {
		return err
	}
	ticket, err := s.deps.Repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return mapRepoError(err, "ticket", ticketID)
	}
	if err := s.deps.Repos.Tickets.Delete(ctx, ticketID); err != nil {
		return mapRepoError(err, "ticket", ticketID)
	}
	s.deps.Logger.Info("ticket deleted", zap.String("ticket_id", ticketID), zap.Int("number", ticket.Number))
	publish(ctx, s.deps, events.New(events.EventTicketDeleted, ticketID, actor.UserID, s.deps.Clock(),
		events.TicketDeletedPayload{Number: ticket.Number}))
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

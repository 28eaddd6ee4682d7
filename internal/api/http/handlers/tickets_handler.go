package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/dto"
	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/service"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

// TicketsHandler manages the operator ticket endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	timeline *service.TimelineService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, timeline: ticketService.Timeline()}
}

// NextNumber GET /tickets/next-number.
func (h *TicketsHandler) NextNumber(c *fiber.Ctx) error {
	number, err := h.tickets.NextNumber(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NextNumberResponse{Number: number}})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Create(c.UserContext(), auth.ActorFromContext(c), service.TicketCreateInput{
		ClientIDs:     req.ClientIDs,
		DeviceID:      req.DeviceID,
		ProblemTypeID: req.ProblemTypeID,
		Description:   req.Description,
		FirstUpdate:   req.FirstUpdate,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.List(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.tickets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.ChangeStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.ChangeStatus(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Finalize POST /tickets/:id/finalize.
func (h *TicketsHandler) Finalize(c *fiber.Ctx) error {
	ticket, err := h.tickets.Finalize(c.UserContext(), auth.ActorFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AppendUpdate POST /tickets/:id/updates.
func (h *TicketsHandler) AppendUpdate(c *fiber.Ctx) error {
	var req dto.AppendUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.timeline.AppendUpdate(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AppendUpdateResponse{
		Update:   updateResponse(&result.Update),
		Ticket:   ticketResponse(&result.Ticket),
		Promoted: result.Promoted,
	}})
}

// ListUpdates GET /tickets/:id/updates.
func (h *TicketsHandler) ListUpdates(c *fiber.Ctx) error {
	updates, err := h.timeline.ListUpdates(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updateResponses(updates)})
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketQuery, error) {
	query := service.TicketQuery{}
	if id := strings.TrimSpace(c.Query("problem_type_id")); id != "" {
		query.ProblemTypeID = &id
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Statuses = append(query.Statuses, domain.TicketStatus(strings.ToUpper(part)))
			}
		}
	}
	var err error
	if query.Limit, err = parseNonNegative(c, "limit"); err != nil {
		return query, err
	}
	if query.Offset, err = parseNonNegative(c, "offset"); err != nil {
		return query, err
	}
	return query, nil
}

func parseNonNegative(c *fiber.Ctx, key string) (int, error) {
	val := c.Query(key)
	if val == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return 0, apperrors.NewFieldError(key, key+" must be a non-negative integer")
	}
	return parsed, nil
}

// parseActive reads the optional ?active= filter.
func parseActive(c *fiber.Ctx) (*bool, error) {
	val := c.Query("active")
	if val == "" {
		return nil, nil
	}
	active, err := strconv.ParseBool(val)
	if err != nil {
		return nil, apperrors.NewFieldError("active", "active must be true or false")
	}
	return &active, nil
}

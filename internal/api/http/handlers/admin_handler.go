package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/dto"
	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/service"
)

// AdminHandler serves the superuser back-office.
type AdminHandler struct {
	tickets *service.TicketService
	auth    *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(tickets *service.TicketService, authService *service.AuthService) *AdminHandler {
	return &AdminHandler{tickets: tickets, auth: authService}
}

// ListTickets GET /admin/tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	rows, err := h.tickets.AdminList(c.UserContext(), auth.ActorFromContext(c))
	if err != nil {
		return err
	}
	items := make([]dto.AdminTicketResponse, 0, len(rows))
	for i := range rows {
		items = append(items, adminTicketResponse(&rows[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateTicket PATCH /admin/tickets/:id.
func (h *AdminHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.AdminTicketPatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.AdminUpdate(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.TicketPatch{
		ClientIDs:     req.ClientIDs,
		DeviceID:      req.DeviceID,
		ProblemTypeID: req.ProblemTypeID,
		Description:   req.Description,
		Status:        req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// DeleteTicket DELETE /admin/tickets/:id.
func (h *AdminHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.tickets.Delete(c.UserContext(), auth.ActorFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// CreateUser POST /admin/users.
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.auth.CreateUser(c.UserContext(), auth.ActorFromContext(c), service.UserInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Superuser: req.Superuser,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

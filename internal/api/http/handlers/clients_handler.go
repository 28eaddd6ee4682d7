package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/dto"
	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/service"
)

// ClientsHandler serves the client registry.
type ClientsHandler struct {
	clients *service.ClientService
}

// NewClientsHandler constructs handler.
func NewClientsHandler(clients *service.ClientService) *ClientsHandler {
	return &ClientsHandler{clients: clients}
}

// List GET /clients.
func (h *ClientsHandler) List(c *fiber.Ctx) error {
	active, err := parseActive(c)
	if err != nil {
		return err
	}
	clients, err := h.clients.List(c.UserContext(), active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": clientResponses(clients)})
}

// Get GET /clients/:id.
func (h *ClientsHandler) Get(c *fiber.Ctx) error {
	client, err := h.clients.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": clientResponse(client)})
}

// Register POST /clients.
func (h *ClientsHandler) Register(c *fiber.Ctx) error {
	var req dto.CreateClientRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	client, err := h.clients.Register(c.UserContext(), auth.ActorFromContext(c), service.ClientInput{
		Name:   req.Name,
		Email:  req.Email,
		Secret: req.Secret,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": clientResponse(client)})
}

// Update PATCH /clients/:id.
func (h *ClientsHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateClientRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	client, err := h.clients.Update(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.ClientPatch{
		Name:   req.Name,
		Email:  req.Email,
		Secret: req.Secret,
		Active: req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": clientResponse(client)})
}

// VerifySecret POST /clients/:id/verify-secret.
func (h *ClientsHandler) VerifySecret(c *fiber.Ctx) error {
	var req dto.VerifyClientSecretRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	valid, err := h.clients.VerifySecret(c.UserContext(), c.Params("id"), req.Secret)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.VerifyClientSecretResponse{Valid: valid}})
}

// Delete DELETE /clients/:id.
func (h *ClientsHandler) Delete(c *fiber.Ctx) error {
	if err := h.clients.Delete(c.UserContext(), auth.ActorFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

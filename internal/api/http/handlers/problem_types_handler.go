package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/dto"
	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/service"
)

// ProblemTypesHandler serves the problem taxonomy.
type ProblemTypesHandler struct {
	taxonomy *service.TaxonomyService
}

// NewProblemTypesHandler constructs handler.
func NewProblemTypesHandler(taxonomy *service.TaxonomyService) *ProblemTypesHandler {
	return &ProblemTypesHandler{taxonomy: taxonomy}
}

// List GET /problem-types.
func (h *ProblemTypesHandler) List(c *fiber.Ctx) error {
	active, err := parseActive(c)
	if err != nil {
		return err
	}
	types, err := h.taxonomy.List(c.UserContext(), active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": problemTypeResponses(types)})
}

// Create POST /problem-types.
func (h *ProblemTypesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateProblemTypeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pt, err := h.taxonomy.Create(c.UserContext(), auth.ActorFromContext(c), service.ProblemTypeInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": problemTypeResponse(pt)})
}

// Update PATCH /problem-types/:id.
func (h *ProblemTypesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateProblemTypeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pt, err := h.taxonomy.Update(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.ProblemTypePatch{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": problemTypeResponse(pt)})
}

// Delete DELETE /problem-types/:id.
func (h *ProblemTypesHandler) Delete(c *fiber.Ctx) error {
	if err := h.taxonomy.Delete(c.UserContext(), auth.ActorFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/dto"
	"github.com/spec-kit/protocol-service/internal/service"
)

const exportFileName = "protocolos.csv"

// ReportsHandler serves the dashboard, global search and the CSV export.
type ReportsHandler struct {
	reports *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Dashboard GET /dashboard.
func (h *ReportsHandler) Dashboard(c *fiber.Ctx) error {
	dashboard, err := h.reports.Dashboard(c.UserContext())
	if err != nil {
		return err
	}
	resp := dto.DashboardResponse{
		Counts:          make(map[string]int, len(dashboard.Counts)),
		Total:           dashboard.Total,
		Latest:          ticketResponses(dashboard.Latest),
		TopProblemTypes: make([]dto.ProblemTypeUsageItem, 0, len(dashboard.TopProblemTypes)),
		GeneratedAt:     dashboard.GeneratedAt,
	}
	for status, n := range dashboard.Counts {
		resp.Counts[string(status)] = n
	}
	for _, usage := range dashboard.TopProblemTypes {
		resp.TopProblemTypes = append(resp.TopProblemTypes, dto.ProblemTypeUsageItem{
			ID:      usage.ID,
			Name:    usage.Name,
			Tickets: usage.Tickets,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Search GET /search?q=.
func (h *ReportsHandler) Search(c *fiber.Ctx) error {
	result, err := h.reports.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SearchResponse{
		Query:        result.Query,
		Tickets:      ticketResponses(result.Tickets),
		Clients:      clientResponses(result.Clients),
		ProblemTypes: problemTypeResponses(result.ProblemTypes),
	}})
}

// ExportTickets GET /export/tickets.csv.
func (h *ReportsHandler) ExportTickets(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.reports.ExportCSV(c.UserContext(), &buf); err != nil {
		return err
	}
	c.Attachment(exportFileName)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/dto"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/service"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

const latestUpdatePreview = 80

// bind parses the JSON body into req and runs its validate tags.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return apperrors.ValidateStruct(req)
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	clientIDs := ticket.ClientIDs
	if clientIDs == nil {
		clientIDs = []string{}
	}
	return dto.TicketResponse{
		ID:            ticket.ID,
		Number:        ticket.Number,
		ClientIDs:     clientIDs,
		DeviceID:      ticket.DeviceID,
		ProblemTypeID: ticket.ProblemTypeID,
		Description:   ticket.Description,
		Status:        ticket.Status,
		StatusLabel:   ticket.Status.Label(),
		CreatedBy:     ticket.CreatedBy,
		CreatedAt:     ticket.CreatedAt,
		FinalizedAt:   ticket.FinalizedAt,
	}
}

func ticketResponses(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(&detail.Ticket),
		Clients:        clientResponses(detail.Clients),
		Updates:        updateResponses(detail.Updates),
	}
	if detail.ProblemType != nil {
		pt := problemTypeResponse(detail.ProblemType)
		resp.ProblemType = &pt
	}
	if detail.Creator != nil {
		creator := userResponse(detail.Creator)
		resp.Creator = &creator
	}
	return resp
}

func updateResponse(update *domain.Update) dto.UpdateResponse {
	return dto.UpdateResponse{
		ID:       update.ID,
		TicketID: update.TicketID,
		Text:     update.Text,
		AuthorID: update.AuthorID,
		PostedAt: update.PostedAt,
	}
}

func updateResponses(updates []domain.Update) []dto.UpdateResponse {
	items := make([]dto.UpdateResponse, 0, len(updates))
	for i := range updates {
		items = append(items, updateResponse(&updates[i]))
	}
	return items
}

func adminTicketResponse(row *service.AdminTicketRow) dto.AdminTicketResponse {
	resp := dto.AdminTicketResponse{
		TicketResponse:    ticketResponse(&row.Ticket),
		PrimaryClientName: row.PrimaryClientName,
		ProblemTypeName:   row.ProblemTypeName,
	}
	if row.LatestUpdate != nil {
		resp.LatestUpdate = truncate(row.LatestUpdate.Text, latestUpdatePreview)
	}
	return resp
}

func clientResponse(client *domain.Client) dto.ClientResponse {
	return dto.ClientResponse{
		ID:           client.ID,
		Name:         client.Name,
		Email:        client.Email,
		Active:       client.Active,
		RegisteredAt: client.RegisteredAt,
	}
}

func clientResponses(clients []domain.Client) []dto.ClientResponse {
	items := make([]dto.ClientResponse, 0, len(clients))
	for i := range clients {
		items = append(items, clientResponse(&clients[i]))
	}
	return items
}

func problemTypeResponse(pt *domain.ProblemType) dto.ProblemTypeResponse {
	return dto.ProblemTypeResponse{
		ID:          pt.ID,
		Name:        pt.Name,
		Description: pt.Description,
		Active:      pt.Active,
		CreatedAt:   pt.CreatedAt,
		CreatedBy:   pt.CreatedBy,
	}
}

func problemTypeResponses(types []domain.ProblemType) []dto.ProblemTypeResponse {
	items := make([]dto.ProblemTypeResponse, 0, len(types))
	for i := range types {
		items = append(items, problemTypeResponse(&types[i]))
	}
	return items
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Superuser: user.Superuser,
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

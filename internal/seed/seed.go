// Package seed loads the default taxonomy, the admin account and optional sample data.
package seed

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/app"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/service"
)

// DefaultProblemTypes are created on first run.
var DefaultProblemTypes = []service.ProblemTypeInput{
	{Name: "Equipamento queimado", Description: "Equipamento não liga ou apresenta sinais de queima"},
	{Name: "Relé colado", Description: "Relé permanece acionado sem comando"},
	{Name: "Erro de firmware", Description: "Falha ou travamento do firmware do dispositivo"},
	{Name: "Falha de comunicação entre socket e interruptor", Description: "Socket e interruptor não se comunicam"},
	{Name: "Perda de produto", Description: "Produto extraviado ou perdido"},
}

var sampleClients = []service.ClientInput{
	{Name: "Condomínio Solar", Email: "sindico@solar.example", Secret: "solar-secret"},
	{Name: "Padaria Central", Email: "contato@padariacentral.example", Secret: "central-secret"},
	{Name: "Escritório Lima", Email: "ti@lima.example", Secret: "lima-secret"},
}

type sampleTicket struct {
	client   int
	device   string
	problem  int
	text     string
	updates  []string
	finalize bool
}

var sampleTickets = []sampleTicket{
	{client: 0, device: "BUIC-001", problem: 1, text: "Relé da área comum não desarma"},
	{client: 1, device: "BUIC-014", problem: 2, text: "Dispositivo reinicia a cada poucos minutos",
		updates: []string{"Firmware reinstalado remotamente"}},
	{client: 2, device: "BUIC-027", problem: 3, text: "Interruptor sem resposta ao socket",
		updates: []string{"Cabo de comunicação substituído", "Cliente confirmou funcionamento"}, finalize: true},
}

// Report counts what a run created.
type Report struct {
	AdminCreated        bool
	ProblemTypesCreated int
	ClientsCreated      int
	TicketsCreated      int
}

// Run is idempotent: existing records are kept and sample data is only loaded into an empty ticket base.
func Run(ctx context.Context, svc *app.Services, cfg config.SeedConfig, sample bool, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	report := &Report{}

	admin, created, err := svc.Auth.EnsureUser(ctx, service.UserInput{
		Username:  cfg.AdminUsername,
		Password:  cfg.AdminPassword,
		Superuser: true,
	})
	if err != nil {
		return nil, fmt.Errorf("seed admin user: %w", err)
	}
	if !admin.Superuser {
		return nil, fmt.Errorf("seed admin user: %q exists without superuser status", admin.Username)
	}
	report.AdminCreated = created
	actor := domain.ActorOf(admin)

	problemTypes, err := ensureProblemTypes(ctx, svc.Taxonomy, actor, report)
	if err != nil {
		return nil, err
	}

	if sample {
		if err := loadSample(ctx, svc, actor, problemTypes, report); err != nil {
			return nil, err
		}
	}

	logger.Info("seed finished",
		zap.Bool("admin_created", report.AdminCreated),
		zap.Int("problem_types_created", report.ProblemTypesCreated),
		zap.Int("clients_created", report.ClientsCreated),
		zap.Int("tickets_created", report.TicketsCreated))
	return report, nil
}

// ensureProblemTypes returns the default types in declaration order, creating the missing ones.
func ensureProblemTypes(ctx context.Context, taxonomy *service.TaxonomyService, actor domain.Actor, report *Report) ([]domain.ProblemType, error) {
	existing, err := taxonomy.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list problem types: %w", err)
	}
	byName := make(map[string]domain.ProblemType, len(existing))
	for _, pt := range existing {
		byName[strings.ToLower(pt.Name)] = pt
	}

	out := make([]domain.ProblemType, 0, len(DefaultProblemTypes))
	for _, input := range DefaultProblemTypes {
		if pt, ok := byName[strings.ToLower(input.Name)]; ok {
			out = append(out, pt)
			continue
		}
		pt, err := taxonomy.Create(ctx, actor, input)
		if err != nil {
			return nil, fmt.Errorf("create problem type %q: %w", input.Name, err)
		}
		report.ProblemTypesCreated++
		out = append(out, *pt)
	}
	return out, nil
}

func loadSample(ctx context.Context, svc *app.Services, actor domain.Actor, problemTypes []domain.ProblemType, report *Report) error {
	tickets, err := svc.Tickets.List(ctx, service.TicketQuery{Limit: 1})
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	if len(tickets) > 0 {
		return nil
	}

	clients := make([]*domain.Client, 0, len(sampleClients))
	for _, input := range sampleClients {
		client, err := svc.Clients.Register(ctx, actor, input)
		if err != nil {
			return fmt.Errorf("register sample client %q: %w", input.Name, err)
		}
		report.ClientsCreated++
		clients = append(clients, client)
	}

	for _, sample := range sampleTickets {
		ticket, err := svc.Tickets.Create(ctx, actor, service.TicketCreateInput{
			ClientIDs:     []string{clients[sample.client].ID},
			DeviceID:      sample.device,
			ProblemTypeID: problemTypes[sample.problem].ID,
			Description:   sample.text,
		})
		if err != nil {
			return fmt.Errorf("create sample ticket %s: %w", sample.device, err)
		}
		report.TicketsCreated++
		for _, text := range sample.updates {
			if _, err := svc.Tickets.Timeline().AppendUpdate(ctx, actor, ticket.ID, text); err != nil {
				return fmt.Errorf("append sample update to %d: %w", ticket.Number, err)
			}
		}
		if sample.finalize {
			if _, err := svc.Tickets.Finalize(ctx, actor, ticket.ID); err != nil {
				return fmt.Errorf("finalize sample ticket %d: %w", ticket.Number, err)
			}
		}
	}
	return nil
}

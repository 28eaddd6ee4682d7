package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

const maxClientNameLength = 255

// ClientService manages the client registry.
type ClientService struct {
	deps       Dependencies
	bcryptCost int
}

// ClientInput describes a client registration.
type ClientInput struct {
	Name   string
	Email  string
	Secret string
}

// ClientPatch lists editable fields. Nil fields are left unchanged.
type ClientPatch struct {
	Name   *string
	Email  *string
	Secret *string
	Active *bool
}

// NewClientService constructs the service.
func NewClientService(deps Dependencies, bcryptCost int) *ClientService {
	return &ClientService{deps: deps.withDefaults(), bcryptCost: bcryptCost}
}

// Register creates an active client. The secret is stored as a bcrypt hash.
func (s *ClientService) Register(ctx context.Context, actor domain.Actor, input ClientInput) (*domain.Client, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	name, email, err := clientIdentity(input.Name, input.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Secret) == "" {
		return nil, apperrors.NewFieldError("secret", "secret is required")
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Secret, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash client secret: %w", err)
	}
	client := &domain.Client{Name: name, Email: email, SecretHash: hash, Active: true}
	if err := s.deps.Repos.Clients.Create(ctx, client); err != nil {
		return nil, mapClientWriteError(err, "")
	}

	s.deps.Logger.Info("client registered", zap.String("client_id", client.ID))
	s.publishChange(ctx, actor, client.ID, "created")
	return client, nil
}

// Update edits a client.
func (s *ClientService) Update(ctx context.Context, actor domain.Actor, id string, patch ClientPatch) (*domain.Client, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	client, err := s.deps.Repos.Clients.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "client", id)
	}

	name, email := client.Name, client.Email
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.Email != nil {
		email = *patch.Email
	}
	name, email, err = clientIdentity(name, email)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(email, client.Email) {
		if err := s.ensureEmailFree(ctx, email, client.ID); err != nil {
			return nil, err
		}
	}
	client.Name, client.Email = name, email

	if patch.Secret != nil {
		if strings.TrimSpace(*patch.Secret) == "" {
			return nil, apperrors.NewFieldError("secret", "secret is required")
		}
		hash, err := auth.HashPassword(*patch.Secret, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash client secret: %w", err)
		}
		client.SecretHash = hash
	}
	if patch.Active != nil {
		client.Active = *patch.Active
	}

	if err := s.deps.Repos.Clients.Update(ctx, client); err != nil {
		return nil, mapClientWriteError(err, id)
	}
	s.publishChange(ctx, actor, client.ID, "updated")
	return client, nil
}

// Delete removes the client. Tickets survive; only their link to the client goes away.
func (s *ClientService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.deps.Repos.Clients.Delete(ctx, id); err != nil {
		return mapRepoError(err, "client", id)
	}
	s.deps.Logger.Info("client deleted", zap.String("client_id", id))
	s.publishChange(ctx, actor, id, "deleted")
	return nil
}

// Get returns one client.
func (s *ClientService) Get(ctx context.Context, id string) (*domain.Client, error) {
	client, err := s.deps.Repos.Clients.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "client", id)
	}
	return client, nil
}

// List returns clients ordered by name.
func (s *ClientService) List(ctx context.Context, active *bool) ([]domain.Client, error) {
	return s.deps.Repos.Clients.List(ctx, repository.ClientFilter{Active: active})
}

// VerifySecret reports whether secret matches the stored hash of the client.
// Inactive clients never verify.
func (s *ClientService) VerifySecret(ctx context.Context, id, secret string) (bool, error) {
	client, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !client.Active {
		return false, nil
	}
	err = auth.ComparePassword(client.SecretHash, secret)
	if errors.Is(err, auth.ErrPasswordMismatch) {
		return false, nil
	}
	return err == nil, err
}

func (s *ClientService) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := s.deps.Repos.Clients.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != exceptID:
		return duplicateEmail()
	}
	return nil
}

func (s *ClientService) publishChange(ctx context.Context, actor domain.Actor, id, action string) {
	publish(ctx, s.deps, events.New(events.EventClientChanged, "", actor.UserID, s.deps.Clock(),
		events.EntityChangedPayload{ID: id, Action: action}))
}

func clientIdentity(rawName, rawEmail string) (string, string, error) {
	name := apperrors.SanitizeText(rawName)
	email := strings.TrimSpace(rawEmail)
	fields := map[string]string{}
	if name == "" {
		fields["name"] = "name is required"
	} else if tooLong(name, maxClientNameLength) {
		fields["name"] = fmt.Sprintf("name must be at most %d characters long", maxClientNameLength)
	}
	if email == "" {
		fields["email"] = "email is required"
	} else if !apperrors.ValidEmail(email) {
		fields["email"] = "email must be a valid email address"
	}
	if len(fields) > 0 {
		return "", "", apperrors.NewValidationError("invalid client", map[string]any{"fields": fields})
	}
	return name, email, nil
}

func mapClientWriteError(err error, id string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return duplicateEmail()
	}
	return mapRepoError(err, "client", id)
}

func duplicateEmail() error {
	return apperrors.NewFieldError("email", "a client with this email already exists")
}

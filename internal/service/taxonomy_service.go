package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

const maxProblemTypeNameLength = 100

// TaxonomyService manages problem types. Every mutation requires a superuser.
type TaxonomyService struct {
	deps Dependencies
}

// ProblemTypeInput describes a new problem type.
type ProblemTypeInput struct {
	Name        string
	Description string
}

// ProblemTypePatch lists editable fields. Nil fields are left unchanged.
type ProblemTypePatch struct {
	Name        *string
	Description *string
	Active      *bool
}

// NewTaxonomyService constructs the service.
func NewTaxonomyService(deps Dependencies) *TaxonomyService {
	return &TaxonomyService{deps: deps.withDefaults()}
}

// Create adds an active problem type attributed to the acting superuser.
func (s *TaxonomyService) Create(ctx context.Context, actor domain.Actor, input ProblemTypeInput) (*domain.ProblemType, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	name, err := problemTypeName(input.Name)
	if err != nil {
		return nil, err
	}

	createdBy := actor.UserID
	pt := &domain.ProblemType{
		Name:        name,
		Description: apperrors.SanitizeText(input.Description),
		Active:      true,
		CreatedBy:   &createdBy,
	}
	if err := s.deps.Repos.ProblemTypes.Create(ctx, pt); err != nil {
		return nil, s.mapWriteError(err, "")
	}

	s.deps.Logger.Info("problem type created", zap.String("problem_type_id", pt.ID), zap.String("name", pt.Name))
	s.publishChange(ctx, actor, pt.ID, "created")
	return pt, nil
}

// Update edits name, description or the active flag.
func (s *TaxonomyService) Update(ctx context.Context, actor domain.Actor, id string, patch ProblemTypePatch) (*domain.ProblemType, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	pt, err := s.deps.Repos.ProblemTypes.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "problem type", id)
	}
	if patch.Name != nil {
		name, err := problemTypeName(*patch.Name)
		if err != nil {
			return nil, err
		}
		pt.Name = name
	}
	if patch.Description != nil {
		pt.Description = apperrors.SanitizeText(*patch.Description)
	}
	if patch.Active != nil {
		pt.Active = *patch.Active
	}
	if err := s.deps.Repos.ProblemTypes.Update(ctx, pt); err != nil {
		return nil, s.mapWriteError(err, id)
	}
	s.publishChange(ctx, actor, pt.ID, "updated")
	return pt, nil
}

// Delete removes an unreferenced problem type. Referenced types must be deactivated instead.
func (s *TaxonomyService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireSuperuser(actor); err != nil {
		return err
	}
	if _, err := s.deps.Repos.ProblemTypes.GetByID(ctx, id); err != nil {
		return mapRepoError(err, "problem type", id)
	}
	count, err := s.deps.Repos.ProblemTypes.CountTickets(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return referencedProblemType(id, count)
	}
	if err := s.deps.Repos.ProblemTypes.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return referencedProblemType(id, count)
		}
		return mapRepoError(err, "problem type", id)
	}
	s.deps.Logger.Info("problem type deleted", zap.String("problem_type_id", id))
	s.publishChange(ctx, actor, id, "deleted")
	return nil
}

// Get returns one problem type.
func (s *TaxonomyService) Get(ctx context.Context, id string) (*domain.ProblemType, error) {
	pt, err := s.deps.Repos.ProblemTypes.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "problem type", id)
	}
	return pt, nil
}

// List returns problem types ordered by name, optionally filtered by the active flag.
func (s *TaxonomyService) List(ctx context.Context, active *bool) ([]domain.ProblemType, error) {
	return s.deps.Repos.ProblemTypes.List(ctx, repository.ProblemTypeFilter{Active: active})
}

func (s *TaxonomyService) mapWriteError(err error, id string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return apperrors.NewFieldError("name", "a problem type with this name already exists")
	}
	return mapRepoError(err, "problem type", id)
}

func (s *TaxonomyService) publishChange(ctx context.Context, actor domain.Actor, id, action string) {
	publish(ctx, s.deps, events.New(events.EventProblemTypeChanged, "", actor.UserID, s.deps.Clock(),
		events.EntityChangedPayload{ID: id, Action: action}))
}

func problemTypeName(raw string) (string, error) {
	name := apperrors.SanitizeText(raw)
	if name == "" {
		return "", apperrors.NewFieldError("name", "name is required")
	}
	if tooLong(name, maxProblemTypeNameLength) {
		return "", apperrors.NewFieldError("name",
			fmt.Sprintf("name must be at most %d characters long", maxProblemTypeNameLength))
	}
	return name, nil
}

func referencedProblemType(id string, tickets int) error {
	return apperrors.NewReferentialIntegrity("problem type is referenced by tickets; deactivate it instead",
		map[string]any{"id": id, "tickets": tickets})
}

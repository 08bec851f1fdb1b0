package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/money"
	"github.com/costwise/costwise/pkg/user"
)

type Service interface {
	CreateProject(ctx context.Context, project Project) (Project, error)
	GetProject(ctx context.Context, uid string) (Project, error)
	ListProjects(ctx context.Context, includeArchived bool) ([]Project, error)
	UpdateProject(ctx context.Context, project Project) (Project, error)
	ArchiveProject(ctx context.Context, uid string) error
	RestoreProject(ctx context.Context, uid string) error
}

type ServiceImpl struct {
	repo  Repository
	clock utils.Clock
}

func NewProjectService(repo Repository, clock utils.Clock) Service {
	return &ServiceImpl{repo: repo, clock: clock}
}

func (s *ServiceImpl) CreateProject(ctx context.Context, project Project) (Project, error) {
	currentUser, err := user.CurrentUser(ctx)
	if err != nil {
		return Project{}, fmt.Errorf("failed to get current user: %w", err)
	}

	if project.Currency == "" {
		project.Currency = currentUser.Settings.Currency
	}
	if !money.ValidCurrency(project.Currency) {
		return Project{}, ErrInvalidCurrency
	}

	project.Uid = uuid.New().String()
	project.Status = StatusActive
	project.CreatedAt = s.clock.Now()
	return s.repo.CreateProject(ctx, currentUser.Id, project)
}

func (s *ServiceImpl) GetProject(ctx context.Context, uid string) (Project, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Project{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetProject(ctx, userId, uid)
}

func (s *ServiceImpl) ListProjects(ctx context.Context, includeArchived bool) ([]Project, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.ListProjects(ctx, userId, includeArchived)
}

func (s *ServiceImpl) UpdateProject(ctx context.Context, project Project) (Project, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Project{}, fmt.Errorf("failed to get current user: %w", err)
	}

	existing, err := s.repo.GetProject(ctx, userId, project.Uid)
	if err != nil {
		return Project{}, err
	}
	if existing.Status == StatusArchived {
		return Project{}, ErrProjectArchived
	}
	if project.Currency == "" {
		project.Currency = existing.Currency
	}
	if !money.ValidCurrency(project.Currency) {
		return Project{}, ErrInvalidCurrency
	}
	return s.repo.UpdateProject(ctx, userId, project)
}

func (s *ServiceImpl) ArchiveProject(ctx context.Context, uid string) error {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.SetStatus(ctx, userId, uid, StatusArchived)
}

func (s *ServiceImpl) RestoreProject(ctx context.Context, uid string) error {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.SetStatus(ctx, userId, uid, StatusActive)
}

package project

import (
	"context"
)

type RepositoryStub struct {
	data map[string]Project
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{data: map[string]Project{}}
}

func (s *RepositoryStub) Cleanup() {
	s.data = map[string]Project{}
}

func (s *RepositoryStub) CreateProject(_ context.Context, _ string, project Project) (Project, error) {
	s.data[project.Uid] = project
	return project, nil
}

func (s *RepositoryStub) GetProject(_ context.Context, _ string, uid string) (Project, error) {
	project, ok := s.data[uid]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return project, nil
}

func (s *RepositoryStub) ListProjects(_ context.Context, _ string, includeArchived bool) ([]Project, error) {
	projects := make([]Project, 0, len(s.data))
	for _, project := range s.data {
		if !includeArchived && project.Status == StatusArchived {
			continue
		}
		projects = append(projects, project)
	}
	return projects, nil
}

func (s *RepositoryStub) UpdateProject(_ context.Context, _ string, project Project) (Project, error) {
	existing, ok := s.data[project.Uid]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	project.Status = existing.Status
	project.CreatedAt = existing.CreatedAt
	s.data[project.Uid] = project
	return project, nil
}

func (s *RepositoryStub) SetStatus(_ context.Context, _ string, uid string, status Status) error {
	project, ok := s.data[uid]
	if !ok {
		return ErrProjectNotFound
	}
	project.Status = status
	s.data[uid] = project
	return nil
}

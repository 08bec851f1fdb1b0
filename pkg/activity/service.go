package activity

import (
	"context"
	"fmt"

	"github.com/costwise/costwise/pkg/user"
)

// Feeds are paged by a single limit; these bound what a request can ask for.
const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service interface {
	// ListEntries returns the newest activity of a project, newest first.
	// A non-positive limit falls back to the default page size.
	ListEntries(ctx context.Context, projectUid string, limit int) ([]Entry, error)
}

type ServiceImpl struct {
	repo Repository
}

func NewActivityService(repo Repository) *ServiceImpl {
	return &ServiceImpl{repo: repo}
}

func (s *ServiceImpl) ListEntries(ctx context.Context, projectUid string, limit int) ([]Entry, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.repo.ListEntries(ctx, userId, projectUid, limit)
}

package variation

import (
	"context"
	"sort"

	"github.com/costwise/costwise/pkg/money"
)

// RepositoryStub is an in-memory Repository for service tests.
type RepositoryStub struct {
	variations map[string]Variation
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{variations: make(map[string]Variation)}
}

func (r *RepositoryStub) Cleanup() {
	r.variations = make(map[string]Variation)
}

func (r *RepositoryStub) CreateVariation(_ context.Context, _ string, variation Variation) (Variation, error) {
	r.variations[variation.Uid] = variation
	return variation, nil
}

func (r *RepositoryStub) GetVariation(_ context.Context, _ string, uid string) (Variation, error) {
	variation, ok := r.variations[uid]
	if !ok {
		return Variation{}, ErrVariationNotFound
	}
	return variation, nil
}

func (r *RepositoryStub) ListVariations(_ context.Context, _ string, projectUid string, status Status) ([]Variation, error) {
	variations := make([]Variation, 0)
	for _, variation := range r.variations {
		if variation.ProjectUid != projectUid {
			continue
		}
		if status != "" && variation.Status != status {
			continue
		}
		variations = append(variations, variation)
	}
	sort.Slice(variations, func(i, j int) bool {
		return variations[i].Number < variations[j].Number
	})
	return variations, nil
}

func (r *RepositoryStub) UpdateVariation(_ context.Context, _ string, variation Variation) (Variation, error) {
	current, ok := r.variations[variation.Uid]
	if !ok {
		return Variation{}, ErrVariationNotFound
	}
	current.CostLineUid = variation.CostLineUid
	current.Title = variation.Title
	current.Detail = variation.Detail
	current.Category = variation.Category
	current.Amount = variation.Amount
	current.MatchScore = variation.MatchScore
	current.MatchMethod = variation.MatchMethod
	r.variations[variation.Uid] = current
	return current, nil
}

func (r *RepositoryStub) UpdateStatus(_ context.Context, _ string, variation Variation) error {
	current, ok := r.variations[variation.Uid]
	if !ok {
		return ErrVariationNotFound
	}
	current.Status = variation.Status
	current.SubmittedAt = variation.SubmittedAt
	current.DecidedAt = variation.DecidedAt
	r.variations[variation.Uid] = current
	return nil
}

func (r *RepositoryStub) DeleteVariation(_ context.Context, _ string, uid string) (bool, error) {
	if _, ok := r.variations[uid]; !ok {
		return false, nil
	}
	delete(r.variations, uid)
	return true, nil
}

func (r *RepositoryStub) NextNumber(_ context.Context, _ string, projectUid string) (int, error) {
	next := 1
	for _, variation := range r.variations {
		if variation.ProjectUid == projectUid && variation.Number >= next {
			next = variation.Number + 1
		}
	}
	return next, nil
}

func (r *RepositoryStub) ApprovedTotalsByLine(_ context.Context, _ string, projectUid string) (map[string]money.Cents, error) {
	totals := make(map[string]money.Cents)
	for _, variation := range r.variations {
		if variation.ProjectUid == projectUid && variation.Status == StatusApproved {
			totals[variation.CostLineUid] += variation.Amount
		}
	}
	return totals, nil
}

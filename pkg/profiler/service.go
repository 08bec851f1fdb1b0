package profiler

import (
	"context"
	"fmt"
	"sort"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/money"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
)

type Service interface {
	GetProfile(ctx context.Context, projectUid string) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) (Profile, error)
	Estimate(ctx context.Context, projectUid string) (Estimate, error)
	Catalog() Catalog
}

type ServiceImpl struct {
	repo    Repository
	catalog *CatalogStore
	clock   utils.Clock
}

func NewProfilerService(repo Repository, catalog *CatalogStore, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, catalog: catalog, clock: clock}
}

func (s *ServiceImpl) GetProfile(ctx context.Context, projectUid string) (Profile, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetByProject(ctx, userId, projectUid)
}

// UpsertProfile validates the profile against the current catalog and writes
// it. A project keeps a single profile, repeated writes replace it.
func (s *ServiceImpl) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if profile.GrossFloorArea <= 0 || profile.Storeys < 1 {
		return Profile{}, ErrProfileInvalid
	}

	catalog := s.catalog.Catalog()
	if _, err := catalog.Rate(profile.Class, profile.Subclass); err != nil {
		return Profile{}, err
	}
	for _, factor := range sortedFactors(profile.Complexity) {
		if _, err := catalog.FactorBp(factor, profile.Complexity[factor]); err != nil {
			return Profile{}, err
		}
	}

	profile.Uid = uuid.New().String()
	profile.UpdatedAt = s.clock.Now()
	return s.repo.UpsertProfile(ctx, userId, profile)
}

// Estimate costs the project's profile against the current catalog. The
// profile was validated when written, but the catalog may have changed
// since, so lookups can still fail here.
func (s *ServiceImpl) Estimate(ctx context.Context, projectUid string) (Estimate, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to get current user: %w", err)
	}
	profile, err := s.repo.GetByProject(ctx, userId, projectUid)
	if err != nil {
		return Estimate{}, err
	}

	catalog := s.catalog.Catalog()
	rate, err := catalog.Rate(profile.Class, profile.Subclass)
	if err != nil {
		return Estimate{}, err
	}
	base := money.Cents(int64(profile.GrossFloorArea) * int64(rate))

	// Multipliers apply in a fixed order, storey band first and then the
	// factors by name, so an estimate is reproducible for a given catalog.
	storeyBp := catalog.StoreyBp(profile.Storeys)
	total := applyBp(base, storeyBp)
	complexityBp := make(map[string]int, len(profile.Complexity))
	for _, factor := range sortedFactors(profile.Complexity) {
		bp, err := catalog.FactorBp(factor, profile.Complexity[factor])
		if err != nil {
			return Estimate{}, err
		}
		complexityBp[factor] = bp
		total = applyBp(total, bp)
	}

	rows, weights := catalog.SectionRows()
	plan, err := allocation.WeightedSplit(rows, weights)
	if err != nil {
		return Estimate{}, err
	}
	sections, err := allocation.Amounts(plan, total)
	if err != nil {
		return Estimate{}, err
	}

	return Estimate{
		ProjectUid:     projectUid,
		Class:          profile.Class,
		Subclass:       profile.Subclass,
		GrossFloorArea: profile.GrossFloorArea,
		Storeys:        profile.Storeys,
		BaseRate:       rate,
		Base:           base,
		StoreyBp:       storeyBp,
		ComplexityBp:   complexityBp,
		Total:          total,
		Plan:           plan,
		Sections:       sections,
	}, nil
}

func (s *ServiceImpl) Catalog() Catalog {
	return s.catalog.Catalog()
}

// applyBp scales an amount by a basis point multiplier, rounding half up.
func applyBp(v money.Cents, bp int) money.Cents {
	return money.Cents((int64(v)*int64(bp) + neutralBp/2) / neutralBp)
}

func sortedFactors(complexity map[string]string) []string {
	factors := make([]string, 0, len(complexity))
	for factor := range complexity {
		factors = append(factors, factor)
	}
	sort.Strings(factors)
	return factors
}

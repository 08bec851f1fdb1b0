package variation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/test_utils"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
)

func setupRepositoryTest(t *testing.T) (*RepositoryImpl, *sql.DB, context.Context, string) {
	db := test_utils.SetupTestDB(t)
	repository := NewVariationRepo(db)
	return repository, db, context.Background(), "11111111-1111-1111-1111-111111111111"
}

func seedProject(t *testing.T, db *sql.DB, userId string) string {
	t.Helper()
	uid := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO projects (uid, user_id, name, currency, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		uid, userId, "Test Project", "AUD", "active", "2026-01-05T08:00:00Z",
	)
	require.NoError(t, err)
	return uid
}

func seedCostLine(t *testing.T, db *sql.DB, userId string, projectUid string) string {
	t.Helper()
	uid := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO cost_lines (uid, user_id, project_uid, section, activity, position, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uid, userId, projectUid, "Substructure", "Bulk excavation", 100,
		"2026-01-05T08:00:00Z", "2026-01-05T08:00:00Z",
	)
	require.NoError(t, err)
	return uid
}

func newStoredVariation(projectUid string, costLineUid string, number int) Variation {
	return Variation{
		Uid:         uuid.NewString(),
		ProjectUid:  projectUid,
		CostLineUid: costLineUid,
		Number:      number,
		Title:       "Rock encountered in footing excavation",
		Detail:      "Geotech report attached",
		Category:    CategorySiteCondition,
		Amount:      250000,
		Status:      StatusDraft,
		MatchScore:  0.87,
		MatchMethod: match.MethodFuzzy,
		CreatedAt:   time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
	}
}

func TestRepositoryImpl_CreateVariation(t *testing.T) {
	t.Run("should store a linked variation and read it back unchanged", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)
		costLineUid := seedCostLine(t, db, userId, projectUid)

		// Given
		variation := newStoredVariation(projectUid, costLineUid, 1)

		// When
		_, err := repository.CreateVariation(ctx, userId, variation)
		require.NoError(t, err)
		fetched, err := repository.GetVariation(ctx, userId, variation.Uid)

		// Then
		require.NoError(t, err)
		assert.Equal(t, variation, fetched)
	})

	t.Run("should keep an unlinked variation unlinked", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		variation := newStoredVariation(projectUid, "", 1)

		// When
		_, err := repository.CreateVariation(ctx, userId, variation)
		require.NoError(t, err)
		fetched, err := repository.GetVariation(ctx, userId, variation.Uid)

		// Then
		require.NoError(t, err)
		assert.Empty(t, fetched.CostLineUid)
	})

	t.Run("should return ErrVariationNotFound for an unknown uid", func(t *testing.T) {
		repository, _, ctx, userId := setupRepositoryTest(t)

		// When
		_, err := repository.GetVariation(ctx, userId, uuid.NewString())

		// Then
		assert.ErrorIs(t, err, ErrVariationNotFound)
	})
}

func TestRepositoryImpl_ListVariations(t *testing.T) {
	t.Run("should list by number and filter by status", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		second := newStoredVariation(projectUid, "", 2)
		first := newStoredVariation(projectUid, "", 1)
		first.Status = StatusSubmitted
		first.SubmittedAt = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
		for _, variation := range []Variation{second, first} {
			_, err := repository.CreateVariation(ctx, userId, variation)
			require.NoError(t, err)
		}

		// When
		all, err := repository.ListVariations(ctx, userId, projectUid, "")
		require.NoError(t, err)
		submitted, err := repository.ListVariations(ctx, userId, projectUid, StatusSubmitted)
		require.NoError(t, err)

		// Then
		require.Len(t, all, 2)
		assert.Equal(t, []Variation{first, second}, all)
		require.Len(t, submitted, 1)
		assert.Equal(t, first.Uid, submitted[0].Uid)
	})
}

func TestRepositoryImpl_UpdateStatus(t *testing.T) {
	t.Run("should persist the transition timestamps", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		variation := newStoredVariation(projectUid, "", 1)
		_, err := repository.CreateVariation(ctx, userId, variation)
		require.NoError(t, err)

		variation.Status = StatusSubmitted
		variation.SubmittedAt = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

		// When
		err = repository.UpdateStatus(ctx, userId, variation)

		// Then
		require.NoError(t, err)
		fetched, err := repository.GetVariation(ctx, userId, variation.Uid)
		require.NoError(t, err)
		assert.Equal(t, StatusSubmitted, fetched.Status)
		assert.Equal(t, variation.SubmittedAt, fetched.SubmittedAt)
		assert.True(t, fetched.DecidedAt.IsZero())
	})

	t.Run("should clear timestamps on reopen", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		variation := newStoredVariation(projectUid, "", 1)
		variation.Status = StatusRejected
		variation.SubmittedAt = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
		variation.DecidedAt = time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
		_, err := repository.CreateVariation(ctx, userId, variation)
		require.NoError(t, err)

		variation.Status = StatusDraft
		variation.SubmittedAt = time.Time{}
		variation.DecidedAt = time.Time{}

		// When
		err = repository.UpdateStatus(ctx, userId, variation)

		// Then
		require.NoError(t, err)
		fetched, err := repository.GetVariation(ctx, userId, variation.Uid)
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, fetched.Status)
		assert.True(t, fetched.SubmittedAt.IsZero())
		assert.True(t, fetched.DecidedAt.IsZero())
	})
}

func TestRepositoryImpl_NextNumber(t *testing.T) {
	t.Run("should start at one and count per project", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)
		otherProjectUid := seedProject(t, db, userId)

		// Given
		next, err := repository.NextNumber(ctx, userId, projectUid)
		require.NoError(t, err)
		assert.Equal(t, 1, next)

		_, err = repository.CreateVariation(ctx, userId, newStoredVariation(projectUid, "", 1))
		require.NoError(t, err)
		_, err = repository.CreateVariation(ctx, userId, newStoredVariation(projectUid, "", 2))
		require.NoError(t, err)

		// When / Then
		next, err = repository.NextNumber(ctx, userId, projectUid)
		require.NoError(t, err)
		assert.Equal(t, 3, next)

		next, err = repository.NextNumber(ctx, userId, otherProjectUid)
		require.NoError(t, err)
		assert.Equal(t, 1, next)
	})
}

func TestRepositoryImpl_ApprovedTotalsByLine(t *testing.T) {
	t.Run("should sum approved amounts per line and skip the rest", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)
		lineA := seedCostLine(t, db, userId, projectUid)
		lineB := seedCostLine(t, db, userId, projectUid)

		// Given
		approvedOnA := newStoredVariation(projectUid, lineA, 1)
		approvedOnA.Status = StatusApproved
		approvedOnA.Amount = 100000
		alsoOnA := newStoredVariation(projectUid, lineA, 2)
		alsoOnA.Status = StatusApproved
		alsoOnA.Amount = -20000
		approvedOnB := newStoredVariation(projectUid, lineB, 3)
		approvedOnB.Status = StatusApproved
		approvedOnB.Amount = 50000
		pending := newStoredVariation(projectUid, lineA, 4)
		pending.Amount = 999999
		for _, variation := range []Variation{approvedOnA, alsoOnA, approvedOnB, pending} {
			_, err := repository.CreateVariation(ctx, userId, variation)
			require.NoError(t, err)
		}

		// When
		totals, err := repository.ApprovedTotalsByLine(ctx, userId, projectUid)

		// Then
		require.NoError(t, err)
		assert.Equal(t, map[string]money.Cents{
			lineA: 80000,
			lineB: 50000,
		}, totals)
	})

	t.Run("should report amounts of a deleted line under the empty key", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)
		lineA := seedCostLine(t, db, userId, projectUid)

		// Given
		approved := newStoredVariation(projectUid, lineA, 1)
		approved.Status = StatusApproved
		approved.Amount = 75000
		_, err := repository.CreateVariation(ctx, userId, approved)
		require.NoError(t, err)

		_, err = db.Exec(`DELETE FROM cost_lines WHERE uid = $1`, lineA)
		require.NoError(t, err)

		// When
		totals, err := repository.ApprovedTotalsByLine(ctx, userId, projectUid)

		// Then
		require.NoError(t, err)
		assert.Equal(t, map[string]money.Cents{"": 75000}, totals)
	})
}

func TestRepositoryImpl_DeleteVariation(t *testing.T) {
	t.Run("should delete and report a missing row", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		variation := newStoredVariation(projectUid, "", 1)
		_, err := repository.CreateVariation(ctx, userId, variation)
		require.NoError(t, err)

		// When / Then
		deleted, err := repository.DeleteVariation(ctx, userId, variation.Uid)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repository.DeleteVariation(ctx, userId, variation.Uid)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

package profiler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/test_utils"
)

func setupRepositoryTest(t *testing.T) (*RepositoryImpl, *sql.DB, context.Context, string) {
	db := test_utils.SetupTestDB(t)
	repository := NewProfileRepo(db)
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

func newStoredProfile(projectUid string) Profile {
	return Profile{
		Uid:            uuid.NewString(),
		ProjectUid:     projectUid,
		Class:          "residential",
		Subclass:       "apartments_midrise",
		GrossFloorArea: 1200,
		Storeys:        6,
		Complexity:     map[string]string{"ground_conditions": "rock", "site_access": "open"},
		UpdatedAt:      time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
	}
}

func TestRepositoryImpl_UpsertProfile(t *testing.T) {
	t.Run("should store a profile and read it back unchanged", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		profile := newStoredProfile(projectUid)

		// When
		saved, err := repository.UpsertProfile(ctx, userId, profile)

		// Then
		require.NoError(t, err)
		assert.Equal(t, profile, saved)
		fetched, err := repository.GetByProject(ctx, userId, projectUid)
		require.NoError(t, err)
		assert.Equal(t, profile, fetched)
	})

	t.Run("should replace the existing profile of a project in place", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		first := newStoredProfile(projectUid)
		_, err := repository.UpsertProfile(ctx, userId, first)
		require.NoError(t, err)

		second := newStoredProfile(projectUid)
		second.Subclass = "apartments_highrise"
		second.Storeys = 14
		second.Complexity = map[string]string{"site_access": "cbd"}
		second.UpdatedAt = time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)

		// When
		saved, err := repository.UpsertProfile(ctx, userId, second)

		// Then
		require.NoError(t, err)
		assert.Equal(t, first.Uid, saved.Uid)
		assert.Equal(t, "apartments_highrise", saved.Subclass)
		assert.Equal(t, 14, saved.Storeys)
		assert.Equal(t, second.Complexity, saved.Complexity)
		assert.Equal(t, second.UpdatedAt, saved.UpdatedAt)

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM building_profiles WHERE project_uid = $1`, projectUid).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("should keep an empty complexity map as nil", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		profile := newStoredProfile(projectUid)
		profile.Complexity = nil

		// When
		_, err := repository.UpsertProfile(ctx, userId, profile)
		require.NoError(t, err)
		fetched, err := repository.GetByProject(ctx, userId, projectUid)

		// Then
		require.NoError(t, err)
		assert.Nil(t, fetched.Complexity)
	})
}

func TestRepositoryImpl_GetByProject(t *testing.T) {
	t.Run("should return ErrProfileNotFound for a project without a profile", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// When
		_, err := repository.GetByProject(ctx, userId, projectUid)

		// Then
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})

	t.Run("should not leak profiles of other users", func(t *testing.T) {
		repository, db, ctx, userId := setupRepositoryTest(t)
		projectUid := seedProject(t, db, userId)

		// Given
		_, err := repository.UpsertProfile(ctx, userId, newStoredProfile(projectUid))
		require.NoError(t, err)

		// When
		_, err = repository.GetByProject(ctx, "22222222-2222-2222-2222-222222222222", projectUid)

		// Then
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

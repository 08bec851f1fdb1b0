package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/user"
)

const testProjectUid = "6a3d8b1e-0000-0000-0000-000000000001"

var testUser = user.User{
	Id:          "11111111-1111-1111-1111-111111111111",
	Username:    "planner",
	DisplayName: "Planner",
	Settings: user.Settings{
		Timezone: "Australia/Sydney",
		Currency: "AUD",
	},
}

var ctx = user.WithUser(context.Background(), testUser)

var repoStub = NewRepositoryStub()
var clock = &utils.MockClock{FixedNow: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
var service Service

func setup(t *testing.T) func() {
	service = NewProfilerService(repoStub, NewCatalogStoreOf(testCatalog()), clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Cleanup()
	}
}

func apartmentProfile() Profile {
	return Profile{
		ProjectUid:     testProjectUid,
		Class:          "residential",
		Subclass:       "apartments",
		GrossFloorArea: 1200,
		Storeys:        6,
		Complexity:     map[string]string{"ground": "rock", "access": "open"},
	}
}

func TestServiceImpl_UpsertProfile(t *testing.T) {
	t.Run("should create a profile for a project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		saved, err := service.UpsertProfile(ctx, apartmentProfile())

		// then
		require.NoError(t, err)
		assert.NotEmpty(t, saved.Uid)
		assert.Equal(t, clock.FixedNow, saved.UpdatedAt)
	})

	t.Run("should keep a single profile per project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		first, err := service.UpsertProfile(ctx, apartmentProfile())
		require.NoError(t, err)

		// when
		changed := apartmentProfile()
		changed.Storeys = 10
		second, err := service.UpsertProfile(ctx, changed)

		// then
		require.NoError(t, err)
		assert.Equal(t, first.Uid, second.Uid)
		assert.Equal(t, 10, second.Storeys)
	})

	t.Run("should reject an unknown class and list the valid ones", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		profile := apartmentProfile()
		profile.Class = "education"
		_, err := service.UpsertProfile(ctx, profile)

		// then
		assert.ErrorIs(t, err, ErrUnknownClass)
		assert.ErrorContains(t, err, "valid classes: industrial, residential")
	})

	t.Run("should reject an unknown subclass", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		profile := apartmentProfile()
		profile.Subclass = "villa"
		_, err := service.UpsertProfile(ctx, profile)

		// then
		assert.ErrorIs(t, err, ErrUnknownSubclass)
	})

	t.Run("should reject unknown complexity selections", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when / then
		profile := apartmentProfile()
		profile.Complexity = map[string]string{"weather": "wet"}
		_, err := service.UpsertProfile(ctx, profile)
		assert.ErrorIs(t, err, ErrUnknownFactor)

		profile.Complexity = map[string]string{"ground": "swamp"}
		_, err = service.UpsertProfile(ctx, profile)
		assert.ErrorIs(t, err, ErrUnknownOption)
		assert.ErrorContains(t, err, "valid options: rock, stable")
	})

	t.Run("should require a positive floor area and storey count", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when / then
		profile := apartmentProfile()
		profile.GrossFloorArea = 0
		_, err := service.UpsertProfile(ctx, profile)
		assert.ErrorIs(t, err, ErrProfileInvalid)

		profile = apartmentProfile()
		profile.Storeys = 0
		_, err = service.UpsertProfile(ctx, profile)
		assert.ErrorIs(t, err, ErrProfileInvalid)
	})
}

func TestServiceImpl_Estimate(t *testing.T) {
	t.Run("should cost the profile with storey and complexity multipliers", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given 1200 m2 of apartments over 6 storeys on rock
		_, err := service.UpsertProfile(ctx, apartmentProfile())
		require.NoError(t, err)

		// when
		estimate, err := service.Estimate(ctx, testProjectUid)

		// then
		require.NoError(t, err)
		assert.EqualValues(t, 285000, estimate.BaseRate)
		assert.EqualValues(t, 342000000, estimate.Base)
		assert.Equal(t, 10800, estimate.StoreyBp)
		assert.Equal(t, map[string]int{"access": 10000, "ground": 11200}, estimate.ComplexityBp)
		assert.EqualValues(t, 413683200, estimate.Total)

		assert.Equal(t, []allocation.Row{
			{Key: "substructure", Label: "Substructure", Tenths: 100},
			{Key: "superstructure", Label: "Superstructure", Tenths: 550},
			{Key: "services", Label: "Services", Tenths: 350},
		}, estimate.Plan.Rows)
		assert.Equal(t, []allocation.LineAmount{
			{Key: "substructure", Amount: 41368320},
			{Key: "superstructure", Amount: 227525760},
			{Key: "services", Amount: 144789120},
		}, estimate.Sections)
	})

	t.Run("should hand rounding residue to the largest remainders", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given a catalog priced so the total does not split evenly
		catalog := testCatalog()
		catalog.Classes["residential"].Subclasses["house"] = Subclass{Label: "Detached house", BaseRate: 143}
		oddService := NewProfilerService(repoStub, NewCatalogStoreOf(catalog), clock)

		profile := apartmentProfile()
		profile.Subclass = "house"
		profile.GrossFloorArea = 7
		profile.Storeys = 1
		profile.Complexity = nil
		_, err := oddService.UpsertProfile(ctx, profile)
		require.NoError(t, err)

		// when
		estimate, err := oddService.Estimate(ctx, testProjectUid)

		// then
		require.NoError(t, err)
		assert.EqualValues(t, 1001, estimate.Total)
		assert.Equal(t, []allocation.LineAmount{
			{Key: "substructure", Amount: 100},
			{Key: "superstructure", Amount: 551},
			{Key: "services", Amount: 350},
		}, estimate.Sections)
	})

	t.Run("should fail when the catalog no longer knows the profile", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given a profile written under an older catalog
		_, err := repoStub.UpsertProfile(ctx, testUser.Id, Profile{
			Uid:            "profile-1",
			ProjectUid:     testProjectUid,
			Class:          "demolition",
			Subclass:       "teardown",
			GrossFloorArea: 500,
			Storeys:        1,
		})
		require.NoError(t, err)

		// when
		_, err = service.Estimate(ctx, testProjectUid)

		// then
		assert.ErrorIs(t, err, ErrUnknownClass)
	})

	t.Run("should error for a project without a profile", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.Estimate(ctx, testProjectUid)

		// then
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

func TestApplyBp(t *testing.T) {
	assert.EqualValues(t, 11, applyBp(10, 10500))
	assert.EqualValues(t, 9, applyBp(9, 10500))
	assert.EqualValues(t, 15, applyBp(15, 10333))
	assert.EqualValues(t, 16, applyBp(15, 10334))
	assert.EqualValues(t, 342000000, applyBp(342000000, 10000))
}

package variation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
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
var eventBus *event_bus.EventBus
var clock = &utils.MockClock{FixedNow: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
var service Service

func setup(t *testing.T) func() {
	eventBus = event_bus.NewEventBus()
	service = NewVariationService(repoStub, eventBus, clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Cleanup()
	}
}

func draftVariation(t *testing.T, title string, costLineUid string) Variation {
	t.Helper()
	created, err := service.CreateVariation(ctx, Variation{
		ProjectUid:  testProjectUid,
		CostLineUid: costLineUid,
		Title:       title,
		Category:    CategorySiteCondition,
		Amount:      250000,
	})
	require.NoError(t, err)
	return created
}

func TestVariation_Code(t *testing.T) {
	assert.Equal(t, "VO-007", Variation{Number: 7}.Code())
	assert.Equal(t, "VO-042", Variation{Number: 42}.Code())
	assert.Equal(t, "VO-120", Variation{Number: 120}.Code())
}

func TestServiceImpl_CreateVariation(t *testing.T) {
	t.Run("should create a draft with the next number of the project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		first := draftVariation(t, "Rock encountered in footing excavation", "")
		second := draftVariation(t, "Additional blockwork to stair core", "")

		// then
		assert.NotEmpty(t, first.Uid)
		assert.Equal(t, 1, first.Number)
		assert.Equal(t, 2, second.Number)
		assert.Equal(t, StatusDraft, first.Status)
		assert.Equal(t, clock.FixedNow, first.CreatedAt)
		assert.True(t, first.SubmittedAt.IsZero())
	})

	t.Run("should number each project independently", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		draftVariation(t, "Rock encountered", "")

		// when
		other, err := service.CreateVariation(ctx, Variation{
			ProjectUid: "6a3d8b1e-0000-0000-0000-000000000002",
			Title:      "Awning redesign",
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, other.Number)
	})

	t.Run("should default the category and match method", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		created, err := service.CreateVariation(ctx, Variation{ProjectUid: testProjectUid, Title: "Awning redesign"})

		// then
		require.NoError(t, err)
		assert.Equal(t, CategoryOther, created.Category)
		assert.Equal(t, match.MethodNone, created.MatchMethod)
	})

	t.Run("should reject an unknown category", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.CreateVariation(ctx, Variation{
			ProjectUid: testProjectUid,
			Title:      "Awning redesign",
			Category:   "weather",
		})

		// then
		assert.ErrorIs(t, err, ErrInvalidCategory)
	})
}

func TestServiceImpl_UpdateVariation(t *testing.T) {
	t.Run("should edit a draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")
		created.Title = "Rock encountered in footing excavation"
		created.Amount = 310000

		// when
		updated, err := service.UpdateVariation(ctx, created)

		// then
		require.NoError(t, err)
		assert.Equal(t, "Rock encountered in footing excavation", updated.Title)
		assert.Equal(t, money.Cents(310000), updated.Amount)
	})

	t.Run("should record a changed link as a manual match", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")
		created.CostLineUid = "line-1"

		// when
		updated, err := service.UpdateVariation(ctx, created)

		// then
		require.NoError(t, err)
		assert.Equal(t, match.MethodManual, updated.MatchMethod)
		assert.Equal(t, 0.0, updated.MatchScore)
	})

	t.Run("should keep the match record when the link is unchanged", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created, err := service.CreateVariation(ctx, Variation{
			ProjectUid:  testProjectUid,
			CostLineUid: "line-1",
			Title:       "Rock encountered",
			MatchScore:  0.91,
			MatchMethod: match.MethodFuzzy,
		})
		require.NoError(t, err)
		created.Detail = "Confirmed by geotech report"

		// when
		updated, err := service.UpdateVariation(ctx, created)

		// then
		require.NoError(t, err)
		assert.Equal(t, match.MethodFuzzy, updated.MatchMethod)
		assert.Equal(t, 0.91, updated.MatchScore)
	})

	t.Run("should refuse edits once submitted", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)
		created.Amount = 1

		// when
		_, err = service.UpdateVariation(ctx, created)

		// then
		assert.ErrorIs(t, err, ErrNotDraft)
	})

	t.Run("should return ErrVariationNotFound for an unknown variation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.UpdateVariation(ctx, Variation{Uid: "missing", Title: "x"})

		// then
		assert.ErrorIs(t, err, ErrVariationNotFound)
	})
}

func TestServiceImpl_Transitions(t *testing.T) {
	t.Run("should submit a draft and stamp the submission time", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")

		// when
		submitted, err := service.Submit(ctx, created.Uid)

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusSubmitted, submitted.Status)
		assert.Equal(t, clock.FixedNow, submitted.SubmittedAt)
	})

	t.Run("should not submit twice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)

		// when
		_, err = service.Submit(ctx, created.Uid)

		// then
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("should approve a linked submitted variation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "line-1")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)

		// when
		approved, err := service.Approve(ctx, created.Uid)

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, approved.Status)
		assert.Equal(t, clock.FixedNow, approved.DecidedAt)
	})

	t.Run("should refuse to approve an unlinked variation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)

		// when
		_, err = service.Approve(ctx, created.Uid)

		// then
		assert.ErrorIs(t, err, ErrUnlinked)
	})

	t.Run("should not approve a draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "line-1")

		// when
		_, err := service.Approve(ctx, created.Uid)

		// then
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("should treat approved as terminal", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "line-1")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)
		_, err = service.Approve(ctx, created.Uid)
		require.NoError(t, err)

		// when / then
		_, err = service.Reject(ctx, created.Uid)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = service.Reopen(ctx, created.Uid)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("should reopen a rejected variation as a clean draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "line-1")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)
		rejected, err := service.Reject(ctx, created.Uid)
		require.NoError(t, err)
		assert.Equal(t, clock.FixedNow, rejected.DecidedAt)

		// when
		reopened, err := service.Reopen(ctx, created.Uid)

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, reopened.Status)
		assert.True(t, reopened.SubmittedAt.IsZero())
		assert.True(t, reopened.DecidedAt.IsZero())
	})

	t.Run("should publish every status change", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "line-1")
		var published []event_bus.VariationStatusChanged
		event_bus.SubscribeTyped(eventBus, "variation.status.changed", func(e event_bus.EventT[event_bus.VariationStatusChanged]) error {
			published = append(published, e.Data)
			return nil
		})

		// when
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)
		_, err = service.Approve(ctx, created.Uid)
		require.NoError(t, err)

		// then
		require.Len(t, published, 2)
		assert.Equal(t, "VO-001", published[0].Number)
		assert.Equal(t, "draft", published[0].OldStatus)
		assert.Equal(t, "submitted", published[0].NewStatus)
		assert.Equal(t, "submitted", published[1].OldStatus)
		assert.Equal(t, "approved", published[1].NewStatus)
		assert.Equal(t, money.Cents(250000), published[1].Amount)
		assert.Equal(t, "line-1", published[1].CostLineUid)
	})
}

func TestServiceImpl_DeleteVariation(t *testing.T) {
	t.Run("should delete a draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "")

		// when
		deleted, err := service.DeleteVariation(ctx, created.Uid)

		// then
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("should refuse to delete an approved variation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := draftVariation(t, "Rock encountered", "line-1")
		_, err := service.Submit(ctx, created.Uid)
		require.NoError(t, err)
		_, err = service.Approve(ctx, created.Uid)
		require.NoError(t, err)

		// when
		_, err = service.DeleteVariation(ctx, created.Uid)

		// then
		assert.ErrorIs(t, err, ErrApprovedImmutable)
	})

	t.Run("should return ErrVariationNotFound for an unknown variation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.DeleteVariation(ctx, "missing")

		// then
		assert.ErrorIs(t, err, ErrVariationNotFound)
	})
}

func TestServiceImpl_ListVariations(t *testing.T) {
	t.Run("should list variations in number order, optionally by status", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		first := draftVariation(t, "Rock encountered", "line-1")
		second := draftVariation(t, "Additional blockwork", "")
		_, err := service.Submit(ctx, first.Uid)
		require.NoError(t, err)

		// when
		all, err := service.ListVariations(ctx, testProjectUid, "")
		require.NoError(t, err)
		drafts, err := service.ListVariations(ctx, testProjectUid, StatusDraft)
		require.NoError(t, err)

		// then
		require.Len(t, all, 2)
		assert.Equal(t, first.Uid, all[0].Uid)
		assert.Equal(t, second.Uid, all[1].Uid)
		require.Len(t, drafts, 1)
		assert.Equal(t, second.Uid, drafts[0].Uid)
	})
}

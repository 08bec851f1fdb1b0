package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/match"
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
	service = NewInvoiceService(repoStub, eventBus, clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Cleanup()
	}
}

func marchInvoice(t *testing.T, reference string, costLineUid string) Invoice {
	t.Helper()
	created, err := service.CreateInvoice(ctx, Invoice{
		ProjectUid:  testProjectUid,
		CostLineUid: costLineUid,
		Supplier:    "Apex Formwork Pty Ltd",
		Reference:   reference,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Amount:      430000,
	})
	require.NoError(t, err)
	return created
}

func TestServiceImpl_CreateInvoice(t *testing.T) {
	t.Run("should create an unpaid invoice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		created := marchInvoice(t, "INV-2026-031", "")

		// then
		assert.NotEmpty(t, created.Uid)
		assert.False(t, created.Paid)
		assert.True(t, created.PaidAt.IsZero())
		assert.Equal(t, match.MethodNone, created.MatchMethod)
		assert.Equal(t, clock.FixedNow, created.CreatedAt)
	})

	t.Run("should keep the match fields of an imported invoice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		created, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			CostLineUid: "line-1",
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-032",
			PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Amount:      125000,
			MatchScore:  0.93,
			MatchMethod: match.MethodFuzzy,
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, 0.93, created.MatchScore)
		assert.Equal(t, match.MethodFuzzy, created.MatchMethod)
	})

	t.Run("should ignore a paid flag sent on create", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		created, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-033",
			PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Amount:      125000,
			Paid:        true,
			PaidAt:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		})

		// then
		require.NoError(t, err)
		assert.False(t, created.Paid)
		assert.True(t, created.PaidAt.IsZero())
	})

	t.Run("should require a supplier and a reference", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			Supplier:    "Apex Formwork Pty Ltd",
			PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		})

		// then
		assert.ErrorIs(t, err, ErrInvoiceInvalid)
	})

	t.Run("should reject an inverted or missing period", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-034",
			PeriodStart: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		})
		assert.ErrorIs(t, err, ErrInvalidPeriod)

		_, err = service.CreateInvoice(ctx, Invoice{
			ProjectUid: testProjectUid,
			Supplier:   "Apex Formwork Pty Ltd",
			Reference:  "INV-2026-034",
		})
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestServiceImpl_UpdateInvoice(t *testing.T) {
	t.Run("should edit the invoice fields", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := marchInvoice(t, "INV-2026-031", "")

		// when
		created.Supplier = "Harbour Scaffolding"
		created.Amount = 515000
		created.PeriodEnd = time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
		updated, err := service.UpdateInvoice(ctx, created)

		// then
		require.NoError(t, err)
		assert.Equal(t, "Harbour Scaffolding", updated.Supplier)
		assert.EqualValues(t, 515000, updated.Amount)
		assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), updated.PeriodEnd)
	})

	t.Run("should record a manual match when the link changes", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			CostLineUid: "line-1",
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-031",
			PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Amount:      430000,
			MatchScore:  0.88,
			MatchMethod: match.MethodFuzzy,
		})
		require.NoError(t, err)

		// when
		created.CostLineUid = "line-2"
		updated, err := service.UpdateInvoice(ctx, created)

		// then
		require.NoError(t, err)
		assert.Equal(t, match.MethodManual, updated.MatchMethod)
		assert.Zero(t, updated.MatchScore)
	})

	t.Run("should keep the match fields when the link is unchanged", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			CostLineUid: "line-1",
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-031",
			PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Amount:      430000,
			MatchScore:  0.88,
			MatchMethod: match.MethodFuzzy,
		})
		require.NoError(t, err)

		// when
		created.Amount = 440000
		updated, err := service.UpdateInvoice(ctx, created)

		// then
		require.NoError(t, err)
		assert.Equal(t, match.MethodFuzzy, updated.MatchMethod)
		assert.Equal(t, 0.88, updated.MatchScore)
	})

	t.Run("should return an error for an unknown invoice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.UpdateInvoice(ctx, Invoice{
			Uid:         "missing",
			ProjectUid:  testProjectUid,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-031",
			PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		})

		// then
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestServiceImpl_Payment(t *testing.T) {
	t.Run("should stamp the payment time and publish the change", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := marchInvoice(t, "INV-2026-031", "line-1")
		var published []event_bus.InvoicePaymentChanged
		event_bus.SubscribeTyped(eventBus, "invoice.payment.changed", func(e event_bus.EventT[event_bus.InvoicePaymentChanged]) error {
			published = append(published, e.Data)
			return nil
		})

		// when
		paid, err := service.MarkPaid(ctx, created.Uid)
		require.NoError(t, err)
		unpaid, err := service.MarkUnpaid(ctx, created.Uid)
		require.NoError(t, err)

		// then
		assert.True(t, paid.Paid)
		assert.Equal(t, clock.FixedNow, paid.PaidAt)
		assert.False(t, unpaid.Paid)
		assert.True(t, unpaid.PaidAt.IsZero())

		require.Len(t, published, 2)
		assert.Equal(t, created.Uid, published[0].Uid)
		assert.Equal(t, testProjectUid, published[0].ProjectUid)
		assert.Equal(t, "line-1", published[0].CostLineUid)
		assert.Equal(t, "INV-2026-031", published[0].Reference)
		assert.EqualValues(t, 430000, published[0].Amount)
		assert.True(t, published[0].Paid)
		assert.False(t, published[1].Paid)
	})

	t.Run("should do nothing when the payment state is already current", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := marchInvoice(t, "INV-2026-031", "")
		var published []event_bus.InvoicePaymentChanged
		event_bus.SubscribeTyped(eventBus, "invoice.payment.changed", func(e event_bus.EventT[event_bus.InvoicePaymentChanged]) error {
			published = append(published, e.Data)
			return nil
		})

		// when
		first, err := service.MarkPaid(ctx, created.Uid)
		require.NoError(t, err)
		second, err := service.MarkPaid(ctx, created.Uid)
		require.NoError(t, err)

		// then
		assert.Equal(t, first, second)
		assert.Len(t, published, 1)
	})

	t.Run("should return an error for an unknown invoice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.MarkPaid(ctx, "missing")

		// then
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestServiceImpl_DeleteInvoice(t *testing.T) {
	t.Run("should delete an invoice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		created := marchInvoice(t, "INV-2026-031", "")

		// when
		deleted, err := service.DeleteInvoice(ctx, created.Uid)

		// then
		require.NoError(t, err)
		assert.True(t, deleted)
		_, err = service.GetInvoice(ctx, created.Uid)
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})

	t.Run("should return an error for an unknown invoice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.DeleteInvoice(ctx, "missing")

		// then
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestServiceImpl_ListInvoices(t *testing.T) {
	t.Run("should order by period start, then reference", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		april, err := service.CreateInvoice(ctx, Invoice{
			ProjectUid:  testProjectUid,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2026-040",
			PeriodStart: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
			Amount:      100000,
		})
		require.NoError(t, err)
		marchSecond := marchInvoice(t, "INV-2026-032", "")
		marchFirst := marchInvoice(t, "INV-2026-031", "")

		// when
		invoices, err := service.ListInvoices(ctx, testProjectUid)

		// then
		require.NoError(t, err)
		require.Len(t, invoices, 3)
		assert.Equal(t, marchFirst.Uid, invoices[0].Uid)
		assert.Equal(t, marchSecond.Uid, invoices[1].Uid)
		assert.Equal(t, april.Uid, invoices[2].Uid)
	})
}

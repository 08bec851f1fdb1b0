package docimport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/invoice"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
	"github.com/costwise/costwise/pkg/user"
	"github.com/costwise/costwise/pkg/variation"
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

var planRepo = costplan.NewRepositoryStub()
var variationRepo = variation.NewRepositoryStub()
var invoiceRepo = invoice.NewRepositoryStub()
var clock = &utils.MockClock{FixedNow: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
var resolver *match.ResolverStub
var eventBus *event_bus.EventBus
var plan costplan.Service
var variations variation.Service
var invoices invoice.Service
var service Service

func setup(t *testing.T) func() {
	resolver = &match.ResolverStub{}
	eventBus = event_bus.NewEventBus()
	plan = costplan.NewCostPlanService(planRepo, variationRepo, invoiceRepo, eventBus, clock)
	variations = variation.NewVariationService(variationRepo, eventBus, clock)
	invoices = invoice.NewInvoiceService(invoiceRepo, eventBus, clock)
	service = NewImportService(plan, variations, invoices, resolver, eventBus)
	return func() {
		t.Log("Teardown after test")
		planRepo.Cleanup()
		variationRepo.Cleanup()
		invoiceRepo.Cleanup()
	}
}

// seedPlan stores three cost lines: one unmistakable and two the matcher
// cannot tell apart without help.
func seedPlan(t *testing.T) {
	t.Helper()
	lines := []costplan.CostLine{
		{Uid: "line-steel", ProjectUid: testProjectUid, Section: "Superstructure", Activity: "Structural steel frame", Position: 100},
		{Uid: "line-excavation-east", ProjectUid: testProjectUid, Section: "Substructure", Activity: "Bulk excavation", Position: 200},
		{Uid: "line-excavation-west", ProjectUid: testProjectUid, Section: "Substructure", Activity: "Bulk excavation", Position: 300},
	}
	for _, line := range lines {
		_, err := planRepo.CreateLine(ctx, testUser.Id, line)
		require.NoError(t, err)
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func variationDocument() ParsedDocument {
	return ParsedDocument{
		Kind: KindVariation,
		Lines: []ParsedLine{
			{Label: "Structural steel frame", Detail: "Revised connection details", Amount: 1850000, Section: "Superstructure"},
			{Label: "Bulk excavation", Detail: "Extra over for rock", Amount: 720000, Section: "Substructure"},
			{Label: "Crane hire downtime", Amount: 98000, Section: "Preliminaries"},
		},
	}
}

func reviewDocument() ParsedDocument {
	return ParsedDocument{
		Kind: KindVariation,
		Lines: []ParsedLine{
			{Label: "Bulk excavation", Amount: 50000, Section: "Substructure"},
		},
	}
}

func TestServiceImpl_Import_Variations(t *testing.T) {
	t.Run("should create one draft variation per line and link by confidence", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)
		resolver.Decision = match.Decision{Key: "line-excavation-west", Reason: "east zone finished last month"}

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, variationDocument())
		require.NoError(t, err)

		// then the report partitions the lines
		assert.NotEmpty(t, report.DocumentUid)
		assert.Equal(t, testProjectUid, report.ProjectUid)
		assert.Equal(t, KindVariation, report.Kind)
		assert.Equal(t, 3, report.Imported())
		assert.Equal(t, 2, report.AutoLinked)
		assert.Equal(t, 0, report.NeedsReview)
		require.Len(t, report.Created, 3)
		require.Len(t, report.Unmatched, 1)

		steel := report.Created[0]
		assert.Equal(t, "line-steel", steel.CostLineUid)
		assert.Equal(t, match.MethodFuzzy, steel.Method)
		assert.InDelta(t, 1.0, steel.Score, 0.0001)

		excavation := report.Created[1]
		assert.Equal(t, "line-excavation-west", excavation.CostLineUid)
		assert.Equal(t, match.MethodAI, excavation.Method)
		assert.InDelta(t, 1.0, excavation.Score, 0.0001)

		assert.Equal(t, "Crane hire downtime", report.Unmatched[0].Label)
		assert.Less(t, report.Unmatched[0].BestScore, match.ReviewThreshold)

		// and the variations exist as drafts, numbered in document order
		first, err := variations.GetVariation(ctx, steel.Uid)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Number)
		assert.Equal(t, variation.StatusDraft, first.Status)
		assert.Equal(t, "Structural steel frame", first.Title)
		assert.Equal(t, "Revised connection details", first.Detail)
		assert.Equal(t, variation.CategoryOther, first.Category)
		assert.Equal(t, money.Cents(1850000), first.Amount)
		assert.Equal(t, "line-steel", first.CostLineUid)
		assert.Equal(t, match.MethodFuzzy, first.MatchMethod)
		assert.Equal(t, clock.FixedNow, first.CreatedAt)

		third, err := variations.GetVariation(ctx, report.Created[2].Uid)
		require.NoError(t, err)
		assert.Equal(t, 3, third.Number)
		assert.Empty(t, third.CostLineUid)
		assert.Equal(t, match.MethodNone, third.MatchMethod)
		assert.Zero(t, third.MatchScore)
	})

	t.Run("should publish a completion event with the import counts", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)
		resolver.Decision = match.Decision{Key: "line-excavation-west"}

		var published []event_bus.DocumentImportCompleted
		event_bus.SubscribeTyped(eventBus, "docimport.completed", func(e event_bus.EventT[event_bus.DocumentImportCompleted]) error {
			published = append(published, e.Data)
			return nil
		})

		// when
		_, err := service.Import(ctx, testProjectUid, SourceApi, variationDocument())
		require.NoError(t, err)

		// then
		require.Len(t, published, 1)
		assert.Equal(t, event_bus.DocumentImportCompleted{
			ProjectUid:   testProjectUid,
			DocumentType: "variation",
			Source:       "api",
			Imported:     3,
			AutoLinked:   2,
			NeedsReview:  0,
			Unmatched:    1,
		}, published[0])
	})

	t.Run("should create unlinked records when the project has no plan", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, reviewDocument())
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, report.Imported())
		assert.Equal(t, 0, report.AutoLinked)
		require.Len(t, report.Unmatched, 1)
		assert.Zero(t, report.Unmatched[0].BestScore)

		created, err := variations.GetVariation(ctx, report.Created[0].Uid)
		require.NoError(t, err)
		assert.Empty(t, created.CostLineUid)
		assert.Equal(t, match.MethodNone, created.MatchMethod)
	})
}

func TestServiceImpl_Import_Invoices(t *testing.T) {
	t.Run("should suffix references and fall back to the document period", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)

		document := ParsedDocument{
			Kind:        KindInvoice,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2044",
			PeriodStart: date(2026, 3, 1),
			PeriodEnd:   date(2026, 3, 31),
			Lines: []ParsedLine{
				{Label: "Structural steel frame", Amount: 1200000, Section: "Superstructure"},
				{Label: "Crane hire downtime", Amount: 98000, Section: "Preliminaries", PeriodStart: date(2026, 3, 10), PeriodEnd: date(2026, 3, 20)},
			},
		}

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, document)
		require.NoError(t, err)

		// then
		assert.Equal(t, KindInvoice, report.Kind)
		assert.Equal(t, 2, report.Imported())
		assert.Equal(t, 1, report.AutoLinked)
		require.Len(t, report.Created, 2)

		first, err := invoices.GetInvoice(ctx, report.Created[0].Uid)
		require.NoError(t, err)
		assert.Equal(t, "Apex Formwork Pty Ltd", first.Supplier)
		assert.Equal(t, "INV-2044/1", first.Reference)
		assert.Equal(t, date(2026, 3, 1), first.PeriodStart)
		assert.Equal(t, date(2026, 3, 31), first.PeriodEnd)
		assert.Equal(t, money.Cents(1200000), first.Amount)
		assert.Equal(t, "line-steel", first.CostLineUid)
		assert.Equal(t, match.MethodFuzzy, first.MatchMethod)
		assert.False(t, first.Paid)

		second, err := invoices.GetInvoice(ctx, report.Created[1].Uid)
		require.NoError(t, err)
		assert.Equal(t, "INV-2044/2", second.Reference)
		assert.Equal(t, date(2026, 3, 10), second.PeriodStart)
		assert.Equal(t, date(2026, 3, 20), second.PeriodEnd)
		assert.Empty(t, second.CostLineUid)
		assert.Equal(t, match.MethodNone, second.MatchMethod)
	})

	t.Run("should keep the document reference for a single line", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)

		document := ParsedDocument{
			Kind:        KindInvoice,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2044",
			PeriodStart: date(2026, 3, 1),
			PeriodEnd:   date(2026, 3, 31),
			Lines: []ParsedLine{
				{Label: "Structural steel frame", Amount: 1200000, Section: "Superstructure"},
			},
		}

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, document)
		require.NoError(t, err)

		// then
		created, err := invoices.GetInvoice(ctx, report.Created[0].Uid)
		require.NoError(t, err)
		assert.Equal(t, "INV-2044", created.Reference)
	})
}

func TestServiceImpl_Import_Validation(t *testing.T) {
	t.Run("should reject an unknown document kind", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.Import(ctx, testProjectUid, SourceApi, ParsedDocument{
			Kind:  "receipt",
			Lines: []ParsedLine{{Label: "Formwork", Amount: 100}},
		})

		assert.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("should reject a document without lines", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.Import(ctx, testProjectUid, SourceApi, ParsedDocument{Kind: KindVariation})

		assert.ErrorIs(t, err, ErrEmptyDocument)
	})

	t.Run("should require a supplier and a reference for invoices", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		document := ParsedDocument{
			Kind:        KindInvoice,
			Reference:   "INV-2044",
			PeriodStart: date(2026, 3, 1),
			PeriodEnd:   date(2026, 3, 31),
			Lines:       []ParsedLine{{Label: "Formwork", Amount: 100}},
		}
		_, err := service.Import(ctx, testProjectUid, SourceApi, document)
		assert.ErrorIs(t, err, ErrMissingSupplier)

		document.Supplier = "Apex Formwork Pty Ltd"
		document.Reference = ""
		_, err = service.Import(ctx, testProjectUid, SourceApi, document)
		assert.ErrorIs(t, err, ErrMissingSupplier)
	})

	t.Run("should reject an inverted line period and create nothing", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)

		document := ParsedDocument{
			Kind:        KindInvoice,
			Supplier:    "Apex Formwork Pty Ltd",
			Reference:   "INV-2044",
			PeriodStart: date(2026, 3, 1),
			PeriodEnd:   date(2026, 3, 31),
			Lines: []ParsedLine{
				{Label: "Structural steel frame", Amount: 1200000},
				{Label: "Crane hire downtime", Amount: 98000, PeriodStart: date(2026, 3, 20), PeriodEnd: date(2026, 3, 10)},
			},
		}

		// when
		_, err := service.Import(ctx, testProjectUid, SourceApi, document)

		// then
		assert.ErrorIs(t, err, ErrMissingPeriod)
		assert.Contains(t, err.Error(), "line 2")
		stored, err := invoices.ListInvoices(ctx, testProjectUid)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("should reject an invoice line with no period to fall back on", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		document := ParsedDocument{
			Kind:      KindInvoice,
			Supplier:  "Apex Formwork Pty Ltd",
			Reference: "INV-2044",
			Lines:     []ParsedLine{{Label: "Formwork", Amount: 100}},
		}

		_, err := service.Import(ctx, testProjectUid, SourceApi, document)

		assert.ErrorIs(t, err, ErrMissingPeriod)
		assert.Contains(t, err.Error(), "line 1")
	})
}

func TestServiceImpl_Import_Resolver(t *testing.T) {
	t.Run("should send the ambiguous line to the resolver and link its choice", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)
		resolver.Decision = match.Decision{Key: "line-excavation-west", Reason: "east zone finished last month"}

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, reviewDocument())
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, report.AutoLinked)
		assert.Equal(t, 0, report.NeedsReview)
		assert.Equal(t, "line-excavation-west", report.Created[0].CostLineUid)
		assert.Equal(t, match.MethodAI, report.Created[0].Method)
		require.Len(t, resolver.Queries, 1)
		assert.Equal(t, match.Query{Text: "Bulk excavation", Section: "Substructure"}, resolver.Queries[0])
	})

	t.Run("should leave the line for manual review when the resolver declines", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, reviewDocument())
		require.NoError(t, err)

		// then
		assert.Equal(t, 0, report.AutoLinked)
		assert.Equal(t, 1, report.NeedsReview)
		assert.Empty(t, report.Created[0].CostLineUid)
		assert.Equal(t, match.MethodFuzzy, report.Created[0].Method)
		assert.InDelta(t, 1.0, report.Created[0].Score, 0.0001)
	})

	t.Run("should keep the fuzzy result when the resolver fails", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)
		resolver.Err = errors.New("model overloaded")

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, reviewDocument())
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, report.NeedsReview)
		assert.Empty(t, report.Created[0].CostLineUid)
		assert.Equal(t, match.MethodFuzzy, report.Created[0].Method)
	})

	t.Run("should ignore a resolver choice outside the shortlist", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)
		resolver.Decision = match.Decision{Key: "line-steel"}

		// when
		report, err := service.Import(ctx, testProjectUid, SourceApi, reviewDocument())
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, report.NeedsReview)
		assert.Empty(t, report.Created[0].CostLineUid)
	})

	t.Run("should leave ambiguous lines unlinked without a resolver", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		seedPlan(t)
		noResolver := NewImportService(plan, variations, invoices, nil, eventBus)

		// when
		report, err := noResolver.Import(ctx, testProjectUid, SourceApi, reviewDocument())
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, report.NeedsReview)
		assert.Empty(t, report.Created[0].CostLineUid)
		assert.Equal(t, match.MethodFuzzy, report.Created[0].Method)
	})
}

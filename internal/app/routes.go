package app

import (
	"github.com/costwise/costwise/internal/config"
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Projects
	r.HandleFunc("/api/project", deps.ProjectHandler.ListProjects).Methods("GET")
	r.HandleFunc("/api/project", deps.ProjectHandler.CreateProject).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}", deps.ProjectHandler.GetProject).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}", deps.ProjectHandler.UpdateProject).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}", deps.ProjectHandler.ArchiveProject).Methods("DELETE")
	r.HandleFunc("/api/project/{projectUid}/restore", deps.ProjectHandler.RestoreProject).Methods("POST")

	// Allocation worksheet
	r.HandleFunc("/api/allocation/split", deps.AllocationHandler.Split).Methods("POST")
	r.HandleFunc("/api/allocation/percent", deps.AllocationHandler.SetRowPercent).Methods("POST")
	r.HandleFunc("/api/allocation/lock", deps.AllocationHandler.LockRow).Methods("POST")
	r.HandleFunc("/api/allocation/remove", deps.AllocationHandler.RemoveRow).Methods("POST")
	r.HandleFunc("/api/allocation/aggregate", deps.AllocationHandler.AggregateRows).Methods("POST")
	r.HandleFunc("/api/allocation/amounts", deps.AllocationHandler.PlanAmounts).Methods("POST")

	// Cost plan
	r.HandleFunc("/api/project/{projectUid}/costplan", deps.CostPlanHandler.GetPlan).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/costplan/line", deps.CostPlanHandler.CreateLine).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/costplan/line/{lineUid}", deps.CostPlanHandler.UpdateLine).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}/costplan/line/{lineUid}", deps.CostPlanHandler.DeleteLine).Methods("DELETE")
	r.HandleFunc("/api/project/{projectUid}/costplan/line/{lineUid}/lock", deps.CostPlanHandler.LockLine).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}/costplan/line/{lineUid}/move", deps.CostPlanHandler.MoveLine).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}/costplan/apply-estimate", deps.CostPlanHandler.ApplyEstimate).Methods("POST")

	// Variations
	r.HandleFunc("/api/project/{projectUid}/variation", deps.VariationHandler.ListVariations).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/variation", deps.VariationHandler.CreateVariation).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}", deps.VariationHandler.GetVariation).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}", deps.VariationHandler.UpdateVariation).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}", deps.VariationHandler.DeleteVariation).Methods("DELETE")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}/submit", deps.VariationHandler.SubmitVariation).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}/approve", deps.VariationHandler.ApproveVariation).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}/reject", deps.VariationHandler.RejectVariation).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/variation/{variationUid}/reopen", deps.VariationHandler.ReopenVariation).Methods("POST")

	// Invoices
	r.HandleFunc("/api/project/{projectUid}/invoice", deps.InvoiceHandler.ListInvoices).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/invoice", deps.InvoiceHandler.CreateInvoice).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/invoice/{invoiceUid}", deps.InvoiceHandler.GetInvoice).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/invoice/{invoiceUid}", deps.InvoiceHandler.UpdateInvoice).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}/invoice/{invoiceUid}", deps.InvoiceHandler.DeleteInvoice).Methods("DELETE")
	r.HandleFunc("/api/project/{projectUid}/invoice/{invoiceUid}/pay", deps.InvoiceHandler.MarkPaid).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/invoice/{invoiceUid}/unpay", deps.InvoiceHandler.MarkUnpaid).Methods("POST")

	// Building profile and estimates
	r.HandleFunc("/api/project/{projectUid}/profile", deps.ProfilerHandler.GetProfile).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/profile", deps.ProfilerHandler.UpsertProfile).Methods("PUT")
	r.HandleFunc("/api/project/{projectUid}/profile/estimate", deps.ProfilerHandler.GetEstimate).Methods("GET")
	r.HandleFunc("/api/profiler/catalog", deps.ProfilerHandler.GetCatalog).Methods("GET")

	// Document import
	r.HandleFunc("/api/project/{projectUid}/import", deps.ImportHandler.ImportDocument).Methods("POST")
	r.HandleFunc("/api/project/{projectUid}/import/queue", deps.ImportHandler.QueueDocument).Methods("POST")

	// Reports
	r.HandleFunc("/api/project/{projectUid}/report", deps.ReportHandler.GetReport).Methods("GET")
	r.HandleFunc("/api/project/{projectUid}/report/sheets", deps.ReportHandler.ExportToSheets).Methods("POST")

	// Activity log
	r.HandleFunc("/api/project/{projectUid}/activity", deps.ActivityHandler.ListActivity).Methods("GET")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user/current", deps.UserHandler.UpdateUser).Methods("PUT")
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")
	r.HandleFunc("/api/user", deps.UserHandler.GetAvailableUsers).Methods("GET")
	r.HandleFunc("/api/user/name-availability", deps.UserHandler.IsUsernameAvailable).Methods("GET")
	r.HandleFunc("/api/user/{userId}", deps.UserHandler.DeleteUser).Methods("DELETE")

	// Google integration
	r.HandleFunc("/api/integrations/google/auth/login", deps.GoogleAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/logout", deps.GoogleAuth.OAuthLogout).Methods("DELETE")
	r.HandleFunc("/api/integrations/google/auth/callback", deps.GoogleAuth.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth", deps.GoogleAuth.Status).Methods("GET")
}

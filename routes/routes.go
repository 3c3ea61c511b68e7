package routes

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/ledgermate/recon-api/handlers"
	"github.com/ledgermate/recon-api/services"
)

// SetupAuthRoutes sets up public authentication routes.
func SetupAuthRoutes(rg *gin.RouterGroup, db *sql.DB) {
	authHandler := &handlers.AuthHandler{DB: db}

	rg.POST("/auth/signup", authHandler.Signup)
	rg.POST("/auth/login", authHandler.Login)
}

// SetupAccountRoutes sets up protected operator-account routes (2FA).
func SetupAccountRoutes(rg *gin.RouterGroup, db *sql.DB) {
	authHandler := &handlers.AuthHandler{DB: db}

	rg.POST("/account/2fa/setup", authHandler.SetupTOTP)
	rg.POST("/account/2fa/verify", authHandler.VerifyTOTP)
}

// SetupTransactionRoutes sets up transaction listing and manual edits.
func SetupTransactionRoutes(rg *gin.RouterGroup, db *sql.DB) {
	h := &handlers.TransactionHandler{Service: services.NewTransactionService(db)}

	rg.GET("/transactions", h.ListTransactions)
	rg.POST("/transactions/:id/category", h.SetCategory)
	rg.POST("/transactions/bulk-category", h.BulkSetCategory)
}

// SetupRuleRoutes sets up rule CRUD and the batch rule applier.
func SetupRuleRoutes(rg *gin.RouterGroup, db *sql.DB, ruleService *services.RuleService, wsHandler *handlers.WSHandler) {
	ruleHandler := &handlers.RuleHandler{Service: ruleService}
	applyHandler := &handlers.ApplyHandler{
		Applier: services.NewRuleApplier(db, ruleService.Cache()),
		Events:  wsHandler,
	}

	rg.GET("/rules", ruleHandler.ListRules)
	rg.POST("/rules", ruleHandler.CreateRule)
	rg.DELETE("/rules/:id", ruleHandler.DeleteRule)

	rg.POST("/apply-rules", applyHandler.ApplyRules)
}

// SetupReconciliationRoutes sets up suggestions, coverage, and receipts.
func SetupReconciliationRoutes(rg *gin.RouterGroup, db *sql.DB) {
	h := &handlers.ReconciliationHandler{
		Matcher:  services.NewReconciliationService(db),
		Coverage: services.NewCoverageService(db),
		Receipts: services.NewReceiptService(db),
	}

	rg.GET("/receipts", h.ListReceipts)
	rg.POST("/receipts", h.IngestReceipt)
	rg.GET("/receipts/suggestions", h.GetSuggestions)
	rg.POST("/receipts/attach", h.AttachReceipt)
	rg.GET("/coverage", h.GetCoverage)
}

// SetupSyncRoutes sets up the accounting-platform sync trigger.
func SetupSyncRoutes(rg *gin.RouterGroup, db *sql.DB, ruleService *services.RuleService, wsHandler *handlers.WSHandler) {
	resolver := services.NewCategoryResolver(ruleService.Cache(), services.NewAISuggester())
	syncService := services.NewSyncService(
		services.NewHTTPLedgerClient(),
		services.NewTransactionService(db),
		resolver,
	)

	h := &handlers.SyncHandler{Syncer: syncService, Events: wsHandler}
	rg.POST("/sync", h.RunSync)
}

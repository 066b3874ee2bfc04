package routes

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/controllers/admins"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/controllers/auth"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/controllers/users"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/middleware"
)

func optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "branch-funding-api",
	})
}

func InitRouter() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint for Docker health checks (root level)
	r.Handle("/health", http.HandlerFunc(healthHandler)).Methods(http.MethodGet)

	// CORS - origins from CORS_ALLOWED_ORIGINS (comma-separated) or defaults
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	origins := []string{
		"http://localhost:3000", "http://localhost:8080", "http://127.0.0.1:3000", "http://127.0.0.1:8080",
	}
	if originsEnv != "" {
		parts := strings.Split(originsEnv, ",")
		for _, p := range parts {
			if o := strings.TrimSpace(p); o != "" {
				origins = append(origins, o)
			}
		}
	}
	r.Use(func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-CRON-KEY", "X-Requested-With", "X-Request-ID", "Gateway-Signature"}),
			handlers.AllowCredentials(),
		)(next)
	})

	api := r.PathPrefix("/api").Subrouter()

	// Catch-all OPTIONS handler for CORS preflight
	api.PathPrefix("/").HandlerFunc(optionsHandler).Methods(http.MethodOptions)

	api.Handle("/health", http.HandlerFunc(healthHandler)).Methods(http.MethodGet)

	// Login endpoints: 60 per IP per 5 minutes
	loginLimiter := middleware.NewIPRateLimiter(60, 5*time.Minute)
	// General authenticated traffic: 120 per IP per minute
	userLimiter := middleware.NewIPRateLimiter(120, time.Minute)
	// Admin login: 5 attempts per IP per minute
	adminLoginLimiter := middleware.NewIPRateLimiter(5, time.Minute)
	// Cron: 1000 per IP per hour
	cronLimiter := middleware.NewIPRateLimiter(1000, time.Hour)
	// Webhooks: 500 per IP per hour; processor egress IPs bypass via WEBHOOK_IP_WHITELIST
	var webhookWhitelist []string
	if v := os.Getenv("WEBHOOK_IP_WHITELIST"); v != "" {
		webhookWhitelist = strings.Split(v, ",")
	}
	webhookLimiter := middleware.NewWebhookLimiter(500, time.Hour, webhookWhitelist)

	// Auth
	api.Handle("/auth/login", loginLimiter.Middleware(http.HandlerFunc(auth.LoginHandler))).Methods(http.MethodPost)
	api.Handle("/admin/auth/login", adminLoginLimiter.Middleware(http.HandlerFunc(auth.AdminLoginHandler))).Methods(http.MethodPost)

	// Public branch catalogue and funding progress
	api.Handle("/branches", userLimiter.Middleware(http.HandlerFunc(users.ListBranchesHandler))).Methods(http.MethodGet)
	api.Handle("/branches/{id:[0-9]+}/funding", userLimiter.Middleware(http.HandlerFunc(users.BranchFundingStatsHandler))).Methods(http.MethodGet)

	// Investments (authenticated users)
	api.Handle("/users/investments", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(users.CreateInvestmentHandler)))).Methods(http.MethodPost)
	api.Handle("/users/investments", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(users.ListInvestmentsHandler)))).Methods(http.MethodGet)
	api.Handle("/users/investments/{id:[0-9]+}", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(users.GetInvestmentHandler)))).Methods(http.MethodGet)
	api.Handle("/users/investments/{id:[0-9]+}/receipt", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(users.UploadReceiptHandler)))).Methods(http.MethodPost)

	// Card processor webhook
	api.Handle("/webhooks/card", webhookLimiter.Middleware(http.HandlerFunc(users.CardWebhookHandler))).Methods(http.MethodPost)

	// Cron endpoint for expiring stale pending entries (protected via X-CRON-KEY header)
	api.Handle("/cron/expire-pending", cronLimiter.Middleware(http.HandlerFunc(users.ExpirePendingHandler))).Methods(http.MethodPost)

	// Protected admin routes
	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.AdminAuthMiddleware)

	// Investment management
	adminRouter.Handle("/investments", http.HandlerFunc(admins.GetInvestments)).Methods(http.MethodGet)
	adminRouter.Handle("/investments/{id:[0-9]+}/transactions", http.HandlerFunc(admins.GetInvestmentTransactions)).Methods(http.MethodGet)
	adminRouter.Handle("/investments/{id:[0-9]+}/confirm-bank", http.HandlerFunc(admins.ConfirmBankTransfer)).Methods(http.MethodPost)
	adminRouter.Handle("/investments/{id:[0-9]+}/retry", http.HandlerFunc(admins.RetryProcessing)).Methods(http.MethodPost)
	adminRouter.Handle("/investments/{id:[0-9]+}/refund", http.HandlerFunc(admins.RefundInvestment)).Methods(http.MethodPost)
	adminRouter.Handle("/investments/{id:[0-9]+}", http.HandlerFunc(admins.DeleteInvestment)).Methods(http.MethodDelete)

	// Branch funding management
	adminRouter.Handle("/branches/funding", http.HandlerFunc(admins.GetBranchFunding)).Methods(http.MethodGet)
	adminRouter.Handle("/branches/{id:[0-9]+}/limit", http.HandlerFunc(admins.SetBranchLimit)).Methods(http.MethodPut)
	adminRouter.Handle("/branches/{id:[0-9]+}/reopen", http.HandlerFunc(admins.ReopenBranch)).Methods(http.MethodPost)
	adminRouter.Handle("/branches/{id:[0-9]+}/close", http.HandlerFunc(admins.CloseBranch)).Methods(http.MethodPost)
	adminRouter.Handle("/branches/{id:[0-9]+}/resync", http.HandlerFunc(admins.ResyncBranch)).Methods(http.MethodPost)

	return r
}

package admins

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/database"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/gateway"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/services"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

type InvestmentResponse struct {
	ID            uint    `json:"id"`
	Reference     string  `json:"reference"`
	UserID        uint    `json:"user_id"`
	UserName      string  `json:"user_name"`
	BranchID      uint    `json:"branch_id"`
	BranchName    string  `json:"branch_name"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
	Status        string  `json:"status"`
	InvestedAt    *string `json:"invested_at,omitempty"`
	ReceiptURL    *string `json:"receipt_url,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// GET /api/admin/investments
func GetInvestments(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	branchID := r.URL.Query().Get("branch_id")
	status := r.URL.Query().Get("status")
	method := r.URL.Query().Get("payment_method")
	search := r.URL.Query().Get("search")
	startDate := r.URL.Query().Get("startDate")
	endDate := r.URL.Query().Get("endDate")

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	db := database.DB
	query := db.Model(&models.Investment{}).
		Joins("JOIN branches ON investments.branch_id = branches.id").
		Joins("JOIN users ON investments.user_id = users.id")

	if branchID != "" {
		query = query.Where("investments.branch_id = ?", branchID)
	}
	if status != "" {
		query = query.Where("investments.status = ?", status)
	}
	if method != "" {
		query = query.Where("investments.payment_method = ?", method)
	}
	if search != "" {
		query = query.Where("investments.reference LIKE ?", "%"+search+"%")
	}
	if startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			query = query.Where("investments.created_at >= ?", t)
		}
	}
	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			query = query.Where("investments.created_at < ?", t.AddDate(0, 0, 1))
		}
	}

	var totalRows int64
	if err := query.Count(&totalRows).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	type investmentWithNames struct {
		models.Investment
		UserName   string
		BranchName string
	}

	var rows []investmentWithNames
	query.Select("investments.*, users.name as user_name, branches.name as branch_name").
		Offset(offset).
		Limit(limit).
		Order("investments.created_at DESC").
		Find(&rows)

	response := make([]InvestmentResponse, 0, len(rows))
	for _, row := range rows {
		item := InvestmentResponse{
			ID:            row.ID,
			Reference:     row.Reference,
			UserID:        row.UserID,
			UserName:      row.UserName,
			BranchID:      row.BranchID,
			BranchName:    row.BranchName,
			Amount:        row.Amount.StringFixed(2),
			Currency:      row.Currency,
			PaymentMethod: row.PaymentMethod,
			Status:        string(row.Status),
			CreatedAt:     row.CreatedAt.Format(time.RFC3339),
		}
		if row.InvestedAt != nil {
			s := row.InvestedAt.Format(time.RFC3339)
			item.InvestedAt = &s
		}
		if row.ReceiptKey != nil {
			if url, err := utils.ReceiptSignedURL(r.Context(), *row.ReceiptKey, 900); err == nil {
				item.ReceiptURL = &url
			}
		}
		response = append(response, item)
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"data": response,
		"pagination": map[string]interface{}{
			"page":        page,
			"limit":       limit,
			"total_rows":  totalRows,
			"total_pages": int(math.Ceil(float64(totalRows) / float64(limit))),
		},
	}})
}

// GET /api/admin/investments/{id}/transactions
func GetInvestmentTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	var rows []models.InvestmentTransaction
	if err := database.DB.Where("investment_id = ?", id).Order("id ASC").Find(&rows).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: rows})
}

type ConfirmBankTransferRequest struct {
	Confirmed bool   `json:"confirmed"`
	Details   string `json:"details"`
}

// POST /api/admin/investments/{id}/confirm-bank
func ConfirmBankTransfer(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value(utils.AdminIDKey).(uint)
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	var req ConfirmBankTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Not valid JSON")
		return
	}

	rec := services.NewReconciler(database.DB, nil, services.DefaultNotifier)
	inv, err := rec.ConfirmBankTransfer(r.Context(), id, req.Confirmed, req.Details, adminID)
	if err != nil {
		writeReconcileError(w, err)
		return
	}

	log.Printf("[ADMIN] bank transfer %s for investment %s by admin=%d",
		map[bool]string{true: "confirmed", false: "rejected"}[req.Confirmed], inv.Reference, adminID)
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Bank transfer decision recorded", Data: inv})
}

// POST /api/admin/investments/{id}/retry
func RetryProcessing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	client, err := gateway.NewClientFromEnv()
	if err != nil {
		log.Printf("[ADMIN] gateway config: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "Payment service unavailable")
		return
	}

	rec := services.NewReconciler(database.DB, client, services.DefaultNotifier)
	inv, err := rec.RetryCardProcessing(r.Context(), id)
	if err != nil {
		writeReconcileError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Payment status re-checked", Data: inv})
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

// POST /api/admin/investments/{id}/refund
func RefundInvestment(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value(utils.AdminIDKey).(uint)
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Not valid JSON")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		utils.WriteError(w, http.StatusBadRequest, "A refund reason is required")
		return
	}

	rec := services.NewReconciler(database.DB, nil, services.DefaultNotifier)
	inv, err := rec.Refund(r.Context(), id, adminID, reason)
	if err != nil {
		writeReconcileError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Investment refunded", Data: inv})
}

// DELETE /api/admin/investments/{id}
func DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	var inv models.Investment
	if err := database.DB.First(&inv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Investment not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	rec := services.NewReconciler(database.DB, nil, services.DefaultNotifier)
	if err := rec.Delete(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Investment not found")
			return
		}
		log.Printf("[ADMIN] delete investment %d: %v", id, err)
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	// The stored receipt is orphaned once the row is gone; best effort cleanup.
	if inv.ReceiptKey != nil {
		if err := utils.DeleteReceipt(r.Context(), *inv.ReceiptKey); err != nil {
			log.Printf("[ADMIN] delete receipt %s for %s: %v", *inv.ReceiptKey, inv.Reference, err)
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Investment deleted"})
}

func writeReconcileError(w http.ResponseWriter, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.WriteError(w, http.StatusNotFound, "Investment not found")
	case errors.As(err, &validationErr):
		utils.WriteError(w, http.StatusUnprocessableEntity, validationErr.Reason)
	case errors.Is(err, services.ErrGatewayUnavailable):
		utils.WriteError(w, http.StatusBadGateway, "Payment service temporarily unavailable, please retry")
	default:
		log.Printf("[ADMIN] reconcile error: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func pathID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

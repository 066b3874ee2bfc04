package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/database"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/gateway"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/services"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

type CreateInvestmentRequest struct {
	BranchID      uint   `json:"branch_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
}

// POST /api/users/investments
func CreateInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Not valid JSON")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Amount is not a valid decimal")
		return
	}

	admission := services.NewAdmission(database.DB, services.LimitsFromEnv())
	inv, err := admission.CreateInvestment(r.Context(), services.CreateInvestmentInput{
		UserID:        uid,
		BranchID:      req.BranchID,
		Amount:        amount,
		Currency:      req.Currency,
		PaymentMethod: strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		Notes:         req.Notes,
	})
	if err != nil {
		var admissionErr *services.AdmissionError
		if errors.As(err, &admissionErr) {
			utils.WriteError(w, http.StatusUnprocessableEntity, admissionErr.Reason)
			return
		}
		log.Printf("[INVESTMENT] create failed: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "Unable to create investment")
		return
	}

	resp := map[string]interface{}{
		"id":             inv.ID,
		"reference":      inv.Reference,
		"branch_id":      inv.BranchID,
		"amount":         inv.Amount,
		"currency":       inv.Currency,
		"payment_method": inv.PaymentMethod,
		"status":         inv.Status,
	}

	switch inv.PaymentMethod {
	case models.MethodCard:
		client, err := gateway.NewClientFromEnv()
		if err != nil {
			log.Printf("[INVESTMENT] gateway config: %v", err)
			utils.WriteError(w, http.StatusInternalServerError, "Payment service unavailable")
			return
		}
		intentID, clientSecret, err := client.CreateIntent(r.Context(), inv.Amount, inv.Currency, map[string]string{
			"investment_reference": inv.Reference,
			"branch_id":            strconv.FormatUint(uint64(inv.BranchID), 10),
		})
		if err != nil {
			log.Printf("[INVESTMENT] create intent for %s: %v", inv.Reference, err)
			// The pending entry stays for the expiry sweep; the client may retry payment initiation.
			utils.WriteError(w, http.StatusBadGateway, "Payment service unavailable, please try again")
			return
		}
		if err := database.DB.Model(&models.Investment{}).Where("id = ?", inv.ID).
			Updates(map[string]interface{}{"payment_intent_id": intentID, "status": models.StatusProcessing}).Error; err != nil {
			log.Printf("[INVESTMENT] persist intent for %s: %v", inv.Reference, err)
			utils.WriteError(w, http.StatusInternalServerError, "Unable to create investment")
			return
		}
		resp["status"] = models.StatusProcessing
		resp["client_secret"] = clientSecret
	case models.MethodBankTransfer:
		services.DefaultNotifier.Dispatch(services.Event{
			Type:         services.EventBankTransferRequested,
			InvestmentID: inv.ID,
			Reference:    inv.Reference,
			BranchID:     inv.BranchID,
			UserID:       inv.UserID,
		})
		resp["bank_instructions"] = "Transfer the amount quoting your reference. The investment activates once our team confirms receipt."
	}

	log.Printf("[INVESTMENT] created %s user=%d branch=%d amount=%s method=%s", inv.Reference, uid, inv.BranchID, inv.Amount, inv.PaymentMethod)
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Investment created", Data: resp})
}

// GET /api/users/investments
func ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	db := database.DB
	countQuery := db.Model(&models.Investment{}).Where("user_id = ?", uid)
	if search != "" {
		countQuery = countQuery.Where("reference LIKE ?", "%"+search+"%")
	}
	var totalRows int64
	if err := countQuery.Count(&totalRows).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	var rows []models.Investment
	query := db.Preload("Branch").Where("user_id = ?", uid)
	if search != "" {
		query = query.Where("reference LIKE ?", "%"+search+"%")
	}
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"data": rows,
		"pagination": map[string]interface{}{
			"page":        page,
			"limit":       limit,
			"total_rows":  totalRows,
			"total_pages": int(math.Ceil(float64(totalRows) / float64(limit))),
		},
	}})
}

// GET /api/users/investments/{id}
func GetInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	var inv models.Investment
	if err := database.DB.Preload("Branch").Where("id = ? AND user_id = ?", id, uid).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Investment not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	// A card investment stuck in processing gets an opportunistic authoritative
	// check, same path the webhook takes, so the detail view never shows a paid
	// investment as in-flight just because a webhook was delayed.
	if inv.PaymentMethod == models.MethodCard && inv.Status == models.StatusProcessing && inv.PaymentIntentID != nil {
		if client, err := gateway.NewClientFromEnv(); err == nil {
			rec := services.NewReconciler(database.DB, client, services.DefaultNotifier)
			if refreshed, err := rec.RetryCardProcessing(r.Context(), inv.ID); err == nil {
				inv = *refreshed
			}
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: inv})
}

// POST /api/users/investments/{id}/receipt
func UploadReceiptHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid investment id")
		return
	}

	var inv models.Investment
	if err := database.DB.Where("id = ? AND user_id = ?", id, uid).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Investment not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if inv.PaymentMethod != models.MethodBankTransfer {
		utils.WriteError(w, http.StatusUnprocessableEntity, "Receipts apply to bank transfer investments only")
		return
	}
	if inv.Status != models.StatusPending {
		utils.WriteError(w, http.StatusUnprocessableEntity, "Receipts can only be attached while the investment is pending")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("receipt")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "receipt file is required")
		return
	}
	defer file.Close()

	objectName := fmt.Sprintf("receipts/%s/%s", inv.Reference, header.Filename)
	if err := utils.UploadReceipt(r.Context(), objectName, file); err != nil {
		log.Printf("[INVESTMENT] receipt upload for %s: %v", inv.Reference, err)
		utils.WriteError(w, http.StatusInternalServerError, "Unable to store receipt")
		return
	}
	if err := database.DB.Model(&models.Investment{}).Where("id = ?", inv.ID).
		Update("receipt_key", objectName).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Unable to store receipt")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Receipt uploaded"})
}

// GET /api/branches/{id}/funding
func BranchFundingStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid branch id")
		return
	}

	agg, err := services.NewAggregator(database.DB, services.DefaultNotifier).Stats(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Branch is not accepting investment")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"branch_id":              agg.BranchID,
		"total_invested":         agg.TotalInvested,
		"investment_limit":       agg.InvestmentLimit,
		"remaining":              agg.Remaining(),
		"progress_pct":           agg.ProgressPct(),
		"total_investors":        agg.TotalInvestors,
		"is_open_for_investment": agg.IsOpenForInvestment,
	}})
}

func userID(r *http.Request) (uint, bool) {
	uid, ok := r.Context().Value(utils.UserIDKey).(uint)
	return uid, ok && uid != 0
}

func pathID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

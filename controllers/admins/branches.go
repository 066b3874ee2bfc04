package admins

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/database"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/services"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

// GET /api/admin/branches/funding
// Lists every branch funding row with its branch preloaded.
func GetBranchFunding(w http.ResponseWriter, r *http.Request) {
	var rows []models.BranchInvestment
	if err := database.DB.Preload("Branch").Order("branch_id ASC").Find(&rows).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: rows})
}

type SetLimitRequest struct {
	InvestmentLimit string `json:"investment_limit"`
}

// PUT /api/admin/branches/{id}/limit
//
// Creates the aggregate row on first use, which is what opens a branch for
// funding at all: admission rejects branches without a row.
func SetBranchLimit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid branch id")
		return
	}

	var req SetLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Not valid JSON")
		return
	}
	limit, err := decimal.NewFromString(req.InvestmentLimit)
	if err != nil || !limit.IsPositive() {
		utils.WriteError(w, http.StatusBadRequest, "investment_limit must be a positive decimal")
		return
	}

	var branch models.Branch
	if err := database.DB.First(&branch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Branch not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	var agg models.BranchInvestment
	err = database.DB.Where("branch_id = ?", id).First(&agg).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		agg = models.BranchInvestment{
			BranchID:            id,
			InvestmentLimit:     limit,
			IsOpenForInvestment: true,
		}
		if err := database.DB.Create(&agg).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
			return
		}
	case err != nil:
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	default:
		if err := database.DB.Model(&agg).Update("investment_limit", limit).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
			return
		}
	}

	// Raising the limit does not reopen; recompute refreshes totals and closes
	// the branch immediately if the new limit is already exhausted.
	refreshed, err := services.NewAggregator(database.DB, services.DefaultNotifier).Recalculate(r.Context(), id)
	if err != nil {
		log.Printf("[ADMIN] recalculate branch %d after limit change: %v", id, err)
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Investment limit updated", Data: refreshed})
}

// POST /api/admin/branches/{id}/reopen
//
// Reopening is an explicit administrative decision; the aggregator only ever
// closes. Reopening a branch whose total still meets the limit is rejected.
func ReopenBranch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid branch id")
		return
	}

	agg, err := services.NewAggregator(database.DB, services.DefaultNotifier).Recalculate(r.Context(), id)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if agg.InvestmentLimit.IsPositive() && agg.TotalInvested.GreaterThanOrEqual(agg.InvestmentLimit) {
		utils.WriteError(w, http.StatusUnprocessableEntity, "Branch is at capacity; raise the limit before reopening")
		return
	}

	if err := database.DB.Model(&models.BranchInvestment{}).Where("branch_id = ?", id).
		Update("is_open_for_investment", true).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Branch reopened for investment"})
}

// POST /api/admin/branches/{id}/close
func CloseBranch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid branch id")
		return
	}

	result := database.DB.Model(&models.BranchInvestment{}).Where("branch_id = ?", id).
		Update("is_open_for_investment", false)
	if result.Error != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if result.RowsAffected == 0 {
		utils.WriteError(w, http.StatusNotFound, "Branch has no funding record")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Branch closed for investment"})
}

// POST /api/admin/branches/{id}/resync
//
// Manual drift repair: recompute the aggregate from the completed rows.
func ResyncBranch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid branch id")
		return
	}

	agg, err := services.NewAggregator(database.DB, services.DefaultNotifier).Recalculate(r.Context(), id)
	if err != nil {
		log.Printf("[ADMIN] resync branch %d: %v", id, err)
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Branch totals recalculated", Data: agg})
}

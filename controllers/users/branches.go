package users

import (
	"net/http"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/database"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

type branchListItem struct {
	models.Branch
	Funding *models.BranchInvestment `json:"funding,omitempty"`
}

// GET /api/branches
// Public listing of active branches. Branches with a funding row also report
// their funding progress so clients can show open/closed state up front.
func ListBranchesHandler(w http.ResponseWriter, r *http.Request) {
	var branches []models.Branch
	if err := database.DB.Where("status = ?", "Active").Order("name ASC").Find(&branches).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	var aggs []models.BranchInvestment
	if err := database.DB.Find(&aggs).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	byBranch := make(map[uint]*models.BranchInvestment, len(aggs))
	for i := range aggs {
		byBranch[aggs[i].BranchID] = &aggs[i]
	}

	items := make([]branchListItem, 0, len(branches))
	for _, b := range branches {
		items = append(items, branchListItem{Branch: b, Funding: byBranch[b.ID]})
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: items})
}

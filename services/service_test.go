package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

// openTestDB opens a per-test in-memory database and migrates the schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.Branch{},
		&models.BranchInvestment{},
		&models.Investment{},
		&models.InvestmentTransaction{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// seedBranch creates a branch with a funding row carrying the given limit.
func seedBranch(t *testing.T, db *gorm.DB, name, limit string) models.Branch {
	t.Helper()
	branch := models.Branch{Name: name, City: "Colombo", Status: "Active"}
	if err := db.Create(&branch).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	agg := models.BranchInvestment{
		BranchID:            branch.ID,
		TotalInvested:       decimal.Zero,
		InvestmentLimit:     mustDecimal(t, limit),
		IsOpenForInvestment: true,
	}
	if err := db.Create(&agg).Error; err != nil {
		t.Fatalf("seed branch aggregate: %v", err)
	}
	return branch
}

func seedInvestment(t *testing.T, db *gorm.DB, branchID, userID uint, amount string, method string, status models.InvestmentStatus) models.Investment {
	t.Helper()
	inv := models.Investment{
		Reference:     utils.GenerateReference(),
		UserID:        userID,
		BranchID:      branchID,
		Amount:        mustDecimal(t, amount),
		Currency:      "GBP",
		PaymentMethod: method,
		Status:        status,
	}
	if method == models.MethodCard {
		intent := "pi_" + inv.Reference
		inv.PaymentIntentID = &intent
	}
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("seed investment: %v", err)
	}
	return inv
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func reloadInvestment(t *testing.T, db *gorm.DB, id uint) models.Investment {
	t.Helper()
	var inv models.Investment
	if err := db.First(&inv, id).Error; err != nil {
		t.Fatalf("reload investment %d: %v", id, err)
	}
	return inv
}

func reloadAggregate(t *testing.T, db *gorm.DB, branchID uint) models.BranchInvestment {
	t.Helper()
	var agg models.BranchInvestment
	if err := db.Where("branch_id = ?", branchID).First(&agg).Error; err != nil {
		t.Fatalf("reload aggregate for branch %d: %v", branchID, err)
	}
	return agg
}

func auditRows(t *testing.T, db *gorm.DB, investmentID uint) []models.InvestmentTransaction {
	t.Helper()
	var rows []models.InvestmentTransaction
	if err := db.Where("investment_id = ?", investmentID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load audit rows: %v", err)
	}
	return rows
}

// downstreamErr mimics the gateway client's retryable failures (network, 5xx).
type downstreamErr struct{ msg string }

func (e *downstreamErr) Error() string   { return e.msg }
func (e *downstreamErr) Transient() bool { return true }

// fakeGateway is a scripted CardGateway for reconciliation tests.
type fakeGateway struct {
	status      IntentStatus
	raw         string
	err         error
	statusCalls int
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, string, error) {
	return "pi_test", "secret_test", nil
}

func (g *fakeGateway) GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, string, error) {
	g.statusCalls++
	if g.err != nil {
		return "", "", g.err
	}
	return g.status, g.raw, nil
}

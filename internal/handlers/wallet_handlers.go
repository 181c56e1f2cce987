package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// WalletHandler serves the dashboard's read-side: the user-facing ledger
// and aggregate payment stats.
type WalletHandler struct {
	db    *gorm.DB
	cache *services.RedisCache
}

func NewWalletHandler(db *gorm.DB, cache *services.RedisCache) *WalletHandler {
	return &WalletHandler{db: db, cache: cache}
}

// DashboardStats is the aggregate summary shown on the dashboard.
type DashboardStats struct {
	TotalOrders   int64           `json:"total_orders"`
	PaidOrders    int64           `json:"paid_orders"`
	PendingOrders int64           `json:"pending_orders"`
	TotalSent     decimal.Decimal `json:"total_sent"`
	TotalReceived decimal.Decimal `json:"total_received"`
	RewardsEarned decimal.Decimal `json:"rewards_earned"`
}

// Transactions lists the user's ledger, newest first, paginated.
func (h *WalletHandler) Transactions(c echo.Context) error {
	userID := getUintFromContext(c, "userID")

	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.QueryParam("pageSize")); err == nil && ps > 0 && ps <= 100 {
		pageSize = ps
	}

	query := h.db.Model(&models.LedgerTransaction{}).Where("user_id = ?", userID)

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count transactions")
	}

	var transactions []models.LedgerTransaction
	err := query.Order("date desc").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&transactions).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch transactions")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"transactions": transactions,
		"page":         page,
		"page_size":    pageSize,
		"total_count":  totalCount,
	})
}

// Dashboard returns the aggregate stats, cached for a minute per user.
func (h *WalletHandler) Dashboard(c echo.Context) error {
	userID := getUintFromContext(c, "userID")
	ctx := c.Request().Context()

	compute := func() (DashboardStats, error) {
		return h.computeStats(userID)
	}

	var stats DashboardStats
	var err error
	if h.cache != nil {
		key := fmt.Sprintf("dashboard:stats:%d", userID)
		stats, err = services.GetOrSet(h.cache, ctx, key, time.Minute, compute)
	} else {
		stats, err = compute()
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to compute dashboard stats")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func (h *WalletHandler) computeStats(userID uint) (DashboardStats, error) {
	var stats DashboardStats

	orders := h.db.Model(&models.PaymentOrder{}).Where("user_id = ?", userID)
	if err := orders.Count(&stats.TotalOrders).Error; err != nil {
		return stats, err
	}
	// Served by the (user_id, paid) index
	if err := h.db.Model(&models.PaymentOrder{}).
		Where("user_id = ? AND paid = ?", userID, true).
		Count(&stats.PaidOrders).Error; err != nil {
		return stats, err
	}
	if err := h.db.Model(&models.PaymentOrder{}).
		Where("user_id = ? AND paid = ? AND cancelled = ?", userID, false, false).
		Count(&stats.PendingOrders).Error; err != nil {
		return stats, err
	}

	sums := []struct {
		types  []models.LedgerTransactionType
		target *decimal.Decimal
	}{
		{[]models.LedgerTransactionType{models.LedgerTypeSent}, &stats.TotalSent},
		{[]models.LedgerTransactionType{models.LedgerTypeReceived}, &stats.TotalReceived},
		{[]models.LedgerTransactionType{models.LedgerTypeMiningReward, models.LedgerTypeNodeBonus}, &stats.RewardsEarned},
	}
	for _, s := range sums {
		var total decimal.NullDecimal
		err := h.db.Model(&models.LedgerTransaction{}).
			Select("SUM(amount)").
			Where("user_id = ? AND status = ? AND type IN ?", userID, models.LedgerStatusCompleted, s.types).
			Scan(&total).Error
		if err != nil {
			return stats, err
		}
		if total.Valid {
			*s.target = total.Decimal
		} else {
			*s.target = decimal.Zero
		}
	}

	return stats, nil
}

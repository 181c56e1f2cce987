package tasks

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// IssueRewardTaskDef grants an app-to-user reward through the reward
// service. Issuance is keyed by reward_key, so re-running the task after a
// partial failure cannot double-pay.
type IssueRewardTaskDef struct {
	Rewards *services.RewardService
}

// TaskID returns the unique identifier for this task
func (t *IssueRewardTaskDef) TaskID() string {
	return "issue_reward"
}

func (t *IssueRewardTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if t.Rewards == nil {
		return nil, fmt.Errorf("reward service not configured")
	}

	userID, ok := task.Arguments["user_id"].(float64)
	if !ok || userID <= 0 {
		return nil, fmt.Errorf("user_id not provided")
	}
	rewardKey, ok := task.Arguments["reward_key"].(string)
	if !ok || rewardKey == "" {
		return nil, fmt.Errorf("reward_key not provided")
	}
	amountStr, ok := task.Arguments["amount"].(string)
	if !ok || amountStr == "" {
		return nil, fmt.Errorf("amount not provided")
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	rewardType := models.LedgerTypeMiningReward
	if v, ok := task.Arguments["type"].(string); ok && v != "" {
		rewardType = models.LedgerTransactionType(v)
	}
	memo, _ := task.Arguments["memo"].(string)
	if memo == "" {
		memo = "Dashboard reward"
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, uint(userID)).Error; err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", uint(userID), err)
	}

	issuance, err := t.Rewards.Issue(ctx, &user, rewardKey, amount, rewardType, memo)
	if err != nil {
		return nil, fmt.Errorf("reward issuance failed: %w", err)
	}

	return map[string]interface{}{
		"status":     "success",
		"reward_key": rewardKey,
		"issuance":   issuance.ID,
		"state":      string(issuance.Status),
	}, nil
}

// IssueRewardTask is the singleton instance; its dependency is injected by
// DefineTasks.
var IssueRewardTask = &IssueRewardTaskDef{}

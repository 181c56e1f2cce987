package tasks

import (
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// Deps carries the services task handlers need. The worker builds one at
// startup and passes it to DefineTasks.
type Deps struct {
	Pusher   services.PushSender
	Platform services.PiPlatform
	Payments *services.PaymentService
	Rewards  *services.RewardService
}

// DefineTasks injects dependencies and registers all available tasks
func DefineTasks(deps Deps) {
	SendNotificationTask.Pusher = deps.Pusher
	RegisterHandler(SendNotificationTask.TaskID(), SendNotificationTask.HandleExecution)

	ReconcileStalePaymentsTask.Platform = deps.Platform
	ReconcileStalePaymentsTask.Payments = deps.Payments
	ReconcileStalePaymentsTask.Rewards = deps.Rewards
	RegisterHandler(ReconcileStalePaymentsTask.TaskID(), ReconcileStalePaymentsTask.HandleExecution)

	IssueRewardTask.Rewards = deps.Rewards
	RegisterHandler(IssueRewardTask.TaskID(), IssueRewardTask.HandleExecution)
}

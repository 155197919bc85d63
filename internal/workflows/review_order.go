package workflows

import (
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"cod-order-service/internal/events"
	"cod-order-service/internal/modal"
)

const TaskQueue = "COD_REVIEW_TASK_QUEUE"
const ReviewDecisionSignal = "REVIEW_DECISION_SIGNAL"

const (
	QueryReviewCase  = "review_case"
	QueryPendingTask = "pending_task"
	QueryAuditLog    = "audit_log"
)

// ReviewTimeout is how long a flagged draft waits for a merchant decision.
const ReviewTimeout = 72 * time.Hour

const TagExpired = "cod-review-expired"

type workflowState struct {
	Case        modal.ReviewCase   `json:"case"`
	PendingTask *modal.HumanTask   `json:"pendingTask,omitempty"`
	Audit       []modal.AuditEvent `json:"audit,omitempty"`
}

// WorkflowID is the review workflow id for a flagged draft. One review runs
// per draft order.
func WorkflowID(rc modal.ReviewCase) string {
	return "cod-review-" + rc.Shop + "-" + lastSegment(rc.DraftOrderID)
}

func TaskID(rc modal.ReviewCase) string {
	return "review-" + lastSegment(rc.DraftOrderID)
}

func lastSegment(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

// ReviewFlaggedOrder holds a flagged COD draft until a merchant approves it
// (the draft becomes a payment-pending order), rejects it (the draft is
// deleted) or the review times out (the draft is tagged and left alone).
func ReviewFlaggedOrder(ctx workflow.Context, rc modal.ReviewCase) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("review started", "shop", rc.Shop, "draftOrderID", rc.DraftOrderID, "score", rc.Score)

	state := &workflowState{
		Case:  rc,
		Audit: make([]modal.AuditEvent, 0),
	}

	appendAudit := func(kind, message string, data map[string]any) {
		state.Audit = append(state.Audit, modal.AuditEvent{
			At:      workflow.Now(ctx),
			Kind:    kind,
			Message: message,
			Data:    data,
		})
	}

	_ = workflow.SetQueryHandler(ctx, QueryReviewCase, func() (modal.ReviewCase, error) {
		return state.Case, nil
	})

	_ = workflow.SetQueryHandler(ctx, QueryPendingTask, func() (modal.HumanTask, error) {
		if state.PendingTask == nil {
			return modal.HumanTask{}, nil
		}
		return *state.PendingTask, nil
	})

	_ = workflow.SetQueryHandler(ctx, QueryAuditLog, func() ([]modal.AuditEvent, error) {
		return state.Audit, nil
	})

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	appendAudit("CASE_OPENED", "flagged COD order waiting for review", map[string]any{
		"score":   rc.Score,
		"reasons": rc.Reasons,
	})

	task := &modal.HumanTask{
		ID:        TaskID(rc),
		DraftID:   rc.DraftOrderID,
		Type:      "REVIEW_COD_ORDER",
		Title:     "Review flagged COD order " + rc.DraftName,
		Reason:    "Risk score " + strconv.Itoa(rc.Score) + ": " + strings.Join(rc.Reasons, ", "),
		CreatedAt: workflow.Now(ctx),
	}
	state.PendingTask = task
	appendAudit("HUMAN_TASK_CREATED", "review task created", nil)

	var decision modal.TaskDecision
	expired := false

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, ReviewTimeout)

	selector := workflow.NewSelector(ctx)
	sigCh := workflow.GetSignalChannel(ctx, ReviewDecisionSignal)
	selector.AddReceive(sigCh, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &decision)
		if decision.TaskID != task.ID {
			logger.Warn("ignoring decision for another task", "taskID", decision.TaskID)
		}
	})
	selector.AddFuture(timer, func(f workflow.Future) {
		expired = true
	})

	for !expired && decision.TaskID != task.ID {
		selector.Select(ctx)
	}
	cancelTimer()
	state.PendingTask = nil

	if expired {
		appendAudit("EXPIRED", "no decision before the review deadline", nil)
		if err := workflow.ExecuteActivity(ctx, "TagDraft", rc.Shop, rc.DraftOrderID, []string{TagExpired}).Get(ctx, nil); err != nil {
			appendAudit("ERROR", "tagging expired draft failed", map[string]any{"error": err.Error()})
		}
		state.Case.Outcome = string(modal.ReviewExpired)
		return string(modal.ReviewExpired), nil
	}

	appendAudit("DECISION_RECEIVED", "merchant decision received", map[string]any{
		"approved": decision.Approved,
		"decider":  decision.Decider,
		"notes":    decision.Notes,
	})

	event := events.OrderEvent{
		Shop:         rc.Shop,
		SessionID:    rc.SessionID,
		DraftOrderID: rc.DraftOrderID,
		Score:        rc.Score,
		Decision:     modal.DecisionFlag,
		Reasons:      rc.Reasons,
		At:           workflow.Now(ctx),
	}

	if decision.Approved {
		var res modal.DraftOrderResult
		if err := workflow.ExecuteActivity(ctx, "CompleteDraft", rc.Shop, rc.DraftOrderID).Get(ctx, &res); err != nil {
			appendAudit("ERROR", "CompleteDraft failed", map[string]any{"error": err.Error()})
			return "", err
		}
		state.Case.OrderID = res.OrderID
		state.Case.Outcome = string(modal.ReviewApproved)
		appendAudit("ORDER_COMPLETED", "draft completed as payment-pending order", map[string]any{
			"orderId": res.OrderID,
			"name":    res.Name,
		})
		event.Type = events.OrderApproved
		event.OrderID = res.OrderID
		event.Name = res.Name
	} else {
		if err := workflow.ExecuteActivity(ctx, "DeleteDraft", rc.Shop, rc.DraftOrderID).Get(ctx, nil); err != nil {
			appendAudit("ERROR", "DeleteDraft failed", map[string]any{"error": err.Error()})
			return "", err
		}
		state.Case.Outcome = string(modal.ReviewRejected)
		appendAudit("DRAFT_DELETED", "draft deleted after rejection", nil)
		event.Type = events.OrderDeclined
	}

	if err := workflow.ExecuteActivity(ctx, "PublishOrderEvent", event).Get(ctx, nil); err != nil {
		logger.Warn("publishing review outcome failed", "error", err)
	}

	appendAudit("DONE", "review finished", map[string]any{"result": state.Case.Outcome})
	return state.Case.Outcome, nil
}

package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"cod-order-service/internal/modal"
)

// Starter opens review workflows for flagged drafts.
type Starter struct {
	c client.Client
}

func NewStarter(c client.Client) *Starter {
	return &Starter{c: c}
}

// StartReview starts ReviewFlaggedOrder for rc and returns the workflow id.
// Starting the same draft twice is an error.
func (s *Starter) StartReview(ctx context.Context, rc modal.ReviewCase) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:                                       WorkflowID(rc),
		TaskQueue:                                TaskQueue,
		WorkflowExecutionTimeout:                 ReviewTimeout + 24*time.Hour,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	we, err := s.c.ExecuteWorkflow(ctx, opts, ReviewFlaggedOrder, rc)
	if err != nil {
		return "", fmt.Errorf("start review workflow: %w", err)
	}
	return we.GetID(), nil
}

package activities

import (
	"context"
	"errors"
	"net/http"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"cod-order-service/internal/events"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/shopify"
)

// DraftOrders is the slice of the Shopify client the review needs.
type DraftOrders interface {
	CompleteDraftOrder(ctx context.Context, shop, draftOrderID string) (modal.DraftOrderResult, error)
	DeleteDraftOrder(ctx context.Context, shop, draftOrderID string) error
	TagsAdd(ctx context.Context, shop, id string, tags []string) error
}

type Activities struct {
	Shopify DraftOrders
	Events  events.Publisher
	Log     *zap.Logger
}

func (a *Activities) CompleteDraft(ctx context.Context, shop, draftOrderID string) (modal.DraftOrderResult, error) {
	a.logger(ctx).Info("completing reviewed draft", zap.String("shop", shop), zap.String("draft_order_id", draftOrderID))
	res, err := a.Shopify.CompleteDraftOrder(ctx, shop, draftOrderID)
	if err != nil {
		return modal.DraftOrderResult{}, classify(err)
	}
	return res, nil
}

func (a *Activities) DeleteDraft(ctx context.Context, shop, draftOrderID string) error {
	a.logger(ctx).Info("deleting rejected draft", zap.String("shop", shop), zap.String("draft_order_id", draftOrderID))
	return classify(a.Shopify.DeleteDraftOrder(ctx, shop, draftOrderID))
}

func (a *Activities) TagDraft(ctx context.Context, shop, id string, tags []string) error {
	return classify(a.Shopify.TagsAdd(ctx, shop, id, tags))
}

func (a *Activities) PublishOrderEvent(ctx context.Context, e events.OrderEvent) error {
	if a.Events == nil {
		return nil
	}
	return a.Events.PublishOrder(ctx, e)
}

func (a *Activities) logger(ctx context.Context) *zap.Logger {
	l := a.Log
	if l == nil {
		l = zap.NewNop()
	}
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		l = l.With(zap.String("workflow_id", info.WorkflowExecution.ID), zap.Int32("attempt", info.Attempt))
	}
	return l
}

// classify marks Shopify refusals that will not change on retry as
// non-retryable so the workflow sees them at once.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *shopify.APIError
	if errors.As(err, &apiErr) && apiErr.Status != http.StatusTooManyRequests && apiErr.Status < 500 {
		return temporal.NewNonRetryableApplicationError(apiErr.Error(), "ShopifyRejected", err)
	}
	return err
}

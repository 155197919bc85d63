package activities

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"cod-order-service/internal/events"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/shopify"
)

type fakeDrafts struct {
	err     error
	deleted []string
	tags    []string
}

func (f *fakeDrafts) CompleteDraftOrder(_ context.Context, _, id string) (modal.DraftOrderResult, error) {
	if f.err != nil {
		return modal.DraftOrderResult{}, f.err
	}
	return modal.DraftOrderResult{DraftOrderID: id, OrderID: "gid://shopify/Order/5", Name: "#1005"}, nil
}

func (f *fakeDrafts) DeleteDraftOrder(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeDrafts) TagsAdd(_ context.Context, _, _ string, tags []string) error {
	f.tags = append(f.tags, tags...)
	return f.err
}

type fakePublisher struct {
	events.Noop
	orders []events.OrderEvent
}

func (p *fakePublisher) PublishOrder(_ context.Context, e events.OrderEvent) error {
	p.orders = append(p.orders, e)
	return nil
}

func TestCompleteDraft(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Shopify: &fakeDrafts{}}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.CompleteDraft, "demo.myshopify.com", "gid://shopify/DraftOrder/1")
	require.NoError(t, err)
	var res modal.DraftOrderResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "#1005", res.Name)
}

func TestShopifyRefusalIsNotRetried(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Shopify: &fakeDrafts{err: &shopify.APIError{Status: http.StatusNotFound, Messages: []string{"draft not found"}}}}
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.DeleteDraft, "demo.myshopify.com", "gid://shopify/DraftOrder/1")
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, "ShopifyRejected", appErr.Type())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	throttled := &shopify.APIError{Status: http.StatusTooManyRequests}
	assert.Same(t, throttled, classify(throttled))

	down := &shopify.APIError{Status: http.StatusBadGateway}
	assert.Same(t, down, classify(down))

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, classify(&shopify.APIError{Status: http.StatusOK, Messages: []string{"Invalid tag"}}), &appErr)
	assert.True(t, appErr.NonRetryable())

	plain := errors.New("connection reset")
	assert.Same(t, plain, classify(plain))
}

func TestTagAndPublish(t *testing.T) {
	drafts := &fakeDrafts{}
	pub := &fakePublisher{}
	a := &Activities{Shopify: drafts, Events: pub}

	require.NoError(t, a.TagDraft(context.Background(), "demo.myshopify.com", "gid://shopify/DraftOrder/1", []string{"cod-review-expired"}))
	assert.Equal(t, []string{"cod-review-expired"}, drafts.tags)

	require.NoError(t, a.PublishOrderEvent(context.Background(), events.OrderEvent{Type: events.OrderApproved}))
	require.Len(t, pub.orders, 1)

	assert.NoError(t, (&Activities{}).PublishOrderEvent(context.Background(), events.OrderEvent{}))
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/common/v1"
	"go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"cod-order-service/internal/httpapi"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/workflows"
)

type jsonValue struct{ v any }

func (j jsonValue) HasValue() bool { return j.v != nil }
func (j jsonValue) Get(out interface{}) error {
	b, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type fakeTemporal struct {
	queries  []string
	signals  []modal.TaskDecision
	signalTo string
}

func (f *fakeTemporal) ListWorkflow(_ context.Context, req *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error) {
	f.queries = append(f.queries, req.GetQuery())
	return &workflowservice.ListWorkflowExecutionsResponse{
		Executions: []*workflow.WorkflowExecutionInfo{{
			Execution: &common.WorkflowExecution{WorkflowId: "cod-review-demo.myshopify.com-12", RunId: "run-1"},
		}},
	}, nil
}

func (f *fakeTemporal) QueryWorkflow(_ context.Context, _, _ string, queryType string, _ ...interface{}) (converter.EncodedValue, error) {
	switch queryType {
	case workflows.QueryPendingTask:
		return jsonValue{modal.HumanTask{ID: "review-12", Title: "Review flagged COD order #D12", Reason: "Risk score 55: duplicate_phone", CreatedAt: time.Now()}}, nil
	case workflows.QueryReviewCase:
		return jsonValue{modal.ReviewCase{Shop: "demo.myshopify.com", DraftOrderID: "gid://shopify/DraftOrder/12", DraftName: "#D12", Score: 55}}, nil
	default:
		return jsonValue{[]modal.AuditEvent{{At: time.Now(), Kind: "CASE_OPENED", Message: "flagged"}}}, nil
	}
}

func (f *fakeTemporal) SignalWorkflow(_ context.Context, workflowID, _ string, signalName string, arg interface{}) error {
	if signalName == workflows.ReviewDecisionSignal {
		f.signalTo = workflowID
		f.signals = append(f.signals, arg.(modal.TaskDecision))
	}
	return nil
}

func newUI(t *testing.T, shop string) (*fakeTemporal, http.Handler) {
	t.Helper()
	ft := &fakeTemporal{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(httpapi.WithShop(req.Context(), shop)))
		})
	})
	registerUIRoutes(r, ft, zap.NewNop())
	return ft, r
}

func TestUIIndexIsScopedToShop(t *testing.T) {
	ft, h := newUI(t, "demo.myshopify.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Review flagged COD order #D12")
	require.Len(t, ft.queries, 1)
	assert.Contains(t, ft.queries[0], `WorkflowId STARTS_WITH "cod-review-demo.myshopify.com-"`)
}

func TestUIDetailAndDecision(t *testing.T) {
	ft, h := newUI(t, "demo.myshopify.com")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui/wf/cod-review-demo.myshopify.com-12?runId=run-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Review #D12")
	assert.Contains(t, w.Body.String(), "CASE_OPENED")

	form := url.Values{"taskId": {"review-12"}, "approved": {"true"}, "notes": {"called the customer"}}
	r := httptest.NewRequest(http.MethodPost, "/ui/wf/cod-review-demo.myshopify.com-12/decision?runId=run-1", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Len(t, ft.signals, 1)
	assert.Equal(t, "cod-review-demo.myshopify.com-12", ft.signalTo)
	assert.True(t, ft.signals[0].Approved)
	assert.Equal(t, "merchant", ft.signals[0].Decider)
}

func TestUIRefusesOtherShopsWorkflows(t *testing.T) {
	ft, h := newUI(t, "other.myshopify.com")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui/wf/cod-review-demo.myshopify.com-12", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/ui/wf/cod-review-demo.myshopify.com-12/decision",
		strings.NewReader("taskId=review-12&approved=false"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, ft.signals)
}

package main

import (
	"context"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"cod-order-service/internal/httpapi"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/workflows"
)

// reviewClient is the part of the Temporal client the review UI uses.
type reviewClient interface {
	ListWorkflow(ctx context.Context, request *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

type uiServer struct {
	tc  reviewClient
	t   *template.Template
	log *zap.Logger
}

type uiTaskRow struct {
	WorkflowID string
	RunID      string
	Status     string
	Task       modal.HumanTask
}

type uiIndexData struct {
	Shop  string
	Tab   string
	Query string
	Tasks []uiTaskRow
	Hits  []uiTaskRow
	Error string
}

type uiDetailData struct {
	WorkflowID string
	RunID      string
	Case       modal.ReviewCase
	Task       modal.HumanTask
	Audit      []modal.AuditEvent
	Error      string
}

func registerUIRoutes(r chi.Router, tc reviewClient, log *zap.Logger) {
	s := &uiServer{
		tc:  tc,
		t:   template.Must(template.New("base").Parse(uiTemplates)),
		log: log.Named("ui"),
	}

	r.Get("/ui", s.handleIndex)
	r.Get("/ui/wf/{workflowId}", s.handleDetail)
	r.Post("/ui/wf/{workflowId}/decision", s.handleDecision)
}

// shopPrefix is the workflow id prefix of every review belonging to shop.
func shopPrefix(shop string) string {
	return "cod-review-" + shop + "-"
}

// handleIndex lists the shop's open review tasks, or searches its reviews
// by draft order number.
func (s *uiServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	shop := httpapi.ShopFromContext(r.Context())
	tab := r.URL.Query().Get("tab")
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if tab != "search" {
		tab = "tasks"
	}
	data := uiIndexData{Shop: shop, Tab: tab, Query: q}

	prefix := shopPrefix(shop)
	query := `WorkflowId STARTS_WITH "` + prefix + `" AND ExecutionStatus = "Running"`
	if tab == "search" {
		if q == "" || strings.ContainsAny(q, `"\`) {
			s.render(w, "index", data)
			return
		}
		query = `WorkflowId STARTS_WITH "` + prefix + q + `"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	resp, err := s.tc.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
		Query:    query,
		PageSize: 200,
	})
	if err != nil {
		s.log.Warn("listing review workflows failed", zap.String("shop", shop), zap.Error(err))
		data.Error = "Could not load reviews."
		s.render(w, "index", data)
		return
	}

	for _, ex := range resp.GetExecutions() {
		if ex.GetExecution() == nil {
			continue
		}
		row := uiTaskRow{
			WorkflowID: ex.GetExecution().GetWorkflowId(),
			RunID:      ex.GetExecution().GetRunId(),
			Status:     ex.GetStatus().String(),
		}
		if tab == "search" {
			data.Hits = append(data.Hits, row)
			continue
		}
		task, err := s.queryPendingTask(r.Context(), row.WorkflowID, row.RunID)
		if err != nil || task.ID == "" {
			continue
		}
		row.Task = task
		data.Tasks = append(data.Tasks, row)
		if len(data.Tasks) >= 100 {
			break
		}
	}

	s.render(w, "index", data)
}

func (s *uiServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workflowId")
	rid := r.URL.Query().Get("runId")
	if !strings.HasPrefix(wid, shopPrefix(httpapi.ShopFromContext(r.Context()))) {
		http.NotFound(w, r)
		return
	}

	data := uiDetailData{WorkflowID: wid, RunID: rid}
	rc, err := s.queryReviewCase(r.Context(), wid, rid)
	if err != nil {
		s.log.Warn("querying review case failed", zap.String("workflow_id", wid), zap.Error(err))
		data.Error = "Could not load this review."
		s.render(w, "detail", data)
		return
	}
	data.Case = rc
	data.Task, _ = s.queryPendingTask(r.Context(), wid, rid)
	data.Audit, _ = s.queryAudit(r.Context(), wid, rid)

	s.render(w, "detail", data)
}

// handleDecision signals the merchant's approve or reject decision.
func (s *uiServer) handleDecision(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workflowId")
	rid := r.URL.Query().Get("runId")
	shop := httpapi.ShopFromContext(r.Context())
	if !strings.HasPrefix(wid, shopPrefix(shop)) {
		http.NotFound(w, r)
		return
	}

	decider := strings.TrimSpace(r.FormValue("decider"))
	if decider == "" {
		decider = "merchant"
	}
	d := modal.TaskDecision{
		TaskID:    r.FormValue("taskId"),
		Approved:  r.FormValue("approved") == "true",
		Notes:     r.FormValue("notes"),
		Decider:   decider,
		DecidedAt: time.Now().UTC(),
	}
	if d.TaskID == "" {
		http.Error(w, "taskId is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.tc.SignalWorkflow(ctx, wid, rid, workflows.ReviewDecisionSignal, d); err != nil {
		s.log.Error("signalling review decision failed", zap.String("workflow_id", wid), zap.Error(err))
		http.Error(w, "could not record the decision", http.StatusBadGateway)
		return
	}
	s.log.Info("review decision sent",
		zap.String("shop", shop),
		zap.String("workflow_id", wid),
		zap.Bool("approved", d.Approved),
		zap.String("decider", d.Decider))

	http.Redirect(w, r, "/ui/wf/"+wid+"?runId="+rid, http.StatusSeeOther)
}

func (s *uiServer) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.t.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("rendering template failed", zap.String("template", name), zap.Error(err))
	}
}

func (s *uiServer) query(ctx context.Context, wid, rid, queryType string, out any) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	v, err := s.tc.QueryWorkflow(cctx, wid, rid, queryType)
	if err != nil {
		return err
	}
	return v.Get(out)
}

func (s *uiServer) queryReviewCase(ctx context.Context, wid, rid string) (modal.ReviewCase, error) {
	var rc modal.ReviewCase
	return rc, s.query(ctx, wid, rid, workflows.QueryReviewCase, &rc)
}

func (s *uiServer) queryPendingTask(ctx context.Context, wid, rid string) (modal.HumanTask, error) {
	var t modal.HumanTask
	return t, s.query(ctx, wid, rid, workflows.QueryPendingTask, &t)
}

func (s *uiServer) queryAudit(ctx context.Context, wid, rid string) ([]modal.AuditEvent, error) {
	var events []modal.AuditEvent
	return events, s.query(ctx, wid, rid, workflows.QueryAuditLog, &events)
}

const uiTemplates = `
{{define "index"}}
<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>COD reviews</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    .tabs a { margin-right: 12px; }
    table { border-collapse: collapse; width: 100%; margin-top: 12px; }
    th, td { border: 1px solid #ddd; padding: 8px; }
    .err { color: #b00020; }
    .muted { color: #666; }
  </style>
</head>
<body>
  <h2>COD orders waiting for review</h2>
  <p class="muted">{{.Shop}}</p>

  <div class="tabs">
    <a href="/ui?tab=tasks">To review</a>
    <a href="/ui?tab=search">Search</a>
  </div>

  {{if .Error}}<p class="err">{{.Error}}</p>{{end}}

  {{if eq .Tab "tasks"}}
    <table>
      <thead><tr><th>Draft</th><th>Why</th><th>Flagged</th><th></th></tr></thead>
      <tbody>
      {{range .Tasks}}
        <tr>
          <td>{{.Task.Title}}</td>
          <td>{{.Task.Reason}}</td>
          <td>{{.Task.CreatedAt.Format "2006-01-02 15:04"}}</td>
          <td><a href="/ui/wf/{{.WorkflowID}}?runId={{.RunID}}">Open</a></td>
        </tr>
      {{else}}
        <tr><td colspan="4" class="muted">Nothing to review.</td></tr>
      {{end}}
      </tbody>
    </table>
  {{else}}
    <form method="get" action="/ui">
      <input type="hidden" name="tab" value="search"/>
      <input name="q" placeholder="draft order number" value="{{.Query}}" style="width: 320px;"/>
      <button type="submit">Search</button>
    </form>

    {{if .Query}}
      <table>
        <thead><tr><th>Workflow</th><th>Status</th></tr></thead>
        <tbody>
        {{range .Hits}}
          <tr>
            <td><a href="/ui/wf/{{.WorkflowID}}?runId={{.RunID}}">{{.WorkflowID}}</a></td>
            <td>{{.Status}}</td>
          </tr>
        {{end}}
        </tbody>
      </table>
    {{end}}
  {{end}}
</body>
</html>
{{end}}

{{define "detail"}}
<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>COD review</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    .err { color: #b00020; }
    table { border-collapse: collapse; width: 100%; margin-top: 12px; }
    th, td { border: 1px solid #ddd; padding: 8px; }
  </style>
</head>
<body>
  <a href="/ui">Back</a>
  <h2>Review {{.Case.DraftName}}</h2>

  {{if .Error}}<p class="err">{{.Error}}</p>{{end}}

  {{with .Case}}
  <table>
    <tr><th>Customer</th><td>{{.CustomerName}}</td></tr>
    <tr><th>Phone</th><td>{{.Phone}}</td></tr>
    <tr><th>Risk score</th><td>{{.Score}}</td></tr>
    <tr><th>Reasons</th><td>{{range $i, $r := .Reasons}}{{if $i}}, {{end}}{{$r}}{{end}}</td></tr>
    <tr><th>Draft order</th><td>{{.DraftOrderID}}</td></tr>
    {{if .OrderID}}<tr><th>Order</th><td>{{.OrderID}}</td></tr>{{end}}
    {{if .Outcome}}<tr><th>Outcome</th><td>{{.Outcome}}</td></tr>{{end}}
  </table>
  {{end}}

  <h3>Decision</h3>
  {{if .Task.ID}}
    <p><b>{{.Task.Title}}</b><br/>{{.Task.Reason}}</p>
    <form method="post" action="/ui/wf/{{.WorkflowID}}/decision?runId={{.RunID}}">
      <input type="hidden" name="taskId" value="{{.Task.ID}}"/>
      <label>Your name: <input name="decider"/></label><br/><br/>
      <label>Notes:<br/><textarea name="notes" rows="3" cols="80"></textarea></label><br/><br/>
      <button name="approved" value="true" type="submit">Confirm order</button>
      <button name="approved" value="false" type="submit">Cancel draft</button>
    </form>
  {{else}}
    <p>(No decision pending)</p>
  {{end}}

  <h3>History</h3>
  <table>
    <thead><tr><th>Time</th><th>Kind</th><th>Message</th></tr></thead>
    <tbody>
      {{range .Audit}}
        <tr>
          <td>{{.At.Format "2006-01-02 15:04:05"}}</td>
          <td>{{.Kind}}</td>
          <td>{{.Message}}</td>
        </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
{{end}}
`

// Package submit runs one COD submission from parsed request to draft order.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"cod-order-service/internal/events"
	"cod-order-service/internal/intake"
	"cod-order-service/internal/modal"
)

type Scorer interface {
	Score(ctx context.Context, req modal.OrderRequest) (modal.RiskAssessment, error)
}

type HistoryRecorder interface {
	RecordSubmission(ctx context.Context, s modal.Submission) error
}

type DraftCreator interface {
	CreateDraftOrder(ctx context.Context, req modal.OrderRequest, a modal.RiskAssessment) modal.DraftOrderResult
}

type CartRecorder interface {
	RecordAbandonment(ctx context.Context, shop, sessionID string, c modal.Contact, cart, form json.RawMessage) (modal.AbandonedCartRecord, error)
	MarkRecovered(ctx context.Context, shop, sessionID, draftOrderID string) (bool, error)
}

type ReviewStarter interface {
	StartReview(ctx context.Context, rc modal.ReviewCase) (string, error)
}

// Deps are the collaborators of a Service. History, Reviews and Events may
// be nil.
type Deps struct {
	Scorer  Scorer
	History []HistoryRecorder
	Drafts  DraftCreator
	Carts   CartRecorder
	Reviews ReviewStarter
	Events  events.Publisher
	Log     *zap.Logger
}

type Service struct {
	scorer  Scorer
	history []HistoryRecorder
	drafts  DraftCreator
	carts   CartRecorder
	reviews ReviewStarter
	events  events.Publisher
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		scorer:  d.Scorer,
		history: d.History,
		drafts:  d.Drafts,
		carts:   d.Carts,
		reviews: d.Reviews,
		events:  d.Events,
		log:     d.Log,
		tracer:  otel.Tracer("cod-order-service/submit"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Submit handles a submission whose signature has already been verified.
// A rejected order never reaches the draft creator.
func (s *Service) Submit(ctx context.Context, r *http.Request) Outcome {
	ctx, span := s.tracer.Start(ctx, "cod.submit")
	defer span.End()

	out := Outcome{Stage: StageValidated}

	req, err := intake.Parse(r)
	if err != nil {
		out.Err = err
		span.SetStatus(codes.Error, "invalid submission")
		return out
	}
	out.Request = req
	out.Stage = StageParsed
	span.SetAttributes(attribute.String("cod.shop", req.Shop), attribute.String("cod.session_id", req.SessionID))
	log := s.log.With(zap.String("shop", req.Shop), zap.String("session_id", req.SessionID))

	s.snapshotCart(ctx, log, req)

	out.Assessment = s.score(ctx, log, req)
	out.Stage = StageScored
	span.SetAttributes(attribute.Int("cod.risk_score", out.Assessment.Score), attribute.String("cod.decision", string(out.Assessment.Decision)))
	s.recordHistory(ctx, log, req, out.Assessment)

	if out.Assessment.Rejected() {
		out.Stage = StageRejected
		log.Info("submission rejected", zap.Int("score", out.Assessment.Score), zap.Strings("reasons", out.Assessment.Reasons))
		s.publishOrder(ctx, log, events.OrderRejected, out)
		return out
	}

	out.Stage = StageCreating
	out.Result = s.createDraft(ctx, req, out.Assessment)
	if !out.Result.OK() {
		cause := out.Result.Err
		if cause == nil {
			cause = errors.New("draft order has no id")
		}
		out.Err = &UpstreamError{Err: cause}
		out.Stage = StageCreateFailed
		span.RecordError(cause)
		span.SetStatus(codes.Error, "draft order failed")
		log.Error("draft order creation failed", zap.Error(cause))
		s.publishOrder(ctx, log, events.OrderFailed, out)
		return out
	}
	out.Stage = StageCreated
	log.Info("draft order created",
		zap.String("draft_order_id", out.Result.DraftOrderID),
		zap.String("order_id", out.Result.OrderID),
		zap.String("decision", string(out.Assessment.Decision)))

	kind := events.OrderCreated
	if out.Result.Flagged {
		kind = events.OrderFlagged
	}
	s.publishOrder(ctx, log, kind, out)

	if s.markRecovered(ctx, log, req, out.Result.DraftOrderID) {
		out.Stage = StageRecoveredMarked
	}
	if out.Result.Flagged {
		out.ReviewWorkflowID = s.startReview(ctx, log, req, out)
	}
	return out
}

func (s *Service) score(ctx context.Context, log *zap.Logger, req modal.OrderRequest) modal.RiskAssessment {
	ctx, span := s.tracer.Start(ctx, "cod.score")
	defer span.End()

	a, err := s.scorer.Score(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Warn("risk history unavailable, scoring without it", zap.Error(err))
	}
	return a
}

func (s *Service) createDraft(ctx context.Context, req modal.OrderRequest, a modal.RiskAssessment) modal.DraftOrderResult {
	ctx, span := s.tracer.Start(ctx, "cod.create_draft_order")
	defer span.End()

	res := s.drafts.CreateDraftOrder(ctx, req, a)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "shopify call failed")
	}
	return res
}

func (s *Service) snapshotCart(ctx context.Context, log *zap.Logger, req modal.OrderRequest) {
	if s.carts == nil {
		return
	}
	if _, err := s.carts.RecordAbandonment(ctx, req.Shop, req.SessionID, req.Customer, req.RawCart, req.RawForm); err != nil {
		log.Warn("abandoned cart snapshot failed", zap.Error(err))
	}
}

func (s *Service) recordHistory(ctx context.Context, log *zap.Logger, req modal.OrderRequest, a modal.RiskAssessment) {
	sub := modal.Submission{
		ID:        uuid.NewString(),
		Shop:      req.Shop,
		SessionID: req.SessionID,
		Phone:     modal.CanonicalPhone(req.Customer.Phone),
		ClientIP:  req.ClientIP,
		Score:     a.Score,
		Decision:  a.Decision,
		CreatedAt: s.now(),
	}
	for _, h := range s.history {
		if err := h.RecordSubmission(ctx, sub); err != nil {
			log.Warn("recording submission history failed", zap.Error(err))
		}
	}
}

func (s *Service) markRecovered(ctx context.Context, log *zap.Logger, req modal.OrderRequest, draftOrderID string) bool {
	if s.carts == nil {
		return false
	}
	found, err := s.carts.MarkRecovered(ctx, req.Shop, req.SessionID, draftOrderID)
	if err != nil {
		log.Warn("marking cart recovered failed", zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	if err := s.events.PublishCart(ctx, events.CartEvent{
		Type:         events.CartRecovered,
		Shop:         req.Shop,
		SessionID:    req.SessionID,
		DraftOrderID: draftOrderID,
		At:           s.now(),
	}); err != nil {
		log.Warn("publishing cart event failed", zap.Error(err))
	}
	return true
}

func (s *Service) startReview(ctx context.Context, log *zap.Logger, req modal.OrderRequest, out Outcome) string {
	if s.reviews == nil {
		return ""
	}
	id, err := s.reviews.StartReview(ctx, modal.ReviewCase{
		Shop:         req.Shop,
		SessionID:    req.SessionID,
		DraftOrderID: out.Result.DraftOrderID,
		DraftName:    out.Result.Name,
		CustomerName: req.Customer.Name,
		Phone:        req.Customer.Phone,
		Score:        out.Assessment.Score,
		Reasons:      out.Assessment.Reasons,
		FlaggedAt:    s.now(),
	})
	if err != nil {
		log.Warn("starting review workflow failed", zap.String("draft_order_id", out.Result.DraftOrderID), zap.Error(err))
		return ""
	}
	return id
}

func (s *Service) publishOrder(ctx context.Context, log *zap.Logger, kind string, out Outcome) {
	err := s.events.PublishOrder(ctx, events.OrderEvent{
		Type:         kind,
		Shop:         out.Request.Shop,
		SessionID:    out.Request.SessionID,
		DraftOrderID: out.Result.DraftOrderID,
		OrderID:      out.Result.OrderID,
		Name:         out.Result.Name,
		Score:        out.Assessment.Score,
		Decision:     out.Assessment.Decision,
		Reasons:      out.Assessment.Reasons,
		At:           s.now(),
	})
	if err != nil {
		log.Warn("publishing order event failed", zap.String("type", kind), zap.Error(err))
	}
}

// RecordAbandonment stores an abandoned-cart snapshot sent by the storefront.
func (s *Service) RecordAbandonment(ctx context.Context, a intake.Abandonment) (modal.AbandonedCartRecord, error) {
	ctx, span := s.tracer.Start(ctx, "cod.record_abandonment")
	defer span.End()

	rec, err := s.carts.RecordAbandonment(ctx, a.Shop, a.SessionID, a.Contact, a.CartData, a.FormData)
	if err != nil {
		span.RecordError(err)
		return modal.AbandonedCartRecord{}, err
	}
	if err := s.events.PublishCart(ctx, events.CartEvent{
		Type:      events.CartAbandoned,
		Shop:      rec.Shop,
		SessionID: rec.SessionID,
		CartID:    rec.ID,
		At:        s.now(),
	}); err != nil {
		s.log.Warn("publishing cart event failed", zap.String("shop", a.Shop), zap.Error(err))
	}
	return rec, nil
}

package submit

import (
	"errors"
	"fmt"

	"cod-order-service/internal/modal"
)

// Stage is how far a submission got.
type Stage string

const (
	StageReceived        Stage = "received"
	StageValidated       Stage = "validated"
	StageParsed          Stage = "parsed"
	StageScored          Stage = "scored"
	StageRejected        Stage = "rejected"
	StageCreating        Stage = "creating"
	StageCreated         Stage = "created"
	StageCreateFailed    Stage = "create_failed"
	StageRecoveredMarked Stage = "recovered_marked"
	StageResponded       Stage = "responded"
)

// ErrAuthentication means the App Proxy signature did not verify.
var ErrAuthentication = errors.New("invalid app proxy signature")

// UpstreamError wraps a Shopify failure. Its text is for logs only.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("upstream: %v", e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Outcome is everything the response composer needs about one submission.
type Outcome struct {
	Stage      Stage
	Request    modal.OrderRequest
	Assessment modal.RiskAssessment
	Result     modal.DraftOrderResult

	// ReviewWorkflowID is set when a flagged order was handed to review.
	ReviewWorkflowID string

	// Err is an *intake.Error, ErrAuthentication or an *UpstreamError.
	Err error
}

func (o Outcome) Rejected() bool { return o.Err == nil && o.Assessment.Rejected() }

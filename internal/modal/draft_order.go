package modal

// DraftOrderResult carries the platform's identifiers and statuses verbatim,
// or Err when the platform refused or could not be reached.
type DraftOrderResult struct {
	DraftOrderID      string `json:"draftOrderId,omitempty"`
	OrderID           string `json:"orderId,omitempty"`
	Name              string `json:"name,omitempty"`
	Status            string `json:"status,omitempty"`
	FinancialStatus   string `json:"financialStatus,omitempty"`
	FulfillmentStatus string `json:"fulfillmentStatus,omitempty"`
	Flagged           bool   `json:"flagged"`

	Err error `json:"-"`
}

func (r DraftOrderResult) OK() bool { return r.Err == nil && r.DraftOrderID != "" }

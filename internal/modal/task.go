package modal

import "time"

// ReviewCase is what a merchant sees when deciding on a flagged COD order.
type ReviewCase struct {
	Shop         string    `json:"shop"`
	SessionID    string    `json:"sessionId"`
	DraftOrderID string    `json:"draftOrderId"`
	DraftName    string    `json:"draftName"`
	CustomerName string    `json:"customerName,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Score        int       `json:"score"`
	Reasons      []string  `json:"reasons,omitempty"`
	OrderID      string    `json:"orderId,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	FlaggedAt    time.Time `json:"flaggedAt"`
}

type HumanTask struct {
	ID        string    `json:"id"`
	DraftID   string    `json:"draftId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

type TaskDecision struct {
	TaskID    string    `json:"taskId"`
	Approved  bool      `json:"approved"`
	Notes     string    `json:"notes"`
	DecidedAt time.Time `json:"decidedAt"`
	Decider   string    `json:"decider"`
}

type AuditEvent struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

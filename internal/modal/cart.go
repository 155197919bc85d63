package modal

import (
	"encoding/json"
	"time"
)

type AbandonedCartRecord struct {
	ID            string          `json:"id"`
	Shop          string          `json:"shop"`
	SessionID     string          `json:"sessionId"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
	CartData      json.RawMessage `json:"cartData,omitempty"`
	FormData      json.RawMessage `json:"formData,omitempty"`
	IsRecovered   bool            `json:"isRecovered"`
	DraftOrderID  string          `json:"draftOrderId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Submission is the history row the velocity rules count against.
type Submission struct {
	ID        string    `json:"id"`
	Shop      string    `json:"shop"`
	SessionID string    `json:"sessionId"`
	Phone     string    `json:"phone,omitempty"`
	ClientIP  string    `json:"clientIp,omitempty"`
	Score     int       `json:"score"`
	Decision  Decision  `json:"decision"`
	CreatedAt time.Time `json:"createdAt"`
}

type Location struct {
	WilayaCode string `json:"wilayaCode"`
	WilayaName string `json:"wilayaName"`
	Commune    string `json:"commune,omitempty"`
}

type WilayaSummary struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Communes int    `json:"communes"`
}

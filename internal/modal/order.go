package modal

import (
	"math"
	"time"
)

// OrderRequest is one normalized COD submission. It is built once by intake
// and never mutated afterwards.
type OrderRequest struct {
	Shop      string     `json:"shop"`
	SessionID string     `json:"sessionId"`
	Customer  Contact    `json:"customer"`
	Address   Address    `json:"address"`
	LineItems []LineItem `json:"lineItems"`
	Note      string     `json:"note,omitempty"`

	// ReturnTo is the storefront path to redirect to; empty means JSON.
	ReturnTo string `json:"returnTo,omitempty"`
	ClientIP string `json:"clientIp,omitempty"`

	RawCart    []byte    `json:"-"`
	RawForm    []byte    `json:"-"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	Address1     string `json:"address1"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city,omitempty"`
	Province     string `json:"province,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	Zip          string `json:"zip,omitempty"`
	CountryCode  string `json:"countryCode"`
}

type LineItem struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title,omitempty"`
}

// TotalQuantity sums quantities across all line items, saturating at
// math.MaxInt.
func (o OrderRequest) TotalQuantity() int {
	n := 0
	for _, li := range o.LineItems {
		if li.Quantity > 0 && n > math.MaxInt-li.Quantity {
			return math.MaxInt
		}
		n += li.Quantity
	}
	return n
}

package intake

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"cod-order-service/internal/modal"
)

// Abandonment is one cart-tracking signal from the storefront.
type Abandonment struct {
	Shop      string
	SessionID string
	Contact   modal.Contact
	CartData  json.RawMessage
	FormData  json.RawMessage
}

type abandonmentPayload struct {
	SessionID     string          `json:"sessionId"`
	CustomerEmail string          `json:"customerEmail"`
	CustomerPhone string          `json:"customerPhone"`
	CustomerName  string          `json:"customerName"`
	CartData      json.RawMessage `json:"cartData"`
	FormData      json.RawMessage `json:"formData"`
}

// ParseAbandonment reads a JSON cart-tracking body.
func ParseAbandonment(r *http.Request) (Abandonment, error) {
	shop := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("shop")))
	if shop == "" {
		return Abandonment{}, fail(CodeMissingShop, "missing shop")
	}

	body, err := readBody(r)
	if err != nil {
		return Abandonment{}, err
	}
	var p abandonmentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Abandonment{}, fail(CodeInvalidJSON, "request body is not valid JSON")
	}
	if strings.TrimSpace(p.SessionID) == "" {
		return Abandonment{}, fail(CodeMissingSession, "sessionId is required")
	}

	return Abandonment{
		Shop:      shop,
		SessionID: strings.TrimSpace(p.SessionID),
		Contact: modal.Contact{
			Name:  strings.Join(strings.Fields(p.CustomerName), " "),
			Email: strings.ToLower(strings.TrimSpace(p.CustomerEmail)),
			Phone: NormalizePhone(p.CustomerPhone),
		},
		CartData: snapshot(p.CartData),
		FormData: snapshot(p.FormData),
	}, nil
}

// snapshot keeps a JSON value as-is and unwraps a JSON-encoded string that
// itself holds JSON. Anything else stays a plain JSON string.
func snapshot(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	if inner := []byte(strings.TrimSpace(s)); json.Valid(inner) && len(inner) > 0 && (inner[0] == '{' || inner[0] == '[') {
		return inner
	}
	return raw
}

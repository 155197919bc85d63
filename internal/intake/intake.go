// Package intake turns storefront COD submissions into modal.OrderRequest.
package intake

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cod-order-service/internal/modal"
)

// MaxBodyBytes caps every submission body.
const MaxBodyBytes = 1 << 20

// MaxLineQuantity is the largest quantity Shopify's 32-bit Int accepts.
const MaxLineQuantity = math.MaxInt32

// payload is the JSON shape; form bodies are mapped onto it field by field.
type payload struct {
	SessionID      string          `json:"sessionId"`
	SessionIDSnake string          `json:"session_id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Customer       *modal.Contact  `json:"customer"`
	Address1       string          `json:"address1"`
	Address2       string          `json:"address2"`
	City           string          `json:"city"`
	Commune        string          `json:"commune"`
	Province       string          `json:"province"`
	Wilaya         string          `json:"wilaya"`
	ProvinceCode   string          `json:"province_code"`
	Zip            string          `json:"zip"`
	Address        *modal.Address  `json:"address"`
	Cart           json.RawMessage `json:"cart"`
	LineItems      json.RawMessage `json:"lineItems"`
	LineItemsSnake json.RawMessage `json:"line_items"`
	Note           string          `json:"note"`
	ReturnTo       string          `json:"returnTo"`
	ReturnToSnake  string          `json:"return_to"`
}

type cartItem struct {
	VariantID  flexID `json:"variant_id"`
	VariantAlt flexID `json:"variantId"`
	ID         flexID `json:"id"`
	Quantity   int    `json:"quantity"`
	Title      string `json:"title"`
}

type cartObject struct {
	Items []cartItem `json:"items"`
}

// flexID accepts numbers and strings; Shopify's cart.js sends numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Parse reads the submission in r. The shop comes from the query string the
// platform injected; everything else from the body.
func Parse(r *http.Request) (modal.OrderRequest, error) {
	shop := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("shop")))
	if shop == "" {
		return modal.OrderRequest{}, fail(CodeMissingShop, "missing shop")
	}

	p, rawForm, err := readPayload(r)
	if err != nil {
		return modal.OrderRequest{}, err
	}

	req, err := build(shop, p)
	if err != nil {
		return modal.OrderRequest{}, err
	}
	req.RawForm = rawForm
	req.ClientIP = ClientIP(r)
	req.ReceivedAt = time.Now().UTC()
	return req, nil
}

func readPayload(r *http.Request) (payload, []byte, error) {
	var p payload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return p, nil, fail(CodeInvalidForm, "could not read form body")
		}
		return fromForm(url.Values(r.MultipartForm.Value))
	}

	body, err := readBody(r)
	if err != nil {
		return p, nil, err
	}

	// Storefront fetch and sendBeacon calls often send JSON as text/plain
	// to skip the CORS preflight.
	sniffable := mediaType == "" || mediaType == "text/plain"
	isJSON := mediaType == "application/json" || (sniffable && body[0] == '{')
	if isJSON {
		if err := json.Unmarshal(body, &p); err != nil {
			return p, nil, fail(CodeInvalidJSON, "request body is not valid JSON")
		}
		return p, body, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return p, nil, fail(CodeInvalidForm, "could not read form body")
	}
	return fromForm(values)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fail(CodeEmptyBody, "empty request body")
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fail(CodeInvalidForm, "could not read request body")
	}
	if len(body) > MaxBodyBytes {
		return nil, fail(CodeBodyTooLarge, "request body too large")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fail(CodeEmptyBody, "empty request body")
	}
	return body, nil
}

func fromForm(v url.Values) (payload, []byte, error) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if s := strings.TrimSpace(v.Get(k)); s != "" {
				return s
			}
		}
		return ""
	}
	p := payload{
		SessionID:    first("session_id", "sessionId"),
		Name:         first("name", "customer_name", "full_name"),
		Email:        first("email", "customer_email"),
		Phone:        first("phone", "customer_phone"),
		Address1:     first("address1", "address"),
		Address2:     first("address2"),
		City:         first("city", "commune"),
		Province:     first("province", "wilaya"),
		ProvinceCode: first("province_code", "wilaya_code"),
		Zip:          first("zip"),
		Note:         first("note"),
		ReturnTo:     first("return_to", "returnTo"),
	}
	if s := first("cart"); s != "" {
		p.Cart = json.RawMessage(s)
	}
	if s := first("line_items", "lineItems"); s != "" {
		p.LineItems = json.RawMessage(s)
	}

	snapshot := make(map[string]string, len(v))
	for k := range v {
		snapshot[k] = v.Get(k)
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return p, nil, fail(CodeInvalidForm, "could not read form body")
	}
	return p, raw, nil
}

func build(shop string, p payload) (modal.OrderRequest, error) {
	req := modal.OrderRequest{
		Shop:      shop,
		SessionID: firstNonEmpty(p.SessionID, p.SessionIDSnake),
		Note:      strings.TrimSpace(p.Note),
		ReturnTo:  firstNonEmpty(p.ReturnTo, p.ReturnToSnake),
	}
	if req.SessionID == "" {
		return modal.OrderRequest{}, fail(CodeMissingSession, "session id is required")
	}

	req.Customer = modal.Contact{Name: p.Name, Email: p.Email, Phone: p.Phone}
	if c := p.Customer; c != nil {
		req.Customer.Name = firstNonEmpty(req.Customer.Name, c.Name)
		req.Customer.Email = firstNonEmpty(req.Customer.Email, c.Email)
		req.Customer.Phone = firstNonEmpty(req.Customer.Phone, c.Phone)
	}
	req.Customer.Name = strings.Join(strings.Fields(req.Customer.Name), " ")
	req.Customer.Email = strings.ToLower(strings.TrimSpace(req.Customer.Email))
	req.Customer.Phone = NormalizePhone(req.Customer.Phone)
	if req.Customer.Email == "" && req.Customer.Phone == "" {
		return modal.OrderRequest{}, fail(CodeMissingContact, "an email or phone number is required")
	}
	if req.Customer.Email != "" && !strings.Contains(req.Customer.Email, "@") {
		return modal.OrderRequest{}, fail(CodeInvalidEmail, "email address is not valid")
	}

	req.Address = buildAddress(p)

	items, raw, err := lineItems(p)
	if err != nil {
		return modal.OrderRequest{}, err
	}
	if len(items) == 0 {
		return modal.OrderRequest{}, fail(CodeMissingLineItems, "at least one line item is required")
	}
	req.LineItems = items
	req.RawCart = raw
	return req, nil
}

func buildAddress(p payload) modal.Address {
	a := modal.Address{
		Address1:     p.Address1,
		Address2:     p.Address2,
		City:         firstNonEmpty(p.City, p.Commune),
		Province:     firstNonEmpty(p.Province, p.Wilaya),
		ProvinceCode: p.ProvinceCode,
		Zip:          p.Zip,
	}
	if n := p.Address; n != nil {
		a.Address1 = firstNonEmpty(a.Address1, n.Address1)
		a.Address2 = firstNonEmpty(a.Address2, n.Address2)
		a.City = firstNonEmpty(a.City, n.City)
		a.Province = firstNonEmpty(a.Province, n.Province)
		a.ProvinceCode = firstNonEmpty(a.ProvinceCode, n.ProvinceCode)
		a.Zip = firstNonEmpty(a.Zip, n.Zip)
		a.CountryCode = strings.ToUpper(strings.TrimSpace(n.CountryCode))
	}
	a.Address1 = strings.TrimSpace(a.Address1)
	a.Address2 = strings.TrimSpace(a.Address2)
	a.City = strings.TrimSpace(a.City)
	a.Zip = strings.TrimSpace(a.Zip)

	code, name := splitWilaya(a.Province)
	a.Province = name
	if a.ProvinceCode == "" {
		a.ProvinceCode = code
	}
	a.ProvinceCode = padWilaya(a.ProvinceCode)
	if a.CountryCode == "" {
		a.CountryCode = "DZ"
	}
	return a
}

// lineItems prefers an explicit line item list over the cart snapshot.
func lineItems(p payload) ([]modal.LineItem, []byte, error) {
	raw := p.LineItems
	if len(raw) == 0 {
		raw = p.LineItemsSnake
	}
	if len(raw) == 0 {
		raw = p.Cart
	}
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, nil
	}

	// A cart posted as a JSON string inside a JSON body.
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, fail(CodeInvalidCartJSON, "cart is not valid JSON")
		}
		raw = json.RawMessage(strings.TrimSpace(s))
		if len(raw) == 0 {
			return nil, nil, nil
		}
	}

	var items []cartItem
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, fail(CodeInvalidCartJSON, "cart is not valid JSON")
		}
	case '{':
		var obj cartObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, nil, fail(CodeInvalidCartJSON, "cart is not valid JSON")
		}
		items = obj.Items
	default:
		return nil, nil, fail(CodeInvalidCartJSON, "cart is not valid JSON")
	}

	out := make([]modal.LineItem, 0, len(items))
	for i, it := range items {
		id := string(firstNonEmptyID(it.VariantID, it.VariantAlt, it.ID))
		if id == "" {
			return nil, nil, fail(CodeInvalidLineItem, "line item "+strconv.Itoa(i+1)+" has no variant id")
		}
		if it.Quantity <= 0 {
			return nil, nil, fail(CodeInvalidLineItem, "line item "+strconv.Itoa(i+1)+" has no quantity")
		}
		if it.Quantity > MaxLineQuantity {
			return nil, nil, fail(CodeInvalidLineItem, "line item "+strconv.Itoa(i+1)+" quantity is too large")
		}
		out = append(out, modal.LineItem{VariantID: id, Quantity: it.Quantity, Title: strings.TrimSpace(it.Title)})
	}
	return out, []byte(raw), nil
}

// NormalizePhone returns phone in the canonical form submissions and
// carts are keyed by.
func NormalizePhone(phone string) string {
	return modal.CanonicalPhone(phone)
}

// splitWilaya turns "16 - Alger" into ("16", "Alger").
func splitWilaya(v string) (string, string) {
	v = strings.TrimSpace(v)
	i := 0
	for i < len(v) && v[i] >= '0' && v[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", v
	}
	name := strings.TrimSpace(strings.TrimLeft(v[i:], " -–:"))
	return v[:i], name
}

func padWilaya(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 1 && code[0] >= '0' && code[0] <= '9' {
		return "0" + code
	}
	return code
}

// ClientIP prefers the first X-Forwarded-For hop; the app proxy always sets it.
// The client controls that header, so the value is only recorded, never
// used to key limits.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmptyID(vals ...flexID) flexID {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

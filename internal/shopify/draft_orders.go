package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cod-order-service/internal/modal"
)

const (
	TagCOD    = "cod"
	TagReview = "cod-review"

	ReviewNotePrefix = "[MANUAL REVIEW]"
)

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func userErrorsToAPIError(errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if len(e.Field) > 0 {
			msgs = append(msgs, strings.Join(e.Field, ".")+": "+e.Message)
			continue
		}
		msgs = append(msgs, e.Message)
	}
	return &APIError{Status: http.StatusOK, Messages: msgs}
}

type draftOrder struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Order  *struct {
		ID                       string `json:"id"`
		Name                     string `json:"name"`
		DisplayFinancialStatus   string `json:"displayFinancialStatus"`
		DisplayFulfillmentStatus string `json:"displayFulfillmentStatus"`
	} `json:"order"`
}

// CreateDraftOrder creates the draft for req. Flagged orders stay drafts
// tagged for review; accepted ones are completed as payment-pending orders
// when completion is enabled. Failures are reported in the result's Err.
func (c *Client) CreateDraftOrder(ctx context.Context, req modal.OrderRequest, a modal.RiskAssessment) modal.DraftOrderResult {
	var out struct {
		DraftOrderCreate struct {
			DraftOrder *draftOrder `json:"draftOrder"`
			UserErrors []userError `json:"userErrors"`
		} `json:"draftOrderCreate"`
	}
	vars := map[string]any{"input": c.draftOrderInput(req, a)}
	if err := c.Execute(ctx, req.Shop, draftOrderCreateMutation, vars, &out); err != nil {
		return modal.DraftOrderResult{Err: err}
	}
	if err := userErrorsToAPIError(out.DraftOrderCreate.UserErrors); err != nil {
		return modal.DraftOrderResult{Err: err}
	}
	d := out.DraftOrderCreate.DraftOrder
	if d == nil || d.ID == "" {
		return modal.DraftOrderResult{Err: &APIError{Status: http.StatusOK, Messages: []string{"draftOrderCreate returned no draft order"}}}
	}

	res := modal.DraftOrderResult{
		DraftOrderID: d.ID,
		Name:         d.Name,
		Status:       d.Status,
		Flagged:      a.Flagged(),
	}
	if a.Flagged() || !c.cfg.CompleteAccepted {
		return res
	}

	completed, err := c.CompleteDraftOrder(ctx, req.Shop, d.ID)
	if err != nil {
		// The draft exists and is visible to the merchant; answer with it.
		c.log.Warn("draft order completion failed",
			zap.String("shop", req.Shop), zap.String("draft_order_id", d.ID), zap.Error(err))
		return res
	}
	return completed
}

// CompleteDraftOrder turns a draft into a payment-pending order.
func (c *Client) CompleteDraftOrder(ctx context.Context, shop, draftOrderID string) (modal.DraftOrderResult, error) {
	var out struct {
		DraftOrderComplete struct {
			DraftOrder *draftOrder `json:"draftOrder"`
			UserErrors []userError `json:"userErrors"`
		} `json:"draftOrderComplete"`
	}
	vars := map[string]any{"id": draftOrderID, "paymentPending": true}
	if err := c.Execute(ctx, shop, draftOrderCompleteMutation, vars, &out); err != nil {
		return modal.DraftOrderResult{}, err
	}
	if err := userErrorsToAPIError(out.DraftOrderComplete.UserErrors); err != nil {
		return modal.DraftOrderResult{}, err
	}
	d := out.DraftOrderComplete.DraftOrder
	if d == nil {
		return modal.DraftOrderResult{}, &APIError{Status: http.StatusOK, Messages: []string{"draftOrderComplete returned no draft order"}}
	}

	res := modal.DraftOrderResult{DraftOrderID: d.ID, Name: d.Name, Status: d.Status}
	if d.Order != nil {
		res.OrderID = d.Order.ID
		res.Name = d.Order.Name
		res.FinancialStatus = d.Order.DisplayFinancialStatus
		res.FulfillmentStatus = d.Order.DisplayFulfillmentStatus
	}
	return res, nil
}

func (c *Client) DeleteDraftOrder(ctx context.Context, shop, draftOrderID string) error {
	var out struct {
		DraftOrderDelete struct {
			DeletedID  string      `json:"deletedId"`
			UserErrors []userError `json:"userErrors"`
		} `json:"draftOrderDelete"`
	}
	vars := map[string]any{"input": map[string]any{"id": draftOrderID}}
	if err := c.Execute(ctx, shop, draftOrderDeleteMutation, vars, &out); err != nil {
		return err
	}
	return userErrorsToAPIError(out.DraftOrderDelete.UserErrors)
}

// TagsAdd adds tags to any taggable resource (orders, draft orders).
func (c *Client) TagsAdd(ctx context.Context, shop, id string, tags []string) error {
	var out struct {
		TagsAdd struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"tagsAdd"`
	}
	vars := map[string]any{"id": id, "tags": tags}
	if err := c.Execute(ctx, shop, tagsAddMutation, vars, &out); err != nil {
		return err
	}
	return userErrorsToAPIError(out.TagsAdd.UserErrors)
}

type lineItemInput struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type mailingAddressInput struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Address1    string `json:"address1,omitempty"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city,omitempty"`
	Province    string `json:"province,omitempty"`
	Zip         string `json:"zip,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type attributeInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type shippingLineInput struct {
	Title string `json:"title"`
	Price string `json:"price"`
}

type draftOrderInput struct {
	LineItems        []lineItemInput      `json:"lineItems"`
	Email            string               `json:"email,omitempty"`
	Phone            string               `json:"phone,omitempty"`
	ShippingAddress  *mailingAddressInput `json:"shippingAddress,omitempty"`
	Note             string               `json:"note,omitempty"`
	Tags             []string             `json:"tags"`
	CustomAttributes []attributeInput     `json:"customAttributes,omitempty"`
	ShippingLine     *shippingLineInput   `json:"shippingLine,omitempty"`
}

func (c *Client) draftOrderInput(req modal.OrderRequest, a modal.RiskAssessment) draftOrderInput {
	in := draftOrderInput{
		Email: req.Customer.Email,
		Phone: modal.AlgerianE164(modal.StripPhone(req.Customer.Phone)),
		Tags:  []string{TagCOD, "cod-risk-" + strconv.Itoa(a.Score)},
		Note:  req.Note,
	}
	for _, li := range req.LineItems {
		in.LineItems = append(in.LineItems, lineItemInput{VariantID: VariantGID(li.VariantID), Quantity: li.Quantity})
	}

	first, last := splitName(req.Customer.Name)
	in.ShippingAddress = &mailingAddressInput{
		FirstName:   first,
		LastName:    last,
		Address1:    req.Address.Address1,
		Address2:    req.Address.Address2,
		City:        req.Address.City,
		Province:    req.Address.Province,
		Zip:         req.Address.Zip,
		CountryCode: req.Address.CountryCode,
		Phone:       in.Phone,
	}

	in.CustomAttributes = []attributeInput{{Key: "session_id", Value: req.SessionID}}
	if req.Address.ProvinceCode != "" {
		in.CustomAttributes = append(in.CustomAttributes, attributeInput{
			Key: "wilaya", Value: strings.TrimSpace(req.Address.ProvinceCode + " " + req.Address.Province),
		})
	}
	if in.Phone == "" && req.Customer.Phone != "" {
		in.CustomAttributes = append(in.CustomAttributes, attributeInput{Key: "phone", Value: req.Customer.Phone})
	}

	if fee := c.delivery.FeeFor(req.Address.ProvinceCode); fee > 0 {
		in.ShippingLine = &shippingLineInput{Title: c.delivery.Title, Price: strconv.Itoa(fee) + ".00"}
	}

	if a.Flagged() {
		in.Tags = append(in.Tags, TagReview)
		review := fmt.Sprintf("%s risk score %d: %s", ReviewNotePrefix, a.Score, strings.Join(a.Reasons, ", "))
		if in.Note == "" {
			in.Note = review
		} else {
			in.Note = review + "\n" + in.Note
		}
	}
	return in
}

// VariantGID turns a numeric variant id into its GraphQL global id.
func VariantGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/ProductVariant/" + id
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"cod-order-service/internal/intake"
	"cod-order-service/internal/submit"
)

// genericFailure is the only text a storefront sees when Shopify fails.
const genericFailure = "We could not place your order right now. Please try again in a moment."

type failure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type orderAccepted struct {
	Success           bool   `json:"success"`
	DraftOrderID      string `json:"draftOrderId"`
	OrderID           string `json:"orderId,omitempty"`
	OrderName         string `json:"orderName,omitempty"`
	Status            string `json:"status,omitempty"`
	FinancialStatus   string `json:"financialStatus,omitempty"`
	FulfillmentStatus string `json:"fulfillmentStatus,omitempty"`
	Review            bool   `json:"review"`
}

// respond maps a submission outcome to the storefront response.
func (s *server) respond(w http.ResponseWriter, r *http.Request, out submit.Outcome) {
	log := s.log.With(
		zap.String("request_id", RequestID(r.Context())),
		zap.String("stage", string(out.Stage)))

	var ie *intake.Error
	switch {
	case errors.Is(out.Err, submit.ErrAuthentication):
		writeJSON(w, http.StatusUnauthorized, failure{Error: "invalid_signature"})

	case errors.As(out.Err, &ie):
		writeValidation(w, ie)

	case out.Err != nil:
		log.Error("submission failed", zap.Error(out.Err))
		writeInternal(w, r)

	case out.Rejected():
		if target, ok := redirectTarget(r, out.Request.ReturnTo, url.Values{"status": {"retry"}}); ok {
			http.Redirect(w, r, target, http.StatusSeeOther)
			break
		}
		writeJSON(w, http.StatusOK, failure{Reason: "risk_rejected"})

	default:
		res := out.Result
		if target, ok := redirectTarget(r, out.Request.ReturnTo, url.Values{"status": {"success"}, "order": {res.Name}}); ok {
			http.Redirect(w, r, target, http.StatusSeeOther)
			break
		}
		writeJSON(w, http.StatusOK, orderAccepted{
			Success:           true,
			DraftOrderID:      res.DraftOrderID,
			OrderID:           res.OrderID,
			OrderName:         res.Name,
			Status:            res.Status,
			FinancialStatus:   res.FinancialStatus,
			FulfillmentStatus: res.FulfillmentStatus,
			Review:            res.Flagged,
		})
	}
	log.Debug("responded", zap.String("decision", string(out.Assessment.Decision)))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, ie *intake.Error) {
	writeJSON(w, http.StatusBadRequest, failure{Error: "validation_failed", Code: ie.Code, Reason: ie.Reason})
}

func writeInternal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusInternalServerError, failure{
		Error:     "order_failed",
		Message:   genericFailure,
		RequestID: RequestID(r.Context()),
	})
}

// redirectTarget returns returnTo with params merged in, when the caller
// posted a form and returnTo is a path on the shop's own domain.
func redirectTarget(r *http.Request, returnTo string, params url.Values) (string, bool) {
	if returnTo == "" || isJSON(r) {
		return "", false
	}
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, `/\`) {
		return "", false
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "", false
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

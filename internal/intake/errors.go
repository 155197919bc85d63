package intake

import "errors"

const (
	CodeMissingShop      = "missing_shop"
	CodeMissingSession   = "missing_session"
	CodeMissingLineItems = "missing_line_items"
	CodeInvalidLineItem  = "invalid_line_item"
	CodeMissingContact   = "missing_contact"
	CodeInvalidEmail     = "invalid_email"
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidCartJSON  = "invalid_cart_json"
	CodeInvalidForm      = "invalid_form"
	CodeEmptyBody        = "empty_body"
	CodeBodyTooLarge     = "body_too_large"
)

// Error is a submission the storefront has to correct and resend.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func fail(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// Package proxysig verifies Shopify App Proxy signatures.
//
// The platform signs the query string it forwards: every parameter except
// "signature" is rendered as key=value (repeated keys joined with ","),
// the pairs are sorted by key and joined with "&", and the result is
// HMAC-SHA256'd with the app's shared secret and hex encoded.
package proxysig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const SignatureParam = "signature"

// Canonical returns the string that gets signed for the given parameters.
func Canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	// Sort by key, not by the rendered pair: "a-b=" must not jump ahead of "a=".
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.Join(params[k], ","))
	}
	return strings.Join(pairs, "&")
}

// Sign computes the lowercase hex signature for params.
func Sign(params url.Values, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(Canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether params carry a valid signature. It never panics
// and returns false when the secret or signature is missing.
func Verify(params url.Values, secret string) bool {
	if secret == "" || params == nil {
		return false
	}
	provided := strings.ToLower(strings.TrimSpace(params.Get(SignatureParam)))
	if provided == "" {
		return false
	}
	expected := Sign(params, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// VerifyRawQuery parses rawQuery and verifies it. A query that does not
// parse is rejected.
func VerifyRawQuery(rawQuery, secret string) bool {
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return false
	}
	return Verify(params, secret)
}

// VerifyURL verifies the query string of a full request URL.
func VerifyURL(rawURL, secret string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return VerifyRawQuery(u.RawQuery, secret)
}

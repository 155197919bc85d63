package proxysig

import (
	"math/rand"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "hush"

func sampleParams() url.Values {
	return url.Values{
		"shop":                  {"some-shop.myshopify.com"},
		"path_prefix":           {"/apps/cod"},
		"timestamp":             {"1317327555"},
		"logged_in_customer_id": {""},
		"extra":                 {"1", "2"},
	}
}

func TestKnownVector(t *testing.T) {
	p := sampleParams()
	assert.Equal(t,
		"extra=1,2&logged_in_customer_id=&path_prefix=/apps/cod&shop=some-shop.myshopify.com&timestamp=1317327555",
		Canonical(p))
	assert.Equal(t, "3b696d00fe29431f7f91b5df89fc1d75322d39013a16b846d70c7cb3fb0ba86b", Sign(p, secret))
}

func TestVerifyRoundTrip(t *testing.T) {
	p := sampleParams()
	p.Set(SignatureParam, Sign(p, secret))
	assert.True(t, Verify(p, secret))
	assert.True(t, VerifyRawQuery(p.Encode(), secret))
	assert.True(t, VerifyURL("https://app.example.com/proxy/cod/submit?"+p.Encode(), secret))
}

func TestVerifyAcceptsUppercaseSignature(t *testing.T) {
	p := sampleParams()
	p.Set(SignatureParam, strings.ToUpper(Sign(p, secret)))
	assert.True(t, Verify(p, secret))
}

func TestParameterOrderDoesNotMatter(t *testing.T) {
	base := sampleParams()
	sig := Sign(base, secret)

	keys := make([]string, 0, len(base))
	for k := range base {
		keys = append(keys, k)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		rng.Shuffle(len(keys), func(a, b int) { keys[a], keys[b] = keys[b], keys[a] })
		var parts []string
		for _, k := range keys {
			for _, v := range base[k] {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		raw := strings.Join(parts, "&") + "&signature=" + sig
		require.True(t, VerifyRawQuery(raw, secret), "order %v", keys)
	}
}

func TestSortIsByKey(t *testing.T) {
	p := url.Values{"a": {"1"}, "a-b": {"2"}}
	assert.Equal(t, "a=1&a-b=2", Canonical(p))
}

func TestTamperingInvalidates(t *testing.T) {
	base := sampleParams()
	base.Set(SignatureParam, Sign(base, secret))

	for key := range sampleParams() {
		tampered := url.Values{}
		for k, v := range base {
			tampered[k] = append([]string(nil), v...)
		}
		tampered.Set(key, tampered.Get(key)+"x")
		assert.False(t, Verify(tampered, secret), "tampered %s still verified", key)
	}

	added := url.Values{}
	for k, v := range base {
		added[k] = v
	}
	added.Set("injected", "1")
	assert.False(t, Verify(added, secret))
}

func TestRejectsMissingInputs(t *testing.T) {
	p := sampleParams()
	assert.False(t, Verify(p, secret), "no signature")

	p.Set(SignatureParam, Sign(p, secret))
	assert.False(t, Verify(p, ""), "no secret")
	assert.False(t, Verify(nil, secret))
	assert.False(t, Verify(p, "other"), "wrong secret")

	assert.False(t, VerifyRawQuery("%zz", secret))
	assert.False(t, VerifyURL("://bad", secret))
}

package risk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cod-order-service/internal/config"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/store"
)

type stubHistory struct {
	byPhone   int
	bySession int
	err       error
	since     time.Time
}

func (h *stubHistory) CountRecentByPhone(_ context.Context, _, _ string, since time.Time) (int, error) {
	h.since = since
	return h.byPhone, h.err
}

func (h *stubHistory) CountRecentBySession(_ context.Context, _, _ string, since time.Time) (int, error) {
	h.since = since
	return h.bySession, h.err
}

func cleanRequest() modal.OrderRequest {
	return modal.OrderRequest{
		Shop:      "demo.myshopify.com",
		SessionID: "sess-1",
		Customer:  modal.Contact{Name: "Amine Benali", Phone: "0555123456"},
		Address:   modal.Address{Address1: "12 rue Didouche Mourad", City: "Alger Centre", ProvinceCode: "16", CountryCode: "DZ"},
		LineItems: []modal.LineItem{{VariantID: "1", Quantity: 2}},
	}
}

func newTestScorer(h History) *Scorer {
	s := NewScorer(config.Default().Risk, h)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestScoreDecisions(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*modal.OrderRequest)
		history  stubHistory
		score    int
		decision modal.Decision
		reasons  []string
	}{
		{
			name:     "clean order",
			mutate:   func(*modal.OrderRequest) {},
			decision: modal.DecisionAccept,
			reasons:  []string{},
		},
		{
			name: "email only",
			mutate: func(r *modal.OrderRequest) {
				r.Customer.Phone = ""
				r.Customer.Email = "amine@example.dz"
			},
			score:    20,
			decision: modal.DecisionAccept,
			reasons:  []string{ReasonMissingPhone},
		},
		{
			name:     "invalid phone flags",
			mutate:   func(r *modal.OrderRequest) { r.Customer.Phone = "0123" },
			score:    40,
			decision: modal.DecisionFlag,
			reasons:  []string{ReasonInvalidPhone},
		},
		{
			name: "invalid phone with junk address and name rejects",
			mutate: func(r *modal.OrderRequest) {
				r.Customer.Phone = "0123"
				r.Customer.Name = "a1"
				r.Address.Address1 = "zz"
			},
			score:    80,
			decision: modal.DecisionReject,
			reasons:  []string{ReasonInvalidPhone, ReasonSuspiciousAddress, ReasonSuspiciousName},
		},
		{
			name:     "repeat phone",
			mutate:   func(*modal.OrderRequest) {},
			history:  stubHistory{byPhone: 1},
			score:    25,
			decision: modal.DecisionAccept,
			reasons:  []string{ReasonDuplicatePhone},
		},
		{
			name:     "phone velocity flags",
			mutate:   func(*modal.OrderRequest) {},
			history:  stubHistory{byPhone: 3},
			score:    60,
			decision: modal.DecisionFlag,
			reasons:  []string{ReasonPhoneVelocity},
		},
		{
			name:     "velocity on a resubmitted session rejects",
			mutate:   func(*modal.OrderRequest) {},
			history:  stubHistory{byPhone: 4, bySession: 2},
			score:    80,
			decision: modal.DecisionReject,
			reasons:  []string{ReasonDuplicateSession, ReasonPhoneVelocity},
		},
		{
			name:     "blocked word",
			mutate:   func(r *modal.OrderRequest) { r.Address.Address1 = "rue du TEST 12" },
			score:    25,
			decision: modal.DecisionAccept,
			reasons:  []string{ReasonSuspiciousAddress},
		},
		{
			name:     "repeated character address",
			mutate:   func(r *modal.OrderRequest) { r.Address.Address1 = "aaaa aaa" },
			score:    25,
			decision: modal.DecisionAccept,
			reasons:  []string{ReasonSuspiciousAddress},
		},
		{
			name: "unknown wilaya and bulk quantity",
			mutate: func(r *modal.OrderRequest) {
				r.Address.ProvinceCode = "72"
				r.LineItems = []modal.LineItem{{VariantID: "1", Quantity: 6}, {VariantID: "2", Quantity: 5}}
			},
			score:    35,
			decision: modal.DecisionAccept,
			reasons:  []string{ReasonUnknownWilaya, ReasonBulkQuantity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cleanRequest()
			tt.mutate(&req)
			h := tt.history

			a, err := newTestScorer(&h).Score(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.score, a.Score)
			assert.Equal(t, tt.decision, a.Decision)
			assert.Equal(t, tt.reasons, a.Reasons)
		})
	}
}

func TestScoreUsesWindow(t *testing.T) {
	h := &stubHistory{}
	s := newTestScorer(h)

	_, err := s.Score(context.Background(), cleanRequest())
	require.NoError(t, err)
	assert.Equal(t, s.now().Add(-time.Hour), h.since)
}

func TestScoreHistoryFailureStillScores(t *testing.T) {
	h := &stubHistory{err: errors.New("connection refused")}
	req := cleanRequest()
	req.Customer.Phone = "0123"

	a, err := newTestScorer(h).Score(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 40, a.Score)
	assert.Equal(t, modal.DecisionFlag, a.Decision)
	assert.Equal(t, []string{ReasonInvalidPhone, ReasonHistoryUnavailable}, a.Reasons)
}

func TestScoreWithoutHistory(t *testing.T) {
	s := NewScorer(config.Default().Risk, nil)
	a, err := s.Score(context.Background(), cleanRequest())
	require.NoError(t, err)
	assert.True(t, a.Decision == modal.DecisionAccept)
}

func TestValidPhone(t *testing.T) {
	for _, p := range []string{"0555123456", "0661001122", "0770112233", "+213555123456", "00213661001122"} {
		assert.True(t, ValidPhone(p), p)
	}
	for _, p := range []string{"", "0455123456", "055512345", "+33612345678", "05551234567"} {
		assert.False(t, ValidPhone(p), p)
	}
}

func TestHistoryKeys(t *testing.T) {
	for _, p := range []string{"0555123456", "+213555123456", "00213 555 12 34 56"} {
		assert.Equal(t, "cod:hist:demo.myshopify.com:phone:+213555123456", phoneKey("demo.myshopify.com", p), p)
	}
	assert.Equal(t, "cod:hist:demo.myshopify.com:session:abc", sessionKey("demo.myshopify.com", "abc"))
}

func TestVelocityIgnoresPhoneFormat(t *testing.T) {
	ctx := context.Background()
	st := store.New(nil)
	s := newTestScorer(st)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.RecordSubmission(ctx, modal.Submission{
			Shop:      "demo.myshopify.com",
			SessionID: fmt.Sprintf("old-%d", i),
			Phone:     "0555123456",
			CreatedAt: s.now().Add(-10 * time.Minute),
		}))
	}

	for _, phone := range []string{"0555123456", "+213555123456", "00213555123456", "0555 12 34 56"} {
		req := cleanRequest()
		req.SessionID = "new"
		req.Customer.Phone = phone
		a, err := s.Score(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, []string{ReasonPhoneVelocity}, a.Reasons, phone)
		assert.Equal(t, modal.DecisionFlag, a.Decision, phone)
	}
}

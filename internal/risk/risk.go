// Package risk scores COD submissions against configurable heuristics.
package risk

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cod-order-service/internal/config"
	"cod-order-service/internal/modal"
)

// Reason strings, in evaluation order.
const (
	ReasonInvalidPhone       = "invalid_phone"
	ReasonMissingPhone       = "missing_phone"
	ReasonDuplicateSession   = "duplicate_session"
	ReasonDuplicatePhone     = "duplicate_phone"
	ReasonPhoneVelocity      = "phone_velocity"
	ReasonSuspiciousAddress  = "suspicious_address"
	ReasonSuspiciousName     = "suspicious_name"
	ReasonUnknownWilaya      = "unknown_wilaya"
	ReasonBulkQuantity       = "bulk_quantity"
	ReasonHistoryUnavailable = "history_unavailable"
)

// History answers "how many submissions did we see recently" questions.
type History interface {
	CountRecentByPhone(ctx context.Context, shop, phone string, since time.Time) (int, error)
	CountRecentBySession(ctx context.Context, shop, sessionID string, since time.Time) (int, error)
}

// Recorder stores a scored submission so later requests can count it.
type Recorder interface {
	RecordSubmission(ctx context.Context, s modal.Submission) error
}

var algerianMobile = regexp.MustCompile(`^(?:\+213|00213|0)[567][0-9]{8}$`)

type Scorer struct {
	cfg     config.RiskConfig
	history History
	now     func() time.Time
}

func NewScorer(cfg config.RiskConfig, history History) *Scorer {
	return &Scorer{cfg: cfg, history: history, now: time.Now}
}

// Score evaluates req. When the history lookup fails the returned
// assessment is still usable (scored without history) and err says why.
func (s *Scorer) Score(ctx context.Context, req modal.OrderRequest) (modal.RiskAssessment, error) {
	w := s.cfg.Weights
	a := modal.RiskAssessment{Reasons: []string{}}
	add := func(reason string, points int) {
		a.Score += points
		a.Reasons = append(a.Reasons, reason)
	}

	phone := req.Customer.Phone
	switch {
	case phone == "":
		add(ReasonMissingPhone, w.MissingPhone)
	case !ValidPhone(phone):
		add(ReasonInvalidPhone, w.InvalidPhone)
	}

	histErr := s.scoreHistory(ctx, req, add)

	if suspiciousAddress(req.Address.Address1, s.cfg.BlockedWords) {
		add(ReasonSuspiciousAddress, w.SuspiciousAddress)
	}
	if suspiciousName(req.Customer.Name) {
		add(ReasonSuspiciousName, w.SuspiciousName)
	}
	if code := req.Address.ProvinceCode; code != "" && !knownWilaya(code, s.cfg.MaxWilayaCode) {
		add(ReasonUnknownWilaya, w.UnknownWilaya)
	}
	if s.cfg.MaxQuantity > 0 && req.TotalQuantity() > s.cfg.MaxQuantity {
		add(ReasonBulkQuantity, w.BulkQuantity)
	}

	a.Decision = s.decide(a.Score)
	return a, histErr
}

func (s *Scorer) scoreHistory(ctx context.Context, req modal.OrderRequest, add func(string, int)) error {
	if s.history == nil {
		return nil
	}
	w := s.cfg.Weights
	since := s.now().Add(-s.cfg.Window)

	var errs []error
	sessions, err := s.history.CountRecentBySession(ctx, req.Shop, req.SessionID, since)
	if err != nil {
		errs = append(errs, fmt.Errorf("count by session: %w", err))
	} else if sessions > 0 {
		add(ReasonDuplicateSession, w.DuplicateSession)
	}

	if phone := modal.CanonicalPhone(req.Customer.Phone); phone != "" {
		phones, err := s.history.CountRecentByPhone(ctx, req.Shop, phone, since)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("count by phone: %w", err))
		case s.cfg.VelocityLimit > 0 && phones >= s.cfg.VelocityLimit:
			add(ReasonPhoneVelocity, w.PhoneVelocity)
		case phones > 0:
			add(ReasonDuplicatePhone, w.DuplicatePhone)
		}
	}

	if len(errs) > 0 {
		add(ReasonHistoryUnavailable, 0)
		return errors.Join(errs...)
	}
	return nil
}

func (s *Scorer) decide(score int) modal.Decision {
	switch {
	case score >= s.cfg.RejectThreshold:
		return modal.DecisionReject
	case score >= s.cfg.FlagThreshold:
		return modal.DecisionFlag
	default:
		return modal.DecisionAccept
	}
}

// ValidPhone reports whether phone is an Algerian mobile number, in any
// of the local, 00213 or +213 forms.
func ValidPhone(phone string) bool {
	return algerianMobile.MatchString(phone)
}

func suspiciousAddress(addr string, blocked []string) bool {
	addr = strings.TrimSpace(addr)
	if utf8.RuneCountInString(addr) < 4 {
		return true
	}
	if singleRune(addr) {
		return true
	}
	lower := strings.ToLower(addr)
	for _, word := range blocked {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

func singleRune(s string) bool {
	first := rune(-1)
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if first == -1 {
			first = r
			continue
		}
		if r != first {
			return false
		}
	}
	return true
}

func suspiciousName(name string) bool {
	letters := 0
	for _, r := range name {
		if unicode.IsDigit(r) {
			return true
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters < 2
}

func knownWilaya(code string, max int) bool {
	n, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	if max <= 0 {
		max = 58
	}
	return n >= 1 && n <= max
}

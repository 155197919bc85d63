package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cod-order-service/internal/modal"
)

// RecordSubmission appends one scored submission to the history.
func (s *Store) RecordSubmission(ctx context.Context, sub modal.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	sub.Phone = modal.CanonicalPhone(sub.Phone)

	if s.db == nil {
		s.mu.Lock()
		s.subs = append(pruneBefore(s.subs, sub.CreatedAt.Add(-s.retention)), sub)
		s.mu.Unlock()
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cod_submissions (id, shop, session_id, phone, client_ip, score, decision, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.Shop, sub.SessionID, nilIfEmpty(sub.Phone), nilIfEmpty(sub.ClientIP),
		sub.Score, string(sub.Decision), sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *Store) CountRecentByPhone(ctx context.Context, shop, phone string, since time.Time) (int, error) {
	phone = modal.CanonicalPhone(phone)
	if s.db == nil {
		return s.countMemory(func(sub modal.Submission) bool {
			return sub.Shop == shop && sub.Phone == phone && !sub.CreatedAt.Before(since)
		}), nil
	}
	return s.count(ctx,
		`SELECT COUNT(*) FROM cod_submissions WHERE shop = $1 AND phone = $2 AND created_at >= $3`,
		shop, phone, since)
}

func (s *Store) CountRecentBySession(ctx context.Context, shop, sessionID string, since time.Time) (int, error) {
	if s.db == nil {
		return s.countMemory(func(sub modal.Submission) bool {
			return sub.Shop == shop && sub.SessionID == sessionID && !sub.CreatedAt.Before(since)
		}), nil
	}
	return s.count(ctx,
		`SELECT COUNT(*) FROM cod_submissions WHERE shop = $1 AND session_id = $2 AND created_at >= $3`,
		shop, sessionID, since)
}

func (s *Store) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

func (s *Store) countMemory(match func(modal.Submission) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if match(sub) {
			n++
		}
	}
	return n
}

// pruneBefore drops submissions created before cutoff, reusing subs.
func pruneBefore(subs []modal.Submission, cutoff time.Time) []modal.Submission {
	kept := subs[:0]
	for _, sub := range subs {
		if !sub.CreatedAt.Before(cutoff) {
			kept = append(kept, sub)
		}
	}
	clear(subs[len(kept):])
	return kept
}

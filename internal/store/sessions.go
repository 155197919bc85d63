package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AccessToken returns the offline Admin API token stored for shop by the
// app's install flow.
func (s *Store) AccessToken(ctx context.Context, shop string) (string, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		tok, ok := s.tokens[shop]
		if !ok {
			return "", fmt.Errorf("access token for %s: %w", shop, ErrNotFound)
		}
		return tok, nil
	}

	var tok string
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token FROM shopify_sessions
		 WHERE shop = $1 AND is_online = FALSE
		 ORDER BY expires DESC NULLS FIRST
		 LIMIT 1`, shop).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("access token for %s: %w", shop, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("access token for %s: %w", shop, err)
	}
	return tok, nil
}

// SaveOfflineToken stores the offline token for shop, replacing any previous one.
func (s *Store) SaveOfflineToken(ctx context.Context, shop, token, scope string) error {
	if s.db == nil {
		s.mu.Lock()
		s.tokens[shop] = token
		s.mu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shopify_sessions (id, shop, access_token, scope, is_online)
		 VALUES ($1, $2, $3, $4, FALSE)
		 ON CONFLICT (id) DO UPDATE SET access_token = EXCLUDED.access_token, scope = EXCLUDED.scope`,
		"offline_"+shop, shop, token, nilIfEmpty(scope))
	if err != nil {
		return fmt.Errorf("save offline token: %w", err)
	}
	return nil
}

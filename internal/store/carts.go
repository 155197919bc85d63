package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cod-order-service/internal/modal"
)

const DefaultPageSize = 50

type CartPage struct {
	Items      []modal.AbandonedCartRecord `json:"items"`
	NextCursor string                      `json:"nextCursor,omitempty"`
}

const upsertCartSQL = `
	INSERT INTO abandoned_carts (id, shop, session_id, customer_email, customer_phone, customer_name, cart_data, form_data, is_recovered, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)
	ON CONFLICT (shop, session_id) DO UPDATE SET
		customer_email = COALESCE(EXCLUDED.customer_email, abandoned_carts.customer_email),
		customer_phone = COALESCE(EXCLUDED.customer_phone, abandoned_carts.customer_phone),
		customer_name = COALESCE(EXCLUDED.customer_name, abandoned_carts.customer_name),
		cart_data = COALESCE(EXCLUDED.cart_data, abandoned_carts.cart_data),
		form_data = COALESCE(EXCLUDED.form_data, abandoned_carts.form_data),
		updated_at = EXCLUDED.updated_at
	RETURNING id, is_recovered, COALESCE(draft_order_id, ''), created_at, updated_at`

// RecordAbandonment inserts or refreshes the cart row for (shop, sessionID).
// Empty contact fields and snapshots keep what was stored before, and
// is_recovered is never reset.
func (s *Store) RecordAbandonment(ctx context.Context, shop, sessionID string, c modal.Contact, cart, form json.RawMessage) (modal.AbandonedCartRecord, error) {
	now := s.now()
	c.Phone = modal.CanonicalPhone(c.Phone)
	rec := modal.AbandonedCartRecord{
		Shop:          shop,
		SessionID:     sessionID,
		CustomerEmail: c.Email,
		CustomerPhone: c.Phone,
		CustomerName:  c.Name,
		CartData:      cart,
		FormData:      form,
	}

	if s.db == nil {
		return s.recordAbandonmentMemory(rec, now), nil
	}

	err := s.db.QueryRowContext(ctx, upsertCartSQL,
		uuid.NewString(), shop, sessionID,
		nilIfEmpty(c.Email), nilIfEmpty(c.Phone), nilIfEmpty(c.Name),
		nilIfEmptyJSON(cart), nilIfEmptyJSON(form), now,
	).Scan(&rec.ID, &rec.IsRecovered, &rec.DraftOrderID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return modal.AbandonedCartRecord{}, fmt.Errorf("upsert abandoned cart: %w", err)
	}
	return rec, nil
}

func (s *Store) recordAbandonmentMemory(rec modal.AbandonedCartRecord, now time.Time) modal.AbandonedCartRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := cartKey{rec.Shop, rec.SessionID}
	cur, ok := s.carts[k]
	if !ok {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
		rec.UpdatedAt = now
		s.carts[k] = &rec
		return rec
	}

	if rec.CustomerEmail != "" {
		cur.CustomerEmail = rec.CustomerEmail
	}
	if rec.CustomerPhone != "" {
		cur.CustomerPhone = rec.CustomerPhone
	}
	if rec.CustomerName != "" {
		cur.CustomerName = rec.CustomerName
	}
	if len(rec.CartData) > 0 {
		cur.CartData = rec.CartData
	}
	if len(rec.FormData) > 0 {
		cur.FormData = rec.FormData
	}
	cur.UpdatedAt = now
	return *cur
}

// MarkRecovered links the cart for (shop, sessionID) to a draft order. It
// reports whether a row existed; a missing row is not an error.
func (s *Store) MarkRecovered(ctx context.Context, shop, sessionID, draftOrderID string) (bool, error) {
	now := s.now()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur, ok := s.carts[cartKey{shop, sessionID}]
		if !ok {
			return false, nil
		}
		cur.IsRecovered = true
		cur.DraftOrderID = draftOrderID
		cur.UpdatedAt = now
		return true, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE abandoned_carts SET is_recovered = TRUE, draft_order_id = $3, updated_at = $4 WHERE shop = $1 AND session_id = $2`,
		shop, sessionID, draftOrderID, now)
	if err != nil {
		return false, fmt.Errorf("mark cart recovered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark cart recovered: %w", err)
	}
	return n > 0, nil
}

// GetAbandoned returns the cart for (shop, sessionID) or ErrNotFound.
func (s *Store) GetAbandoned(ctx context.Context, shop, sessionID string) (modal.AbandonedCartRecord, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur, ok := s.carts[cartKey{shop, sessionID}]
		if !ok {
			return modal.AbandonedCartRecord{}, ErrNotFound
		}
		return *cur, nil
	}

	rows, err := s.db.QueryContext(ctx, selectCartSQL+` WHERE shop = $1 AND session_id = $2`, shop, sessionID)
	if err != nil {
		return modal.AbandonedCartRecord{}, fmt.Errorf("get abandoned cart: %w", err)
	}
	defer rows.Close()
	items, err := scanCarts(rows)
	if err != nil {
		return modal.AbandonedCartRecord{}, fmt.Errorf("get abandoned cart: %w", err)
	}
	if len(items) == 0 {
		return modal.AbandonedCartRecord{}, ErrNotFound
	}
	return items[0], nil
}

const selectCartSQL = `
	SELECT id, shop, session_id, COALESCE(customer_email, ''), COALESCE(customer_phone, ''), COALESCE(customer_name, ''),
		cart_data, form_data, is_recovered, COALESCE(draft_order_id, ''), created_at, updated_at
	FROM abandoned_carts`

// ListAbandoned pages through a shop's carts, most recently touched first.
// onlyOpen hides recovered carts.
func (s *Store) ListAbandoned(ctx context.Context, shop, cursor string, limit int, onlyOpen bool) (CartPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	cursorTime, cursorID, err := parseCursor(cursor)
	if err != nil {
		return CartPage{}, err
	}
	if s.db == nil {
		return s.listAbandonedMemory(shop, cursorTime, cursorID, limit, onlyOpen), nil
	}

	args := []any{shop}
	where := []string{"shop = $1"}
	if onlyOpen {
		where = append(where, "is_recovered = FALSE")
	}
	if !cursorTime.IsZero() {
		where = append(where, fmt.Sprintf("(updated_at, id) < ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, cursorTime, cursorID)
	}
	args = append(args, limit+1)
	q := fmt.Sprintf("%s WHERE %s ORDER BY updated_at DESC, id DESC LIMIT $%d",
		selectCartSQL, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return CartPage{}, fmt.Errorf("list abandoned carts: %w", err)
	}
	defer rows.Close()
	items, err := scanCarts(rows)
	if err != nil {
		return CartPage{}, fmt.Errorf("list abandoned carts: %w", err)
	}
	return page(items, limit), nil
}

func scanCarts(rows *sql.Rows) ([]modal.AbandonedCartRecord, error) {
	var items []modal.AbandonedCartRecord
	for rows.Next() {
		var rec modal.AbandonedCartRecord
		var cart, form []byte
		if err := rows.Scan(&rec.ID, &rec.Shop, &rec.SessionID, &rec.CustomerEmail, &rec.CustomerPhone, &rec.CustomerName,
			&cart, &form, &rec.IsRecovered, &rec.DraftOrderID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if len(cart) > 0 {
			rec.CartData = json.RawMessage(cart)
		}
		if len(form) > 0 {
			rec.FormData = json.RawMessage(form)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (s *Store) listAbandonedMemory(shop string, cursorTime time.Time, cursorID string, limit int, onlyOpen bool) CartPage {
	s.mu.Lock()
	items := make([]modal.AbandonedCartRecord, 0)
	for _, rec := range s.carts {
		if rec.Shop != shop || (onlyOpen && rec.IsRecovered) {
			continue
		}
		if !cursorTime.IsZero() && !before(rec.UpdatedAt, rec.ID, cursorTime, cursorID) {
			continue
		}
		items = append(items, *rec)
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return before(items[j].UpdatedAt, items[j].ID, items[i].UpdatedAt, items[i].ID)
	})
	if len(items) > limit+1 {
		items = items[:limit+1]
	}
	return page(items, limit)
}

// before reports whether (t, id) sorts strictly before (ct, cid) in
// descending (updated_at, id) order, i.e. is older.
func before(t time.Time, id string, ct time.Time, cid string) bool {
	if t.Equal(ct) {
		return id < cid
	}
	return t.Before(ct)
}

func page(items []modal.AbandonedCartRecord, limit int) CartPage {
	if items == nil {
		items = []modal.AbandonedCartRecord{}
	}
	if len(items) <= limit {
		return CartPage{Items: items}
	}
	last := items[limit-1]
	return CartPage{Items: items[:limit], NextCursor: encodeCursor(last.UpdatedAt, last.ID)}
}

func parseCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return time.Unix(0, n).UTC(), parts[1], nil
}

func encodeCursor(ts time.Time, id string) string {
	return fmt.Sprintf("%d:%s", ts.UTC().UnixNano(), id)
}

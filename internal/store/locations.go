package store

import (
	"context"
	"fmt"
	"sort"

	"cod-order-service/internal/modal"
)

// ListWilayas returns every wilaya with its commune count, ordered by code.
func (s *Store) ListWilayas(ctx context.Context) ([]modal.WilayaSummary, error) {
	if s.db == nil {
		s.mu.Lock()
		byCode := map[string]*modal.WilayaSummary{}
		for _, l := range s.locations {
			w, ok := byCode[l.WilayaCode]
			if !ok {
				w = &modal.WilayaSummary{Code: l.WilayaCode, Name: l.WilayaName}
				byCode[l.WilayaCode] = w
			}
			w.Communes++
		}
		s.mu.Unlock()

		out := make([]modal.WilayaSummary, 0, len(byCode))
		for _, w := range byCode {
			out = append(out, *w)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT wilaya_code, wilaya_name, COUNT(*) FROM locations GROUP BY wilaya_code, wilaya_name ORDER BY wilaya_code`)
	if err != nil {
		return nil, fmt.Errorf("list wilayas: %w", err)
	}
	defer rows.Close()

	out := []modal.WilayaSummary{}
	for rows.Next() {
		var w modal.WilayaSummary
		if err := rows.Scan(&w.Code, &w.Name, &w.Communes); err != nil {
			return nil, fmt.Errorf("list wilayas: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListCommunes returns the communes of one wilaya, alphabetically.
func (s *Store) ListCommunes(ctx context.Context, wilayaCode string) ([]modal.Location, error) {
	if s.db == nil {
		s.mu.Lock()
		out := []modal.Location{}
		for _, l := range s.locations {
			if l.WilayaCode == wilayaCode {
				out = append(out, l)
			}
		}
		s.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Commune < out[j].Commune })
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT wilaya_code, wilaya_name, commune FROM locations WHERE wilaya_code = $1 ORDER BY commune`, wilayaCode)
	if err != nil {
		return nil, fmt.Errorf("list communes: %w", err)
	}
	defer rows.Close()

	out := []modal.Location{}
	for rows.Next() {
		var l modal.Location
		if err := rows.Scan(&l.WilayaCode, &l.WilayaName, &l.Commune); err != nil {
			return nil, fmt.Errorf("list communes: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ImportLocations adds locations, skipping (wilaya, commune) pairs already
// present. It returns how many rows were new.
func (s *Store) ImportLocations(ctx context.Context, locs []modal.Location) (int, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		seen := make(map[[2]string]bool, len(s.locations))
		for _, l := range s.locations {
			seen[[2]string{l.WilayaCode, l.Commune}] = true
		}
		added := 0
		for _, l := range locs {
			k := [2]string{l.WilayaCode, l.Commune}
			if seen[k] {
				continue
			}
			seen[k] = true
			s.locations = append(s.locations, l)
			added++
		}
		return added, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import locations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, l := range locs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO locations (wilaya_code, wilaya_name, commune) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			l.WilayaCode, l.WilayaName, l.Commune)
		if err != nil {
			return 0, fmt.Errorf("import locations: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import locations: %w", err)
	}
	return added, nil
}

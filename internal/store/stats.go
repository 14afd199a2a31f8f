// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
)

// Stats holds row counts of the backing tables.
type Stats struct {
	Companies      int            `json:"companies"`
	Fundamentals   int            `json:"fundamentals"`
	PriceBars      int            `json:"price_bars"`
	Documents      int            `json:"documents"`
	Collections    map[string]int `json:"collections"`
	ClientContexts int            `json:"client_contexts"`
	AuditRows      int            `json:"audit_rows"`
}

// Stats counts rows per table and documents per collection.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Collections: make(map[string]int)}

	counts := []struct {
		table string
		dst   *int
	}{
		{"companies", &st.Companies},
		{"fundamentals", &st.Fundamentals},
		{"market_data", &st.PriceBars},
		{"documents", &st.Documents},
		{"client_contexts", &st.ClientContexts},
		{"request_audit", &st.AuditRows},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+c.table).Scan(c.dst); err != nil {
			return st, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT collection, count(*) FROM documents GROUP BY collection`)
	if err != nil {
		return st, fmt.Errorf("counting collections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return st, fmt.Errorf("scanning collection count: %w", err)
		}
		st.Collections[name] = n
	}
	return st, rows.Err()
}

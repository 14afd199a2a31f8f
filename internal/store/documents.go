// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Document is a filing, analyst report, or market intelligence note.
type Document struct {
	ID          string    `json:"id" yaml:"id"`
	Ticker      string    `json:"ticker,omitempty" yaml:"ticker,omitempty"`
	Collection  string    `json:"collection" yaml:"collection"`
	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	Content     string    `json:"content" yaml:"content"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
}

// DocumentQuery holds parameters for a full-text document search.
type DocumentQuery struct {
	// Terms are matched with OR semantics; each term is quoted so FTS5
	// operators in user text are never interpreted.
	Terms []string

	// Ticker restricts results to one company. Untagged market
	// intelligence notes always match.
	Ticker string

	// Collections restricts results; empty means all collections.
	Collections []string

	// Before excludes documents published after this time. Zero disables
	// the filter.
	Before time.Time

	Limit int
}

// DocumentHit is a document with its bm25 rank. Lower (more negative)
// ranks are better matches.
type DocumentHit struct {
	Document
	Rank float64
}

// SearchDocuments runs an FTS5 query and returns hits ordered by bm25 rank.
func (s *Store) SearchDocuments(ctx context.Context, q DocumentQuery) ([]DocumentHit, error) {
	match := MatchExpression(q.Terms)
	if match == "" {
		return nil, fmt.Errorf("document query has no search terms")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT d.id, d.ticker, d.collection, d.title, d.content, d.published_at, documents_fts.rank
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?`)
	args = append(args, match)

	if q.Ticker != "" {
		qb.WriteString(` AND (d.ticker = ? COLLATE NOCASE OR (d.collection = ? AND COALESCE(d.ticker, '') = ''))`)
		args = append(args, q.Ticker, CollectionMarketIntelligence)
	}

	if len(q.Collections) > 0 {
		qb.WriteString(` AND d.collection IN (` + placeholders(len(q.Collections)) + `)`)
		for _, c := range q.Collections {
			args = append(args, c)
		}
	}

	if !q.Before.IsZero() {
		qb.WriteString(` AND (d.published_at IS NULL OR d.published_at = '' OR d.published_at <= ?)`)
		args = append(args, q.Before.UTC().Format(time.RFC3339))
	}

	qb.WriteString(` ORDER BY documents_fts.rank, d.id LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var hits []DocumentHit
	for rows.Next() {
		var (
			h                     DocumentHit
			ticker, title, pubStr sql.NullString
		)
		if err := rows.Scan(&h.ID, &ticker, &h.Collection, &title, &h.Content, &pubStr, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		h.Ticker, h.Title = ticker.String, title.String
		if pubStr.Valid && pubStr.String != "" {
			h.PublishedAt, _ = time.Parse(time.RFC3339, pubStr.String)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// MatchExpression builds an FTS5 MATCH expression that ORs the quoted terms.
func MatchExpression(terms []string) string {
	var quoted []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

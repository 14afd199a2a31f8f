// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/telemetry"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// AuditSink records every request in the request_audit table.
type AuditSink struct {
	store *Store
	log   *zap.Logger
}

// NewAuditSink returns a telemetry sink backed by s.
func NewAuditSink(s *Store, log *zap.Logger) *AuditSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditSink{store: s, log: log}
}

// RecordRequest inserts one audit row. Failures are logged, never returned.
func (a *AuditSink) RecordRequest(ctx context.Context, m telemetry.RequestMetrics) {
	if err := a.store.insertAudit(ctx, m); err != nil {
		a.log.Warn("audit write failed", zap.String("query_id", m.QueryID), zap.Error(err))
	}
}

func (s *Store) insertAudit(ctx context.Context, m telemetry.RequestMetrics) error {
	consulted, _ := json.Marshal(kindsOrEmpty(m.SourcesConsulted))
	failed, _ := json.Marshal(kindsOrEmpty(m.SourcesFailed))
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_audit (query_id, client_id, sources_consulted, sources_failed,
			items, low_confidence, partial, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.QueryID, m.ClientID, string(consulted), string(failed),
		m.Items, m.LowConfidence, m.Partial,
		float64(m.Latency)/float64(time.Millisecond), m.Err,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit row: %w", err)
	}
	return nil
}

// AuditEntry is one row of the request audit log.
type AuditEntry struct {
	QueryID          string             `json:"query_id"`
	ClientID         string             `json:"client_id"`
	SourcesConsulted []types.SourceKind `json:"sources_consulted"`
	SourcesFailed    []types.SourceKind `json:"sources_failed"`
	Items            int                `json:"items"`
	LowConfidence    bool               `json:"low_confidence"`
	Partial          bool               `json:"partial"`
	LatencyMS        float64            `json:"latency_ms"`
	Error            string             `json:"error,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// RecentAudit returns the newest audit rows, optionally for one client.
func (s *Store) RecentAudit(ctx context.Context, clientID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT query_id, client_id, sources_consulted, sources_failed, items,
			low_confidence, partial, latency_ms, error, created_at
		 FROM request_audit`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                 AuditEntry
			consulted, failed string
			errStr, created   string
			client            *string
		)
		if err := rows.Scan(&e.QueryID, &client, &consulted, &failed, &e.Items,
			&e.LowConfidence, &e.Partial, &e.LatencyMS, &errStr, &created); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		if client != nil {
			e.ClientID = *client
		}
		json.Unmarshal([]byte(consulted), &e.SourcesConsulted)
		json.Unmarshal([]byte(failed), &e.SourcesFailed)
		e.Error = errStr
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func kindsOrEmpty(k []types.SourceKind) []types.SourceKind {
	if k == nil {
		return []types.SourceKind{}
	}
	return k
}

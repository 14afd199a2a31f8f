// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// LoadClientContext reads the persisted context of clientID. The boolean is
// false when the client has never been saved.
func (s *Store) LoadClientContext(ctx context.Context, clientID string) (types.ClientContext, bool, error) {
	var (
		risk                  sql.NullString
		topicsJSON, weightsJS string
		interactions          int
		updated               sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT risk_tolerance, topics, weights, interactions, updated_at
		 FROM client_contexts WHERE client_id = ?`, clientID,
	).Scan(&risk, &topicsJSON, &weightsJS, &interactions, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ClientContext{}, false, nil
	}
	if err != nil {
		return types.ClientContext{}, false, fmt.Errorf("loading client context %s: %w", clientID, err)
	}

	cc := types.ClientContext{
		ClientID:      clientID,
		RiskTolerance: risk.String,
		Interactions:  interactions,
	}
	if err := json.Unmarshal([]byte(topicsJSON), &cc.RecentTopics); err != nil {
		return types.ClientContext{}, false, fmt.Errorf("decoding topics for %s: %w", clientID, err)
	}
	if err := json.Unmarshal([]byte(weightsJS), &cc.PreferenceWeights); err != nil {
		return types.ClientContext{}, false, fmt.Errorf("decoding weights for %s: %w", clientID, err)
	}
	if updated.Valid && updated.String != "" {
		cc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated.String)
	}
	return cc, true, nil
}

// SaveClientContext upserts cc.
func (s *Store) SaveClientContext(ctx context.Context, cc types.ClientContext) error {
	topics := cc.RecentTopics
	if topics == nil {
		topics = []types.Topic{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("encoding topics: %w", err)
	}
	weightsJSON, err := json.Marshal(cc.PreferenceWeights)
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO client_contexts (client_id, risk_tolerance, topics, weights, interactions, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
			risk_tolerance=excluded.risk_tolerance, topics=excluded.topics,
			weights=excluded.weights, interactions=excluded.interactions,
			updated_at=excluded.updated_at`,
		cc.ClientID, cc.RiskTolerance, string(topicsJSON), string(weightsJSON),
		cc.Interactions, cc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving client context %s: %w", cc.ClientID, err)
	}
	return nil
}

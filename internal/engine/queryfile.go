// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// QueryFile is the on-disk representation of a query and the evidence set
// it produced. A saved file can be reviewed or reported on later without
// re-querying the sources.
type QueryFile struct {
	Query    types.Query       `yaml:"query"`
	Config   QueryFileConfig   `yaml:"config"`
	Evidence types.EvidenceSet `yaml:"evidence"`
	Summary  QuerySummary      `yaml:"summary"`
}

// QueryFileConfig stores the ranking settings that produced the evidence.
type QueryFileConfig struct {
	MaxResults int  `yaml:"max_results"`
	MinResults int  `yaml:"min_results"`
	BestEffort bool `yaml:"best_effort,omitempty"`
}

// QuerySummary stores evidence statistics and a timestamp.
type QuerySummary struct {
	Total         int                `yaml:"total"`
	Merged        int                `yaml:"merged"`
	Consulted     []types.SourceKind `yaml:"consulted"`
	Failed        []types.SourceKind `yaml:"failed,omitempty"`
	LowConfidence bool               `yaml:"low_confidence"`
	Timestamp     time.Time          `yaml:"timestamp"`
}

// WriteQueryFile saves q and its evidence set to a YAML file.
func WriteQueryFile(path string, q types.Query, cfg types.RankingConfig, bestEffort bool, set types.EvidenceSet) error {
	merged := 0
	for _, it := range set.Items {
		if len(it.Sources) > 1 {
			merged += len(it.Sources) - 1
		}
	}
	qf := QueryFile{
		Query: q,
		Config: QueryFileConfig{
			MaxResults: cfg.MaxResults,
			MinResults: cfg.MinResults,
			BestEffort: bestEffort,
		},
		Evidence: set,
		Summary: QuerySummary{
			Total:         len(set.Items),
			Merged:        merged,
			Consulted:     set.SourcesConsulted,
			Failed:        set.SourcesFailed,
			LowConfidence: set.LowConfidence,
			Timestamp:     set.GeneratedAt,
		},
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Seed is the on-disk YAML representation of backing data.
type Seed struct {
	Companies    []Company     `yaml:"companies"`
	Fundamentals []Fundamental `yaml:"fundamentals"`
	MarketData   []PriceBar    `yaml:"market_data"`
	Documents    []Document    `yaml:"documents"`
}

// IngestSummary holds counts from one seed ingestion.
type IngestSummary struct {
	Companies    int
	Fundamentals int
	PriceBars    int
	Documents    int
	Skipped      int
}

// Total returns the number of rows written.
func (s IngestSummary) Total() int {
	return s.Companies + s.Fundamentals + s.PriceBars + s.Documents
}

// ReadSeed loads a seed file from disk.
func ReadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// IngestFile reads the seed at path and ingests it.
func (s *Store) IngestFile(ctx context.Context, path string, w io.Writer) (IngestSummary, error) {
	seed, err := ReadSeed(path)
	if err != nil {
		return IngestSummary{}, err
	}
	return s.Ingest(ctx, seed, w)
}

// Ingest upserts every row of seed in one transaction. Rows missing their
// key fields are skipped and reported on w. Re-ingesting the same seed is a
// no-op apart from refreshed values.
func (s *Store) Ingest(ctx context.Context, seed *Seed, w io.Writer) (IngestSummary, error) {
	var summary IngestSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range seed.Companies {
		ticker := strings.ToUpper(strings.TrimSpace(c.Ticker))
		if ticker == "" || c.Name == "" {
			fmt.Fprintf(w, "skipped company %q: ticker and name are required\n", c.Ticker)
			summary.Skipped++
			continue
		}
		aliases, _ := json.Marshal(c.Aliases)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO companies (ticker, name, sector, industry, exchange, aliases)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(ticker) DO UPDATE SET
				name=excluded.name, sector=excluded.sector, industry=excluded.industry,
				exchange=excluded.exchange, aliases=excluded.aliases`,
			ticker, c.Name, c.Sector, c.Industry, c.Exchange, string(aliases),
		); err != nil {
			return summary, fmt.Errorf("upserting company %s: %w", ticker, err)
		}
		summary.Companies++
	}

	for _, f := range seed.Fundamentals {
		ticker := strings.ToUpper(strings.TrimSpace(f.Ticker))
		if ticker == "" || f.Metric == "" || f.AsOf.IsZero() {
			fmt.Fprintf(w, "skipped fundamental %s/%s: ticker, metric and as_of are required\n", f.Ticker, f.Metric)
			summary.Skipped++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fundamentals (ticker, metric, value, unit, as_of)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(ticker, metric, as_of) DO UPDATE SET value=excluded.value, unit=excluded.unit`,
			ticker, f.Metric, f.Value, f.Unit, f.AsOf.UTC().Format(dateFmt),
		); err != nil {
			return summary, fmt.Errorf("upserting fundamental %s/%s: %w", ticker, f.Metric, err)
		}
		summary.Fundamentals++
	}

	for _, b := range seed.MarketData {
		ticker := strings.ToUpper(strings.TrimSpace(b.Ticker))
		if ticker == "" || b.Date.IsZero() {
			fmt.Fprintf(w, "skipped price bar %s: ticker and date are required\n", b.Ticker)
			summary.Skipped++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO market_data (ticker, date, open, high, low, close, volume, rsi, moving_avg_50, moving_avg_200)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(ticker, date) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
				volume=excluded.volume, rsi=excluded.rsi,
				moving_avg_50=excluded.moving_avg_50, moving_avg_200=excluded.moving_avg_200`,
			ticker, b.Date.UTC().Format(dateFmt), b.Open, b.High, b.Low, b.Close, b.Volume,
			b.RSI, b.MovingAvg50, b.MovingAvg200,
		); err != nil {
			return summary, fmt.Errorf("upserting price bar %s: %w", ticker, err)
		}
		summary.PriceBars++
	}

	for _, d := range seed.Documents {
		if d.ID == "" || d.Content == "" {
			fmt.Fprintf(w, "skipped document %q: id and content are required\n", d.ID)
			summary.Skipped++
			continue
		}
		collection := d.Collection
		if collection == "" {
			collection = CollectionCompanyDocs
		}
		published := ""
		if !d.PublishedAt.IsZero() {
			published = d.PublishedAt.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, ticker, collection, title, content, published_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				ticker=excluded.ticker, collection=excluded.collection, title=excluded.title,
				content=excluded.content, published_at=excluded.published_at`,
			d.ID, strings.ToUpper(d.Ticker), collection, d.Title, d.Content, published,
		); err != nil {
			return summary, fmt.Errorf("upserting document %s: %w", d.ID, err)
		}
		summary.Documents++
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing seed: %w", err)
	}

	fmt.Fprintf(w, "companies: %d, fundamentals: %d, price bars: %d, documents: %d, skipped: %d\n",
		summary.Companies, summary.Fundamentals, summary.PriceBars, summary.Documents, summary.Skipped)
	return summary, nil
}

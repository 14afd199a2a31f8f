// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateFmt = "2006-01-02"

// Company is one row of the entity master table.
type Company struct {
	Ticker   string   `json:"ticker" yaml:"ticker"`
	Name     string   `json:"name" yaml:"name"`
	Sector   string   `json:"sector,omitempty" yaml:"sector,omitempty"`
	Industry string   `json:"industry,omitempty" yaml:"industry,omitempty"`
	Exchange string   `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Fundamental is one dated fundamental metric of a company.
type Fundamental struct {
	Ticker string    `json:"ticker" yaml:"ticker"`
	Metric string    `json:"metric" yaml:"metric"`
	Value  float64   `json:"value" yaml:"value"`
	Unit   string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	AsOf   time.Time `json:"as_of" yaml:"as_of"`
}

// PriceBar is one daily market data row with technical indicators.
type PriceBar struct {
	Ticker       string    `json:"ticker" yaml:"ticker"`
	Date         time.Time `json:"date" yaml:"date"`
	Open         float64   `json:"open" yaml:"open"`
	High         float64   `json:"high" yaml:"high"`
	Low          float64   `json:"low" yaml:"low"`
	Close        float64   `json:"close" yaml:"close"`
	Volume       int64     `json:"volume" yaml:"volume"`
	RSI          float64   `json:"rsi,omitempty" yaml:"rsi,omitempty"`
	MovingAvg50  float64   `json:"moving_avg_50,omitempty" yaml:"moving_avg_50,omitempty"`
	MovingAvg200 float64   `json:"moving_avg_200,omitempty" yaml:"moving_avg_200,omitempty"`
}

// FundamentalsQuery selects the latest value of each metric as of a time.
type FundamentalsQuery struct {
	Ticker string
	// Metrics restricts the metrics returned; empty means all.
	Metrics []string
	AsOf    time.Time
	Limit   int
}

// Companies returns every company ordered by ticker.
func (s *Store) Companies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, name, sector, industry, exchange, aliases FROM companies ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("querying companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var (
			c                                   Company
			sector, industry, exchange, aliases sql.NullString
		)
		if err := rows.Scan(&c.Ticker, &c.Name, &sector, &industry, &exchange, &aliases); err != nil {
			return nil, fmt.Errorf("scanning company: %w", err)
		}
		c.Sector, c.Industry, c.Exchange = sector.String, industry.String, exchange.String
		if aliases.Valid && aliases.String != "" {
			json.Unmarshal([]byte(aliases.String), &c.Aliases)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Fundamentals returns the most recent value of each metric for q.Ticker
// with as_of on or before q.AsOf, ordered by metric.
func (s *Store) Fundamentals(ctx context.Context, q FundamentalsQuery) ([]Fundamental, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT ticker, metric, value, unit, as_of FROM (
			SELECT f.*, ROW_NUMBER() OVER (PARTITION BY metric ORDER BY as_of DESC) AS rn
			FROM fundamentals f
			WHERE f.ticker = ? COLLATE NOCASE AND f.as_of <= ?`)
	args = append(args, q.Ticker, asOfDate(q.AsOf))

	if len(q.Metrics) > 0 {
		qb.WriteString(` AND f.metric IN (` + placeholders(len(q.Metrics)) + `)`)
		for _, m := range q.Metrics {
			args = append(args, m)
		}
	}
	qb.WriteString(`) WHERE rn = 1 ORDER BY metric`)
	if q.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying fundamentals: %w", err)
	}
	defer rows.Close()

	var out []Fundamental
	for rows.Next() {
		var (
			f    Fundamental
			unit sql.NullString
			asOf string
		)
		if err := rows.Scan(&f.Ticker, &f.Metric, &f.Value, &unit, &asOf); err != nil {
			return nil, fmt.Errorf("scanning fundamental: %w", err)
		}
		f.Unit = unit.String
		f.AsOf, _ = time.Parse(dateFmt, asOf)
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarketData returns up to limit price bars for ticker dated on or before
// asOf, newest first.
func (s *Store) MarketData(ctx context.Context, ticker string, asOf time.Time, limit int) ([]PriceBar, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, date, open, high, low, close, volume, rsi, moving_avg_50, moving_avg_200
		 FROM market_data
		 WHERE ticker = ? COLLATE NOCASE AND date <= ?
		 ORDER BY date DESC
		 LIMIT ?`, ticker, asOfDate(asOf), limit)
	if err != nil {
		return nil, fmt.Errorf("querying market data: %w", err)
	}
	defer rows.Close()

	var out []PriceBar
	for rows.Next() {
		var (
			b                                      PriceBar
			date                                   string
			open, high, low, cls, rsi, ma50, ma200 sql.NullFloat64
			volume                                 sql.NullInt64
		)
		if err := rows.Scan(&b.Ticker, &date, &open, &high, &low, &cls, &volume, &rsi, &ma50, &ma200); err != nil {
			return nil, fmt.Errorf("scanning market data: %w", err)
		}
		b.Date, _ = time.Parse(dateFmt, date)
		b.Open, b.High, b.Low, b.Close = open.Float64, high.Float64, low.Float64, cls.Float64
		b.Volume = volume.Int64
		b.RSI, b.MovingAvg50, b.MovingAvg200 = rsi.Float64, ma50.Float64, ma200.Float64
		out = append(out, b)
	}
	return out, rows.Err()
}

// asOfDate formats t as a date for range comparison; the zero time matches
// everything.
func asOfDate(t time.Time) string {
	if t.IsZero() {
		return "9999-12-31"
	}
	return t.UTC().Format(dateFmt)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

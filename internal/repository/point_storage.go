package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
)

// PointSchema returns the DDL for the point history table.
func PointSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts            DateTime64(3, 'UTC'),
    symbol        LowCardinality(String),
    category      LowCardinality(String),
    source        LowCardinality(String),
    raw_price     Float64,
    raw_currency  LowCardinality(String),
    price_home    Float64,
    home_currency LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, ts)
TTL toDateTime(ts) + INTERVAL 90 DAY`, database, table),
	}
}

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db     *sql.DB
	table  string
	schema []string
}

// NewClickHouseStorage creates ClickHouse storage for database.table.
func NewClickHouseStorage(db *sql.DB, database, table string) *ClickHouseStorage {
	return &ClickHouseStorage{
		db:     db,
		table:  database + "." + table,
		schema: PointSchema(database, table),
	}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init point schema: %w", err)
		}
	}
	return nil
}

// StoreBatch inserts available points. Unavailable points carry no price and
// are skipped.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, points []models.MarketDataPoint) error {
	if len(points) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(points); start += chunkSize {
		end := min(start+chunkSize, len(points))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, p := range points[start:end] {
			price, ok := p.HomePrice()
			if !ok || p.Symbol == "" || p.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				p.Timestamp.UTC(),
				p.Symbol,
				string(p.Category),
				p.Source,
				p.RawPrice,
				p.RawCurrency,
				price,
				p.HomeCurrency,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, category, source, raw_price, raw_currency, price_home, home_currency) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert points: %w", err)
		}
	}
	return nil
}

// LatestN returns up to n most recent points for symbol, oldest first.
func (s *ClickHouseStorage) LatestN(ctx context.Context, symbol string, n int) ([]models.MarketDataPoint, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf("SELECT ts, symbol, category, source, raw_price, raw_currency, price_home, home_currency FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []models.MarketDataPoint
	for rows.Next() {
		var p models.MarketDataPoint
		var category string
		if err := rows.Scan(&p.Timestamp, &p.Symbol, &category, &p.Source, &p.RawPrice, &p.RawCurrency, &p.PriceHome, &p.HomeCurrency); err != nil {
			return nil, err
		}
		p.Category = models.Category(category)
		p.Available = true
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // pool owned by pkg/clickhouse
}

var _ repository.Storage = (*ClickHouseStorage)(nil)

package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// MetricTimeseriesStore implements storage.MetricTimeseriesStore using ClickHouse.
// MergeTree does not enforce uniqueness; the lifecycle manager only ever
// appends fresh observations, so no duplicate check is performed here.
type MetricTimeseriesStore struct {
	conn *Conn
}

// NewMetricTimeseriesStore creates a new MetricTimeseriesStore.
func NewMetricTimeseriesStore(conn *Conn) *MetricTimeseriesStore {
	return &MetricTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricTimeseriesStore = (*MetricTimeseriesStore)(nil)

// InsertBulk appends multiple points in one batch.
func (s *MetricTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p == nil || p.Mint == "" || p.Metric == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO metric_timeseries (mint, metric, timestamp_ms, value)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.Mint, string(p.Metric), uint64(p.TimestampMs), p.Value); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByMint retrieves all points of one metric for a mint, ordered by timestamp ASC.
func (s *MetricTimeseriesStore) GetByMint(ctx context.Context, mint string, metric domain.Metric) ([]*domain.MetricPoint, error) {
	query := `
		SELECT mint, metric, timestamp_ms, value
		FROM metric_timeseries
		WHERE mint = ? AND metric = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, string(metric))
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanMetricPoints(rows)
}

// GetByTimeRange retrieves points of one metric within [start, end] ms (inclusive).
func (s *MetricTimeseriesStore) GetByTimeRange(ctx context.Context, mint string, metric domain.Metric, start, end int64) ([]*domain.MetricPoint, error) {
	query := `
		SELECT mint, metric, timestamp_ms, value
		FROM metric_timeseries
		WHERE mint = ? AND metric = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, string(metric), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanMetricPoints(rows)
}

func scanMetricPoints(rows driver.Rows) ([]*domain.MetricPoint, error) {
	var result []*domain.MetricPoint
	for rows.Next() {
		var p domain.MetricPoint
		var metricStr string
		var ts uint64
		if err := rows.Scan(&p.Mint, &metricStr, &ts, &p.Value); err != nil {
			return nil, fmt.Errorf("scan metric point: %w", err)
		}
		p.Metric = domain.Metric(metricStr)
		p.TimestampMs = int64(ts)
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric points: %w", err)
	}
	return result, nil
}

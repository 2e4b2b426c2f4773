package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

const (
	// SnapshotLimit is the number of readings per metric in a snapshot.
	SnapshotLimit = 1000

	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// tables maps each stored metric to its table. Every table has the same
// columns; only water stores TEXT values.
var tables = map[string]string{
	MetricBattery:     "battery_measurements",
	MetricHumidity:    "humidity_measurements",
	MetricLight:       "light_measurements",
	MetricTemperature: "temperature_measurements",
	MetricWater:       "water_measurements",
}

// Store persists measurements, one collection per metric.
type Store interface {
	Save(ctx context.Context, m *Measurement) error
	History(ctx context.Context, flowerID string, q HistoryQuery) ([]Measurement, error)
	Latest(ctx context.Context, flowerID string) (map[string]Measurement, error)
	Snapshot(ctx context.Context, flowerID string, limit int) (map[string][]Measurement, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed measurement store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts m into its metric's table. ID and CreatedAt are filled
// when empty.
func (s *SQLiteStore) Save(ctx context.Context, m *Measurement) error {
	table, ok := tables[m.Type]
	if !ok {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidInput, m.Type)
	}
	if m.FlowerID == "" {
		return fmt.Errorf("%w: flower_id is required", ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, flower_id, value, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.FlowerID, m.Value, database.FormatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting %s measurement: %w", m.Type, err)
	}
	return nil
}

// History returns the flower's measurements inside the query window,
// newest first. With no metric, all metrics are merged.
func (s *SQLiteStore) History(ctx context.Context, flowerID string, q HistoryQuery) ([]Measurement, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidInput)
	}

	metrics := Metrics
	if q.Metric != "" {
		metric, ok := MetricFor(q.Metric)
		if !ok {
			return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidInput, q.Metric)
		}
		metrics = []string{metric}
	}

	var out []Measurement
	for _, metric := range metrics {
		ms, err := s.query(ctx, metric, flowerID, q.From, q.To, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Latest returns the newest measurement of each metric the flower has.
// Returns ErrNotFound when it has none.
func (s *SQLiteStore) Latest(ctx context.Context, flowerID string) (map[string]Measurement, error) {
	latest := make(map[string]Measurement, len(tables))
	for _, metric := range Metrics {
		ms, err := s.query(ctx, metric, flowerID, time.Time{}, time.Time{}, 1)
		if err != nil {
			return nil, err
		}
		if len(ms) > 0 {
			latest[metric] = ms[0]
		}
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("%w: no measurements for flower %s", ErrNotFound, flowerID)
	}
	return latest, nil
}

// Snapshot returns up to limit measurements per metric, newest first.
// Every metric key is present, with an empty slice when there is no data.
func (s *SQLiteStore) Snapshot(ctx context.Context, flowerID string, limit int) (map[string][]Measurement, error) {
	if limit <= 0 {
		limit = SnapshotLimit
	}
	snapshot := make(map[string][]Measurement, len(tables))
	for _, metric := range Metrics {
		ms, err := s.query(ctx, metric, flowerID, time.Time{}, time.Time{}, limit)
		if err != nil {
			return nil, err
		}
		if ms == nil {
			ms = []Measurement{}
		}
		snapshot[metric] = ms
	}
	return snapshot, nil
}

func (s *SQLiteStore) query(ctx context.Context, metric, flowerID string, from, to time.Time, limit int) ([]Measurement, error) {
	query := `SELECT id, flower_id, value, created_at FROM ` + tables[metric] + ` WHERE flower_id = ?`
	args := []any{flowerID}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, database.FormatTime(from))
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, database.FormatTime(to))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s measurements: %w", metric, err)
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		m := Measurement{Type: metric}
		var createdAt string
		var number float64
		var text string

		value := any(&number)
		if metric == MetricWater {
			value = &text
		}
		if err := rows.Scan(&m.ID, &m.FlowerID, value, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning %s measurement: %w", metric, err)
		}
		if metric == MetricWater {
			m.Value = text
		} else {
			m.Value = number
		}
		if m.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing %s timestamp %q: %w", metric, createdAt, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s measurements: %w", metric, err)
	}
	return out, nil
}

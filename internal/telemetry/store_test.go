package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	_ "github.com/nerrad567/smartpot-core/migrations"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func TestSQLiteStore_SaveAndHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	saves := []Measurement{
		{FlowerID: "flw-1", Type: MetricHumidity, Value: 41.5, CreatedAt: base},
		{FlowerID: "flw-1", Type: MetricHumidity, Value: 39.0, CreatedAt: base.Add(time.Hour)},
		{FlowerID: "flw-1", Type: MetricWater, Value: "low", CreatedAt: base.Add(2 * time.Hour)},
		{FlowerID: "flw-2", Type: MetricHumidity, Value: 80.0, CreatedAt: base},
	}
	for i := range saves {
		if err := store.Save(ctx, &saves[i]); err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
		if saves[i].ID == "" {
			t.Errorf("Save(%d) did not assign an ID", i)
		}
	}

	t.Run("single metric newest first", func(t *testing.T) {
		got, err := store.History(ctx, "flw-1", HistoryQuery{Metric: TypeSoil})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("History() returned %d, want 2", len(got))
		}
		if got[0].Value != 39.0 || got[1].Value != 41.5 {
			t.Errorf("History() values = %v, %v", got[0].Value, got[1].Value)
		}
	})

	t.Run("all metrics merged", func(t *testing.T) {
		got, err := store.History(ctx, "flw-1", HistoryQuery{})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("History() returned %d, want 3", len(got))
		}
		if got[0].Type != MetricWater || got[0].Value != "low" {
			t.Errorf("newest = %+v, want water reading", got[0])
		}
	})

	t.Run("window", func(t *testing.T) {
		got, err := store.History(ctx, "flw-1", HistoryQuery{
			Metric: MetricHumidity,
			From:   base.Add(30 * time.Minute),
		})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(got) != 1 || got[0].Value != 39.0 {
			t.Errorf("History() = %+v, want the later reading", got)
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := store.History(ctx, "flw-1", HistoryQuery{Limit: 1})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("History() returned %d, want 1", len(got))
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		tests := []HistoryQuery{
			{Metric: "ph"},
			{From: base.Add(time.Hour), To: base},
		}
		for _, q := range tests {
			if _, err := store.History(ctx, "flw-1", q); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("History(%+v) error = %v, want ErrInvalidInput", q, err)
			}
		}
	})
}

func TestSQLiteStore_SaveRejects(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		m    Measurement
	}{
		{name: "unknown metric", m: Measurement{FlowerID: "flw-1", Type: "soil", Value: 1.0}},
		{name: "missing flower", m: Measurement{Type: MetricLight, Value: 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Save(ctx, &tt.m); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Save() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSQLiteStore_LatestAndSnapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Latest(ctx, "flw-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest() on empty store error = %v, want ErrNotFound", err)
	}

	for i, v := range []float64{90, 85, 80} {
		m := &Measurement{FlowerID: "flw-1", Type: MetricBattery, Value: v, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Save(ctx, m); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := store.Save(ctx, &Measurement{FlowerID: "flw-1", Type: MetricLight, Value: 300.0, CreatedAt: base}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	latest, err := store.Latest(ctx, "flw-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(latest) != 2 {
		t.Errorf("Latest() has %d metrics, want 2", len(latest))
	}
	if latest[MetricBattery].Value != 80.0 {
		t.Errorf("latest battery = %v, want 80", latest[MetricBattery].Value)
	}

	snapshot, err := store.Snapshot(ctx, "flw-1", 2)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	for _, metric := range Metrics {
		if _, ok := snapshot[metric]; !ok {
			t.Errorf("Snapshot() missing key %q", metric)
		}
	}
	if len(snapshot[MetricBattery]) != 2 {
		t.Errorf("battery snapshot has %d readings, want limit 2", len(snapshot[MetricBattery]))
	}
	if len(snapshot[MetricWater]) != 0 {
		t.Errorf("water snapshot = %v, want empty", snapshot[MetricWater])
	}
}

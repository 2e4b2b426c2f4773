package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smartpot-core/internal/notify"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

type fakeEntities struct {
	pots       map[string]*plant.SmartPot
	households map[string]*plant.Household
	flowers    map[string]*plant.Flower
	profiles   map[string]*plant.SharedProfile
	users      map[string]plant.User
}

func (f *fakeEntities) GetSmartPotBySerial(_ context.Context, serial string) (*plant.SmartPot, error) {
	if p, ok := f.pots[serial]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, plant.ErrSmartPotNotFound
}

func (f *fakeEntities) GetHousehold(_ context.Context, id string) (*plant.Household, error) {
	if h, ok := f.households[id]; ok {
		return h, nil
	}
	return nil, plant.ErrHouseholdNotFound
}

func (f *fakeEntities) GetFlower(_ context.Context, id string) (*plant.Flower, error) {
	if fl, ok := f.flowers[id]; ok {
		cp := *fl
		return &cp, nil
	}
	return nil, plant.ErrFlowerNotFound
}

func (f *fakeEntities) GetProfile(_ context.Context, id string) (*plant.SharedProfile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, plant.ErrProfileNotFound
}

func (f *fakeEntities) GetUsers(_ context.Context, ids []string) ([]plant.User, error) {
	var out []plant.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []Measurement
	saveErr error
}

func (s *fakeStore) Save(_ context.Context, m *Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	m.ID = "msr-1"
	m.CreatedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.saved = append(s.saved, *m)
	return nil
}

func (s *fakeStore) History(context.Context, string, HistoryQuery) ([]Measurement, error) {
	return nil, nil
}

func (s *fakeStore) Latest(context.Context, string) (map[string]Measurement, error) {
	return nil, ErrNotFound
}

func (s *fakeStore) Snapshot(context.Context, string, int) (map[string][]Measurement, error) {
	return map[string][]Measurement{}, nil
}

type broadcast struct {
	flowerID string
	payload  []byte
}

type fakeBroadcaster struct {
	sent []broadcast
}

func (b *fakeBroadcaster) BroadcastToFlower(flowerID string, payload []byte) int {
	b.sent = append(b.sent, broadcast{flowerID: flowerID, payload: payload})
	return 1
}

type notification struct {
	recipients []notify.Recipient
	payload    []byte
	alert      *notify.Alert
}

type fakeNotifier struct {
	calls []notification
}

func (n *fakeNotifier) Notify(_ context.Context, recipients []notify.Recipient, payload []byte, alert *notify.Alert) int {
	n.calls = append(n.calls, notification{recipients: recipients, payload: payload, alert: alert})
	return len(recipients)
}

type fakeMirror struct {
	writes []string
}

func (m *fakeMirror) WriteSample(flowerID, serial, metric string, _ any, _ time.Time) {
	m.writes = append(m.writes, flowerID+"/"+serial+"/"+metric)
}

type pipelineFixture struct {
	pipeline *Pipeline
	entities *fakeEntities
	store    *fakeStore
	live     *fakeBroadcaster
	notifier *fakeNotifier
}

func setupPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	entities := &fakeEntities{
		pots: map[string]*plant.SmartPot{
			"SP-1":    {ID: "pot-1", SerialNumber: "SP-1", HouseholdID: "hh-1", ActiveFlowerID: "flw-1"},
			"SP-IDLE": {ID: "pot-2", SerialNumber: "SP-IDLE", HouseholdID: "hh-1"},
			"SP-2":    {ID: "pot-3", SerialNumber: "SP-2", HouseholdID: "hh-1", ActiveFlowerID: "flw-2"},
		},
		households: map[string]*plant.Household{
			"hh-1": {ID: "hh-1", OwnerID: "usr-owner", Members: []string{"usr-member", "usr-gone"}},
		},
		flowers: map[string]*plant.Flower{
			"flw-1": {ID: "flw-1", HouseholdID: "hh-1", Name: "Basil", SerialNumber: "SP-1",
				Profile: &plant.Profile{Humidity: &plant.Range{Min: 20, Max: 60}}},
			"flw-2": {ID: "flw-2", HouseholdID: "hh-1", Name: "Mint", SerialNumber: "SP-2", ProfileID: "prf-1"},
		},
		profiles: map[string]*plant.SharedProfile{
			"prf-1": {ID: "prf-1", Ranges: plant.Profile{Light: &plant.Range{Min: 200, Max: 800}}},
		},
		users: map[string]plant.User{
			"usr-owner":  {ID: "usr-owner", Email: "owner@example.test"},
			"usr-member": {ID: "usr-member"},
		},
	}
	fx := &pipelineFixture{
		entities: entities,
		store:    &fakeStore{},
		live:     &fakeBroadcaster{},
		notifier: &fakeNotifier{},
	}
	fx.pipeline = NewPipeline(entities, fx.store, fx.live, fx.notifier)
	return fx
}

func decodeMessage(t *testing.T, payload []byte) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decoding live message: %v", err)
	}
	return msg.Type, msg.Data
}

func TestPipeline_IngestInRange(t *testing.T) {
	fx := setupPipeline(t)
	mirror := &fakeMirror{}
	fx.pipeline.SetMirror(mirror)

	res, err := fx.pipeline.Ingest(context.Background(), Sample{SmartPotSerial: "SP-1", TypeOfData: TypeSoil, Value: 40})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if res.Measurement.FlowerID != "flw-1" || res.Measurement.Type != MetricHumidity {
		t.Errorf("Measurement = %+v, want humidity for flw-1", res.Measurement)
	}
	if res.Evaluation == nil || res.Evaluation.OutOfRange {
		t.Errorf("Evaluation = %+v, want in range", res.Evaluation)
	}
	if len(fx.store.saved) != 1 {
		t.Fatalf("saved %d measurements, want 1", len(fx.store.saved))
	}

	if len(fx.live.sent) != 1 || fx.live.sent[0].flowerID != "flw-1" {
		t.Fatalf("broadcasts = %+v, want one to flw-1", fx.live.sent)
	}
	msgType, data := decodeMessage(t, fx.live.sent[0].payload)
	if msgType != MessageMeasurementInserted {
		t.Errorf("message type = %q, want %q", msgType, MessageMeasurementInserted)
	}
	if data["value"] != 40.0 || data["flower_id"] != "flw-1" {
		t.Errorf("message data = %v", data)
	}

	if len(fx.notifier.calls) != 0 {
		t.Errorf("in-range reading notified %d times", len(fx.notifier.calls))
	}
	if len(mirror.writes) != 1 || mirror.writes[0] != "flw-1/SP-1/humidity" {
		t.Errorf("mirror writes = %v", mirror.writes)
	}
}

func TestPipeline_IngestOutOfRangeAlerts(t *testing.T) {
	fx := setupPipeline(t)

	res, err := fx.pipeline.Ingest(context.Background(), Sample{SmartPotSerial: "SP-1", TypeOfData: TypeSoil, Value: 10})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !res.Evaluation.OutOfRange {
		t.Fatalf("Evaluation = %+v, want out of range", res.Evaluation)
	}

	if len(fx.notifier.calls) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(fx.notifier.calls))
	}
	call := fx.notifier.calls[0]
	if len(call.recipients) != 2 {
		t.Errorf("recipients = %+v, want owner and member", call.recipients)
	}
	if call.alert == nil || call.alert.FlowerName != "Basil" || call.alert.Message != res.Evaluation.Message {
		t.Errorf("alert = %+v", call.alert)
	}
	msgType, data := decodeMessage(t, call.payload)
	if msgType != MessageAlert || data["message"] != res.Evaluation.Message {
		t.Errorf("alert message = %s %v", msgType, data)
	}

	if len(fx.live.sent) != 1 {
		t.Errorf("broadcasts = %d, want the measurement still broadcast", len(fx.live.sent))
	}
}

func TestPipeline_IngestUsesSharedProfile(t *testing.T) {
	fx := setupPipeline(t)

	res, err := fx.pipeline.Ingest(context.Background(), Sample{SmartPotSerial: "SP-2", TypeOfData: TypeLight, Value: 50})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Evaluation == nil || !res.Evaluation.OutOfRange {
		t.Errorf("Evaluation = %+v, want out of range from shared profile", res.Evaluation)
	}

	delete(fx.entities.profiles, "prf-1")
	res, err = fx.pipeline.Ingest(context.Background(), Sample{SmartPotSerial: "SP-2", TypeOfData: TypeLight, Value: 50})
	if err != nil {
		t.Fatalf("Ingest() with missing profile error = %v", err)
	}
	if res.Evaluation != nil {
		t.Errorf("Evaluation = %+v, want nil without a profile", res.Evaluation)
	}
}

func TestPipeline_IngestWaterHasNoPolicy(t *testing.T) {
	fx := setupPipeline(t)

	res, err := fx.pipeline.Ingest(context.Background(), Sample{SmartPotSerial: "SP-1", TypeOfData: TypeWater, Value: "EMPTY"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Evaluation != nil {
		t.Errorf("Evaluation = %+v, want nil", res.Evaluation)
	}
	if res.Measurement.Value != "empty" {
		t.Errorf("Value = %v, want lower-cased", res.Measurement.Value)
	}
}

func TestPipeline_IngestRejects(t *testing.T) {
	tests := []struct {
		name    string
		sample  Sample
		mutate  func(*fakeEntities)
		wantErr error
	}{
		{
			name:    "invalid sample",
			sample:  Sample{SmartPotSerial: "SP-1", TypeOfData: TypeSoil, Value: "wet"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown pot",
			sample:  Sample{SmartPotSerial: "SP-404", TypeOfData: TypeSoil, Value: 40},
			wantErr: ErrNotFound,
		},
		{
			name:    "pot without flower",
			sample:  Sample{SmartPotSerial: "SP-IDLE", TypeOfData: TypeSoil, Value: 40},
			wantErr: ErrNoActiveFlower,
		},
		{
			name:    "missing household",
			sample:  Sample{SmartPotSerial: "SP-1", TypeOfData: TypeSoil, Value: 40},
			mutate:  func(e *fakeEntities) { delete(e.households, "hh-1") },
			wantErr: ErrNotFound,
		},
		{
			name:    "dangling flower reference",
			sample:  Sample{SmartPotSerial: "SP-1", TypeOfData: TypeSoil, Value: 40},
			mutate:  func(e *fakeEntities) { delete(e.flowers, "flw-1") },
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := setupPipeline(t)
			if tt.mutate != nil {
				tt.mutate(fx.entities)
			}

			_, err := fx.pipeline.Ingest(context.Background(), tt.sample)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
			if len(fx.store.saved) != 0 {
				t.Errorf("rejected sample stored %d measurements", len(fx.store.saved))
			}
			if len(fx.live.sent) != 0 || len(fx.notifier.calls) != 0 {
				t.Errorf("rejected sample produced side effects")
			}
		})
	}
}

func TestPipeline_IngestStoreFailure(t *testing.T) {
	fx := setupPipeline(t)
	fx.store.saveErr = errors.New("disk full")

	if _, err := fx.pipeline.Ingest(context.Background(), Sample{SmartPotSerial: "SP-1", TypeOfData: TypeSoil, Value: 10}); err == nil {
		t.Fatal("Ingest() error = nil, want store failure")
	}
	if len(fx.live.sent) != 0 || len(fx.notifier.calls) != 0 {
		t.Errorf("failed store produced side effects")
	}
}

func TestPipeline_IngestWithoutOutputs(t *testing.T) {
	fx := setupPipeline(t)
	p := NewPipeline(fx.entities, fx.store, nil, nil)

	if _, err := p.Ingest(context.Background(), Sample{SmartPotSerial: "SP-1", TypeOfData: TypeBattery, Value: 5}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(fx.store.saved) != 1 {
		t.Errorf("saved %d measurements, want 1", len(fx.store.saved))
	}
}

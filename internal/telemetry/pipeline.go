package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/smartpot-core/internal/notify"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

// Live message types.
const (
	MessageMeasurementInserted = "measurement_inserted"
	MessageAlert               = "alert"
)

// Entities is the part of the entity store ingestion reads.
// *plant.SQLiteRepository satisfies it.
type Entities interface {
	GetSmartPotBySerial(ctx context.Context, serial string) (*plant.SmartPot, error)
	GetHousehold(ctx context.Context, id string) (*plant.Household, error)
	GetFlower(ctx context.Context, id string) (*plant.Flower, error)
	GetProfile(ctx context.Context, id string) (*plant.SharedProfile, error)
	GetUsers(ctx context.Context, ids []string) ([]plant.User, error)
}

// Broadcaster pushes a payload to every live subscriber of a flower.
// *live.Registry satisfies it.
type Broadcaster interface {
	BroadcastToFlower(flowerID string, payload []byte) int
}

// Notifier delivers alerts to household members. *notify.Fanout satisfies it.
type Notifier interface {
	Notify(ctx context.Context, recipients []notify.Recipient, payload []byte, alert *notify.Alert) int
}

// Mirror receives a copy of every stored reading. Writes must not block.
type Mirror interface {
	WriteSample(flowerID, serial, metric string, value any, at time.Time)
}

// Logger is the logging interface used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is what Ingest stored and how the range policy judged it.
// Evaluation is nil when no policy applies.
type Result struct {
	Measurement *Measurement `json:"measurement"`
	Evaluation  *Evaluation  `json:"evaluation,omitempty"`
}

// Pipeline ingests device samples.
type Pipeline struct {
	entities Entities
	store    Store
	live     Broadcaster
	notifier Notifier

	mu     sync.RWMutex
	mirror Mirror
	logger Logger
}

// NewPipeline creates a pipeline. live and notifier may be nil.
func NewPipeline(entities Entities, store Store, live Broadcaster, notifier Notifier) *Pipeline {
	return &Pipeline{
		entities: entities,
		store:    store,
		live:     live,
		notifier: notifier,
		logger:   noopLogger{},
	}
}

// SetLogger sets the pipeline logger.
func (p *Pipeline) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// SetMirror enables copying stored readings to a time-series database.
func (p *Pipeline) SetMirror(m Mirror) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirror = m
}

func (p *Pipeline) deps() (Logger, Mirror) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger, p.mirror
}

// Ingest validates a sample, attributes it to the flower bound to the
// reporting pot, stores it and pushes it to live subscribers.
//
// An out-of-range reading additionally alerts the household. Live and
// off-band delivery never fail the call; once the measurement is stored
// Ingest succeeds.
func (p *Pipeline) Ingest(ctx context.Context, sample Sample) (*Result, error) {
	logger, mirror := p.deps()

	if err := Validate(&sample); err != nil {
		return nil, err
	}
	metric, _ := MetricFor(sample.TypeOfData)

	pot, err := p.entities.GetSmartPotBySerial(ctx, sample.SmartPotSerial)
	if err != nil {
		return nil, lookupError("smart pot "+sample.SmartPotSerial, err)
	}
	if !pot.Occupied() {
		return nil, fmt.Errorf("%w: smart pot %s", ErrNoActiveFlower, pot.SerialNumber)
	}

	household, err := p.entities.GetHousehold(ctx, pot.HouseholdID)
	if err != nil {
		return nil, lookupError("household "+pot.HouseholdID, err)
	}

	flower, err := p.entities.GetFlower(ctx, pot.ActiveFlowerID)
	if err != nil {
		return nil, lookupError("flower "+pot.ActiveFlowerID, err)
	}

	var evaluation *Evaluation
	if value, ok := sample.Value.(float64); ok {
		evaluation = Evaluate(sample.TypeOfData, value, p.profile(ctx, flower, logger))
	}

	recipients := p.recipients(ctx, household, logger)

	m := &Measurement{
		FlowerID: flower.ID,
		Type:     metric,
		Value:    sample.Value,
	}
	if err := p.store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("storing measurement: %w", err)
	}

	if mirror != nil {
		mirror.WriteSample(flower.ID, pot.SerialNumber, metric, m.Value, m.CreatedAt)
	}

	if p.live != nil {
		if payload, err := encode(MessageMeasurementInserted, m); err != nil {
			logger.Error("encoding live measurement failed", "error", err)
		} else {
			p.live.BroadcastToFlower(flower.ID, payload)
		}
	}

	if evaluation != nil && evaluation.OutOfRange && p.notifier != nil {
		p.alert(ctx, flower, m, evaluation, recipients, logger)
	}

	logger.Debug("measurement ingested",
		"serial_number", pot.SerialNumber,
		"flower_id", flower.ID,
		"metric", metric,
		"out_of_range", evaluation != nil && evaluation.OutOfRange,
	)
	return &Result{Measurement: m, Evaluation: evaluation}, nil
}

// profile resolves the flower's effective profile. A referenced profile
// that no longer exists means no policy.
func (p *Pipeline) profile(ctx context.Context, flower *plant.Flower, logger Logger) *plant.Profile {
	if flower.Profile != nil {
		return flower.Profile
	}
	if flower.ProfileID == "" {
		return nil
	}
	shared, err := p.entities.GetProfile(ctx, flower.ProfileID)
	if err != nil {
		logger.Warn("flower profile unavailable, skipping range policy",
			"flower_id", flower.ID,
			"profile_id", flower.ProfileID,
			"error", err,
		)
		return nil
	}
	return &shared.Ranges
}

// recipients resolves the household's owner and members to users. Users
// that cannot be resolved are dropped.
func (p *Pipeline) recipients(ctx context.Context, household *plant.Household, logger Logger) []notify.Recipient {
	users, err := p.entities.GetUsers(ctx, household.UserIDs())
	if err != nil {
		logger.Warn("resolving household members failed", "household_id", household.ID, "error", err)
		return nil
	}
	out := make([]notify.Recipient, 0, len(users))
	for _, u := range users {
		out = append(out, notify.Recipient{UserID: u.ID, Email: u.Email})
	}
	return out
}

type alertData struct {
	FlowerID   string    `json:"flower_id"`
	FlowerName string    `json:"flower_name"`
	Type       string    `json:"type"`
	Value      any       `json:"value"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p *Pipeline) alert(ctx context.Context, flower *plant.Flower, m *Measurement, eval *Evaluation, recipients []notify.Recipient, logger Logger) {
	payload, err := encode(MessageAlert, alertData{
		FlowerID:   flower.ID,
		FlowerName: flower.Name,
		Type:       m.Type,
		Value:      m.Value,
		Message:    eval.Message,
		CreatedAt:  m.CreatedAt,
	})
	if err != nil {
		logger.Error("encoding alert failed", "error", err)
		payload = nil
	}

	logger.Info("measurement out of range",
		"flower_id", flower.ID,
		"metric", m.Type,
		"message", eval.Message,
		"recipients", len(recipients),
	)
	p.notifier.Notify(ctx, recipients, payload, &notify.Alert{
		FlowerID:   flower.ID,
		FlowerName: flower.Name,
		Message:    eval.Message,
	})
}

func encode(msgType string, data any) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: msgType, Data: data})
}

func lookupError(what string, err error) error {
	if errors.Is(err, plant.ErrSmartPotNotFound) ||
		errors.Is(err, plant.ErrHouseholdNotFound) ||
		errors.Is(err, plant.ErrFlowerNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("loading %s: %w", what, err)
}

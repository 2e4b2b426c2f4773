package binding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/plant"
)

var errInjected = errors.New("injected write failure")

// memStore is an in-memory Store whose writes can be made to fail.
type memStore struct {
	mu         sync.Mutex
	flowers    map[string]plant.Flower
	pots       map[string]plant.SmartPot
	households map[string]plant.Household

	writes int
	// failWrite reports whether the nth write (1-based) should fail.
	failWrite func(n int) bool
}

func newMemStore() *memStore {
	return &memStore{
		flowers:    make(map[string]plant.Flower),
		pots:       make(map[string]plant.SmartPot),
		households: make(map[string]plant.Household),
	}
}

func (s *memStore) addHousehold(id string) {
	s.households[id] = plant.Household{ID: id, Name: id, OwnerID: id + "-owner"}
}

func (s *memStore) addFlower(id, householdID, serial string) {
	s.flowers[id] = plant.Flower{ID: id, HouseholdID: householdID, Name: id, SerialNumber: serial}
}

func (s *memStore) addPot(id, serial, householdID, activeFlowerID string) {
	s.pots[id] = plant.SmartPot{ID: id, SerialNumber: serial, HouseholdID: householdID, ActiveFlowerID: activeFlowerID}
}

func (s *memStore) flower(id string) plant.Flower {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flowers[id]
}

func (s *memStore) pot(id string) plant.SmartPot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pots[id]
}

func (s *memStore) write() error {
	s.writes++
	if s.failWrite != nil && s.failWrite(s.writes) {
		return fmt.Errorf("write %d: %w", s.writes, errInjected)
	}
	return nil
}

func (s *memStore) GetFlower(_ context.Context, id string) (*plant.Flower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flowers[id]
	if !ok {
		return nil, plant.ErrFlowerNotFound
	}
	return &f, nil
}

func (s *memStore) ListFlowers(context.Context) ([]plant.Flower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]plant.Flower, 0, len(s.flowers))
	for _, f := range s.flowers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) UpdateFlower(_ context.Context, id string, patch plant.FlowerPatch) (*plant.Flower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flowers[id]
	if !ok {
		return nil, plant.ErrFlowerNotFound
	}
	if err := s.write(); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.HouseholdID != nil {
		f.HouseholdID = *patch.HouseholdID
	}
	if patch.SerialNumber != nil {
		f.SerialNumber = *patch.SerialNumber
	}
	s.flowers[id] = f
	return &f, nil
}

func (s *memStore) GetSmartPotByID(_ context.Context, id string) (*plant.SmartPot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pots[id]
	if !ok {
		return nil, plant.ErrSmartPotNotFound
	}
	return &p, nil
}

func (s *memStore) GetSmartPotBySerial(_ context.Context, serial string) (*plant.SmartPot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pots {
		if p.SerialNumber == serial {
			return &p, nil
		}
	}
	return nil, plant.ErrSmartPotNotFound
}

func (s *memStore) ListSmartPots(context.Context) ([]plant.SmartPot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]plant.SmartPot, 0, len(s.pots))
	for _, p := range s.pots {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListSmartPotsByActiveFlower(ctx context.Context, flowerID string) ([]plant.SmartPot, error) {
	all, _ := s.ListSmartPots(ctx)
	var out []plant.SmartPot
	for _, p := range all {
		if p.ActiveFlowerID == flowerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) UpdateSmartPot(_ context.Context, id string, patch plant.SmartPotPatch) (*plant.SmartPot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pots[id]
	if !ok {
		return nil, plant.ErrSmartPotNotFound
	}
	if err := s.write(); err != nil {
		return nil, err
	}
	if patch.HouseholdID != nil {
		p.HouseholdID = *patch.HouseholdID
	}
	if patch.ActiveFlowerID != nil {
		p.ActiveFlowerID = *patch.ActiveFlowerID
	}
	s.pots[id] = p
	return &p, nil
}

func (s *memStore) GetHousehold(_ context.Context, id string) (*plant.Household, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.households[id]
	if !ok {
		return nil, plant.ErrHouseholdNotFound
	}
	return &h, nil
}

// memAudit collects audit entries.
type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *memAudit) Create(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// assertConsistent fails the test when any pot/flower pair breaks the
// binding rule.
func assertConsistent(t *testing.T, s *memStore) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := make(map[string]string)
	for _, p := range s.pots {
		if p.ActiveFlowerID == "" {
			continue
		}
		if other, dup := claimed[p.ActiveFlowerID]; dup {
			t.Errorf("flower %s claimed by pots %s and %s", p.ActiveFlowerID, other, p.ID)
		}
		claimed[p.ActiveFlowerID] = p.ID
		f, ok := s.flowers[p.ActiveFlowerID]
		if !ok {
			t.Errorf("pot %s references missing flower %s", p.ID, p.ActiveFlowerID)
			continue
		}
		if f.SerialNumber != p.SerialNumber {
			t.Errorf("pot %s -> flower %s, but flower serial = %q, want %q", p.ID, f.ID, f.SerialNumber, p.SerialNumber)
		}
	}
	for _, f := range s.flowers {
		if f.SerialNumber == "" {
			continue
		}
		if _, ok := claimed[f.ID]; !ok {
			t.Errorf("flower %s has serial %q but no pot references it", f.ID, f.SerialNumber)
		}
	}
}

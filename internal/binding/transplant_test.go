package binding

import (
	"context"
	"errors"
	"testing"
)

func TestTransplantFlowerWithPot(t *testing.T) {
	m, s, _ := setupManager(t)
	bind(s, "f-1", "p-1")

	res, err := m.TransplantFlowerWithPot(context.Background(), "f-1", "hh-2")
	if err != nil {
		t.Fatalf("TransplantFlowerWithPot() error = %v", err)
	}
	if s.flower("f-1").HouseholdID != "hh-2" || s.pot("p-1").HouseholdID != "hh-2" {
		t.Errorf("households = flower %q, pot %q, want hh-2", s.flower("f-1").HouseholdID, s.pot("p-1").HouseholdID)
	}
	if res.SmartPot.ActiveFlowerID != "f-1" {
		t.Errorf("binding changed: %+v", res.SmartPot)
	}
	assertConsistent(t, s)

	tests := []struct {
		name      string
		flower    string
		household string
		wantErr   error
	}{
		{"unbound flower", "f-2", "hh-2", ErrNotFound},
		{"unknown household", "f-1", "hh-9", ErrNotFound},
		{"unknown flower", "f-9", "hh-2", ErrNotFound},
		{"missing household id", "f-1", "", ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.TransplantFlowerWithPot(context.Background(), tt.flower, tt.household); !errors.Is(err, tt.wantErr) {
				t.Errorf("TransplantFlowerWithPot() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransplantFlowerWithoutPot(t *testing.T) {
	t.Run("releases pot", func(t *testing.T) {
		m, s, _ := setupManager(t)
		bind(s, "f-1", "p-1")

		res, err := m.TransplantFlowerWithoutPot(context.Background(), "f-1", "hh-2", "")
		if err != nil {
			t.Fatalf("TransplantFlowerWithoutPot() error = %v", err)
		}
		f := s.flower("f-1")
		if f.HouseholdID != "hh-2" || f.SerialNumber != "" {
			t.Errorf("flower = %+v, want hh-2 and no serial", f)
		}
		p := s.pot("p-1")
		if p.HouseholdID != "hh-1" || p.ActiveFlowerID != "" {
			t.Errorf("pot = %+v, want hh-1 and empty", p)
		}
		if res.ReleasedPot == nil || res.ReassignedFlower != nil {
			t.Errorf("result = %+v", res)
		}
		assertConsistent(t, s)
	})

	t.Run("reassigns released pot", func(t *testing.T) {
		m, s, _ := setupManager(t)
		bind(s, "f-1", "p-1")

		res, err := m.TransplantFlowerWithoutPot(context.Background(), "f-1", "hh-2", "f-2")
		if err != nil {
			t.Fatalf("TransplantFlowerWithoutPot() error = %v", err)
		}
		if s.pot("p-1").ActiveFlowerID != "f-2" || s.flower("f-2").SerialNumber != "SP-1" {
			t.Errorf("pot p-1 not rebound to f-2: pot %+v flower %+v", s.pot("p-1"), s.flower("f-2"))
		}
		if res.ReassignedFlower == nil || res.ReassignedFlower.ID != "f-2" {
			t.Errorf("ReassignedFlower = %+v", res.ReassignedFlower)
		}
		assertConsistent(t, s)
	})

	t.Run("unbound flower moves alone", func(t *testing.T) {
		m, s, _ := setupManager(t)
		if _, err := m.TransplantFlowerWithoutPot(context.Background(), "f-1", "hh-2", ""); err != nil {
			t.Fatalf("TransplantFlowerWithoutPot() error = %v", err)
		}
		if s.flower("f-1").HouseholdID != "hh-2" {
			t.Error("flower was not moved")
		}
	})

	errTests := []struct {
		name     string
		assignTo string
		bound    bool
		wantErr  error
	}{
		{"target already has pot", "f-2", true, ErrConflict},
		{"assign to self", "f-1", true, ErrInvalidInput},
		{"no pot to assign", "f-2", false, ErrInvalidInput},
		{"unknown target", "f-9", true, ErrNotFound},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			m, s, _ := setupManager(t)
			if tt.bound {
				bind(s, "f-1", "p-1")
			}
			if tt.name == "target already has pot" {
				bind(s, "f-2", "p-2")
			}

			_, err := m.TransplantFlowerWithoutPot(context.Background(), "f-1", "hh-2", tt.assignTo)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TransplantFlowerWithoutPot() error = %v, want %v", err, tt.wantErr)
			}
			if s.writes != 0 {
				t.Errorf("rejected transplant wrote %d times", s.writes)
			}
		})
	}
}

func TestTransplantFlowerWithoutPot_RollbackRestoresAllEntities(t *testing.T) {
	m, s, _ := setupManager(t)
	bind(s, "f-1", "p-1")
	// Writes: release pot, move flower, bind target flower, bind pot.
	s.failWrite = func(n int) bool { return n == 4 }

	_, err := m.TransplantFlowerWithoutPot(context.Background(), "f-1", "hh-2", "f-2")
	if !errors.Is(err, errInjected) || errors.Is(err, ErrPartialFailure) {
		t.Fatalf("TransplantFlowerWithoutPot() error = %v, want rolled back failure", err)
	}

	f1 := s.flower("f-1")
	if f1.HouseholdID != "hh-1" || f1.SerialNumber != "SP-1" {
		t.Errorf("f-1 after rollback = %+v", f1)
	}
	if got := s.flower("f-2").SerialNumber; got != "" {
		t.Errorf("f-2 serial after rollback = %q, want empty", got)
	}
	if got := s.pot("p-1").ActiveFlowerID; got != "f-1" {
		t.Errorf("p-1 active flower after rollback = %q, want f-1", got)
	}
	assertConsistent(t, s)
}

func TestTransplantFlowerToPot(t *testing.T) {
	m, s, _ := setupManager(t)
	ctx := context.Background()
	bind(s, "f-1", "p-1")

	res, err := m.TransplantFlowerToPot(ctx, "f-1", "p-2")
	if err != nil {
		t.Fatalf("TransplantFlowerToPot() error = %v", err)
	}
	if res.ReleasedPot == nil || res.ReleasedPot.ID != "p-1" {
		t.Errorf("ReleasedPot = %+v, want p-1", res.ReleasedPot)
	}
	if s.pot("p-1").ActiveFlowerID != "" || s.pot("p-2").ActiveFlowerID != "f-1" {
		t.Errorf("pots = %+v / %+v", s.pot("p-1"), s.pot("p-2"))
	}
	if s.flower("f-1").SerialNumber != "SP-2" {
		t.Errorf("flower serial = %q, want SP-2", s.flower("f-1").SerialNumber)
	}
	assertConsistent(t, s)

	t.Run("repeat is idempotent", func(t *testing.T) {
		before := s.writes
		res, err := m.TransplantFlowerToPot(ctx, "f-1", "p-2")
		if err != nil {
			t.Fatalf("TransplantFlowerToPot() error = %v", err)
		}
		if s.writes != before {
			t.Errorf("repeat wrote %d times", s.writes-before)
		}
		if res.Flower.SerialNumber != "SP-2" || res.SmartPot.ActiveFlowerID != "f-1" {
			t.Errorf("repeat result = %+v / %+v", res.Flower, res.SmartPot)
		}
	})

	t.Run("occupied target", func(t *testing.T) {
		bind(s, "f-2", "p-3")
		before := s.writes
		if _, err := m.TransplantFlowerToPot(ctx, "f-1", "p-3"); !errors.Is(err, ErrConflict) {
			t.Fatalf("TransplantFlowerToPot() error = %v, want ErrConflict", err)
		}
		if s.writes != before {
			t.Error("conflicting transplant wrote")
		}
		if s.flower("f-1").SerialNumber != "SP-2" {
			t.Error("conflicting transplant released the old pot")
		}
	})

	t.Run("unknown pot", func(t *testing.T) {
		if _, err := m.TransplantFlowerToPot(ctx, "f-1", "p-9"); !errors.Is(err, ErrNotFound) {
			t.Errorf("TransplantFlowerToPot() error = %v, want ErrNotFound", err)
		}
	})
}

func TestTransplantPotWithFlower(t *testing.T) {
	m, s, _ := setupManager(t)
	bind(s, "f-1", "p-1")

	if _, err := m.TransplantPotWithFlower(context.Background(), "p-1", "hh-2"); err != nil {
		t.Fatalf("TransplantPotWithFlower() error = %v", err)
	}
	if s.pot("p-1").HouseholdID != "hh-2" || s.flower("f-1").HouseholdID != "hh-2" {
		t.Error("pot and flower were not both moved")
	}

	res, err := m.TransplantPotWithFlower(context.Background(), "p-2", "hh-2")
	if err != nil {
		t.Fatalf("TransplantPotWithFlower(empty pot) error = %v", err)
	}
	if res.Flower != nil || s.pot("p-2").HouseholdID != "hh-2" {
		t.Errorf("empty pot transplant = %+v", res)
	}
	assertConsistent(t, s)
}

func TestTransplantPotWithoutFlower(t *testing.T) {
	t.Run("releases flower", func(t *testing.T) {
		m, s, _ := setupManager(t)
		bind(s, "f-1", "p-1")

		res, err := m.TransplantPotWithoutFlower(context.Background(), "p-1", "hh-2", "")
		if err != nil {
			t.Fatalf("TransplantPotWithoutFlower() error = %v", err)
		}
		p := s.pot("p-1")
		if p.HouseholdID != "hh-2" || p.ActiveFlowerID != "" {
			t.Errorf("pot = %+v", p)
		}
		if f := s.flower("f-1"); f.SerialNumber != "" || f.HouseholdID != "hh-1" {
			t.Errorf("flower = %+v", f)
		}
		if res.ReleasedFlower == nil || res.ReleasedFlower.ID != "f-1" {
			t.Errorf("ReleasedFlower = %+v", res.ReleasedFlower)
		}
		assertConsistent(t, s)
	})

	t.Run("rebinds flower to new pot", func(t *testing.T) {
		m, s, _ := setupManager(t)
		bind(s, "f-1", "p-1")

		res, err := m.TransplantPotWithoutFlower(context.Background(), "p-1", "hh-2", "p-2")
		if err != nil {
			t.Fatalf("TransplantPotWithoutFlower() error = %v", err)
		}
		if s.pot("p-2").ActiveFlowerID != "f-1" || s.flower("f-1").SerialNumber != "SP-2" {
			t.Errorf("flower not rebound to p-2")
		}
		if res.ReassignedPot == nil || res.ReassignedPot.ID != "p-2" {
			t.Errorf("ReassignedPot = %+v", res.ReassignedPot)
		}
		assertConsistent(t, s)
	})

	t.Run("new pot occupied", func(t *testing.T) {
		m, s, _ := setupManager(t)
		bind(s, "f-1", "p-1")
		bind(s, "f-2", "p-2")

		if _, err := m.TransplantPotWithoutFlower(context.Background(), "p-1", "hh-2", "p-2"); !errors.Is(err, ErrConflict) {
			t.Fatalf("TransplantPotWithoutFlower() error = %v, want ErrConflict", err)
		}
		if s.writes != 0 {
			t.Errorf("rejected transplant wrote %d times", s.writes)
		}
	})
}

func TestTransplantPotToFlower(t *testing.T) {
	m, s, _ := setupManager(t)
	ctx := context.Background()
	bind(s, "f-1", "p-1")

	res, err := m.TransplantPotToFlower(ctx, "p-1", "f-2")
	if err != nil {
		t.Fatalf("TransplantPotToFlower() error = %v", err)
	}
	if s.flower("f-1").SerialNumber != "" {
		t.Error("old flower still has the serial")
	}
	if s.pot("p-1").ActiveFlowerID != "f-2" || s.flower("f-2").SerialNumber != "SP-1" {
		t.Error("pot not bound to f-2")
	}
	if res.ReleasedFlower == nil || res.ReleasedFlower.ID != "f-1" {
		t.Errorf("ReleasedFlower = %+v", res.ReleasedFlower)
	}
	assertConsistent(t, s)

	bind(s, "f-3", "p-3")
	if _, err := m.TransplantPotToFlower(ctx, "p-1", "f-3"); !errors.Is(err, ErrConflict) {
		t.Errorf("TransplantPotToFlower(bound flower) error = %v, want ErrConflict", err)
	}
}

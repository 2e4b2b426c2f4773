package plant

import (
	"fmt"
	"strings"
)

const maxNameLength = 100

// Validate checks the band is well formed.
func (r Range) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("%w: min %v greater than max %v", ErrInvalidRange, r.Min, r.Max)
	}
	return nil
}

// Validate checks every configured range.
func (p *Profile) Validate() error {
	for name, r := range map[string]*Range{
		"humidity":    p.Humidity,
		"temperature": p.Temperature,
		"light":       p.Light,
	} {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the flower can be stored.
func (f *Flower) Validate() error {
	name := strings.TrimSpace(f.Name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidFlower)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidFlower, maxNameLength)
	case f.HouseholdID == "":
		return fmt.Errorf("%w: household_id is required", ErrInvalidFlower)
	case f.Profile != nil && f.ProfileID != "":
		return fmt.Errorf("%w: profile and profile_id are mutually exclusive", ErrInvalidFlower)
	}
	if f.Profile != nil {
		if err := f.Profile.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidFlower, err)
		}
	}
	return nil
}

// Validate checks the smart pot can be stored.
func (p *SmartPot) Validate() error {
	if strings.TrimSpace(p.SerialNumber) == "" {
		return fmt.Errorf("%w: serial_number is required", ErrInvalidSmartPot)
	}
	if p.HouseholdID == "" {
		return fmt.Errorf("%w: household_id is required", ErrInvalidSmartPot)
	}
	return nil
}

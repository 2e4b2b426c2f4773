package plant

import (
	"slices"
	"time"
)

// Range is an inclusive min/max band for one metric.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the band.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Profile holds the range thresholds a flower is evaluated against.
// A nil range means no policy for that metric.
type Profile struct {
	Humidity    *Range `json:"humidity,omitempty"`
	Temperature *Range `json:"temperature,omitempty"`
	Light       *Range `json:"light,omitempty"`
}

// SharedProfile is a named profile that several flowers can reference.
type SharedProfile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HouseholdID string    `json:"household_id,omitempty"`
	Ranges      Profile   `json:"ranges"`
	CreatedAt   time.Time `json:"created_at"`
}

// Flower is a logical plant record.
//
// Profile and ProfileID are mutually exclusive. SerialNumber is the serial
// of the bound smart pot, empty when unbound.
type Flower struct {
	ID           string    `json:"id"`
	HouseholdID  string    `json:"household_id"`
	Name         string    `json:"name"`
	Profile      *Profile  `json:"profile,omitempty"`
	ProfileID    string    `json:"profile_id,omitempty"`
	SerialNumber string    `json:"serial_number"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPot reports whether the flower points at a smart pot.
func (f Flower) HasPot() bool {
	return f.SerialNumber != ""
}

// SmartPot is a physical device. SerialNumber never changes after creation.
type SmartPot struct {
	ID             string    `json:"id"`
	SerialNumber   string    `json:"serial_number"`
	HouseholdID    string    `json:"household_id"`
	ActiveFlowerID string    `json:"active_flower_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Occupied reports whether a flower is bound to the pot.
func (p SmartPot) Occupied() bool {
	return p.ActiveFlowerID != ""
}

// Household is the tenancy boundary owning flowers and pots.
type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserIDs returns the owner followed by the members, without duplicates.
func (h *Household) UserIDs() []string {
	seen := make(map[string]struct{}, len(h.Members)+1)
	ids := make([]string, 0, len(h.Members)+1)
	for _, id := range append([]string{h.OwnerID}, h.Members...) {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// HasMember reports whether userID owns or belongs to the household.
func (h *Household) HasMember(userID string) bool {
	return userID != "" && slices.Contains(h.UserIDs(), userID)
}

// User is a directory entry. Email may be empty.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FlowerPatch lists the flower fields to change. Nil fields are left alone;
// a pointer to "" clears SerialNumber.
type FlowerPatch struct {
	Name         *string
	HouseholdID  *string
	SerialNumber *string
}

// SmartPotPatch lists the smart pot fields to change. Nil fields are left
// alone; a pointer to "" clears ActiveFlowerID.
type SmartPotPatch struct {
	HouseholdID    *string
	ActiveFlowerID *string
}

// Ptr returns a pointer to s, for building patches.
func Ptr(s string) *string {
	return &s
}

package plant

import "errors"

var (
	ErrFlowerNotFound    = errors.New("plant: flower not found")
	ErrSmartPotNotFound  = errors.New("plant: smart pot not found")
	ErrHouseholdNotFound = errors.New("plant: household not found")
	ErrProfileNotFound   = errors.New("plant: profile not found")
	ErrUserNotFound      = errors.New("plant: user not found")

	// ErrExists is returned when creating a document whose id or unique
	// serial number is already taken.
	ErrExists = errors.New("plant: already exists")

	ErrInvalidFlower   = errors.New("plant: invalid flower")
	ErrInvalidSmartPot = errors.New("plant: invalid smart pot")
	ErrInvalidRange    = errors.New("plant: invalid range")
)

package domain

import "strings"

const (
	minPINLength = 4
	maxPINLength = 8
)

// StaffMember is the audit-safe view of a user row. Credentials never leave the store layer.
type StaffMember struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Role       Role    `json:"role"`
	LocationID *string `json:"location_id,omitempty"`
	IsActive   bool    `json:"is_active"`
}

type AssignStaffRequest struct {
	LocationID string `json:"location_id"`
	PIN        string `json:"pin"`
}

func (r *AssignStaffRequest) Validate() error {
	r.LocationID = strings.TrimSpace(r.LocationID)
	if r.LocationID == "" {
		return Validationf("location_id is required")
	}
	return nil
}

type SetStaffPINRequest struct {
	NewPIN string `json:"new_pin"`
	PIN    string `json:"pin"`
}

func (r *SetStaffPINRequest) Validate() error {
	if !IsWellFormedPIN(r.NewPIN) {
		return Validationf("new PIN must be %d to %d digits", minPINLength, maxPINLength)
	}
	return nil
}

// IsWellFormedPIN reports whether pin is a short code of ASCII digits.
func IsWellFormedPIN(pin string) bool {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

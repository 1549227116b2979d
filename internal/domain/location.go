package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const minDeactivationReasonLength = 10

// Location is a store, warehouse or office of the chain.
type Location struct {
	ID                 string          `json:"id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	LocationType       string          `json:"location_type"`
	Address            string          `json:"address"`
	IsActive           bool            `json:"is_active"`
	Config             json.RawMessage `json:"config"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeactivatedAt      *time.Time      `json:"deactivated_at,omitempty"`
	DeactivationReason *string         `json:"deactivation_reason,omitempty"`
}

// Terminal is a point-of-sale device registered to a location.
type Terminal struct {
	ID         string    `json:"id"`
	LocationID string    `json:"location_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateLocationRequest struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	LocationType string          `json:"location_type"`
	Address      string          `json:"address"`
	Config       json.RawMessage `json:"config,omitempty"`
	PIN          string          `json:"pin"`
}

func (r *CreateLocationRequest) Validate() error {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	r.Name = strings.TrimSpace(r.Name)
	r.LocationType = strings.ToUpper(strings.TrimSpace(r.LocationType))
	r.Address = strings.TrimSpace(r.Address)
	if r.Code == "" {
		return Validationf("location code is required")
	}
	if r.Name == "" {
		return Validationf("location name is required")
	}
	switch r.LocationType {
	case "STORE", "WAREHOUSE", "HQ":
	default:
		return Validationf("location type must be STORE, WAREHOUSE or HQ")
	}
	if len(r.Config) > 0 && !isJSONObject(r.Config) {
		return Validationf("location config must be a JSON object")
	}
	return nil
}

type DeactivateLocationRequest struct {
	Reason string `json:"reason"`
	PIN    string `json:"pin"`
}

func (r *DeactivateLocationRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if len([]rune(r.Reason)) < minDeactivationReasonLength {
		return Validationf("deactivation reason must be at least %d characters", minDeactivationReasonLength)
	}
	return nil
}

// UpdateLocationConfigRequest merges Changes into the stored config object. A null value removes the key.
type UpdateLocationConfigRequest struct {
	Changes map[string]json.RawMessage `json:"changes"`
	PIN     string                     `json:"pin"`
}

func (r *UpdateLocationConfigRequest) Validate() error {
	if len(r.Changes) == 0 {
		return Validationf("at least one config change is required")
	}
	for key := range r.Changes {
		if strings.TrimSpace(key) == "" {
			return Validationf("config keys must not be empty")
		}
	}
	return nil
}

type CreateTerminalRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

func (r *CreateTerminalRequest) Validate() error {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	r.Name = strings.TrimSpace(r.Name)
	if r.Code == "" || r.Name == "" {
		return Validationf("terminal code and name are required")
	}
	return nil
}

// MergeConfig applies changes on top of current. Both must be JSON objects; a JSON null deletes the key.
func MergeConfig(current json.RawMessage, changes map[string]json.RawMessage) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	if len(current) > 0 && string(current) != "null" {
		if err := json.Unmarshal(current, &merged); err != nil {
			return nil, Validationf("stored location config is not a JSON object")
		}
	}
	for key, value := range changes {
		if len(value) == 0 || string(value) == "null" {
			delete(merged, key)
			continue
		}
		if !json.Valid(value) {
			return nil, Validationf("config value for %q is not valid JSON", key)
		}
		merged[key] = value
	}
	return json.Marshal(merged)
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil
}

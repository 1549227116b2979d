package domain

import (
	"encoding/json"
	"time"
)

// Entity types recorded on audit_logs.entity_type.
const (
	EntityLocation         = "LOCATION"
	EntityTerminal         = "TERMINAL"
	EntityFinancialAccount = "FINANCIAL_ACCOUNT"
	EntityUser             = "USER"
	EntitySetting          = "SETTING"
)

// Action codes recorded on audit_logs.action_code.
const (
	ActionLocationCreated       = "LOCATION_CREATED"
	ActionLocationDeactivated   = "LOCATION_DEACTIVATED"
	ActionLocationConfigUpdated = "LOCATION_CONFIG_UPDATED"
	ActionTerminalCreated       = "TERMINAL_CREATED"
	ActionAccountCreated        = "FINANCIAL_ACCOUNT_CREATED"
	ActionAccountUpdated        = "FINANCIAL_ACCOUNT_UPDATED"
	ActionAccountDeactivated    = "FINANCIAL_ACCOUNT_DEACTIVATED"
	ActionStaffAssigned         = "STAFF_ASSIGNED"
	ActionStaffPINChanged       = "STAFF_PIN_CHANGED"
	ActionSettingUpdated        = "SETTING_UPDATED"
)

// AuditRecord is an immutable entry pairing an actor, an action and before/after snapshots.
type AuditRecord struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	ActionCode string          `json:"action_code"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Mutation is what a mutate callback hands back to the executor.
type Mutation struct {
	Data       interface{}
	OldValues  interface{}
	NewValues  interface{}
	ActionCode string
	EntityType string
	EntityID   string
}

// MutationOutcome is the transient result of one executor run.
type MutationOutcome struct {
	Success   bool
	ErrorKind ErrorKind
	Err       error
	Data      interface{}
	Record    *AuditRecord
}

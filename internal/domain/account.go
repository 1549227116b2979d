package domain

import (
	"strings"
	"time"
)

// FinancialAccount is a bank or cash account the back office reconciles against.
type FinancialAccount struct {
	ID            string    `json:"id"`
	LocationID    *string   `json:"location_id,omitempty"`
	Name          string    `json:"name"`
	AccountType   string    `json:"account_type"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var accountTypes = map[string]struct{}{
	"BANK":        {},
	"CASH":        {},
	"PETTY_CASH":  {},
	"CREDIT_CARD": {},
}

type CreateAccountRequest struct {
	LocationID    *string `json:"location_id,omitempty"`
	Name          string  `json:"name"`
	AccountType   string  `json:"account_type"`
	BankName      string  `json:"bank_name"`
	AccountNumber string  `json:"account_number"`
	Currency      string  `json:"currency"`
	PIN           string  `json:"pin"`
}

func (r *CreateAccountRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.AccountType = strings.ToUpper(strings.TrimSpace(r.AccountType))
	r.BankName = strings.TrimSpace(r.BankName)
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = "CLP"
	}
	if r.Name == "" {
		return Validationf("account name is required")
	}
	if _, ok := accountTypes[r.AccountType]; !ok {
		return Validationf("unsupported account type %q", r.AccountType)
	}
	if r.AccountType == "BANK" && (r.BankName == "" || r.AccountNumber == "") {
		return Validationf("bank accounts require bank name and account number")
	}
	if len(r.Currency) != 3 {
		return Validationf("currency must be an ISO 4217 code")
	}
	return nil
}

// UpdateAccountRequest changes only the fields that are set.
type UpdateAccountRequest struct {
	Name          *string `json:"name,omitempty"`
	BankName      *string `json:"bank_name,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	LocationID    *string `json:"location_id,omitempty"`
	PIN           string  `json:"pin"`
}

func (r *UpdateAccountRequest) Validate() error {
	if r.Name == nil && r.BankName == nil && r.AccountNumber == nil && r.LocationID == nil {
		return Validationf("no account fields to update")
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return Validationf("account name must not be empty")
	}
	return nil
}

// Apply returns a copy of account with the requested changes.
func (r *UpdateAccountRequest) Apply(account FinancialAccount) FinancialAccount {
	if r.Name != nil {
		account.Name = strings.TrimSpace(*r.Name)
	}
	if r.BankName != nil {
		account.BankName = strings.TrimSpace(*r.BankName)
	}
	if r.AccountNumber != nil {
		account.AccountNumber = strings.TrimSpace(*r.AccountNumber)
	}
	if r.LocationID != nil {
		if id := strings.TrimSpace(*r.LocationID); id == "" {
			account.LocationID = nil
		} else {
			account.LocationID = &id
		}
	}
	return account
}

type DeactivateAccountRequest struct {
	PIN string `json:"pin"`
}

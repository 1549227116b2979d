package store

import (
	"context"
	"errors"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrAccountNotFound = domain.NotFoundf("financial account not found")

const accountColumns = `id::text, location_id::text, name, account_type, bank_name, account_number, currency, is_active, created_at, updated_at`

type AccountRepository struct{}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{}
}

func scanAccount(row pgx.Row) (*domain.FinancialAccount, error) {
	var acc domain.FinancialAccount
	err := row.Scan(
		&acc.ID,
		&acc.LocationID,
		&acc.Name,
		&acc.AccountType,
		&acc.BankName,
		&acc.AccountNumber,
		&acc.Currency,
		&acc.IsActive,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *AccountRepository) CreateAccount(ctx context.Context, q DBTX, req domain.CreateAccountRequest) (*domain.FinancialAccount, error) {
	return scanAccount(q.QueryRow(ctx, `
		INSERT INTO financial_accounts (id, location_id, name, account_type, bank_name, account_number, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+accountColumns,
		uuid.NewString(), req.LocationID, req.Name, req.AccountType, req.BankName, req.AccountNumber, req.Currency,
	))
}

// LockAccount row-locks an account for the rest of the transaction.
func (r *AccountRepository) LockAccount(ctx context.Context, q DBTX, id string) (*domain.FinancialAccount, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM financial_accounts WHERE id = $1 FOR UPDATE`, id))
}

func (r *AccountRepository) UpdateAccount(ctx context.Context, q DBTX, acc domain.FinancialAccount) (*domain.FinancialAccount, error) {
	return scanAccount(q.QueryRow(ctx, `
		UPDATE financial_accounts
		SET name = $2, bank_name = $3, account_number = $4, location_id = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
		acc.ID, acc.Name, acc.BankName, acc.AccountNumber, acc.LocationID,
	))
}

func (r *AccountRepository) Deactivate(ctx context.Context, q DBTX, id string) (*domain.FinancialAccount, error) {
	return scanAccount(q.QueryRow(ctx, `
		UPDATE financial_accounts
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
		id,
	))
}

package store

import (
	"context"
	"errors"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

var ErrUserNotFound = domain.NotFoundf("user not found")

// UserRepository reads privileged candidates and mutates staff records.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// ListActiveCandidates returns active users holding one of roles, oldest first.
// The order decides which actor wins when two candidates share a PIN.
func (r *UserRepository) ListActiveCandidates(ctx context.Context, q DBTX, roles domain.RoleSet) ([]domain.PrivilegedCandidate, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, name, role, credential_hash, credential_plaintext, is_active
		FROM users
		WHERE is_active = TRUE AND role = ANY($1)
		ORDER BY created_at, id
	`, roles.Strings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]domain.PrivilegedCandidate, 0)
	for rows.Next() {
		var c domain.PrivilegedCandidate
		var role string
		if err := rows.Scan(&c.ID, &c.Name, &role, &c.CredentialHash, &c.CredentialPlaintext, &c.IsActive); err != nil {
			return nil, err
		}
		c.Role = domain.Role(role)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// FindUserName resolves the display name of a session user. Role-claim operations use it for the audit actor.
func (r *UserRepository) FindUserName(ctx context.Context, q DBTX, userID string) (string, error) {
	var name string
	err := q.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return name, nil
}

// LockStaffMember loads a staff member and row-locks it for the rest of the transaction.
func (r *UserRepository) LockStaffMember(ctx context.Context, q DBTX, userID string) (*domain.StaffMember, error) {
	var member domain.StaffMember
	var role string
	err := q.QueryRow(ctx, `
		SELECT id::text, name, role, location_id::text, is_active
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&member.ID, &member.Name, &role, &member.LocationID, &member.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	member.Role = domain.Role(role)
	return &member, nil
}

// AssignLocation moves a staff member to locationID.
func (r *UserRepository) AssignLocation(ctx context.Context, q DBTX, userID, locationID string) error {
	tag, err := q.Exec(ctx, `UPDATE users SET location_id = $2 WHERE id = $1`, userID, locationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetCredentialHash stores a new hash and clears any legacy plaintext credential.
func (r *UserRepository) SetCredentialHash(ctx context.Context, q DBTX, userID, hash string) error {
	tag, err := q.Exec(ctx, `
		UPDATE users
		SET credential_hash = $2, credential_plaintext = NULL
		WHERE id = $1
	`, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

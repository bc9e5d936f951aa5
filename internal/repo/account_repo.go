package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/signalix/accounts/internal/model"
)

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	Create(ctx context.Context, account model.Account) (model.Account, error)
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

const accountColumns = `id, email, name, roles, google_id, avatar_url, google_account, created_at, updated_at`

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

// GetByEmail retrieves an account by its normalized email
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, model.NormalizeEmail(email))
	return scanAccount(row)
}

// Create inserts a new account. The email is normalized and an empty role set defaults to USER.
// Returns ErrDuplicate if the email is already registered.
func (r *accountRepo) Create(ctx context.Context, account model.Account) (model.Account, error) {
	account.Email = model.NormalizeEmail(account.Email)
	if len(account.Roles) == 0 {
		account.Roles = model.DefaultRoles()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, name, roles, google_id, avatar_url, google_account)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, account.Email, account.Name, pq.Array(account.Roles), account.GoogleID, account.AvatarURL, account.GoogleAccount).Scan(
		&account.ID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, fmt.Errorf("create account: %w", ErrDuplicate)
		}
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func scanAccount(row *sql.Row) (model.Account, error) {
	var a model.Account
	var roles pq.StringArray
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&roles,
		&a.GoogleID,
		&a.AvatarURL,
		&a.GoogleAccount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("account: %w", ErrNotFound)
		}
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}
	a.Roles = []string(roles)
	return a, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, role, name, email, token_ref, balance,
	COALESCE(referral_code, ''), COALESCE(referrer_id, ''), created_at`

const accountUpsertQuery = `
	INSERT INTO accounts (id, role, name, email, token_ref, balance, referral_code, referrer_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
	ON CONFLICT (id) DO UPDATE SET
		role = EXCLUDED.role,
		name = EXCLUDED.name,
		email = EXCLUDED.email,
		token_ref = EXCLUDED.token_ref,
		balance = EXCLUDED.balance,
		referral_code = EXCLUDED.referral_code,
		referrer_id = EXCLUDED.referrer_id`

// Upsert inserts or updates a single account keyed by id.
func (s *AccountStore) Upsert(ctx context.Context, a domain.Account) error {
	_, err := s.pool.Exec(ctx, accountUpsertQuery,
		a.ID, a.Role, a.Name, a.Email, a.TokenRef, a.Balance,
		a.ReferralCode, a.ReferrerID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert account %s: %w", a.ID, err)
	}
	return nil
}

// UpsertBatch upserts multiple accounts using pgx Batch.
func (s *AccountStore) UpsertBatch(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range accounts {
		batch.Queue(accountUpsertQuery,
			a.ID, a.Role, a.Name, a.Email, a.TokenRef, a.Balance,
			a.ReferralCode, a.ReferrerID, a.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range accounts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert account batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID returns the account with the given id, or domain.ErrNotFound.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id,
	).Scan(
		&a.ID, &a.Role, &a.Name, &a.Email, &a.TokenRef, &a.Balance,
		&a.ReferralCode, &a.ReferrerID, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// List returns accounts ordered by id with pagination.
func (s *AccountStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	query := `SELECT ` + accountSelectCols + ` FROM accounts ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.ID, &a.Role, &a.Name, &a.Email, &a.TokenRef, &a.Balance,
			&a.ReferralCode, &a.ReferrerID, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Count returns the total number of accounts.
func (s *AccountStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count accounts: %w", err)
	}
	return n, nil
}

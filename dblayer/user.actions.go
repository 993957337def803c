package dblayer

import (
	"context"
	"database/sql"
	"errors"
)

// ========== User Actions ==========

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash, role string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, email, password_hash, role, coins, created_at`,
		username, email, passwordHash, role,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Coins, &u.CreatedAt)
	if err != nil {
		if pqConstraint(err) != "" {
			return nil, ErrExists
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `WHERE username = $1`, username)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role, coins, created_at FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Coins, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Credit adds coins to a user and appends the matching transaction in one
// SQL transaction. Returns the new balance.
func (s *Store) Credit(ctx context.Context, userID, amount int64, txnType, description string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET coins = coins + $1 WHERE id = $2 RETURNING coins`,
		amount, userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, type, description) VALUES ($1, $2, $3, $4)`,
		userID, amount, txnType, description,
	)
	if err != nil {
		return 0, err
	}

	return balance, tx.Commit()
}

func (s *Store) UserSummary(ctx context.Context, userID int64) (*UserSummary, error) {
	var sum UserSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT u.coins,
		        (SELECT count(*) FROM deployments d WHERE d.user_id = u.id),
		        (SELECT count(*) FROM deployments d WHERE d.user_id = u.id AND d.status = 'running')
		 FROM users u WHERE u.id = $1`,
		userID,
	).Scan(&sum.Coins, &sum.TotalDeployments, &sum.ActiveDeployments)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, email, password_hash, role, coins, created_at
		 FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Coins, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM users),
		        (SELECT count(*) FROM deployments),
		        (SELECT count(*) FROM deployments WHERE status = 'running'),
		        (SELECT coalesce(sum(coins), 0) FROM users),
		        (SELECT count(*) FROM payment_requests WHERE status = 'pending')`,
	).Scan(&st.Users, &st.Deployments, &st.RunningDeployments, &st.CoinsInCirculation, &st.PendingPayments)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ========== Transaction Actions ==========

// ListTransactions returns a user's ledger, most recent first.
func (s *Store) ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, created_at
		 FROM transactions WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

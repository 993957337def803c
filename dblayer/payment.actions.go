package dblayer

import (
	"context"
	"database/sql"
	"errors"
)

// ========== PaymentRequest Actions ==========

func (s *Store) CreatePaymentRequest(ctx context.Context, userID int64, pkg string, usdCents, coins int64, evidence, note string) (*PaymentRequest, error) {
	var p PaymentRequest
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO payment_requests (user_id, package, usd_cents, coins, evidence, note)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, user_id, package, usd_cents, coins, evidence, note, status, created_at`,
		userID, pkg, usdCents, coins, evidence, note,
	).Scan(&p.ID, &p.UserID, &p.Package, &p.USDCents, &p.Coins, &p.Evidence, &p.Note, &p.Status, &p.CreatedAt)
	if err != nil {
		if pqConstraint(err) == "uq_payment_requests_one_pending" {
			return nil, ErrPendingExists
		}
		return nil, err
	}
	return &p, nil
}

// ReviewPaymentRequest settles a pending request exactly once. Approval
// credits the requested coins and appends the 'topup' transaction in the
// same SQL transaction as the status flip; rejection only flips status.
func (s *Store) ReviewPaymentRequest(ctx context.Context, id int64, approve bool) (*PaymentRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p PaymentRequest
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, package, usd_cents, coins, evidence, note, status, created_at
		 FROM payment_requests WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Package, &p.USDCents, &p.Coins, &p.Evidence, &p.Note, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.Status != PaymentPending {
		return nil, ErrAlreadyReviewed
	}

	status := PaymentRejected
	if approve {
		status = PaymentApproved
	}
	err = tx.QueryRowContext(ctx,
		`UPDATE payment_requests SET status = $1, reviewed_at = now()
		 WHERE id = $2 RETURNING status, reviewed_at`,
		status, id,
	).Scan(&p.Status, &p.ReviewedAt)
	if err != nil {
		return nil, err
	}

	if approve {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET coins = coins + $1 WHERE id = $2`,
			p.Coins, p.UserID,
		)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (user_id, amount, type, description)
			 VALUES ($1, $2, $3, $4)`,
			p.UserID, p.Coins, TxnTopup, "topup "+p.Package,
		)
		if err != nil {
			return nil, err
		}
	}

	return &p, tx.Commit()
}

func (s *Store) ListPaymentRequests(ctx context.Context, status string) ([]*PaymentRequest, error) {
	query := `SELECT id, user_id, package, usd_cents, coins, evidence, note, status, created_at, reviewed_at
	          FROM payment_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*PaymentRequest
	for rows.Next() {
		var p PaymentRequest
		if err := rows.Scan(&p.ID, &p.UserID, &p.Package, &p.USDCents, &p.Coins, &p.Evidence, &p.Note, &p.Status, &p.CreatedAt, &p.ReviewedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, &p)
	}
	return reqs, rows.Err()
}

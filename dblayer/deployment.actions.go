package dblayer

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ========== Deployment Actions ==========

// CreateDeploymentCharged performs the atomic commit at the end of a deploy:
// debit the daily cost, append the 'deploy' transaction and insert the
// running deployment row, all in one SQL transaction. The partial unique
// index on (user_id) WHERE status='running' makes concurrent deploys for
// the same user lose here with ErrAlreadyRunning.
func (s *Store) CreateDeploymentCharged(ctx context.Context, userID int64, handle, name, secretPreview string, cost int64) (*Deployment, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET coins = coins - $1 WHERE id = $2 AND coins >= $1 RETURNING coins`,
		cost, userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the user vanished or the balance guard failed.
		var exists bool
		if qerr := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
		).Scan(&exists); qerr != nil {
			return nil, 0, qerr
		}
		if !exists {
			return nil, 0, ErrNotFound
		}
		return nil, 0, ErrInsufficientFunds
	}
	if err != nil {
		return nil, 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, type, description) VALUES ($1, $2, $3, $4)`,
		userID, -cost, TxnDeploy, "deploy "+handle,
	)
	if err != nil {
		return nil, 0, err
	}

	var d Deployment
	err = tx.QueryRowContext(ctx,
		`INSERT INTO deployments (user_id, handle, name, secret_preview, status, last_billed_at)
		 VALUES ($1, $2, $3, $4, 'running', now())
		 RETURNING id, user_id, handle, name, secret_preview, status, deployed_at`,
		userID, handle, name, secretPreview,
	).Scan(&d.ID, &d.UserID, &d.Handle, &d.Name, &d.SecretPreview, &d.Status, &d.DeployedAt)
	if err != nil {
		if pqConstraint(err) == "uq_deployments_one_running" {
			return nil, 0, ErrAlreadyRunning
		}
		return nil, 0, err
	}

	return &d, balance, tx.Commit()
}

func (s *Store) GetDeploymentByHandle(ctx context.Context, handle string) (*Deployment, error) {
	var d Deployment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, handle, name, secret_preview, status, deployed_at, stopped_at, last_billed_at
		 FROM deployments WHERE handle = $1`,
		handle,
	).Scan(&d.ID, &d.UserID, &d.Handle, &d.Name, &d.SecretPreview, &d.Status, &d.DeployedAt, &d.StoppedAt, &d.LastBilledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) HasRunningDeployment(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM deployments WHERE user_id = $1 AND status = 'running')`,
		userID,
	).Scan(&exists)
	return exists, err
}

// MarkDeploymentStopped transitions a running deployment to the given
// terminal status. A deployment that is no longer running is left untouched,
// which makes concurrent stops safe.
func (s *Store) MarkDeploymentStopped(ctx context.Context, handle, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET status = $1, stopped_at = now()
		 WHERE handle = $2 AND status = 'running'`,
		status, handle,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Already stopped by a racing caller, or gone entirely.
		if _, err := s.GetDeploymentByHandle(ctx, handle); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDeployment removes a deployment row permanently. Running deployments
// must be stopped first.
func (s *Store) DeleteDeployment(ctx context.Context, handle string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deployments WHERE handle = $1 AND status <> 'running'`,
		handle,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.GetDeploymentByHandle(ctx, handle); err != nil {
			return err
		}
		return ErrRunning
	}
	return nil
}

func (s *Store) ListDeploymentsByUser(ctx context.Context, userID int64) ([]*Deployment, error) {
	return s.listDeployments(ctx, `WHERE user_id = $1 ORDER BY deployed_at DESC`, userID)
}

func (s *Store) ListAllDeployments(ctx context.Context) ([]*Deployment, error) {
	return s.listDeployments(ctx, `ORDER BY deployed_at DESC`)
}

func (s *Store) listDeployments(ctx context.Context, tail string, args ...any) ([]*Deployment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, handle, name, secret_preview, status, deployed_at, stopped_at, last_billed_at
		 FROM deployments `+tail, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []*Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.UserID, &d.Handle, &d.Name, &d.SecretPreview, &d.Status, &d.DeployedAt, &d.StoppedAt, &d.LastBilledAt); err != nil {
			return nil, err
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// ListRunningDeployments returns every running deployment joined with its
// owner's current balance, for the billing scan.
func (s *Store) ListRunningDeployments(ctx context.Context) ([]*RunningDeployment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.handle, u.id, u.username, u.coins, d.last_billed_at
		 FROM deployments d JOIN users u ON u.id = d.user_id
		 WHERE d.status = 'running' ORDER BY d.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RunningDeployment
	for rows.Next() {
		var r RunningDeployment
		if err := rows.Scan(&r.DeploymentID, &r.Handle, &r.UserID, &r.Username, &r.Coins, &r.LastBilledAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ChargeForPeriod debits one billing period for a running deployment and
// appends the 'daily' transaction. The last_billed_at watermark guarantees a
// period is charged at most once even if the billing trigger fires twice.
func (s *Store) ChargeForPeriod(ctx context.Context, deploymentID, userID, cost int64, periodStart time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE deployments SET last_billed_at = now()
		 WHERE id = $1 AND status = 'running'
		   AND (last_billed_at IS NULL OR last_billed_at < $2)`,
		deploymentID, periodStart,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyBilled
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE users SET coins = coins - $1 WHERE id = $2 AND coins >= $1`,
		cost, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, type, description)
		 VALUES ($1, $2, $3, $4)`,
		userID, -cost, TxnDaily, "daily charge",
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Package deploy holds the deployment lifecycle state machine, the coin
// ledger rules, periodic billing and the payment-approval workflow.
package deploy

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"botnest/dblayer"
	"botnest/supervisor"

	"github.com/google/uuid"
)

// Store is the slice of dblayer the service needs. Methods that must be
// atomic (debit-and-record, credit-and-record, review-and-credit) are
// atomic inside the store; the service never composes them from reads and
// writes.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*dblayer.User, error)
	GetUserByUsername(ctx context.Context, username string) (*dblayer.User, error)
	Credit(ctx context.Context, userID, amount int64, txnType, description string) (int64, error)
	UserSummary(ctx context.Context, userID int64) (*dblayer.UserSummary, error)
	ListUsers(ctx context.Context) ([]*dblayer.User, error)
	Stats(ctx context.Context) (*dblayer.Stats, error)

	CreateDeploymentCharged(ctx context.Context, userID int64, handle, name, secretPreview string, cost int64) (*dblayer.Deployment, int64, error)
	GetDeploymentByHandle(ctx context.Context, handle string) (*dblayer.Deployment, error)
	HasRunningDeployment(ctx context.Context, userID int64) (bool, error)
	MarkDeploymentStopped(ctx context.Context, handle, status string) error
	DeleteDeployment(ctx context.Context, handle string) error
	ListDeploymentsByUser(ctx context.Context, userID int64) ([]*dblayer.Deployment, error)
	ListAllDeployments(ctx context.Context) ([]*dblayer.Deployment, error)
	ListRunningDeployments(ctx context.Context) ([]*dblayer.RunningDeployment, error)
	ChargeForPeriod(ctx context.Context, deploymentID, userID, cost int64, periodStart time.Time) error

	ListTransactions(ctx context.Context, userID int64, limit int) ([]*dblayer.Transaction, error)

	CreatePaymentRequest(ctx context.Context, userID int64, pkg string, usdCents, coins int64, evidence, note string) (*dblayer.PaymentRequest, error)
	ReviewPaymentRequest(ctx context.Context, id int64, approve bool) (*dblayer.PaymentRequest, error)
	ListPaymentRequests(ctx context.Context, status string) ([]*dblayer.PaymentRequest, error)
}

// Provisioner materializes and removes isolated bot working trees.
type Provisioner interface {
	InstanceDir(handle string) string
	Materialize(ctx context.Context, handle string) (string, error)
	WriteEnv(handle string, env map[string]string) error
	Remove(handle string) error
}

// Initiator identifies who asked for a deployment to stop; it determines
// the terminal status.
type Initiator string

const (
	InitiatorUser      Initiator = "user"
	InitiatorAdmin     Initiator = "admin"
	InitiatorScheduler Initiator = "scheduler"
)

func (i Initiator) stoppedStatus() string {
	switch i {
	case InitiatorAdmin:
		return dblayer.StatusStoppedByAdmin
	case InitiatorScheduler:
		return dblayer.StatusStoppedNoCoins
	default:
		return dblayer.StatusStopped
	}
}

type Config struct {
	DailyCost        int64
	ProvisionTimeout time.Duration
}

type Service struct {
	store Store
	sup   supervisor.Supervisor
	prov  Provisioner

	dailyCost        int64
	provisionTimeout time.Duration
}

func NewService(store Store, sup supervisor.Supervisor, prov Provisioner, cfg Config) *Service {
	timeout := cfg.ProvisionTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Service{
		store:            store,
		sup:              sup,
		prov:             prov,
		dailyCost:        cfg.DailyCost,
		provisionTimeout: timeout,
	}
}

func (s *Service) DailyCost() int64 { return s.dailyCost }

type DeployResult struct {
	Handle  string `json:"handle"`
	Balance int64  `json:"balance"`
}

// SecretPreview is the one-way display projection of a session secret.
// It is the only form of the secret that ever reaches the database.
func SecretPreview(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:8] + "..."
}

// Deploy provisions a working tree, registers it with the supervisor and
// then commits the debit + transaction + deployment row as one atomic unit.
// Everything before that commit rolls back to nothing on failure; a crash
// between supervisor registration and the commit leaves an orphaned process
// that needs out-of-band reconciliation.
func (s *Service) Deploy(ctx context.Context, userID int64, sessionSecret, displayName string) (*DeployResult, error) {
	if strings.TrimSpace(sessionSecret) == "" || strings.TrimSpace(displayName) == "" {
		return nil, ErrValidation
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Coins < s.dailyCost {
		return nil, dblayer.ErrInsufficientFunds
	}
	// Cheap pre-check to avoid provisioning a tree we will throw away.
	// The partial unique index is what actually decides races.
	running, err := s.store.HasRunningDeployment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, dblayer.ErrAlreadyRunning
	}

	handle := "bot-" + uuid.New().String()[:8]

	pctx, cancel := context.WithTimeout(ctx, s.provisionTimeout)
	defer cancel()

	dir, err := s.prov.Materialize(pctx, handle)
	if err != nil {
		s.rollback(handle, false)
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	env := map[string]string{
		"BOT_HANDLE": handle,
		"BOT_NAME":   displayName,
		"OWNER":      user.Username,
		"SESSION":    sessionSecret,
	}
	if err := s.prov.WriteEnv(handle, env); err != nil {
		s.rollback(handle, false)
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	if err := s.sup.Start(pctx, handle, dir, env); err != nil {
		s.rollback(handle, false)
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	_, balance, err := s.store.CreateDeploymentCharged(ctx, userID, handle, displayName, SecretPreview(sessionSecret), s.dailyCost)
	if err != nil {
		// Registered but unrecorded; undo the registration too.
		s.rollback(handle, true)
		return nil, err
	}

	log.Printf("[deploy] %s running for %s, balance %d", handle, user.Username, balance)
	return &DeployResult{Handle: handle, Balance: balance}, nil
}

// rollback removes whatever a failed deploy left behind, best effort.
func (s *Service) rollback(handle string, deregister bool) {
	if deregister {
		if err := s.sup.Stop(context.Background(), handle); err != nil {
			log.Printf("[deploy] rollback stop %s: %v", handle, err)
		}
	}
	if err := s.prov.Remove(handle); err != nil {
		log.Printf("[deploy] rollback remove %s: %v", handle, err)
	}
}

// Stop deregisters a deployment and records its terminal status. Stopping
// an already-stopped deployment succeeds with no side effect. Supervisor
// errors are logged, not propagated: accounting must not get stuck behind
// supervisor flakiness.
func (s *Service) Stop(ctx context.Context, handle string, initiator Initiator) error {
	d, err := s.store.GetDeploymentByHandle(ctx, handle)
	if err != nil {
		return err
	}
	if d.Status != dblayer.StatusRunning {
		return nil
	}

	if err := s.sup.Stop(ctx, handle); err != nil {
		log.Printf("[deploy] supervisor stop %s: %v", handle, err)
	}

	if err := s.store.MarkDeploymentStopped(ctx, handle, initiator.stoppedStatus()); err != nil {
		return err
	}
	log.Printf("[deploy] %s stopped by %s", handle, initiator)
	return nil
}

// DeleteRecord removes a stopped deployment's row permanently; running
// deployments must be stopped first. No ledger effect.
func (s *Service) DeleteRecord(ctx context.Context, handle string) error {
	if err := s.store.DeleteDeployment(ctx, handle); err != nil {
		return err
	}
	if err := s.prov.Remove(handle); err != nil {
		log.Printf("[deploy] remove instance dir %s: %v", handle, err)
	}
	return nil
}

// ========== Read projections ==========

func (s *Service) GetDeployment(ctx context.Context, handle string) (*dblayer.Deployment, error) {
	return s.store.GetDeploymentByHandle(ctx, handle)
}

func (s *Service) ListDeployments(ctx context.Context, userID int64) ([]*dblayer.Deployment, error) {
	return s.store.ListDeploymentsByUser(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, limit int) ([]*dblayer.Transaction, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}

func (s *Service) UserSummary(ctx context.Context, userID int64) (*dblayer.UserSummary, error) {
	return s.store.UserSummary(ctx, userID)
}

// ========== Admin operations ==========

// AdminTopup credits coins directly and records the matching 'credit'
// transaction. Returns the new balance.
func (s *Service) AdminTopup(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrValidation
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	return s.store.Credit(ctx, user.ID, amount, dblayer.TxnCredit, "admin topup")
}

func (s *Service) ListUsers(ctx context.Context) ([]*dblayer.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) ListAllDeployments(ctx context.Context) ([]*dblayer.Deployment, error) {
	return s.store.ListAllDeployments(ctx)
}

func (s *Service) Stats(ctx context.Context) (*dblayer.Stats, error) {
	return s.store.Stats(ctx)
}

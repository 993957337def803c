package dblayer

import "time"

// Deployment statuses
const (
	StatusRunning        = "running"
	StatusStopped        = "stopped"
	StatusStoppedByAdmin = "stopped_by_admin"
	StatusStoppedNoCoins = "stopped_no_coins"
)

// Transaction types
const (
	TxnCredit = "credit"
	TxnDeploy = "deploy"
	TxnTopup  = "topup"
	TxnDaily  = "daily"
)

// Payment request statuses
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// User model
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Coins        int64     `json:"coins"`
	CreatedAt    time.Time `json:"created_at"`
}

// Deployment model. SecretPreview is a one-way truncated projection of the
// session secret, for display only; the real secret is written only to the
// provisioned instance's env descriptor.
type Deployment struct {
	ID            int64      `json:"-"`
	UserID        int64      `json:"user_id"`
	Handle        string     `json:"handle"`
	Name          string     `json:"name"`
	SecretPreview string     `json:"secret_preview"`
	Status        string     `json:"status"`
	DeployedAt    time.Time  `json:"deployed_at"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	LastBilledAt  *time.Time `json:"-"`
}

// Transaction model, append-only. Positive amount = credit, negative = debit.
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentRequest model
type PaymentRequest struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Package    string     `json:"package"`
	USDCents   int64      `json:"usd_cents"`
	Coins      int64      `json:"coins"`
	Evidence   string     `json:"evidence,omitempty"`
	Note       string     `json:"note,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// UserSummary is the per-user dashboard projection.
type UserSummary struct {
	Coins             int64 `json:"coins"`
	TotalDeployments  int64 `json:"total_deployments"`
	ActiveDeployments int64 `json:"active_deployments"`
}

// RunningDeployment is a billing-scan row: a running deployment joined with
// its owner's current balance.
type RunningDeployment struct {
	DeploymentID int64
	Handle       string
	UserID       int64
	Username     string
	Coins        int64
	LastBilledAt *time.Time
}

// Stats is the admin overview projection.
type Stats struct {
	Users              int64 `json:"users"`
	Deployments        int64 `json:"deployments"`
	RunningDeployments int64 `json:"running_deployments"`
	CoinsInCirculation int64 `json:"coins_in_circulation"`
	PendingPayments    int64 `json:"pending_payments"`
}

package deploy

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"botnest/dblayer"
)

// fakeStore is an in-memory Store that mirrors the Postgres semantics the
// service relies on: balance guard, one-running-per-user exclusivity and
// the billing watermark, all under one mutex.
type fakeStore struct {
	mu          sync.Mutex
	users       map[int64]*dblayer.User
	deployments map[string]*dblayer.Deployment
	txns        []*dblayer.Transaction
	payments    map[int64]*dblayer.PaymentRequest
	nextID      int64

	chargeErrByUser map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:           make(map[int64]*dblayer.User),
		deployments:     make(map[string]*dblayer.Deployment),
		payments:        make(map[int64]*dblayer.PaymentRequest),
		chargeErrByUser: make(map[int64]error),
	}
}

// addUser seeds a user. Non-zero balances get a matching 'credit'
// transaction so the ledger-sum invariant holds from the start.
func (f *fakeStore) addUser(id int64, username string, coins int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &dblayer.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		Role:      "user",
		Coins:     coins,
		CreatedAt: time.Now(),
	}
	if coins != 0 {
		f.appendTxn(id, coins, dblayer.TxnCredit, "seed")
	}
}

func (f *fakeStore) appendTxn(userID, amount int64, txnType, desc string) {
	f.nextID++
	f.txns = append(f.txns, &dblayer.Transaction{
		ID:          f.nextID,
		UserID:      userID,
		Amount:      amount,
		Type:        txnType,
		Description: desc,
		CreatedAt:   time.Now(),
	})
}

func (f *fakeStore) balance(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].Coins
}

func (f *fakeStore) txnSum(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, t := range f.txns {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum
}

func (f *fakeStore) txnsOfType(userID int64, txnType string) []*dblayer.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.Transaction
	for _, t := range f.txns {
		if t.UserID == userID && t.Type == txnType {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*dblayer.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, dblayer.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*dblayer.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, dblayer.ErrNotFound
}

func (f *fakeStore) Credit(ctx context.Context, userID, amount int64, txnType, description string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, dblayer.ErrNotFound
	}
	u.Coins += amount
	f.appendTxn(userID, amount, txnType, description)
	return u.Coins, nil
}

func (f *fakeStore) UserSummary(ctx context.Context, userID int64) (*dblayer.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, dblayer.ErrNotFound
	}
	sum := &dblayer.UserSummary{Coins: u.Coins}
	for _, d := range f.deployments {
		if d.UserID != userID {
			continue
		}
		sum.TotalDeployments++
		if d.Status == dblayer.StatusRunning {
			sum.ActiveDeployments++
		}
	}
	return sum, nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]*dblayer.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.User
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) Stats(ctx context.Context) (*dblayer.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &dblayer.Stats{Users: int64(len(f.users))}
	for _, d := range f.deployments {
		st.Deployments++
		if d.Status == dblayer.StatusRunning {
			st.RunningDeployments++
		}
	}
	for _, u := range f.users {
		st.CoinsInCirculation += u.Coins
	}
	for _, p := range f.payments {
		if p.Status == dblayer.PaymentPending {
			st.PendingPayments++
		}
	}
	return st, nil
}

func (f *fakeStore) CreateDeploymentCharged(ctx context.Context, userID int64, handle, name, secretPreview string, cost int64) (*dblayer.Deployment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return nil, 0, dblayer.ErrNotFound
	}
	for _, d := range f.deployments {
		if d.UserID == userID && d.Status == dblayer.StatusRunning {
			return nil, 0, dblayer.ErrAlreadyRunning
		}
	}
	if u.Coins < cost {
		return nil, 0, dblayer.ErrInsufficientFunds
	}

	u.Coins -= cost
	f.appendTxn(userID, -cost, dblayer.TxnDeploy, "deploy "+handle)

	now := time.Now()
	f.nextID++
	d := &dblayer.Deployment{
		ID:            f.nextID,
		UserID:        userID,
		Handle:        handle,
		Name:          name,
		SecretPreview: secretPreview,
		Status:        dblayer.StatusRunning,
		DeployedAt:    now,
		LastBilledAt:  &now,
	}
	f.deployments[handle] = d
	cp := *d
	return &cp, u.Coins, nil
}

func (f *fakeStore) GetDeploymentByHandle(ctx context.Context, handle string) (*dblayer.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[handle]
	if !ok {
		return nil, dblayer.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) HasRunningDeployment(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deployments {
		if d.UserID == userID && d.Status == dblayer.StatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkDeploymentStopped(ctx context.Context, handle, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[handle]
	if !ok {
		return dblayer.ErrNotFound
	}
	if d.Status != dblayer.StatusRunning {
		return nil
	}
	now := time.Now()
	d.Status = status
	d.StoppedAt = &now
	return nil
}

func (f *fakeStore) DeleteDeployment(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[handle]
	if !ok {
		return dblayer.ErrNotFound
	}
	if d.Status == dblayer.StatusRunning {
		return dblayer.ErrRunning
	}
	delete(f.deployments, handle)
	return nil
}

func (f *fakeStore) ListDeploymentsByUser(ctx context.Context, userID int64) ([]*dblayer.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.Deployment
	for _, d := range f.deployments {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllDeployments(ctx context.Context) ([]*dblayer.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.Deployment
	for _, d := range f.deployments {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) ListRunningDeployments(ctx context.Context) ([]*dblayer.RunningDeployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.RunningDeployment
	for _, d := range f.deployments {
		if d.Status != dblayer.StatusRunning {
			continue
		}
		u := f.users[d.UserID]
		r := &dblayer.RunningDeployment{
			DeploymentID: d.ID,
			Handle:       d.Handle,
			UserID:       u.ID,
			Username:     u.Username,
			Coins:        u.Coins,
		}
		if d.LastBilledAt != nil {
			t := *d.LastBilledAt
			r.LastBilledAt = &t
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ChargeForPeriod(ctx context.Context, deploymentID, userID, cost int64, periodStart time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.chargeErrByUser[userID]; err != nil {
		return err
	}

	var dep *dblayer.Deployment
	for _, d := range f.deployments {
		if d.ID == deploymentID {
			dep = d
			break
		}
	}
	if dep == nil || dep.Status != dblayer.StatusRunning {
		return dblayer.ErrAlreadyBilled
	}
	if dep.LastBilledAt != nil && !dep.LastBilledAt.Before(periodStart) {
		return dblayer.ErrAlreadyBilled
	}

	u := f.users[userID]
	if u.Coins < cost {
		return dblayer.ErrInsufficientFunds
	}

	// Production stamps now(), which is always >= periodStart when the
	// scheduler fires; clamp so an injected future clock behaves the same.
	wm := time.Now()
	if wm.Before(periodStart) {
		wm = periodStart
	}
	dep.LastBilledAt = &wm
	u.Coins -= cost
	f.appendTxn(userID, -cost, dblayer.TxnDaily, "daily charge")
	return nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID int64, limit int) ([]*dblayer.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.Transaction
	for i := len(f.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.txns[i].UserID == userID {
			cp := *f.txns[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePaymentRequest(ctx context.Context, userID int64, pkg string, usdCents, coins int64, evidence, note string) (*dblayer.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.UserID == userID && p.Status == dblayer.PaymentPending {
			return nil, dblayer.ErrPendingExists
		}
	}
	f.nextID++
	p := &dblayer.PaymentRequest{
		ID:        f.nextID,
		UserID:    userID,
		Package:   pkg,
		USDCents:  usdCents,
		Coins:     coins,
		Evidence:  evidence,
		Note:      note,
		Status:    dblayer.PaymentPending,
		CreatedAt: time.Now(),
	}
	f.payments[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ReviewPaymentRequest(ctx context.Context, id int64, approve bool) (*dblayer.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, dblayer.ErrNotFound
	}
	if p.Status != dblayer.PaymentPending {
		return nil, dblayer.ErrAlreadyReviewed
	}
	now := time.Now()
	p.ReviewedAt = &now
	if approve {
		p.Status = dblayer.PaymentApproved
		f.users[p.UserID].Coins += p.Coins
		f.appendTxn(p.UserID, p.Coins, dblayer.TxnTopup, "topup "+p.Package)
	} else {
		p.Status = dblayer.PaymentRejected
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListPaymentRequests(ctx context.Context, status string) ([]*dblayer.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dblayer.PaymentRequest
	for _, p := range f.payments {
		if status == "" || p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeSupervisor records start/stop calls and can be told to fail.
type fakeSupervisor struct {
	mu       sync.Mutex
	started  map[string]map[string]string // name -> env
	stops    []string
	startErr error
	stopErr  error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{started: make(map[string]map[string]string)}
}

func (f *fakeSupervisor) Start(ctx context.Context, name, workDir string, env map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started[name] = env
	return nil
}

func (f *fakeSupervisor) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stops = append(f.stops, name)
	return nil
}

func (f *fakeSupervisor) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stops)
}

// fakeProvisioner tracks materialized and removed instance dirs without
// touching the filesystem.
type fakeProvisioner struct {
	mu             sync.Mutex
	materialized   []string
	removed        []string
	materializeErr error
	writeEnvErr    error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{}
}

func (f *fakeProvisioner) InstanceDir(handle string) string {
	return filepath.Join("/fake/instances", handle)
}

func (f *fakeProvisioner) Materialize(ctx context.Context, handle string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.materializeErr != nil {
		return "", f.materializeErr
	}
	f.materialized = append(f.materialized, handle)
	return f.InstanceDir(handle), nil
}

func (f *fakeProvisioner) WriteEnv(handle string, env map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeEnvErr
}

func (f *fakeProvisioner) Remove(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, handle)
	return nil
}

func (f *fakeProvisioner) materializeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.materialized)
}

// newTestService wires a service over fresh fakes.
func newTestService(cost int64) (*Service, *fakeStore, *fakeSupervisor, *fakeProvisioner) {
	store := newFakeStore()
	sup := newFakeSupervisor()
	prov := newFakeProvisioner()
	svc := NewService(store, sup, prov, Config{DailyCost: cost, ProvisionTimeout: time.Minute})
	return svc, store, sup, prov
}

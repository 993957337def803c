package deploy

import (
	"context"
	"errors"
	"log"
	"time"

	"botnest/dblayer"
	"botnest/sched"
)

// BillingJob charges every running deployment once per billing period, or
// deactivates it when the owner cannot afford the charge. Implements
// sched.Job; the cron scheduler fires it once per period.
type BillingJob struct {
	store  Store
	svc    *Service
	cost   int64
	period time.Duration

	// now is swappable in tests.
	now func() time.Time
}

func NewBillingJob(store Store, svc *Service, cost int64, period time.Duration) *BillingJob {
	return &BillingJob{
		store:  store,
		svc:    svc,
		cost:   cost,
		period: period,
		now:    time.Now,
	}
}

func (j *BillingJob) Type() sched.JobType { return "billing.charge_period" }
func (j *BillingJob) ID() string          { return "periodic" }

// Do processes each running deployment independently: a failure on one item
// is logged and never aborts the rest of the batch. The last_billed_at
// watermark makes a duplicate trigger for the same period a no-op.
func (j *BillingJob) Do() error {
	ctx := context.Background()
	periodStart := j.now().UTC().Truncate(j.period)

	running, err := j.store.ListRunningDeployments(ctx)
	if err != nil {
		return err
	}

	var charged, deactivated, skipped int
	for _, r := range running {
		if r.LastBilledAt != nil && !r.LastBilledAt.Before(periodStart) {
			skipped++
			continue
		}

		if r.Coins < j.cost {
			j.deactivate(ctx, r, &deactivated)
			continue
		}

		err := j.store.ChargeForPeriod(ctx, r.DeploymentID, r.UserID, j.cost, periodStart)
		switch {
		case err == nil:
			charged++
		case errors.Is(err, dblayer.ErrAlreadyBilled):
			skipped++
		case errors.Is(err, dblayer.ErrInsufficientFunds):
			// Balance moved between the scan and the charge.
			j.deactivate(ctx, r, &deactivated)
		default:
			log.Printf("[billing] charge %s (user %s): %v", r.Handle, r.Username, err)
		}
	}

	log.Printf("[billing] period %s: charged %d, deactivated %d, skipped %d",
		periodStart.Format(time.RFC3339), charged, deactivated, skipped)
	return nil
}

func (j *BillingJob) deactivate(ctx context.Context, r *dblayer.RunningDeployment, n *int) {
	if err := j.svc.Stop(ctx, r.Handle, InitiatorScheduler); err != nil {
		log.Printf("[billing] deactivate %s (user %s): %v", r.Handle, r.Username, err)
		return
	}
	*n++
}

package deploy

import (
	"context"
	"log"
	"strings"

	"botnest/dblayer"
)

// SubmitPaymentRequest files a top-up request for operator review. A user
// can have at most one pending request at a time.
func (s *Service) SubmitPaymentRequest(ctx context.Context, userID int64, pkg string, usdCents, coins int64, evidence, note string) (*dblayer.PaymentRequest, error) {
	if strings.TrimSpace(pkg) == "" || coins <= 0 || usdCents < 0 {
		return nil, ErrValidation
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.CreatePaymentRequest(ctx, userID, pkg, usdCents, coins, evidence, note)
}

// ApprovePaymentRequest settles a pending request: status flip, reviewed_at
// and the coin credit land atomically. A request is reviewed exactly once.
func (s *Service) ApprovePaymentRequest(ctx context.Context, id int64) (*dblayer.PaymentRequest, error) {
	p, err := s.store.ReviewPaymentRequest(ctx, id, true)
	if err != nil {
		return nil, err
	}
	log.Printf("[payment] request %d approved, credited %d coins to user %d", p.ID, p.Coins, p.UserID)
	return p, nil
}

// RejectPaymentRequest settles a pending request with no ledger effect.
func (s *Service) RejectPaymentRequest(ctx context.Context, id int64) (*dblayer.PaymentRequest, error) {
	p, err := s.store.ReviewPaymentRequest(ctx, id, false)
	if err != nil {
		return nil, err
	}
	log.Printf("[payment] request %d rejected", p.ID)
	return p, nil
}

func (s *Service) ListPaymentRequests(ctx context.Context, status string) ([]*dblayer.PaymentRequest, error) {
	return s.store.ListPaymentRequests(ctx, status)
}

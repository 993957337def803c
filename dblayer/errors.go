package dblayer

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrExists            = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrAlreadyRunning    = errors.New("a deployment is already running for this user")
	ErrRunning           = errors.New("deployment is still running")
	ErrPendingExists     = errors.New("a pending payment request already exists")
	ErrAlreadyReviewed   = errors.New("payment request already reviewed")
	ErrAlreadyBilled     = errors.New("deployment already billed for this period")
)

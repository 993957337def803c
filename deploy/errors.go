package deploy

import "errors"

var (
	// ErrValidation is returned for malformed input before anything is touched.
	ErrValidation = errors.New("invalid input")
	// ErrProvisioning wraps template-copy and supervisor failures. The
	// partial working tree has already been cleaned up when it is returned;
	// retrying is the caller's call.
	ErrProvisioning = errors.New("provisioning failed")
)

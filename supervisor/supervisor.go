// Package supervisor abstracts the external long-running-process manager
// that keeps bot instances alive. Both operations are idempotent so the
// billing scheduler and manual stops can race safely.
package supervisor

import "context"

type Supervisor interface {
	// Start registers workDir as a managed process under name. Starting a
	// name that is already registered must not fail.
	Start(ctx context.Context, name, workDir string, env map[string]string) error
	// Stop deregisters the named process. Stopping an unknown name must
	// not fail.
	Stop(ctx context.Context, name string) error
}

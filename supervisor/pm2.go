package supervisor

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
)

// PM2 shells out to the pm2 CLI on the local host. The provisioner writes
// an ecosystem.config.js into each instance dir, so start is just pointing
// pm2 at it.
type PM2 struct {
	Bin string // pm2 binary, default "pm2"
}

func NewPM2(bin string) *PM2 {
	if bin == "" {
		bin = "pm2"
	}
	return &PM2{Bin: bin}
}

func (p *PM2) Start(ctx context.Context, name, workDir string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, p.Bin, "start", filepath.Join(workDir, "ecosystem.config.js"))
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pm2 start %s: %v: %s", name, err, strings.TrimSpace(string(out)))
	}
	log.Printf("[pm2] started %s", name)
	return nil
}

func (p *PM2) Stop(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, p.Bin, "delete", name)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// pm2 exits non-zero for unknown names; that is a successful stop
		// as far as we are concerned.
		if strings.Contains(string(out), "not found") {
			return nil
		}
		return fmt.Errorf("pm2 delete %s: %v: %s", name, err, strings.TrimSpace(string(out)))
	}
	log.Printf("[pm2] deleted %s", name)
	return nil
}

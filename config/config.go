package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Listen      string
	DatabaseDSN string
	JWTSecret   string

	DailyCost        int64
	BillingPeriod    time.Duration
	ProvisionTimeout time.Duration

	TemplateDir      string
	InstancesDir     string
	SharedModulesDir string

	Supervisor string // "pm2" or "kube"
	PM2Bin     string
	Kubeconfig string

	AdminUsername string
	AdminPassword string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Listen:           fallback(os.Getenv("LISTEN_ADDR"), "localhost:9900"),
		DatabaseDSN:      strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		DailyCost:        intEnv("DAILY_COST", 10),
		BillingPeriod:    durationEnv("BILLING_PERIOD", 24*time.Hour),
		ProvisionTimeout: durationEnv("PROVISION_TIMEOUT", 2*time.Minute),
		TemplateDir:      fallback(os.Getenv("TEMPLATE_DIR"), "./template"),
		InstancesDir:     fallback(os.Getenv("INSTANCES_DIR"), "./instances"),
		SharedModulesDir: strings.TrimSpace(os.Getenv("SHARED_MODULES_DIR")),
		Supervisor:       fallback(os.Getenv("SUPERVISOR"), "pm2"),
		PM2Bin:           strings.TrimSpace(os.Getenv("PM2_BIN")),
		Kubeconfig:       strings.TrimSpace(os.Getenv("KUBECONFIG")),
		AdminUsername:    strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.DailyCost <= 0 {
		return Config{}, errors.New("DAILY_COST must be positive")
	}
	if cfg.Supervisor != "pm2" && cfg.Supervisor != "kube" {
		return Config{}, errors.New("SUPERVISOR must be pm2 or kube")
	}

	return cfg, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func intEnv(key string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

package config_test

import (
	"strings"
	"testing"

	"github.com/accordsai/podx/internal/config"
)

const validAddr = "0x1111111111111111111111111111111111111111"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PODX_CHAIN_ID", "84532")
	t.Setenv("PODX_VERIFYING_CONTRACT", validAddr)
	t.Setenv("PODX_TOKEN_ADDRESS", validAddr)
	t.Setenv("PODX_ESCROW_ADDRESS", validAddr)
	t.Setenv("PODX_ORDER_REGISTRY_ADDRESS", validAddr)
	t.Setenv("PODX_SHIPMENT_REGISTRY_ADDRESS", validAddr)
	t.Setenv("PODX_RPC_URL", "https://rpc.example.test")
	t.Setenv("PODX_ORACLE_PRIVATE_KEY", "deadbeef")
	t.Setenv("PODX_SESSION_SECRET", strings.Repeat("a", 32))
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/podx")

	t.Setenv("PODX_SESSION_TTL_MINUTES", "")
	t.Setenv("PODX_DEFAULT_RADIUS_METERS", "")
	t.Setenv("PODX_REWARD_PER_METER", "")
	t.Setenv("PODX_RECOVERY_INTERVAL_SECONDS", "")
	t.Setenv("SERVICE_PORT", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTTLMinutes != 10 {
		t.Errorf("SessionTTLMinutes = %d, want 10", cfg.SessionTTLMinutes)
	}
	if cfg.DefaultRadiusMeters != 2000.0 {
		t.Errorf("DefaultRadiusMeters = %v, want 2000", cfg.DefaultRadiusMeters)
	}
	if cfg.RewardPerMeter != 10 {
		t.Errorf("RewardPerMeter = %d, want 10", cfg.RewardPerMeter)
	}
	if cfg.RecoveryIntervalSeconds != 120 {
		t.Errorf("RecoveryIntervalSeconds = %d, want 120", cfg.RecoveryIntervalSeconds)
	}
	if cfg.HTTPPort != "8200" {
		t.Errorf("HTTPPort = %q, want 8200", cfg.HTTPPort)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PODX_SESSION_TTL_MINUTES", "30")
	t.Setenv("PODX_DEFAULT_RADIUS_METERS", "500")
	t.Setenv("PODX_REWARD_PER_METER", "25")
	t.Setenv("PODX_RECOVERY_INTERVAL_SECONDS", "60")
	t.Setenv("SERVICE_PORT", "9090")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTTLMinutes != 30 {
		t.Errorf("SessionTTLMinutes = %d, want 30", cfg.SessionTTLMinutes)
	}
	if cfg.DefaultRadiusMeters != 500 {
		t.Errorf("DefaultRadiusMeters = %v, want 500", cfg.DefaultRadiusMeters)
	}
	if cfg.RewardPerMeter != 25 {
		t.Errorf("RewardPerMeter = %d, want 25", cfg.RewardPerMeter)
	}
	if cfg.RecoveryIntervalSeconds != 60 {
		t.Errorf("RecoveryIntervalSeconds = %d, want 60", cfg.RecoveryIntervalSeconds)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
}

func TestLoad_MissingChainID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PODX_CHAIN_ID", "")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for missing chainId")
	}
}

func TestLoad_BadVerifyingContractAddress(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PODX_VERIFYING_CONTRACT", "not-an-address")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
	var cfgErr *config.Error
	if !isConfigError(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %T", err)
	}
	if cfgErr.Field != "verifyingContractAddress" {
		t.Errorf("Field = %q, want verifyingContractAddress", cfgErr.Field)
	}
}

func TestLoad_SessionSecretTooShort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PODX_SESSION_SECRET", "short")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for short session secret")
	}
}

func TestLoad_InvalidRecoveryInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PODX_RECOVERY_INTERVAL_SECONDS", "-5")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for non-positive recovery interval")
	}
}

func isConfigError(err error, target **config.Error) bool {
	ce, ok := err.(*config.Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}

// Package config loads and validates the process configuration for the PODx daemon.
// It follows the read-from-the-environment, fail-fast-on-missing-value shape used elsewhere
// in this codebase for connecting to Postgres.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every recognised process configuration option.
type Config struct {
	ChainID                  int64
	VerifyingContractAddress string
	TokenAddress             string
	EscrowAddress            string
	OrderRegistryAddress     string
	ShipmentRegistryAddress  string
	RPCURL                   string
	OraclePrivateKey         string
	SessionSecret            string
	SessionTTLMinutes        int
	DefaultRadiusMeters      float64
	RewardPerMeter           int64
	RecoveryIntervalSeconds  int

	HTTPPort    string
	DatabaseURL string
}

const (
	defaultSessionTTLMinutes    = 10
	defaultRadiusMeters         = 2000.0
	defaultRewardPerMeter       = 10
	defaultRecoveryIntervalSecs = 120
	minSessionSecretLen         = 32
)

// Error is returned (and is fatal) when a non-defaulted option is missing or malformed.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("CONFIG: %s: %s", e.Field, e.Reason)
}

// Load reads configuration from the environment. It never returns a partially-valid Config:
// on error the caller should treat it as a fatal startup condition.
func Load() (Config, error) {
	cfg := Config{
		SessionTTLMinutes:       defaultSessionTTLMinutes,
		DefaultRadiusMeters:     defaultRadiusMeters,
		RewardPerMeter:          defaultRewardPerMeter,
		RecoveryIntervalSeconds: defaultRecoveryIntervalSecs,
		HTTPPort:                "8200",
	}

	chainIDStr := strings.TrimSpace(os.Getenv("PODX_CHAIN_ID"))
	if chainIDStr == "" {
		return Config{}, &Error{"chainId", "required"}
	}
	chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
	if err != nil {
		return Config{}, &Error{"chainId", "must be an integer"}
	}
	cfg.ChainID = chainID

	cfg.VerifyingContractAddress, err = requiredHexAddress("PODX_VERIFYING_CONTRACT", "verifyingContractAddress")
	if err != nil {
		return Config{}, err
	}
	cfg.TokenAddress, err = requiredHexAddress("PODX_TOKEN_ADDRESS", "tokenAddress")
	if err != nil {
		return Config{}, err
	}
	cfg.EscrowAddress, err = requiredHexAddress("PODX_ESCROW_ADDRESS", "escrowAddress")
	if err != nil {
		return Config{}, err
	}
	cfg.OrderRegistryAddress, err = requiredHexAddress("PODX_ORDER_REGISTRY_ADDRESS", "orderRegistryAddress")
	if err != nil {
		return Config{}, err
	}
	cfg.ShipmentRegistryAddress, err = requiredHexAddress("PODX_SHIPMENT_REGISTRY_ADDRESS", "shipmentRegistryAddress")
	if err != nil {
		return Config{}, err
	}

	cfg.RPCURL = strings.TrimSpace(os.Getenv("PODX_RPC_URL"))
	if cfg.RPCURL == "" {
		return Config{}, &Error{"rpcUrl", "required"}
	}

	cfg.OraclePrivateKey = strings.TrimSpace(os.Getenv("PODX_ORACLE_PRIVATE_KEY"))
	if cfg.OraclePrivateKey == "" {
		return Config{}, &Error{"oraclePrivateKey", "required"}
	}

	cfg.SessionSecret = os.Getenv("PODX_SESSION_SECRET")
	if len(cfg.SessionSecret) < minSessionSecretLen {
		return Config{}, &Error{"sessionSecret", "must be at least 32 bytes"}
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return Config{}, &Error{"databaseUrl", "required"}
	}

	if v := strings.TrimSpace(os.Getenv("PODX_SESSION_TTL_MINUTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, &Error{"sessionTtlMinutes", "must be a positive integer"}
		}
		cfg.SessionTTLMinutes = n
	}

	if v := strings.TrimSpace(os.Getenv("PODX_DEFAULT_RADIUS_METERS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return Config{}, &Error{"defaultRadiusMeters", "must be a positive number"}
		}
		cfg.DefaultRadiusMeters = f
	}

	if v := strings.TrimSpace(os.Getenv("PODX_REWARD_PER_METER")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return Config{}, &Error{"rewardPerMeter", "must be a non-negative integer"}
		}
		cfg.RewardPerMeter = n
	}

	if v := strings.TrimSpace(os.Getenv("PODX_RECOVERY_INTERVAL_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, &Error{"recoveryIntervalSeconds", "must be a positive integer"}
		}
		cfg.RecoveryIntervalSeconds = n
	}

	if v := strings.TrimSpace(os.Getenv("SERVICE_PORT")); v != "" {
		cfg.HTTPPort = v
	}

	return cfg, nil
}

func requiredHexAddress(env, field string) (string, error) {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return "", &Error{field, "required"}
	}
	if !strings.HasPrefix(v, "0x") || len(v) != 42 {
		return "", &Error{field, "must be a 20-byte hex address"}
	}
	return v, nil
}

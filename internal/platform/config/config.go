package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	LedgerRPCURL      string
	LedgerChainID     int64
	ContractAddress   string
	SigningAccount    string
	SigningKeyHex     string
	GasLimit          uint64
	LedgerTimeout     time.Duration
	LedgerMaxInFlight int64

	TrackerInterval    time.Duration
	DropTimeout        time.Duration
	MaxRetries         int
	DivergenceInterval time.Duration
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "chainballot"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	rpcURL := os.Getenv("LEDGER_RPC_URL")
	if rpcURL == "" {
		rpcURL = "http://localhost:8545"
	}

	account := os.Getenv("SIGNING_ACCOUNT")
	if account == "" {
		account = "operator"
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		LedgerRPCURL:      rpcURL,
		LedgerChainID:     envInt64("LEDGER_CHAIN_ID", 1337),
		ContractAddress:   os.Getenv("BALLOT_CONTRACT_ADDRESS"),
		SigningAccount:    account,
		SigningKeyHex:     os.Getenv("SIGNING_KEY_HEX"),
		GasLimit:          uint64(envInt64("LEDGER_GAS_LIMIT", 2_000_000)),
		LedgerTimeout:     envDuration("LEDGER_CALL_TIMEOUT", 10*time.Second),
		LedgerMaxInFlight: envInt64("LEDGER_MAX_IN_FLIGHT", 16),

		TrackerInterval:    envDuration("TRACKER_INTERVAL", 5*time.Second),
		DropTimeout:        envDuration("TRACKER_DROP_TIMEOUT", 2*time.Minute),
		MaxRetries:         int(envInt64("TRACKER_MAX_RETRIES", 3)),
		DivergenceInterval: envDuration("DIVERGENCE_INTERVAL", time.Minute),
	}, nil
}

func envInt64(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	votingledger "chainballot/contexts/governance/voting-ledger"
	evmadapter "chainballot/contexts/governance/voting-ledger/adapters/evm"
	postgresadapter "chainballot/contexts/governance/voting-ledger/adapters/postgres"
	"chainballot/internal/platform/config"
	"chainballot/internal/platform/db"
	"chainballot/internal/platform/httpserver"
	"chainballot/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	ledger   *evmadapter.Client
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres           *db.Postgres
	ledger             *evmadapter.Client
	module             votingledger.Module
	pollInterval       time.Duration
	divergenceInterval time.Duration
	logger             *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	module, pg, ledger, err := buildModule(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		ledger:   ledger,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	module, pg, ledger, err := buildModule(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres:           pg,
		ledger:             ledger,
		module:             module,
		pollInterval:       cfg.TrackerInterval,
		divergenceInterval: cfg.DivergenceInterval,
		logger:             logger,
	}, nil
}

func buildModule(ctx context.Context, cfg config.Config, logger *slog.Logger) (votingledger.Module, *db.Postgres, *evmadapter.Client, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return votingledger.Module{}, nil, nil, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.ContractAddress) == "" {
		return votingledger.Module{}, nil, nil, errors.New("BALLOT_CONTRACT_ADDRESS is required")
	}
	if strings.TrimSpace(cfg.SigningKeyHex) == "" {
		return votingledger.Module{}, nil, nil, errors.New("SIGNING_KEY_HEX is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return votingledger.Module{}, nil, nil, err
	}

	signer, err := evmadapter.NewSigner(cfg.LedgerChainID, cfg.ContractAddress, map[string]string{
		cfg.SigningAccount: cfg.SigningKeyHex,
	})
	if err != nil {
		_ = pg.Close()
		return votingledger.Module{}, nil, nil, err
	}

	ledger, err := evmadapter.NewClient(
		ctx,
		cfg.LedgerRPCURL,
		cfg.LedgerChainID,
		cfg.ContractAddress,
		signer.Addresses(),
		cfg.LedgerMaxInFlight,
		cfg.LedgerTimeout,
		logger,
	)
	if err != nil {
		_ = pg.Close()
		return votingledger.Module{}, nil, nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		ledger.Close()
		return votingledger.Module{}, nil, nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := votingledger.NewModule(votingledger.Dependencies{
		Polls:        repo,
		Votes:        repo,
		Transactions: repo,
		Outbox:       repo,
		Dedup:        repo,
		Ledger:       ledger,
		Signer:       signer,
		Publisher:    kafka,
		Subscriber:   kafka,
		Clock:        postgresadapter.SystemClock{},
		IDGen:        postgresadapter.UUIDGenerator{},

		Account:       cfg.SigningAccount,
		GasLimit:      cfg.GasLimit,
		CheckInterval: cfg.TrackerInterval,
		DropTimeout:   cfg.DropTimeout,
		MaxRetries:    cfg.MaxRetries,
		Logger:        logger,
	})
	return module, pg, ledger, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.module.Reconciler.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	lastDivergence := time.Now()
	for {
		if err := w.module.Tracker.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.module.Relay.RunOnce(ctx); err != nil {
			return err
		}
		if time.Since(lastDivergence) >= w.divergenceInterval {
			if _, err := w.module.Reconciler.CheckDivergence(ctx); err != nil {
				return err
			}
			lastDivergence = time.Now()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.ledger != nil {
		w.ledger.Close()
	}
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}

package votingledger

import (
	"log/slog"
	"time"

	httpadapter "chainballot/contexts/governance/voting-ledger/adapters/http"
	"chainballot/contexts/governance/voting-ledger/adapters/memory"
	"chainballot/contexts/governance/voting-ledger/application/commands"
	"chainballot/contexts/governance/voting-ledger/application/queries"
	"chainballot/contexts/governance/voting-ledger/application/workers"
	"chainballot/contexts/governance/voting-ledger/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Tracker    workers.SubmissionTracker
	Reconciler workers.Reconciler
	Relay      workers.OutboxRelay

	Store  *memory.Store
	Ledger *memory.Ledger
	Signer *memory.Signer
}

type Dependencies struct {
	Polls        ports.PollRepository
	Votes        ports.VoteRepository
	Transactions ports.TransactionRepository
	Outbox       ports.OutboxRepository
	Dedup        ports.EventDedupStore
	Ledger       ports.LedgerClient
	Signer       ports.Signer
	Publisher    ports.EventPublisher
	Subscriber   ports.EventSubscriber
	Clock        ports.Clock
	IDGen        ports.IDGenerator

	Account       string
	GasLimit      uint64
	CheckInterval time.Duration
	DropTimeout   time.Duration
	MaxRetries    int
	Logger        *slog.Logger
}

func NewModule(deps Dependencies) Module {
	submitter := commands.TransactionSubmitter{
		Polls:        deps.Polls,
		Votes:        deps.Votes,
		Transactions: deps.Transactions,
		Ledger:       deps.Ledger,
		Signer:       deps.Signer,
		Nonces:       commands.NewNonceManager(deps.Ledger),
		Clock:        deps.Clock,
		GasLimit:     deps.GasLimit,
		Logger:       deps.Logger,
	}
	createPollUseCase := commands.CreatePollUseCase{
		Polls:        deps.Polls,
		Transactions: deps.Transactions,
		Outbox:       deps.Outbox,
		Submitter:    submitter,
		Clock:        deps.Clock,
		IDGen:        deps.IDGen,
		Account:      deps.Account,
		Logger:       deps.Logger,
	}
	castVoteUseCase := commands.CastVoteUseCase{
		Polls:        deps.Polls,
		Votes:        deps.Votes,
		Transactions: deps.Transactions,
		Outbox:       deps.Outbox,
		Submitter:    submitter,
		Clock:        deps.Clock,
		IDGen:        deps.IDGen,
		Account:      deps.Account,
		Logger:       deps.Logger,
	}
	resultsUseCase := queries.ResultsUseCase{
		Polls:  deps.Polls,
		Votes:  deps.Votes,
		Ledger: deps.Ledger,
		Logger: deps.Logger,
	}
	statusUseCase := queries.StatusUseCase{
		Polls:        deps.Polls,
		Transactions: deps.Transactions,
	}
	return Module{
		Handler: httpadapter.Handler{
			Polls:   createPollUseCase,
			Votes:   castVoteUseCase,
			Results: resultsUseCase,
			Status:  statusUseCase,
			Logger:  deps.Logger,
		},
		Tracker: workers.SubmissionTracker{
			Transactions:  deps.Transactions,
			Ledger:        deps.Ledger,
			Submitter:     submitter,
			Outbox:        deps.Outbox,
			Clock:         deps.Clock,
			IDGen:         deps.IDGen,
			CheckInterval: deps.CheckInterval,
			DropTimeout:   deps.DropTimeout,
			MaxRetries:    deps.MaxRetries,
			Logger:        deps.Logger,
		},
		Reconciler: workers.Reconciler{
			Subscriber: deps.Subscriber,
			Dedup:      deps.Dedup,
			Polls:      deps.Polls,
			Votes:      deps.Votes,
			Ledger:     deps.Ledger,
			Clock:      deps.Clock,
			Logger:     deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule wires the module against the in-memory store and a
// scriptable fake ledger, for tests and local runs without a node.
func NewInMemoryModule(publisher ports.EventPublisher, subscriber ports.EventSubscriber, logger *slog.Logger) Module {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	signer := memory.NewSigner()
	module := NewModule(Dependencies{
		Polls:        store,
		Votes:        store,
		Transactions: store,
		Outbox:       store,
		Dedup:        store,
		Ledger:       ledger,
		Signer:       signer,
		Publisher:    publisher,
		Subscriber:   subscriber,
		Clock:        store,
		IDGen:        store,
		Account:      "operator",
		Logger:       logger,
	})
	module.Store = store
	module.Ledger = ledger
	module.Signer = signer
	return module
}

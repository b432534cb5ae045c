package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	votingledger "chainballot/contexts/governance/voting-ledger"
	ledgererrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	ledgerhttp "chainballot/contexts/governance/voting-ledger/transport/http"

	_ "chainballot/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	voting votingledger.Module
}

func New(voting votingledger.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		voting: voting,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Mux exposes the routing table for in-process tests.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/v1/polls", s.handleCreatePoll)
	s.mux.HandleFunc("GET /api/v1/polls/{poll_id}", s.handleGetPoll)
	s.mux.HandleFunc("POST /api/v1/polls/{poll_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /api/v1/polls/{poll_id}/results", s.handlePollResults)
	s.mux.HandleFunc("GET /api/v1/transactions/{tx_id}", s.handleGetTransaction)
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	creatorID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ledgerhttp.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.voting.Handler.CreatePollHandler(r.Context(), creatorID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("poll_id")
	resp, err := s.voting.Handler.PollHandler(r.Context(), pollID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	voterID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if voterID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ledgerhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	pollID := r.PathValue("poll_id")
	resp, err := s.voting.Handler.CastVoteHandler(r.Context(), pollID, voterID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("poll_id")
	resp, err := s.voting.Handler.PollResultsHandler(r.Context(), pollID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("tx_id")
	resp, err := s.voting.Handler.TransactionHandler(r.Context(), txID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrInvalidPollInput):
		writeError(w, http.StatusBadRequest, "invalid_poll_input", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidVoteInput):
		writeError(w, http.StatusBadRequest, "invalid_vote_input", err.Error())
	case errors.Is(err, ledgererrors.ErrOptionInvalid):
		writeError(w, http.StatusUnprocessableEntity, "invalid_option", err.Error())
	case errors.Is(err, ledgererrors.ErrDeadlinePassed):
		writeError(w, http.StatusConflict, "deadline_passed", err.Error())
	case errors.Is(err, ledgererrors.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, ledgererrors.ErrPollNotFound):
		writeError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrVoteNotFound):
		writeError(w, http.StatusNotFound, "vote_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "transaction_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrLedgerRefImmutable),
		errors.Is(err, ledgererrors.ErrInvalidTransition),
		errors.Is(err, ledgererrors.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ledgererrors.ErrSigningUnavailable):
		writeError(w, http.StatusServiceUnavailable, "signing_unavailable", err.Error())
	case errors.Is(err, ledgererrors.ErrNetworkUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ledger_unavailable", err.Error())
	case errors.Is(err, ledgererrors.ErrLedgerRejected):
		writeError(w, http.StatusBadGateway, "ledger_rejected", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	votingledger "chainballot/contexts/governance/voting-ledger"
	ledgerhttp "chainballot/contexts/governance/voting-ledger/transport/http"
	"chainballot/internal/platform/messaging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus, err := messaging.NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("new bus failed: %v", err)
	}
	module := votingledger.NewInMemoryModule(bus, bus, nil)
	return New(module, nil, ":0")
}

func doJSON(t *testing.T, server *Server, method string, path string, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode request failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)
	return rec
}

func createPoll(t *testing.T, server *Server) ledgerhttp.PollResponse {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/v1/polls", "user_1", ledgerhttp.CreatePollRequest{
		Title:    "Treasury allocation",
		Options:  []string{"yes", "no"},
		Deadline: time.Now().UTC().Add(24 * time.Hour),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create poll status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ledgerhttp.PollResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode poll response failed: %v", err)
	}
	return resp
}

func TestCreatePollEndpoint(t *testing.T) {
	server := newTestServer(t)
	poll := createPoll(t, server)
	if poll.PollID == "" || poll.TxID == "" {
		t.Fatalf("expected poll and transaction identifiers, got %+v", poll)
	}
	if poll.Status != "submitted" {
		t.Fatalf("expected submitted poll, got %q", poll.Status)
	}
}

func TestCreatePollRequiresUser(t *testing.T) {
	server := newTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/api/v1/polls", "", ledgerhttp.CreatePollRequest{
		Title:    "Treasury allocation",
		Options:  []string{"yes", "no"},
		Deadline: time.Now().UTC().Add(24 * time.Hour),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreatePollRejectsMalformedBody(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/polls", bytes.NewBufferString("{not json"))
	req.Header.Set("X-User-Id", "user_1")
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCastVoteEndpointValidation(t *testing.T) {
	server := newTestServer(t)
	poll := createPoll(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/polls/"+poll.PollID+"/votes", "voter_1", ledgerhttp.CastVoteRequest{Option: "maybe"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown option, got %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/polls/missing/votes", "voter_1", ledgerhttp.CastVoteRequest{Option: "yes"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown poll, got %d", rec.Code)
	}
}

func TestCastVoteEndpointRejectsDuplicates(t *testing.T) {
	server := newTestServer(t)
	poll := createPoll(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/polls/"+poll.PollID+"/votes", "voter_1", ledgerhttp.CastVoteRequest{Option: "yes"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first vote status %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodPost, "/api/v1/polls/"+poll.PollID+"/votes", "voter_1", ledgerhttp.CastVoteRequest{Option: "no"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate vote, got %d", rec.Code)
	}
}

func TestPollAndResultsEndpoints(t *testing.T) {
	server := newTestServer(t)
	poll := createPoll(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/polls/"+poll.PollID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get poll status %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/polls/"+poll.PollID+"/results", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get results status %d", rec.Code)
	}
	var results ledgerhttp.ResultsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode results failed: %v", err)
	}
	if results.Source != "local_provisional" {
		t.Fatalf("unconfirmed poll must serve provisional tally, got %q", results.Source)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/transactions/"+poll.TxID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get transaction status %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/polls/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown poll, got %d", rec.Code)
	}
}

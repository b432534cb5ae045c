package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"
)

// Ledger is a scriptable in-memory ledger used by tests and local wiring.
// Submissions default to an immediately-confirmable receipt carrying a
// sequential on-chain poll id; tests can script submit errors and override
// receipts to exercise the tracker's retry and drop paths.
type Ledger struct {
	mu sync.Mutex

	nonces      map[string]uint64
	receipts    map[string]ports.Receipt
	results     map[uint64][]uint64
	submissions []ports.SignedEnvelope
	submitErrs  []error
	resultsErr  error
	nextPollID  uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		nonces:   make(map[string]uint64),
		receipts: make(map[string]ports.Receipt),
		results:  make(map[uint64][]uint64),
	}
}

// FailNextSubmit scripts errors for upcoming Submit calls, consumed in order.
func (l *Ledger) FailNextSubmit(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitErrs = append(l.submitErrs, errs...)
}

// SetReceipt overrides the receipt served for a handle.
func (l *Ledger) SetReceipt(handle string, receipt ports.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts[handle] = receipt
}

// SetResults scripts the answer of getPollResults for an on-chain poll id.
func (l *Ledger) SetResults(onChainPollID uint64, counts []uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[onChainPollID] = counts
}

// SetResultsError scripts the next PollResults failure mode.
func (l *Ledger) SetResultsError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resultsErr = err
}

// Submissions returns every envelope accepted so far.
func (l *Ledger) Submissions() []ports.SignedEnvelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.SignedEnvelope(nil), l.submissions...)
}

func (l *Ledger) Submit(_ context.Context, envelope ports.SignedEnvelope) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.submitErrs) > 0 {
		err := l.submitErrs[0]
		l.submitErrs = l.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	l.submissions = append(l.submissions, envelope)
	l.nonces[envelope.Account] = envelope.Nonce + 1

	handle := envelope.Hash
	if handle == "" {
		handle = fmt.Sprintf("0x%x", len(l.submissions))
	}
	if _, scripted := l.receipts[handle]; !scripted {
		l.nextPollID++
		id := l.nextPollID
		l.receipts[handle] = ports.Receipt{
			State:         ports.ReceiptConfirmed,
			OnChainPollID: &id,
		}
	}
	return handle, nil
}

func (l *Ledger) Receipt(_ context.Context, handle string) (ports.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt, ok := l.receipts[handle]
	if !ok {
		return ports.Receipt{State: ports.ReceiptNotFound}, nil
	}
	return receipt, nil
}

func (l *Ledger) PollResults(_ context.Context, onChainPollID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resultsErr != nil {
		err := l.resultsErr
		l.resultsErr = nil
		return nil, err
	}
	counts, ok := l.results[onChainPollID]
	if !ok {
		return nil, domainerrors.ErrLedgerRejected
	}
	return append([]uint64(nil), counts...), nil
}

func (l *Ledger) PendingNonce(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[account], nil
}

func (l *Ledger) SuggestFee(_ context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

// Signer is a deterministic in-memory signing capability. Unavailable
// simulates a missing key handle.
type Signer struct {
	mu          sync.Mutex
	unavailable bool
}

func NewSigner() *Signer {
	return &Signer{}
}

func (s *Signer) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

func (s *Signer) Sign(_ context.Context, req ports.SignRequest) (ports.SignedEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return ports.SignedEnvelope{}, domainerrors.ErrSigningUnavailable
	}
	sum := sha256.Sum256(append([]byte(fmt.Sprintf("%s|%s|%d|", req.Kind, req.Account, req.Nonce)), req.Params...))
	return ports.SignedEnvelope{
		Account: req.Account,
		Nonce:   req.Nonce,
		Raw:     sum[:],
		Hash:    "0x" + hex.EncodeToString(sum[:]),
	}, nil
}

package entities

import (
	"strings"
	"time"
)

// ConfirmationStatus is the ledger confirmation lifecycle shared by polls and
// votes. Confirmed is only reachable through Submitted; Failed is reachable
// from both Provisional (rejected before broadcast) and Submitted.
type ConfirmationStatus string

const (
	StatusProvisional ConfirmationStatus = "provisional"
	StatusSubmitted   ConfirmationStatus = "submitted"
	StatusConfirmed   ConfirmationStatus = "confirmed"
	StatusFailed      ConfirmationStatus = "failed"
)

func (s ConfirmationStatus) CanTransitionTo(next ConfirmationStatus) bool {
	switch s {
	case StatusProvisional:
		return next == StatusSubmitted || next == StatusFailed
	case StatusSubmitted:
		return next == StatusConfirmed || next == StatusFailed
	default:
		return false
	}
}

func (s ConfirmationStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

type Poll struct {
	PollID        string
	Title         string
	Options       []string
	CreatorID     string
	Status        ConfirmationStatus
	TxHandle      string
	OnChainPollID *uint64
	CreatedAt     time.Time
	Deadline      time.Time
	UpdatedAt     time.Time
}

func (p Poll) HasOption(label string) bool {
	for _, option := range p.Options {
		if option == strings.TrimSpace(label) {
			return true
		}
	}
	return false
}

func (p Poll) VotingOpen(now time.Time) bool {
	return now.Before(p.Deadline)
}

// ValidateNew checks creation-time invariants: non-empty title, at least one
// non-empty option, options unique within the poll, deadline strictly after
// creation time.
func (p Poll) ValidateNew(now time.Time) bool {
	if strings.TrimSpace(p.Title) == "" || len(p.Options) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(p.Options))
	for _, option := range p.Options {
		trimmed := strings.TrimSpace(option)
		if trimmed == "" {
			return false
		}
		if _, dup := seen[trimmed]; dup {
			return false
		}
		seen[trimmed] = struct{}{}
	}
	return p.Deadline.After(now)
}

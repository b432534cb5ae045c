package entities

import (
	"testing"
	"time"
)

func TestConfirmationStatusTransitions(t *testing.T) {
	cases := []struct {
		from    ConfirmationStatus
		to      ConfirmationStatus
		allowed bool
	}{
		{StatusProvisional, StatusSubmitted, true},
		{StatusProvisional, StatusFailed, true},
		{StatusProvisional, StatusConfirmed, false},
		{StatusSubmitted, StatusConfirmed, true},
		{StatusSubmitted, StatusFailed, true},
		{StatusSubmitted, StatusProvisional, false},
		{StatusConfirmed, StatusFailed, false},
		{StatusConfirmed, StatusSubmitted, false},
		{StatusFailed, StatusSubmitted, false},
		{StatusFailed, StatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("transition %s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestConfirmationStatusIsTerminal(t *testing.T) {
	if StatusProvisional.IsTerminal() || StatusSubmitted.IsTerminal() {
		t.Fatalf("provisional and submitted must not be terminal")
	}
	if !StatusConfirmed.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatalf("confirmed and failed must be terminal")
	}
}

func TestPollValidateNew(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	valid := Poll{
		Title:    "Treasury allocation",
		Options:  []string{"yes", "no"},
		Deadline: now.Add(24 * time.Hour),
	}
	if !valid.ValidateNew(now) {
		t.Fatalf("expected valid poll to pass validation")
	}

	cases := map[string]Poll{
		"empty title":      {Title: "  ", Options: []string{"yes"}, Deadline: now.Add(time.Hour)},
		"no options":       {Title: "t", Options: nil, Deadline: now.Add(time.Hour)},
		"blank option":     {Title: "t", Options: []string{"yes", " "}, Deadline: now.Add(time.Hour)},
		"duplicate option": {Title: "t", Options: []string{"yes", "yes"}, Deadline: now.Add(time.Hour)},
		"deadline in past": {Title: "t", Options: []string{"yes"}, Deadline: now.Add(-time.Hour)},
		"deadline at now":  {Title: "t", Options: []string{"yes"}, Deadline: now},
	}
	for name, poll := range cases {
		if poll.ValidateNew(now) {
			t.Fatalf("expected %s to fail validation", name)
		}
	}
}

func TestPollHasOptionAndVotingOpen(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	poll := Poll{
		Options:  []string{"yes", "no"},
		Deadline: now.Add(time.Minute),
	}
	if !poll.HasOption("yes") || !poll.HasOption(" no ") {
		t.Fatalf("expected listed options to match")
	}
	if poll.HasOption("maybe") {
		t.Fatalf("unexpected option match")
	}
	if !poll.VotingOpen(now) {
		t.Fatalf("expected voting open before deadline")
	}
	if poll.VotingOpen(now.Add(time.Minute)) {
		t.Fatalf("expected voting closed at deadline")
	}
}

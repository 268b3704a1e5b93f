package domain

import "testing"

func TestStatusTransitionGraph(t *testing.T) {
	allowed := []struct {
		from, to Status
	}{
		{StatusFiled, StatusAwaitingAcceptance},
		{StatusFiled, StatusCancelled},
		{StatusAwaitingAcceptance, StatusAccepted},
		{StatusAwaitingAcceptance, StatusRefused},
		{StatusAwaitingAcceptance, StatusCancelled},
		{StatusAccepted, StatusInProgress},
		{StatusAccepted, StatusAwaitingClosure},
		{StatusInProgress, StatusAwaitingClosure},
		{StatusAwaitingClosure, StatusClosed},
		{StatusRefused, StatusCancelled},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to Status
	}{
		{StatusFiled, StatusAccepted},
		{StatusFiled, StatusClosed},
		{StatusAccepted, StatusFiled},
		{StatusInProgress, StatusCancelled},
		{StatusAwaitingClosure, StatusCancelled},
		{StatusAwaitingClosure, StatusInProgress},
		{StatusClosed, StatusFiled},
		{StatusCancelled, StatusFiled},
		{StatusRefused, StatusAccepted},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesAdmitNoTransitions(t *testing.T) {
	all := []Status{
		StatusFiled, StatusAwaitingAcceptance, StatusAccepted, StatusInProgress,
		StatusAwaitingClosure, StatusClosed, StatusCancelled, StatusRefused,
	}
	for _, terminal := range []Status{StatusClosed, StatusCancelled} {
		for _, next := range all {
			if terminal.CanTransitionTo(next) {
				t.Errorf("terminal %s transitions to %s", terminal, next)
			}
		}
	}
	// Refused is terminal for control purposes but may still be cancelled by
	// the pilot.
	if !StatusRefused.IsTerminal() {
		t.Error("expected refused to be terminal")
	}
	if !StatusRefused.CanTransitionTo(StatusCancelled) {
		t.Error("expected refused -> cancelled to be allowed")
	}
}

func TestClaimableExcludesClosureAndTerminal(t *testing.T) {
	for _, s := range []Status{StatusFiled, StatusAwaitingAcceptance, StatusAccepted, StatusInProgress} {
		if !s.Claimable() {
			t.Errorf("expected %s to be claimable", s)
		}
	}
	for _, s := range []Status{StatusAwaitingClosure, StatusClosed, StatusCancelled, StatusRefused, StatusUnspecified} {
		if s.Claimable() {
			t.Errorf("expected %s not to be claimable", s)
		}
	}
}

func TestClosureRequestable(t *testing.T) {
	if !StatusAccepted.ClosureRequestable() || !StatusInProgress.ClosureRequestable() {
		t.Error("expected accepted and in_progress to allow closure requests")
	}
	if StatusFiled.ClosureRequestable() || StatusAwaitingClosure.ClosureRequestable() {
		t.Error("expected filed and awaiting_closure to refuse closure requests")
	}
}

func TestParseStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{
		StatusFiled, StatusAwaitingAcceptance, StatusAccepted, StatusInProgress,
		StatusAwaitingClosure, StatusClosed, StatusCancelled, StatusRefused,
	} {
		if got := ParseStatus(s.String()); got != s {
			t.Errorf("round trip %s: got %s", s, got)
		}
	}
	if ParseStatus("bogus") != StatusUnspecified {
		t.Error("expected unknown status to parse as unspecified")
	}
}

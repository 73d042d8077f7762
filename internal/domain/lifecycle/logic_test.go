package lifecycle

import (
	"errors"
	"testing"
	"time"
)

func TestTokenExpiredBoundary(t *testing.T) {
	requestedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := ReactivationWindow

	boundary := requestedAt.Add(window)
	if TokenExpired(requestedAt, boundary, window) {
		t.Fatal("token must still be valid at the exact boundary instant")
	}
	if !TokenExpired(requestedAt, boundary.Add(time.Nanosecond), window) {
		t.Fatal("token must expire strictly after the boundary")
	}
	if TokenExpired(requestedAt, requestedAt.Add(6*24*time.Hour), window) {
		t.Fatal("token must be valid inside the window")
	}
	if !TokenExpired(requestedAt, requestedAt.Add(8*24*time.Hour), window) {
		t.Fatal("token must be expired after eight days")
	}
}

func TestCanSubmitRejectsProcessedRequest(t *testing.T) {
	now := time.Now()
	for _, status := range []string{StatusAwaitingApproval, StatusApproved, StatusRejected} {
		req := ReactivationRequest{Status: status, RequestedAt: now}
		if err := CanSubmit(req, now, ReactivationWindow); !errors.Is(err, ErrAlreadyProcessed) {
			t.Fatalf("status %s: expected ErrAlreadyProcessed, got %v", status, err)
		}
	}
}

func TestCanSubmitRejectsExpiredEvenWhenPending(t *testing.T) {
	now := time.Now()
	req := ReactivationRequest{Status: StatusPending, RequestedAt: now.Add(-8 * 24 * time.Hour)}
	if err := CanSubmit(req, now, ReactivationWindow); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestCanSubmitAcceptsFreshPending(t *testing.T) {
	now := time.Now()
	req := ReactivationRequest{Status: StatusPending, RequestedAt: now.Add(-24 * time.Hour)}
	if err := CanSubmit(req, now, ReactivationWindow); err != nil {
		t.Fatalf("expected submit to be allowed, got %v", err)
	}
}

func TestCanDecideOnlyFromAwaitingApproval(t *testing.T) {
	if err := CanDecide(ReactivationRequest{Status: StatusAwaitingApproval}); err != nil {
		t.Fatalf("expected decision to be allowed, got %v", err)
	}
	for _, status := range []string{StatusPending, StatusApproved, StatusRejected} {
		if err := CanDecide(ReactivationRequest{Status: status}); !errors.Is(err, ErrAlreadyProcessed) {
			t.Fatalf("status %s: expected ErrAlreadyProcessed, got %v", status, err)
		}
	}
}

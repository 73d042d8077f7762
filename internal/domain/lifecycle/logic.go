package lifecycle

import "time"

// TokenExpired reports whether a reactivation token is past its validity
// window. The boundary instant itself is still valid: expiry requires
// now to be strictly after requestedAt+window.
func TokenExpired(requestedAt, now time.Time, window time.Duration) bool {
	return now.After(requestedAt.Add(window))
}

// CanSubmit validates the pending→awaiting_approval transition.
func CanSubmit(req ReactivationRequest, now time.Time, window time.Duration) error {
	if req.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if TokenExpired(req.RequestedAt, now, window) {
		return ErrTokenExpired
	}
	return nil
}

// CanDecide validates the awaiting_approval→{approved,rejected} transition.
func CanDecide(req ReactivationRequest) error {
	if req.Status != StatusAwaitingApproval {
		return ErrAlreadyProcessed
	}
	return nil
}

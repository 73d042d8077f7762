package lifecycle

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrRequestNotFound   = errors.New("reactivation request not found")
	ErrNotAnonymized     = errors.New("user is not anonymized")
	ErrAlreadyAnonymized = errors.New("user is already anonymized")
	ErrRevertInProgress  = errors.New("reactivation request already open")
	ErrAlreadyProcessed  = errors.New("reactivation request already processed")
	ErrTokenExpired      = errors.New("reactivation token expired")
	ErrEmailTaken        = errors.New("email already in use by another account")
)

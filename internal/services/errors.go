package services

import (
	"errors"
	"fmt"

	"dust2cash/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrAlreadyAccepted   = errors.New("request already accepted by another agent")
	ErrExpired           = errors.New("request expired")
	ErrRequestInFlight   = errors.New("an agent request is already in flight")
	ErrAgentOffline      = errors.New("agent is offline")
	ErrNotAgent          = errors.New("caller has no agent profile")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// ValidationError reports bad input. It is returned before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError is an operation attempted from the wrong state or by the
// wrong actor.
type TransitionError struct {
	From   models.Status
	To     models.Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move transaction from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move transaction from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

func illegal(from, to models.Status, reason string) error {
	return &TransitionError{From: from, To: to, Reason: reason}
}

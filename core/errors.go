package core

import "errors"

var (
	// ErrInvalidAmount is returned when a point amount is negative.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance is returned when spending would take the available balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownActionType marks an action the award table does not know. It is never fatal.
	ErrUnknownActionType = errors.New("unknown action type")
	ErrSelfReferral      = errors.New("self referral")
	ErrAlreadyReferred   = errors.New("already referred")
	// ErrUnknownCode means no account owns the referral code. Registration still succeeds.
	ErrUnknownCode   = errors.New("unknown referral code")
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrConflict is returned by stores when the expected version is stale.
	ErrConflict     = errors.New("version conflict")
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	// ErrSystemAction rejects a system-originated action submitted as a user activity.
	ErrSystemAction = errors.New("system action")
)

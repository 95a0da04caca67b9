package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadySettled = errors.New("call already settled")
	ErrNoPrice        = errors.New("no price available")
	ErrLockHeld       = errors.New("lock already held")
)

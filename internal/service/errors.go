package service

import "errors"

// Sentinel errors for the attempt lifecycle. Handlers map these onto stable
// HTTP status codes; nothing else about the failure leaks to the client.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrOutOfWindow      = errors.New("exam is not open at this time")
	ErrDeviceConflict   = errors.New("session is active on another device")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrNotSubmitted     = errors.New("attempt not submitted")
)

package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, clients and runners return
// these (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: entity does not exist (unknown session id, missing artifact)
// - ErrClosed: the owner has been torn down and accepts no more work
// - ErrExpired: a grant or session is past its expiry
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnavailable: a collaborator is temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrClosed       = errors.New("closed")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

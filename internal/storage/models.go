package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Confirmation is one remote confirmation outcome in the sync log.
type Confirmation struct {
	ID           string
	Key          string
	ValueJSON    string
	PreviousJSON string
	Ack          int
	CreatedAt    time.Time
}

// GlobalSetting is an authoritative value held by the peer.
type GlobalSetting struct {
	Key       string
	ValueJSON string
	UpdatedAt time.Time
}

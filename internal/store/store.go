// Package store holds what every Session Store adapter shares.
package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("conflict")
)

// ActiveWindow is how far back a session's lastUpdated may be for it to be
// listed as active.
const ActiveWindow = 24 * time.Hour

// Package session maps opaque session identifiers to authenticated user ids.
//
// The memory store is the default: sessions live for the process lifetime and
// are lost on restart. The redis store persists them with a TTL. Both are safe
// for concurrent use; operations on the same session id never produce a torn
// read.
package session

import (
	"context"
	"errors"
)

// ErrNoSession is returned by Resolve for unknown or blank session ids.
// Callers must treat it as an authentication failure, not an internal fault.
var ErrNoSession = errors.New("session: no such session")

type Store interface {
	// Create generates a fresh, unpredictable session id for userID.
	Create(ctx context.Context, userID string) (string, error)
	// Resolve returns the user id owning sessionID, or ErrNoSession.
	Resolve(ctx context.Context, sessionID string) (string, error)
	// Destroy removes the session. Destroying an absent id is not an error.
	Destroy(ctx context.Context, sessionID string) error
}

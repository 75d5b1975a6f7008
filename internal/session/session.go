// Package session owns the live transport connection for one mounted avatar:
// it connects exactly once when the surface becomes ready and recovers from
// a transport stuck in its initializing state.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// State is the transport connection state.
type State string

const (
	Disconnected      State = "disconnected"
	Connecting        State = "connecting"
	Initializing      State = "initializing"
	Connected         State = "connected"
	StuckInitializing State = "stuck-initializing"
)

// States lists every State, for metrics.
var States = []string{
	string(Disconnected),
	string(Connecting),
	string(Initializing),
	string(Connected),
	string(StuckInitializing),
}

const (
	// DefaultWatchdogWindow is how long the transport may report
	// initializing before it is considered stuck.
	DefaultWatchdogWindow = 1500 * time.Millisecond
	// DefaultMaxRecoveries bounds the forced reconnects per session.
	DefaultMaxRecoveries = 3
)

var (
	// ErrRecoveryExhausted is reported when the transport is stuck again
	// after every recovery has been spent.
	ErrRecoveryExhausted = errors.New("stuck connection recovery exhausted")
	// ErrNotConnected is returned by transports asked to act without a connection.
	ErrNotConnected = errors.New("transport not connected")
)

// Transport is the live connection the controller drives. Only the
// controller calls Connect and Disconnect.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Session is a snapshot of the controller's session.
type Session struct {
	ID            string
	State         State
	Retries       int
	ConnectedOnce bool
	Exhausted     bool
}

func newSessionID() string {
	return uuid.New().String()
}

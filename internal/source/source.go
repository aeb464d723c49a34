// Package source provides scan sources that feed tag sightings into the aggregator.
//
// A scan source models a handheld RFID reader paired over Bluetooth: it is
// connected, then every trigger pull yields a batch of simultaneous tag reads.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/tagscan/internal/tag"
)

// Source yields one batch of sightings per trigger pull.
type Source interface {
	Name() string
	Trigger(ctx context.Context) ([]tag.Sighting, error)
}

// Device describes a reader that can be connected.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Paired  bool   `json:"paired"`
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// ConnectionError represents a connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}

	ErrUnknownDevice = errors.New("unknown device")
)

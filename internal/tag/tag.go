// Package tag defines the RFID tag record produced by aggregating scan sightings
// and the sighting event that feeds it.
package tag

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidArgument is returned for malformed input such as an empty EPC.
// It is not retryable without fixing the input.
var ErrInvalidArgument = errors.New("invalid argument")

// Record is the aggregated view of every sighting of one EPC.
type Record struct {
	EPC       string    `json:"epc" msgpack:"epc"`
	RSSI      *int      `json:"rssi,omitempty" msgpack:"rssi,omitempty"`
	SeenCount int       `json:"seen_count" msgpack:"seen_count"`
	FirstSeen time.Time `json:"first_seen" msgpack:"first_seen"`
	LastSeen  time.Time `json:"last_seen" msgpack:"last_seen"`
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	if r.RSSI != nil {
		v := *r.RSSI
		r.RSSI = &v
	}
	return r
}

// Validate reports whether r satisfies the record invariants.
func (r Record) Validate() error {
	if strings.TrimSpace(r.EPC) == "" {
		return fmt.Errorf("%w: epc must not be empty", ErrInvalidArgument)
	}
	if r.SeenCount < 1 {
		return fmt.Errorf("%w: tag %s has seen count %d", ErrInvalidArgument, r.EPC, r.SeenCount)
	}
	if r.LastSeen.Before(r.FirstSeen) {
		return fmt.Errorf("%w: tag %s last seen before first seen", ErrInvalidArgument, r.EPC)
	}
	return nil
}

// RSSIString formats the signal strength for display, "-" when unknown.
func (r Record) RSSIString() string {
	if r.RSSI == nil {
		return "-"
	}
	return fmt.Sprintf("%d dBm", *r.RSSI)
}

func (r Record) String() string {
	return fmt.Sprintf("epc: %s, rssi: %s, seen: %d, first: %s, last: %s",
		r.EPC,
		r.RSSIString(),
		r.SeenCount,
		r.FirstSeen.Format(time.RFC3339),
		r.LastSeen.Format(time.RFC3339),
	)
}

// Sighting is a single observed read of a tag.
// A zero Timestamp means the reading happened "now".
type Sighting struct {
	EPC       string    `json:"epc"`
	RSSI      *int      `json:"rssi,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ValidateEPC rejects empty or whitespace-only EPCs.
func ValidateEPC(epc string) error {
	if strings.TrimSpace(epc) == "" {
		return fmt.Errorf("%w: epc must not be empty", ErrInvalidArgument)
	}
	return nil
}

// RSSI returns a pointer to v, for building sightings inline.
func RSSI(v int) *int {
	return &v
}

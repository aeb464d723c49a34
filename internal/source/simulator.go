package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/tagscan/internal/tag"
)

// DefaultProductTypes are the product codes embedded in simulated EPCs.
var DefaultProductTypes = []string{"CLO", "ELE", "BOO", "FOO", "TOO", "MED", "SPO"}

// simulatedDevices is the paired-reader list offered by the simulator.
var simulatedDevices = []Device{
	{Name: "RFID-Reader-01", Address: "00:1A:7D:DA:71:01", Paired: true},
	{Name: "RFID-Reader-02", Address: "00:1A:7D:DA:71:02", Paired: true},
	{Name: "Handheld-UHF", Address: "00:1A:7D:DA:71:10", Paired: false},
}

// maxRemembered bounds how many generated EPCs are kept for re-reads.
const maxRemembered = 1024

// SimulatorOptions configures the simulated reader.
type SimulatorOptions struct {
	ConnectDelay time.Duration
	MinTags      int
	MaxTags      int
	RSSIMin      int
	RSSIMax      int
	RepeatRatio  float64 // probability that a read repeats an already generated EPC
	ProductTypes []string
	Seed         uint64 // 0 picks a random seed
}

// DefaultSimulatorOptions returns the demo reader defaults
func DefaultSimulatorOptions() *SimulatorOptions {
	return &SimulatorOptions{
		ConnectDelay: 1500 * time.Millisecond,
		MinTags:      2,
		MaxTags:      6,
		RSSIMin:      -65,
		RSSIMax:      -45,
		RepeatRatio:  0.3,
		ProductTypes: DefaultProductTypes,
	}
}

func (o *SimulatorOptions) validate() error {
	switch {
	case o.MinTags < 0 || o.MaxTags < o.MinTags:
		return fmt.Errorf("invalid tag range %d..%d", o.MinTags, o.MaxTags)
	case o.RSSIMax < o.RSSIMin:
		return fmt.Errorf("invalid rssi range %d..%d", o.RSSIMin, o.RSSIMax)
	case o.RepeatRatio < 0 || o.RepeatRatio > 1:
		return fmt.Errorf("repeat ratio %.2f must be within [0, 1]", o.RepeatRatio)
	case len(o.ProductTypes) == 0:
		return fmt.Errorf("at least one product type is required")
	case o.ConnectDelay < 0:
		return fmt.Errorf("connect delay must not be negative")
	}
	return nil
}

// Simulator is a Source that fabricates tag reads, standing in for reader hardware
// in demos and tests.
type Simulator struct {
	mu        sync.Mutex
	opts      SimulatorOptions
	rng       *rand.Rand
	logger    *logrus.Logger
	now       func() time.Time
	connected *Device
	seen      []string
}

// NewSimulator creates a disconnected simulated reader.
func NewSimulator(opts *SimulatorOptions, logger *logrus.Logger) (*Simulator, error) {
	if opts == nil {
		opts = DefaultSimulatorOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("simulator options: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Simulator{
		opts:   *opts,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock overrides the timestamp source for generated sightings.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Simulator) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected != nil {
		return s.connected.Name
	}
	return "simulator"
}

// Devices lists the readers the simulator can connect to.
func (s *Simulator) Devices() []Device {
	out := make([]Device, len(simulatedDevices))
	copy(out, simulatedDevices)
	return out
}

// Connect pairs with the reader matching address (by address or name, case-insensitive).
// An empty address picks the first paired reader. Connect waits ConnectDelay or until ctx is done.
func (s *Simulator) Connect(ctx context.Context, address string) (Device, error) {
	dev, err := lookupDevice(address)
	if err != nil {
		return Device{}, err
	}

	s.mu.Lock()
	if s.connected != nil {
		s.mu.Unlock()
		return Device{}, fmt.Errorf("%w: %s", ErrAlreadyConnected, s.connected.Address)
	}
	delay := s.opts.ConnectDelay
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"device":  dev.Name,
		"address": dev.Address,
	}).Info("Connecting to reader...")

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Device{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected != nil {
		return Device{}, fmt.Errorf("%w: %s", ErrAlreadyConnected, s.connected.Address)
	}
	s.connected = &dev

	s.logger.WithField("device", dev.Name).Info("Reader connected")
	return dev, nil
}

func lookupDevice(address string) (Device, error) {
	if address == "" {
		for _, d := range simulatedDevices {
			if d.Paired {
				return d, nil
			}
		}
	}
	for _, d := range simulatedDevices {
		if strings.EqualFold(d.Address, address) || strings.EqualFold(d.Name, address) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrUnknownDevice, address)
}

// Disconnect drops the connection. Disconnecting twice returns ErrNotConnected.
func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected == nil {
		return ErrNotConnected
	}
	s.logger.WithField("device", s.connected.Name).Info("Reader disconnected")
	s.connected = nil
	return nil
}

func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected != nil
}

// Trigger simulates one trigger pull: between MinTags and MaxTags reads sharing one timestamp.
func (s *Simulator) Trigger(ctx context.Context) ([]tag.Sighting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected == nil {
		return nil, ErrNotConnected
	}

	n := s.opts.MinTags + s.rng.IntN(s.opts.MaxTags-s.opts.MinTags+1)
	ts := s.now()

	out := make([]tag.Sighting, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tag.Sighting{
			EPC:       s.nextEPC(),
			RSSI:      tag.RSSI(s.opts.RSSIMin + s.rng.IntN(s.opts.RSSIMax-s.opts.RSSIMin+1)),
			Timestamp: ts,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"device": s.connected.Name,
		"reads":  n,
	}).Debug("Trigger pulled")
	return out, nil
}

// nextEPC must be called with s.mu held.
func (s *Simulator) nextEPC() string {
	if len(s.seen) > 0 && s.rng.Float64() < s.opts.RepeatRatio {
		return s.seen[s.rng.IntN(len(s.seen))]
	}

	product := s.opts.ProductTypes[s.rng.IntN(len(s.opts.ProductTypes))]
	epc := fmt.Sprintf("E200%s%08X", product, s.rng.Uint32()&0x7fffffff)

	if len(s.seen) >= maxRemembered {
		s.seen = s.seen[1:]
	}
	s.seen = append(s.seen, epc)
	return epc
}

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ymadsen/suntrack/internal/debug"
)

var (
	// ErrAlreadyReserved is returned when acquiring a pin that another
	// Resource already owns.
	ErrAlreadyReserved = errors.New("gpio: pin already reserved")

	// ErrHardwareUnavailable is returned when the underlying driver
	// refuses to configure the pin.
	ErrHardwareUnavailable = errors.New("gpio: hardware unavailable")
)

// resSet tracks which physical pins are currently owned by a Resource,
// one pin set per driver, so a mock driver in tests never collides
// with another test's pins. A driver's entry is dropped once its last
// pin is released, so driver churn does not grow the map.
var (
	resMu  sync.Mutex
	resSet = make(map[Driver]map[int]bool)
)

// reserve marks pin as owned on d. It reports false when the pin is
// already taken.
func reserve(d Driver, pin int) bool {
	resMu.Lock()
	defer resMu.Unlock()
	pins := resSet[d]
	if pins[pin] {
		return false
	}
	if pins == nil {
		pins = make(map[int]bool)
		resSet[d] = pins
	}
	pins[pin] = true
	return true
}

// unreserve gives pin back and prunes the driver's entry when it was
// the last one.
func unreserve(d Driver, pin int) {
	resMu.Lock()
	defer resMu.Unlock()
	pins := resSet[d]
	if pins == nil {
		return
	}
	delete(pins, pin)
	if len(pins) == 0 {
		delete(resSet, d)
	}
}

// Resource owns a single physical output pin for the lifetime of an
// actuator: acquired at probe, released at teardown or rollback.
type Resource struct {
	drv      Driver
	pin      int
	mu       sync.Mutex
	released bool
}

// Acquire reserves pin on d, configures it as an output and drives it
// low. It fails with ErrAlreadyReserved or ErrHardwareUnavailable
// without side effects: a pin that could not be fully configured is
// left unreserved.
func Acquire(d Driver, pin int) (*Resource, error) {
	if !reserve(d, pin) {
		return nil, fmt.Errorf("%w: pin %d", ErrAlreadyReserved, pin)
	}

	if err := d.SetupPin(pin, Output); err != nil {
		unreserve(d, pin)
		return nil, fmt.Errorf("%w: setup pin %d: %v", ErrHardwareUnavailable, pin, err)
	}
	if err := d.WritePin(pin, Low); err != nil {
		unreserve(d, pin)
		return nil, fmt.Errorf("%w: init pin %d low: %v", ErrHardwareUnavailable, pin, err)
	}

	debug.Trace("Acquired GPIO %d", pin)
	return &Resource{drv: d, pin: pin}, nil
}

// Pin returns the physical pin number.
func (r *Resource) Pin() int {
	return r.pin
}

// Set writes the pin level immediately. Writing a released resource is
// an error.
func (r *Resource) Set(level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return fmt.Errorf("gpio: write to released pin %d", r.pin)
	}
	return r.drv.WritePin(r.pin, level)
}

// Release drives the pin low and unreserves it. It is idempotent so
// rollback paths can call it unconditionally.
func (r *Resource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	// Best effort: park low even if the driver complains.
	_ = r.drv.WritePin(r.pin, Low)

	unreserve(r.drv, r.pin)

	debug.Trace("Released GPIO %d", r.pin)
}

// Reserved reports whether pin is currently owned on driver d.
func Reserved(d Driver, pin int) bool {
	resMu.Lock()
	defer resMu.Unlock()
	return resSet[d][pin]
}

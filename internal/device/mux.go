// Package device exposes the actuators as five logical endpoints with
// device-file style read/write semantics: endpoint 0 is the servo,
// endpoints 1-4 are the stepper phase pins.
package device

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ymadsen/suntrack/internal/debug"
	"github.com/ymadsen/suntrack/internal/hw/gpio"
	"github.com/ymadsen/suntrack/internal/hw/servo"
	"github.com/ymadsen/suntrack/internal/hw/stepper"
	"github.com/ymadsen/suntrack/internal/hw/timing"
)

var (
	// ErrUnknownEndpoint is returned for endpoint ids outside 0-4.
	ErrUnknownEndpoint = errors.New("device: unknown endpoint")

	// ErrInvalidFormat is returned for write payloads that are not a
	// plain ASCII-decimal integer of fewer than 32 bytes.
	ErrInvalidFormat = errors.New("device: invalid payload format")

	// ErrNotProbed is returned when using endpoints before Probe or
	// after Remove.
	ErrNotProbed = errors.New("device: not probed")
)

// NumEndpoints is the number of logical endpoints: one servo plus four
// stepper phases.
const NumEndpoints = 5

// maxPayload bounds a write payload including its terminator, matching
// the 32-byte command buffer of the device-file protocol.
const maxPayload = 32

// Config names the physical pins behind the endpoints and the stepper
// pacing.
type Config struct {
	ServoPin    int
	StepperPins [stepper.NumPhases]int
	StepDelay   time.Duration

	// Delays are injectable for tests; nil selects the defaults of
	// each actuator.
	ServoDelay   timing.Delay
	StepperDelay timing.Delay
}

// Mux routes endpoint reads and writes to the servo and stepper and
// owns the GPIO acquisition lifecycle: after a successful Probe it
// holds all five pin resources, after a failed Probe or a Remove it
// holds none.
type Mux struct {
	drv gpio.Driver
	cfg Config

	resources []*gpio.Resource // acquisition order: servo, phase 0..3
	servo     *servo.Servo
	stepper   *stepper.Stepper
}

// New creates an unprobed mux over a GPIO driver.
func New(drv gpio.Driver, cfg Config) *Mux {
	return &Mux{drv: drv, cfg: cfg}
}

// Probe acquires the endpoint pins in order 0..4 and builds the
// actuators. If any acquisition fails, everything acquired so far is
// released in reverse order and the first error is returned; callers
// never see a half-initialized mux.
func (m *Mux) Probe() error {
	if m.servo != nil {
		return nil
	}

	debug.Info("Probing %d endpoints (servo pin %d, stepper pins %v)",
		NumEndpoints, m.cfg.ServoPin, m.cfg.StepperPins)

	pins := make([]int, 0, NumEndpoints)
	pins = append(pins, m.cfg.ServoPin)
	for _, p := range m.cfg.StepperPins {
		pins = append(pins, p)
	}

	var acquired []*gpio.Resource
	for i, pin := range pins {
		r, err := gpio.Acquire(m.drv, pin)
		if err != nil {
			debug.Error(fmt.Errorf("probe endpoint %d: %w", i, err))
			for j := len(acquired) - 1; j >= 0; j-- {
				acquired[j].Release()
			}
			return fmt.Errorf("probe endpoint %d (pin %d): %w", i, pin, err)
		}
		acquired = append(acquired, r)
	}

	var phasePins [stepper.NumPhases]*gpio.Resource
	copy(phasePins[:], acquired[1:])

	m.resources = acquired
	m.servo = servo.New(acquired[0], m.cfg.ServoDelay)
	m.stepper = stepper.New(phasePins, m.cfg.StepperDelay, m.cfg.StepDelay)

	debug.Info("Probe complete, %d endpoints ready", NumEndpoints)
	return nil
}

// Remove releases all endpoint resources in reverse acquisition order.
// Best effort and idempotent.
func (m *Mux) Remove() {
	for i := len(m.resources) - 1; i >= 0; i-- {
		m.resources[i].Release()
	}
	m.resources = nil
	m.servo = nil
	m.stepper = nil
	debug.Info("Endpoints removed")
}

// Servo returns the servo actuator, or nil before Probe.
func (m *Mux) Servo() *servo.Servo {
	return m.servo
}

// Stepper returns the stepper actuator, or nil before Probe.
func (m *Mux) Stepper() *stepper.Stepper {
	return m.stepper
}

// parsePayload validates and parses an ASCII-decimal write payload.
// A trailing newline is tolerated, a sign is not.
func parsePayload(payload []byte) (int, error) {
	if len(payload) >= maxPayload {
		return 0, fmt.Errorf("%w: payload too long (%d bytes)", ErrInvalidFormat, len(payload))
	}
	s := string(payload)
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, payload)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, payload)
	}
	return v, nil
}

// Write parses payload as an ASCII-decimal integer and applies it to
// the routed actuator: an angle for endpoint 0, a pin level for
// endpoints 1-4. Returns the number of bytes consumed.
func (m *Mux) Write(endpoint int, payload []byte) (int, error) {
	if endpoint < 0 || endpoint >= NumEndpoints {
		return 0, fmt.Errorf("%w: %d", ErrUnknownEndpoint, endpoint)
	}
	if m.servo == nil {
		return 0, ErrNotProbed
	}

	value, err := parsePayload(payload)
	if err != nil {
		return 0, err
	}
	debug.Endpoint("write", endpoint, debug.Fmt("value %d", value))

	if endpoint == 0 {
		if err := m.servo.Write(value); err != nil {
			return 0, err
		}
	} else {
		if err := m.stepper.SetPhase(endpoint-1, value); err != nil {
			return 0, err
		}
	}
	return len(payload), nil
}

// Read returns the routed actuator's full status report.
func (m *Mux) Read(endpoint int) ([]byte, error) {
	if endpoint < 0 || endpoint >= NumEndpoints {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEndpoint, endpoint)
	}
	if m.servo == nil {
		return nil, ErrNotProbed
	}

	var report string
	if endpoint == 0 {
		report = m.servo.Read()
	} else {
		report = m.stepper.Read(endpoint - 1)
	}
	debug.Endpoint("read", endpoint, report[:len(report)-1])
	return []byte(report), nil
}

// Open returns a one-shot reader over the endpoint's status: the first
// Read returns the report, subsequent Reads return io.EOF, mirroring
// the reopen-to-read-again semantics of a device file.
func (m *Mux) Open(endpoint int) (io.Reader, error) {
	data, err := m.Read(endpoint)
	if err != nil {
		return nil, err
	}
	return &oneShotReader{data: data}, nil
}

type oneShotReader struct {
	data []byte
	off  int
}

func (r *oneShotReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

package servo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ymadsen/suntrack/internal/debug"
	"github.com/ymadsen/suntrack/internal/hw/gpio"
	"github.com/ymadsen/suntrack/internal/hw/timing"
)

// ErrOutOfRange is returned for target angles outside [0,180].
var ErrOutOfRange = errors.New("servo: angle out of range (0-180)")

// PWM timing for a standard hobby servo: 500µs pulse = 0°,
// 2500µs pulse = 180°, repeated every 20ms.
const (
	MinAngle = 0
	MaxAngle = 180
	minDuty  = 500 * time.Microsecond
	maxDuty  = 2500 * time.Microsecond
	period   = 20000 * time.Microsecond
)

// Servo drives the tilt servo through a single owned GPIO resource.
// Each Write generates one blocking PWM pulse; the mutex keeps
// concurrent writers from interleaving pulses on the shared pin.
type Servo struct {
	pin   *gpio.Resource
	delay timing.Delay

	mu    sync.Mutex
	angle int
}

// New creates a servo actuator over an acquired pin. If delay is nil a
// busy-wait delay is used (pulse widths need sub-millisecond accuracy).
func New(pin *gpio.Resource, delay timing.Delay) *Servo {
	if delay == nil {
		delay = timing.Busy{}
	}
	return &Servo{pin: pin, delay: delay}
}

// DutyFor returns the pulse width for an angle by linear interpolation
// between minDuty and maxDuty.
func DutyFor(angle int) time.Duration {
	return minDuty + time.Duration(angle)*(maxDuty-minDuty)/MaxAngle
}

// Write moves the servo to angle degrees. The angle is validated
// before any pin activity; the stored angle is updated only after the
// pulse has completed.
func (s *Servo) Write(angle int) error {
	if angle < MinAngle || angle > MaxAngle {
		return fmt.Errorf("%w: got %d", ErrOutOfRange, angle)
	}

	duty := DutyFor(angle)
	debug.Verbose("Servo: angle %d -> duty %v", angle, duty)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pin.Set(gpio.High); err != nil {
		return err
	}
	s.delay.Wait(duty)
	if err := s.pin.Set(gpio.Low); err != nil {
		// Never leave the control line high mid-pulse: retry the park
		// once, best effort.
		_ = s.pin.Set(gpio.Low)
		return err
	}
	s.delay.Wait(period - duty)

	s.angle = angle
	debug.Move("servo", debug.Fmt("moved to %d degrees", angle))
	return nil
}

// Angle returns the last successfully written angle.
func (s *Servo) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// Read returns a human-readable status report. It never fails.
func (s *Servo) Read() string {
	return fmt.Sprintf("Servo angle: %d degrees\n", s.Angle())
}

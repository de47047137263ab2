package stepper

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ymadsen/suntrack/internal/debug"
	"github.com/ymadsen/suntrack/internal/hw/gpio"
	"github.com/ymadsen/suntrack/internal/hw/timing"
)

var (
	// ErrInvalidIndex is returned for phase indexes outside 0-3.
	ErrInvalidIndex = errors.New("stepper: phase index out of range (0-3)")

	// ErrInvalidLevel is returned for pin levels other than 0 or 1.
	ErrInvalidLevel = errors.New("stepper: level must be 0 or 1")
)

// NumPhases is the number of windings on the motor.
const NumPhases = 4

// DefaultStepDelay is the inter-step delay that shapes observable
// motor speed.
const DefaultStepDelay = 2000 * time.Microsecond

// sequence is the 4-phase pattern applied to the windings to produce
// rotation. Row i is applied at step i%4 (clockwise) or 3-(i%4)
// (counter-clockwise).
var sequence = [NumPhases][NumPhases]int{
	{1, 0, 0, 1},
	{1, 1, 0, 0},
	{0, 1, 1, 0},
	{0, 0, 1, 1},
}

// Stepper drives the rotation stepper through four owned GPIO
// resources, one per winding. The mutex serializes concurrent writers
// so phase patterns are never interleaved.
type Stepper struct {
	pins  [NumPhases]*gpio.Resource
	delay timing.Delay
	step  time.Duration

	mu     sync.Mutex
	levels [NumPhases]int
}

// New creates a stepper actuator over four acquired pins (phase order
// 0-3). stepDelay <= 0 selects DefaultStepDelay; a nil delay selects
// time.Sleep based waiting, which is accurate enough at 2ms.
func New(pins [NumPhases]*gpio.Resource, delay timing.Delay, stepDelay time.Duration) *Stepper {
	if delay == nil {
		delay = timing.Sleeper{}
	}
	if stepDelay <= 0 {
		stepDelay = DefaultStepDelay
	}
	return &Stepper{pins: pins, delay: delay, step: stepDelay}
}

// SetPhase writes one winding's pin immediately. Invalid input leaves
// pin state untouched.
func (s *Stepper) SetPhase(index, level int) error {
	if index < 0 || index >= NumPhases {
		return fmt.Errorf("%w: got %d", ErrInvalidIndex, index)
	}
	if level != 0 && level != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPhaseLocked(index, level)
}

func (s *Stepper) setPhaseLocked(index, level int) error {
	lvl := gpio.Low
	if level == 1 {
		lvl = gpio.High
	}
	if err := s.pins[index].Set(lvl); err != nil {
		return err
	}
	s.levels[index] = level
	return nil
}

// Rotate runs the motor for the given number of steps. Whatever
// happens mid-sequence, all four phases are de-energized before
// returning, so the motor never holds current after a move.
func (s *Stepper) Rotate(steps int, clockwise bool) error {
	if steps < 0 {
		return fmt.Errorf("stepper: negative step count %d", steps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.rotateLocked(steps, clockwise)

	for i := 0; i < NumPhases; i++ {
		if resetErr := s.setPhaseLocked(i, 0); resetErr != nil && err == nil {
			err = resetErr
		}
	}

	if err == nil {
		dir := "counter-clockwise"
		if clockwise {
			dir = "clockwise"
		}
		debug.Move("stepper", debug.Fmt("rotated %d steps %s", steps, dir))
	}
	return err
}

func (s *Stepper) rotateLocked(steps int, clockwise bool) error {
	for i := 0; i < steps; i++ {
		row := i % NumPhases
		if !clockwise {
			row = (NumPhases - 1) - row
		}
		for phase, level := range sequence[row] {
			if err := s.setPhaseLocked(phase, level); err != nil {
				return err
			}
		}
		s.delay.Wait(s.step)
	}
	return nil
}

// Level returns the last level written to one phase pin.
func (s *Stepper) Level(index int) (int, error) {
	if index < 0 || index >= NumPhases {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidIndex, index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[index], nil
}

// Levels returns a snapshot of all four phase levels.
func (s *Stepper) Levels() [NumPhases]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels
}

// Read returns a human-readable status report for one phase pin. An
// out-of-range index still produces a report rather than an error.
func (s *Stepper) Read(index int) string {
	level, err := s.Level(index)
	if err != nil {
		return fmt.Sprintf("Stepper pin %d: unknown\n", index+1)
	}
	return fmt.Sprintf("Stepper pin %d: %d\n", index+1, level)
}

package stepper

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ymadsen/suntrack/internal/hw/gpio"
	"github.com/ymadsen/suntrack/internal/hw/timing"
)

// recordingDriver records GPIO calls and can fail after a given number
// of writes to exercise mid-sequence failures.
type recordingDriver struct {
	calls     []gpioCall
	failAfter int // fail the Nth write (1-based); 0 = never
	writes    int
}

type gpioCall struct {
	op    string // "setup", "write"
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.writes++
	if d.failAfter > 0 && d.writes == d.failAfter {
		return fmt.Errorf("write %d refused", d.writes)
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error {
	return nil
}

func (d *recordingDriver) writeCallsForPin(pin int) []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" && c.pin == pin {
			result = append(result, c)
		}
	}
	return result
}

var testPins = [NumPhases]int{22, 23, 24, 25}

func newTestStepper(t *testing.T) (*Stepper, *recordingDriver, *timing.Recorder) {
	t.Helper()
	drv := &recordingDriver{}
	var pins [NumPhases]*gpio.Resource
	for i, pin := range testPins {
		r, err := gpio.Acquire(drv, pin)
		if err != nil {
			t.Fatalf("Acquire pin %d: %v", pin, err)
		}
		t.Cleanup(r.Release)
		pins[i] = r
	}
	rec := &timing.Recorder{}
	s := New(pins, rec, 2*time.Millisecond)
	drv.calls = nil // reset after init
	drv.writes = 0
	return s, drv, rec
}

func TestStepper_SetPhase(t *testing.T) {
	s, drv, _ := newTestStepper(t)

	if err := s.SetPhase(2, 1); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}

	writes := drv.writeCallsForPin(24)
	if len(writes) != 1 || writes[0].level != gpio.High {
		t.Errorf("expected one HIGH write on pin 24, got %v", writes)
	}
	if lvl, _ := s.Level(2); lvl != 1 {
		t.Errorf("Level(2) = %d, want 1", lvl)
	}
}

func TestStepper_SetPhaseInvalidLevel(t *testing.T) {
	s, drv, _ := newTestStepper(t)
	if err := s.SetPhase(1, 1); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}
	drv.calls = nil

	for _, level := range []int{-1, 2, 42} {
		if err := s.SetPhase(1, level); !errors.Is(err, ErrInvalidLevel) {
			t.Errorf("SetPhase(1, %d) error = %v, want ErrInvalidLevel", level, err)
		}
	}

	if len(drv.calls) != 0 {
		t.Errorf("rejected levels should produce no GPIO calls, got %d", len(drv.calls))
	}
	if lvl, _ := s.Level(1); lvl != 1 {
		t.Errorf("Level(1) = %d, prior level should be preserved", lvl)
	}
}

func TestStepper_SetPhaseInvalidIndex(t *testing.T) {
	s, drv, _ := newTestStepper(t)

	for _, index := range []int{-1, 4, 10} {
		if err := s.SetPhase(index, 1); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("SetPhase(%d, 1) error = %v, want ErrInvalidIndex", index, err)
		}
	}
	if len(drv.calls) != 0 {
		t.Errorf("rejected indexes should produce no GPIO calls, got %d", len(drv.calls))
	}
}

func TestStepper_RotateClockwiseSequence(t *testing.T) {
	s, drv, _ := newTestStepper(t)

	if err := s.Rotate(4, true); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// Step i applies sequence row i%4; pin 22 (phase 0) sees
	// 1,1,0,0 over the four steps, then the final reset 0.
	want := []gpio.Level{gpio.High, gpio.High, gpio.Low, gpio.Low, gpio.Low}
	writes := drv.writeCallsForPin(22)
	if len(writes) != len(want) {
		t.Fatalf("pin 22 writes = %d, want %d", len(writes), len(want))
	}
	for i, w := range writes {
		if w.level != want[i] {
			t.Errorf("pin 22 write %d = %v, want %v", i, w.level, want[i])
		}
	}
}

func TestStepper_RotateCounterClockwiseSequence(t *testing.T) {
	s, drv, _ := newTestStepper(t)

	if err := s.Rotate(4, false); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// Counter-clockwise applies rows 3,2,1,0; pin 22 (phase 0) sees
	// 0,0,1,1 then the final reset 0.
	want := []gpio.Level{gpio.Low, gpio.Low, gpio.High, gpio.High, gpio.Low}
	writes := drv.writeCallsForPin(22)
	if len(writes) != len(want) {
		t.Fatalf("pin 22 writes = %d, want %d", len(writes), len(want))
	}
	for i, w := range writes {
		if w.level != want[i] {
			t.Errorf("pin 22 write %d = %v, want %v", i, w.level, want[i])
		}
	}
}

func TestStepper_RotateDeEnergizes(t *testing.T) {
	s, _, _ := newTestStepper(t)

	for _, steps := range []int{1, 3, 7, 50} {
		if err := s.Rotate(steps, true); err != nil {
			t.Fatalf("Rotate(%d): %v", steps, err)
		}
		if levels := s.Levels(); levels != ([NumPhases]int{}) {
			t.Errorf("after Rotate(%d) all phases should be 0, got %v", steps, levels)
		}
	}
}

func TestStepper_RotateDeEnergizesOnFailure(t *testing.T) {
	drv := &recordingDriver{}
	var pins [NumPhases]*gpio.Resource
	for i, pin := range testPins {
		r, err := gpio.Acquire(drv, pin)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer r.Release()
		pins[i] = r
	}
	s := New(pins, &timing.Recorder{}, time.Millisecond)
	drv.writes = 0
	drv.failAfter = 6 // fail mid second step

	if err := s.Rotate(4, true); err == nil {
		t.Fatal("expected error from failing driver")
	}
	if levels := s.Levels(); levels != ([NumPhases]int{}) {
		t.Errorf("phases must be de-energized even after a failed step, got %v", levels)
	}
}

func TestStepper_RotateZeroSteps(t *testing.T) {
	s, drv, rec := newTestStepper(t)

	if err := s.Rotate(0, true); err != nil {
		t.Fatalf("Rotate(0): %v", err)
	}

	// Only the guaranteed final reset, no delays.
	if got := len(drv.calls); got != NumPhases {
		t.Errorf("Rotate(0) should only write the 4 reset levels, got %d calls", got)
	}
	if len(rec.Waits) != 0 {
		t.Errorf("Rotate(0) should not wait, recorded %v", rec.Waits)
	}
}

func TestStepper_RotateNegativeSteps(t *testing.T) {
	s, _, _ := newTestStepper(t)
	if err := s.Rotate(-1, true); err == nil {
		t.Error("negative step count should be rejected")
	}
}

func TestStepper_RotateStepDelay(t *testing.T) {
	s, _, rec := newTestStepper(t)

	if err := s.Rotate(3, true); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if len(rec.Waits) != 3 {
		t.Fatalf("3 steps should record 3 waits, got %d", len(rec.Waits))
	}
	for i, d := range rec.Waits {
		if d != 2*time.Millisecond {
			t.Errorf("wait %d = %v, want 2ms", i, d)
		}
	}
}

func TestStepper_DefaultStepDelay(t *testing.T) {
	drv := &recordingDriver{}
	var pins [NumPhases]*gpio.Resource
	for i, pin := range [NumPhases]int{5, 6, 7, 8} {
		r, err := gpio.Acquire(drv, pin)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer r.Release()
		pins[i] = r
	}
	s := New(pins, &timing.Recorder{}, 0)
	if s.step != DefaultStepDelay {
		t.Errorf("default step delay = %v, want %v", s.step, DefaultStepDelay)
	}
}

func TestStepper_ReadFormat(t *testing.T) {
	s, _, _ := newTestStepper(t)
	if err := s.SetPhase(0, 1); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}

	if got := s.Read(0); got != "Stepper pin 1: 1\n" {
		t.Errorf("Read(0) = %q", got)
	}
	if got := s.Read(3); got != "Stepper pin 4: 0\n" {
		t.Errorf("Read(3) = %q", got)
	}
}

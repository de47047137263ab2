// Package track runs the control loop: poll the command channel, map
// each decoded sun direction to one servo move or one stepper
// rotation.
package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ymadsen/suntrack/internal/command"
	"github.com/ymadsen/suntrack/internal/debug"
	"github.com/ymadsen/suntrack/internal/hw/servo"
	"github.com/ymadsen/suntrack/internal/hw/stepper"
)

// Params tunes the loop. Zero values select the defaults used on the
// tracker rig.
type Params struct {
	PollInterval time.Duration // delay between read attempts (default 100ms)
	StepperSteps int           // steps per Left/Right command (default 50)
	UpAngle      int           // servo angle for Op (default 90)
	DownAngle    int           // servo angle for Ned (default 45)
}

func (p *Params) setDefaults() {
	if p.PollInterval <= 0 {
		p.PollInterval = 100 * time.Millisecond
	}
	if p.StepperSteps <= 0 {
		p.StepperSteps = 50
	}
	if p.UpAngle <= 0 {
		p.UpAngle = 90
	}
	if p.DownAngle <= 0 {
		p.DownAngle = 45
	}
}

// Loop orchestrates the command channel and the two actuators.
type Loop struct {
	servo   *servo.Servo
	stepper *stepper.Stepper
	channel *command.Channel
	params  Params

	mu       sync.Mutex
	lastDir  command.Direction
	seen     int
	actuated int
}

// New creates a control loop over probed actuators and an open
// channel.
func New(sv *servo.Servo, st *stepper.Stepper, ch *command.Channel, params Params) *Loop {
	params.setDefaults()
	return &Loop{servo: sv, stepper: st, channel: ch, params: params}
}

// Run polls the channel until ctx is cancelled or the stream ends.
// Actuation failures are logged and never stop the loop: one bad
// command must not block the ones after it.
func (l *Loop) Run(ctx context.Context) error {
	debug.Info("Control loop started (poll %v, %d steps per rotation)",
		l.params.PollInterval, l.params.StepperSteps)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		dir, ok, err := l.channel.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				debug.Info("Command stream ended")
				return nil
			}
			return fmt.Errorf("read command channel: %w", err)
		}
		if ok {
			if err := l.dispatch(dir); err != nil {
				debug.Error(fmt.Errorf("actuate %s: %w", dir, err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.params.PollInterval):
		}
	}
}

// RunOnce processes lines until one actuable direction has been
// handled, then returns. Used by the -once smoke-test flag.
func (l *Loop) RunOnce(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir, ok, err := l.channel.Next()
		if err != nil {
			return err
		}
		if !ok || dir == command.Unknown {
			continue
		}
		return l.dispatch(dir)
	}
}

func (l *Loop) dispatch(dir command.Direction) error {
	l.mu.Lock()
	l.lastDir = dir
	l.seen++
	l.mu.Unlock()

	var err error
	switch dir {
	case command.Left:
		err = l.stepper.Rotate(l.params.StepperSteps, false)
	case command.Right:
		err = l.stepper.Rotate(l.params.StepperSteps, true)
	case command.Up:
		err = l.servo.Write(l.params.UpAngle)
	case command.Down:
		err = l.servo.Write(l.params.DownAngle)
	case command.Unknown:
		debug.Verbose("Unknown direction, no movement")
		return nil
	}

	if err == nil {
		l.mu.Lock()
		l.actuated++
		l.mu.Unlock()
	}
	return err
}

// Status is a snapshot of the loop's progress, for diagnostics.
type Status struct {
	LastDirection string
	CommandsSeen  int
	Actuated      int
}

// Status returns a consistent snapshot of the loop counters.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	last := ""
	if l.seen > 0 {
		last = l.lastDir.String()
	}
	return Status{LastDirection: last, CommandsSeen: l.seen, Actuated: l.actuated}
}

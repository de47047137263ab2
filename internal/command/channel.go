// Package command reads the line-oriented serial protocol spoken by
// the sensing unit and decodes it into direction commands.
package command

import (
	"bufio"
	"io"

	"go.bug.st/serial"

	"github.com/ymadsen/suntrack/internal/debug"
)

// maxLine bounds one serial line, matching the original 256-byte read
// buffer. Valid commands are under 50 bytes; anything longer is noise.
const maxLine = 256

// Channel consumes newline-terminated lines from a serial stream and
// decodes them one at a time. Lines longer than maxLine are discarded
// as noise rather than surfaced as errors: a noisy line must never
// stop the commands after it from being read.
type Channel struct {
	r      *bufio.Reader
	closer io.Closer
}

// NewChannel wraps any line source, typically an open serial port. In
// tests a strings.Reader or a mock port works the same way.
func NewChannel(r io.Reader) *Channel {
	ch := &Channel{r: bufio.NewReaderSize(r, maxLine)}
	if c, ok := r.(io.Closer); ok {
		ch.closer = c
	}
	return ch
}

// Open opens the real serial port to the sensing unit (8N1) and
// returns a channel over it.
func Open(path string, baudRate int) (*Channel, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	debug.Info("Serial port %s open at %d baud", path, baudRate)
	return NewChannel(port), nil
}

// Next consumes one line and decodes it. ok is false when the line
// carries no direction token; the caller skips such lines. io.EOF is
// returned when the stream ends.
func (c *Channel) Next() (Direction, bool, error) {
	data, err := c.r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Over-long line: consume the rest of it and report no token.
		for err == bufio.ErrBufferFull {
			_, err = c.r.ReadSlice('\n')
		}
		if err != nil && err != io.EOF {
			return Unknown, false, err
		}
		debug.Verbose("Skipping over-long line (noise)")
		return Unknown, false, nil
	}
	if err != nil && (err != io.EOF || len(data) == 0) {
		return Unknown, false, err
	}

	line := string(data)
	dir, ok := Decode(line)
	if ok {
		debug.Direction(dir.String())
	} else {
		debug.Verbose("Skipping line without direction token: %q", line)
	}
	return dir, ok, nil
}

// Close closes the underlying port if it is closable.
func (c *Channel) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

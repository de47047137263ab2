package command

import "strings"

// Direction is one decoded movement command from the sensing unit.
type Direction int

const (
	Unknown Direction = iota
	Left
	Right
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "Left"
	case Right:
		return "Right"
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Unknown"
	}
}

// linePrefix frames every direction command on the serial line.
const linePrefix = "SUN_DIR:"

// maxToken bounds the direction token, matching the sensing unit's
// 31-byte field.
const maxToken = 31

// tokens maps the Danish direction words sent by the sensing unit.
// "Hojre" is the ASCII spelling adopted for the protocol; the UTF-8
// "Højre" is still accepted for senders that have not been updated.
var tokens = map[string]Direction{
	"Venstre": Left,
	"Hojre":   Right,
	"Højre":   Right,
	"Op":      Up,
	"Ned":     Down,
}

// Decode parses one serial line. It trims trailing CR/LF, requires the
// SUN_DIR: prefix and a token of at most 31 bytes without embedded
// whitespace. ok is false for lines that carry no token at all (wrong
// prefix, empty, over-length or malformed token); a well-framed but
// unrecognized token decodes as Unknown with ok true.
func Decode(line string) (Direction, bool) {
	line = strings.TrimRight(line, "\r\n")

	token, found := strings.CutPrefix(line, linePrefix)
	if !found {
		return Unknown, false
	}
	if token == "" || len(token) > maxToken {
		return Unknown, false
	}
	if strings.ContainsAny(token, " \t") {
		return Unknown, false
	}

	return tokens[token], true
}

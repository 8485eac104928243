package main

import (
	"errors"
	"fmt"
)

const (
	// StopCommand tells the micro:bit to stop acting on earlier colors.
	StopCommand = "stop"

	// wireLen is the length of an encoded color without the line terminator.
	wireLen = 12
)

// ErrMalformedPayload is returned by DecodeWire for anything that is not R###G###B###.
var ErrMalformedPayload = errors.New("malformed color payload")

// Payload is an encoded color sample.
type Payload struct {
	Display string // "R### G### B###"
	Wire    string // "R###G###B###"
}

// Encode formats c for display and for the wire. Each channel is zero-padded
// to three digits.
func Encode(c RGB) Payload {
	return Payload{
		Display: fmt.Sprintf("R%03d G%03d B%03d", c.R, c.G, c.B),
		Wire:    fmt.Sprintf("R%03dG%03dB%03d", c.R, c.G, c.B),
	}
}

// DecodeWire parses a wire-form payload. A trailing newline is accepted.
func DecodeWire(s string) (RGB, error) {
	if len(s) == wireLen+1 && s[wireLen] == '\n' {
		s = s[:wireLen]
	}
	if len(s) != wireLen || s[0] != 'R' || s[4] != 'G' || s[8] != 'B' {
		return RGB{}, fmt.Errorf("%w: %q", ErrMalformedPayload, s)
	}

	var vals [3]uint8
	for i := range vals {
		v, err := parseChannel(s[1+4*i : 4+4*i])
		if err != nil {
			return RGB{}, fmt.Errorf("%w: %q", ErrMalformedPayload, s)
		}
		vals[i] = v
	}
	return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}

func parseChannel(digits string) (uint8, error) {
	n := 0
	for i := 0; i < len(digits); i++ {
		d := digits[i]
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("non-digit %q", d)
		}
		n = n*10 + int(d-'0')
	}
	if n > 255 {
		return 0, fmt.Errorf("channel value %d out of range", n)
	}
	return uint8(n), nil
}

package packet

import (
	"bytes"
	"strconv"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
)

// Unit is one bounded slice of a file, tagged with its position.
// Units are never mutated after creation.
type Unit struct {
	Sequence uint32
	Length   uint32
	Payload  []byte
}

// NewUnit builds a unit whose length is taken from the payload.
func NewUnit(sequence uint32, payload []byte) Unit {
	return Unit{
		Sequence: sequence,
		Length:   uint32(len(payload)),
		Payload:  payload,
	}
}

// Encode renders u as "<sequence>|<length>{<payload>}".
func Encode(u Unit) []byte {
	buf := make([]byte, 0, len(u.Payload)+24)
	buf = strconv.AppendUint(buf, uint64(u.Sequence), 10)
	buf = append(buf, '|')
	buf = strconv.AppendUint(buf, uint64(u.Length), 10)
	buf = append(buf, '{')
	buf = append(buf, u.Payload...)
	buf = append(buf, '}')
	return buf
}

// Decode parses a frame produced by Encode. Delimiters are located strictly
// left to right and exactly Length payload bytes are consumed before the
// closing brace is checked, so payloads may contain '|', '{' and '}'.
// The returned payload aliases frame. Bytes after the closer are ignored.
func Decode(frame []byte) (Unit, error) {
	bar := bytes.IndexByte(frame, '|')
	if bar < 0 {
		return Unit{}, serrors.WrapStr("missing sequence delimiter", shared.ErrMalformedFrame)
	}
	sequence, err := parseField(frame[:bar])
	if err != nil {
		return Unit{}, serrors.WrapStr("invalid sequence", shared.ErrMalformedFrame,
			"field", string(frame[:bar]))
	}

	rest := frame[bar+1:]
	brace := bytes.IndexByte(rest, '{')
	if brace < 0 {
		return Unit{}, serrors.WrapStr("missing payload delimiter", shared.ErrMalformedFrame)
	}
	length, err := parseField(rest[:brace])
	if err != nil {
		return Unit{}, serrors.WrapStr("invalid length", shared.ErrMalformedFrame,
			"field", string(rest[:brace]))
	}

	start := bar + 1 + brace + 1
	end := start + int(length)
	if len(frame) < end {
		return Unit{}, serrors.WrapStr("payload shorter than length", shared.ErrMalformedFrame,
			"length", length, "available", len(frame)-start)
	}
	if len(frame) == end || frame[end] != '}' {
		return Unit{}, serrors.WrapStr("missing closing delimiter", shared.ErrMalformedFrame,
			"offset", end)
	}

	return Unit{
		Sequence: sequence,
		Length:   length,
		Payload:  frame[start:end],
	}, nil
}

func parseField(field []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(field), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

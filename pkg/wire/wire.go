// Package wire implements the small frame format the measurement client
// and echo responder exchange over a SOCKS-tunneled TCP connection.
// Frames carry no length prefix: Decode treats its whole input as one
// frame. The format is a hand-rolled varint+field-tag encoding
// in the spirit of the protobuf wire format the original tool used,
// without depending on generated protobuf code: every frame fits two
// fields, so a tiny purpose-built codec is clearer than a .proto file
// and a code generation step for a message this small.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/iowaguy/ting-go/pkg/tingerr"
)

// FrameType is the closed set of message kinds exchanged on the wire.
type FrameType uint8

const (
	// Ting is both the probe request and its echoed reply.
	Ting FrameType = 0
	// Close tells the responder the client is done with the connection.
	Close FrameType = 1
)

// String renders the frame type for logs.
func (t FrameType) String() string {
	switch t {
	case Ting:
		return "TING"
	case Close:
		return "CLOSE"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

// MaxFrameSize is the contractual upper bound on an encoded frame.
const MaxFrameSize = 64

const (
	tagPtype   = 1
	tagTimeSec = 2

	wireVarint = 0
	wireFixed64 = 1
)

// Frame is the decoded form of a wire message: a type tag and, for TING
// frames, a wall-clock time in seconds since the Unix epoch.
type Frame struct {
	Ptype   FrameType
	TimeSec float64
	// hasTime distinguishes a CLOSE frame (no time field) from a TING
	// frame reporting exactly zero seconds.
	hasTime bool
}

// NewTing builds a TING frame carrying the given wall-clock time.
func NewTing(timeSec float64) Frame {
	return Frame{Ptype: Ting, TimeSec: timeSec, hasTime: true}
}

// NewClose builds a CLOSE frame.
func NewClose() Frame {
	return Frame{Ptype: Close}
}

// HasTime reports whether the frame carries a time_sec field.
func (f Frame) HasTime() bool {
	return f.hasTime
}

// Encode serializes f as a varint+tag message no larger than
// MaxFrameSize bytes. The output has no length prefix.
func Encode(f Frame) []byte {
	buf := make([]byte, 0, MaxFrameSize)

	buf = appendTag(buf, tagPtype, wireVarint)
	buf = appendVarint(buf, uint64(f.Ptype))

	if f.hasTime {
		buf = appendTag(buf, tagTimeSec, wireFixed64)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f.TimeSec))
		buf = append(buf, b[:]...)
	}

	return buf
}

// Decode parses bytes produced by Encode. It recovers Ptype even when
// time_sec is absent, and reports tingerr.DecodeError on malformed input.
func Decode(b []byte) (Frame, error) {
	var f Frame
	sawPtype := false

	for len(b) > 0 {
		field, wireType, rest, err := readTag(b)
		if err != nil {
			return Frame{}, tingerr.DecodeErrorError("failed to read field tag", err)
		}
		b = rest

		switch {
		case field == tagPtype && wireType == wireVarint:
			v, rest, err := readVarint(b)
			if err != nil {
				return Frame{}, tingerr.DecodeErrorError("failed to read ptype", err)
			}
			f.Ptype = FrameType(v)
			sawPtype = true
			b = rest

		case field == tagTimeSec && wireType == wireFixed64:
			if len(b) < 8 {
				return Frame{}, tingerr.DecodeErrorError("truncated time_sec field", nil)
			}
			f.TimeSec = math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))
			f.hasTime = true
			b = b[8:]

		default:
			return Frame{}, tingerr.DecodeErrorError(fmt.Sprintf("unknown field %d/%d", field, wireType), nil)
		}
	}

	if !sawPtype {
		return Frame{}, tingerr.DecodeErrorError("frame missing ptype field", nil)
	}
	if f.Ptype != Ting && f.Ptype != Close {
		return Frame{}, tingerr.DecodeErrorError(fmt.Sprintf("invalid ptype %d", f.Ptype), nil)
	}

	return f, nil
}

func appendTag(buf []byte, field, wireType int) []byte {
	return appendVarint(buf, uint64(field<<3|wireType))
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readTag(b []byte) (field, wireType int, rest []byte, err error) {
	v, rest, err := readVarint(b)
	if err != nil {
		return 0, 0, nil, err
	}
	return int(v >> 3), int(v & 0x7), rest, nil
}

func readVarint(b []byte) (uint64, []byte, error) {
	var v uint64
	var shift uint
	for i, byt := range b {
		if i > 9 {
			return 0, nil, fmt.Errorf("varint too long")
		}
		v |= uint64(byt&0x7f) << shift
		if byt&0x80 == 0 {
			return v, b[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, fmt.Errorf("truncated varint")
}

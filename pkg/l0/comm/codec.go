package comm

import (
	"fmt"
	"io"
)

// LengthClass is selected by the two high bits of a header.
type LengthClass byte

// Length classes.
const (
	ClassZero LengthClass = iota
	ClassFixed1
	ClassFixed2
	ClassVariable
)

const (
	// ClassMask selects the length class bits of a header.
	ClassMask byte = 0xc0
	// ErrorMask selects the error flag bits of a header.
	ErrorMask byte = 0x30
	// MaxPayload is the largest payload of a variable length frame.
	MaxPayload = 0xff
)

// Classify gets the length class of a header.
func Classify(header byte) LengthClass {
	return LengthClass((header & ClassMask) >> 6)
}

// HasError checks the error flag of a header.
func HasError(header byte) bool {
	return header&ErrorMask == ErrorMask
}

// Size returns the payload size of fixed classes, -1 for ClassVariable.
func (c LengthClass) Size() int {
	if c == ClassVariable {
		return -1
	}
	return int(c)
}

// Capacity returns the max payload size.
func (c LengthClass) Capacity() int {
	if c == ClassVariable {
		return MaxPayload
	}
	return int(c)
}

func (c LengthClass) String() string {
	switch c {
	case ClassZero:
		return "zero"
	case ClassFixed1:
		return "fixed(1)"
	case ClassFixed2:
		return "fixed(2)"
	default:
		return "variable"
	}
}

// Frame is a decoded frame.
type Frame struct {
	Code    byte
	Class   LengthClass
	Payload []byte
}

// HasError checks the error flag.
func (f *Frame) HasError() bool {
	return HasError(f.Code)
}

func (f *Frame) String() string {
	return fmt.Sprintf("0x%02x/%s[%d]", f.Code, f.Class, len(f.Payload))
}

// Decode reads exactly one frame from r. Payload is nil when the frame
// carries no data, including a variable length frame of length 0.
func Decode(r io.Reader) (*Frame, error) {
	var head [1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	frame := &Frame{Code: head[0], Class: Classify(head[0])}
	size := frame.Class.Size()
	if size < 0 {
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, err
		}
		size = int(head[0])
	}
	if size > 0 {
		frame.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, frame.Payload); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// Validate checks whether payload fits the length class of code.
func Validate(code byte, payload []byte) error {
	class := Classify(code)
	if max := class.Capacity(); len(payload) > max {
		return &PayloadTooLargeError{Code: code, Size: len(payload), Max: max}
	}
	if want := class.Size(); want > 0 && len(payload) < want {
		return &PayloadLengthError{Code: code, Size: len(payload), Want: want}
	}
	return nil
}

// AppendFrame appends the encoded frame to dst.
func AppendFrame(dst []byte, code byte, payload []byte) ([]byte, error) {
	if err := Validate(code, payload); err != nil {
		return dst, err
	}
	dst = append(dst, code)
	if Classify(code) == ClassVariable {
		dst = append(dst, byte(len(payload)))
	}
	return append(dst, payload...), nil
}

// Encode encodes a frame.
func Encode(code byte, payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, len(payload)+2), code, payload)
}

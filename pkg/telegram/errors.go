package telegram

import (
	"bytes"
	"errors"
	"fmt"
)

type Kind uint8

const (
	// Incomplete means the buffer does not hold a full frame yet.
	Incomplete Kind = iota + 1
	ChecksumMismatch
	MalformedField
	// UnknownFrameType is a well formed sentence this decoder does not handle.
	UnknownFrameType
)

var (
	ErrIncomplete       = errors.New("incomplete telegram")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrMalformedField   = errors.New("malformed field")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

func (k Kind) String() string {
	switch k {
	case Incomplete:
		return "incomplete"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case MalformedField:
		return "malformed_field"
	case UnknownFrameType:
		return "unknown_frame_type"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) sentinel() error {
	switch k {
	case Incomplete:
		return ErrIncomplete
	case ChecksumMismatch:
		return ErrChecksumMismatch
	case MalformedField:
		return ErrMalformedField
	case UnknownFrameType:
		return ErrUnknownFrameType
	}
	return nil
}

// DecodeError carries a copy of the offending bytes for diagnostics.
type DecodeError struct {
	Kind   Kind
	Frame  []byte
	Detail string
}

func newError(kind Kind, frame []byte, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Kind:   kind,
		Frame:  bytes.Clone(frame),
		Detail: fmt.Sprintf(format, args...),
	}
}

func (e *DecodeError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Frame) > 0 {
		msg += fmt.Sprintf(" (frame %q)", e.Frame)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Kind.sentinel()
}

// KindOf returns the decode error kind of err, or 0 when err is not a DecodeError.
func KindOf(err error) Kind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrStalled indicates no start marker was found within the skip budget.
	ErrStalled = errors.New("stream stalled")
	// ErrFramingStorm indicates too many consecutive framing errors, usually
	// caused by a channel count mismatch with the board.
	ErrFramingStorm = errors.New("too many framing errors")
	// ErrSequence indicates a packet id gap in strict sequencing mode.
	ErrSequence = errors.New("packet sequence gap")
	// ErrInvalidChannel indicates a channel number out of range.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrUnknownCommand indicates the command name is unknown.
	ErrUnknownCommand = errors.New("unknown command")
)

// FramingError reports an unexpected terminator byte.
type FramingError struct {
	Expected byte
	Actual   byte
	PacketID uint8
}

// Error implements error.
func (e *FramingError) Error() string {
	return fmt.Sprintf("unexpected end byte 0x%02x instead of 0x%02x, discarded packet %d",
		e.Actual, e.Expected, e.PacketID)
}

// StallError reports an exhausted skip budget.
type StallError struct {
	// Skipped is the number of non-marker bytes discarded.
	Skipped int
	// Starved is the number of reads which returned no data.
	Starved int
}

// Error implements error.
func (e *StallError) Error() string {
	return fmt.Sprintf("stream stalled: skipped %d bytes, %d empty reads", e.Skipped, e.Starved)
}

// Unwrap returns ErrStalled.
func (e *StallError) Unwrap() error {
	return ErrStalled
}

// FramingStormError is returned when consecutive framing errors exceed the limit.
type FramingStormError struct {
	Count int
	Last  *FramingError
}

// Error implements error.
func (e *FramingStormError) Error() string {
	return fmt.Sprintf("%d consecutive framing errors, last: %v", e.Count, e.Last)
}

// Unwrap returns ErrFramingStorm.
func (e *FramingStormError) Unwrap() error {
	return ErrFramingStorm
}

// SequenceError reports a packet id which doesn't follow the previous one.
// The decoded Sample is still valid and carried along.
type SequenceError struct {
	Expected uint8
	Actual   uint8
	Sample   *Sample
}

// Error implements error.
func (e *SequenceError) Error() string {
	return fmt.Sprintf("expect packet %d, got %d", e.Expected, e.Actual)
}

// Unwrap returns ErrSequence.
func (e *SequenceError) Unwrap() error {
	return ErrSequence
}

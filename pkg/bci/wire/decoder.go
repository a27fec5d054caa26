package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/glog"
)

// DefaultSkipBudget is the default number of bytes a start marker search
// may discard before the stream is considered stalled.
const DefaultSkipBudget = 3000

// SampleHandler is called when a sample is decoded.
type SampleHandler interface {
	HandleSample(context.Context, *Sample) error
}

// HandleSampleFunc is func type of SampleHandler.
type HandleSampleFunc func(context.Context, *Sample) error

// HandleSample implements SampleHandler.
func (f HandleSampleFunc) HandleSample(ctx context.Context, s *Sample) error {
	return f(ctx, s)
}

// StallHandler decides what to do when the skip budget is exhausted.
// Returning nil resumes the search with a fresh budget, otherwise the
// error is returned from Decoder.Next.
type StallHandler interface {
	HandleStall(context.Context, *StallError) error
}

// HandleStallFunc is func type of StallHandler.
type HandleStallFunc func(context.Context, *StallError) error

// HandleStall implements StallHandler.
func (f HandleStallFunc) HandleStall(ctx context.Context, e *StallError) error {
	return f(ctx, e)
}

// FramingNotifier is called when a frame is discarded.
type FramingNotifier interface {
	FramingError(context.Context, *FramingError)
}

// FramingErrorFunc is func type of FramingNotifier.
type FramingErrorFunc func(context.Context, *FramingError)

// FramingError implements FramingNotifier.
func (f FramingErrorFunc) FramingError(ctx context.Context, e *FramingError) {
	f(ctx, e)
}

// SequenceMode selects how packet id gaps are treated.
type SequenceMode int

const (
	// SequenceIgnore doesn't check packet ids.
	SequenceIgnore SequenceMode = iota
	// SequenceWarn logs and counts gaps.
	SequenceWarn
	// SequenceStrict returns a SequenceError on gaps.
	SequenceStrict
)

// ParseSequenceMode parses the textual form used in configuration.
func ParseSequenceMode(s string) (SequenceMode, error) {
	switch s {
	case "", "ignore":
		return SequenceIgnore, nil
	case "warn":
		return SequenceWarn, nil
	case "strict":
		return SequenceStrict, nil
	}
	return SequenceIgnore, fmt.Errorf("unknown sequence mode %q", s)
}

// Stats are counters accumulated by a Decoder.
type Stats struct {
	Samples       uint64
	FramingErrors uint64
	SkippedBytes  uint64
	StarvedReads  uint64
	Stalls        uint64
	SequenceGaps  uint64
}

// Decoder reads frames from a byte source.
//
// A Read returning no data, or a timeout error, is treated as starvation
// and retried. Any other read error is fatal.
type Decoder struct {
	Source           io.Reader
	SkipBudget       int
	StallHandler     StallHandler
	Notifier         FramingNotifier
	Sequence         SequenceMode
	MaxFramingErrors int // 0 for unlimited

	parser     *Parser
	buf        [1]byte
	prevID     uint8
	hasPrev    bool
	framingRun int

	stats     Stats
	statsLock sync.Mutex
}

// NewDecoder creates a Decoder. A nil parser uses the default channel
// count and scale factor.
func NewDecoder(src io.Reader, p *Parser) *Decoder {
	if p == nil {
		p = NewParser(DefaultChannelCount, DefaultScaleFactor)
	}
	return &Decoder{
		Source:     src,
		SkipBudget: DefaultSkipBudget,
		parser:     p,
	}
}

// Parser gets the underlying parser.
func (d *Decoder) Parser() *Parser {
	return d.parser
}

// Reset discards any partial frame and sequence tracking.
func (d *Decoder) Reset() {
	d.parser.Reset()
	d.hasPrev = false
	d.framingRun = 0
}

// Stats returns a snapshot of counters.
func (d *Decoder) Stats() Stats {
	d.statsLock.Lock()
	defer d.statsLock.Unlock()
	return d.stats
}

// Next blocks until one sample is decoded.
func (d *Decoder) Next(ctx context.Context) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	budget := d.SkipBudget
	if budget <= 0 {
		budget = DefaultSkipBudget
	}
	var stall StallError
	skipped := 0
	for {
		n, err := d.Source.Read(d.buf[:])
		if n == 0 {
			if err != nil && !IsStarved(err) {
				d.parser.Reset()
				return nil, fmt.Errorf("read source: %w", err)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !d.parser.Searching() {
				continue
			}
			stall.Starved++
			d.count(func(s *Stats) { s.StarvedReads++ })
		} else {
			pr := d.parser.Parse(d.buf[0])
			switch {
			case pr.Skipped:
				stall.Skipped++
				skipped++
				d.count(func(s *Stats) { s.SkippedBytes++ })
			case pr.Framing != nil:
				if err := d.framingError(ctx, pr.Framing); err != nil {
					return nil, err
				}
				continue
			case pr.Sample != nil:
				return d.emit(pr.Sample)
			default:
				if skipped > 0 {
					glog.Warningf("skipped %d bytes before start found", skipped)
					skipped = 0
				}
				continue
			}
		}
		if stall.Skipped+stall.Starved <= budget {
			continue
		}
		d.count(func(s *Stats) { s.Stalls++ })
		stallErr := &StallError{Skipped: stall.Skipped, Starved: stall.Starved}
		h := d.StallHandler
		if h == nil {
			return nil, stallErr
		}
		if err := h.HandleStall(ctx, stallErr); err != nil {
			return nil, err
		}
		stall, skipped = StallError{}, 0
	}
}

// Run decodes samples until an error occurs.
func (d *Decoder) Run(ctx context.Context, h SampleHandler) error {
	for {
		s, err := d.Next(ctx)
		if err != nil {
			return err
		}
		if err = h.HandleSample(ctx, s); err != nil {
			return err
		}
	}
}

func (d *Decoder) emit(s *Sample) (*Sample, error) {
	d.framingRun = 0
	d.count(func(st *Stats) { st.Samples++ })
	expected, checked := d.prevID+1, d.hasPrev && d.Sequence != SequenceIgnore
	d.prevID, d.hasPrev = s.PacketID, true
	if !checked || s.PacketID == expected {
		return s, nil
	}
	d.count(func(st *Stats) { st.SequenceGaps++ })
	if d.Sequence == SequenceStrict {
		return nil, &SequenceError{Expected: expected, Actual: s.PacketID, Sample: s}
	}
	glog.Warningf("packet id gap: expect %d, got %d", expected, s.PacketID)
	return s, nil
}

func (d *Decoder) framingError(ctx context.Context, e *FramingError) error {
	d.count(func(s *Stats) { s.FramingErrors++ })
	glog.Warningf("%v", e)
	if n := d.Notifier; n != nil {
		n.FramingError(ctx, e)
	}
	d.framingRun++
	if d.MaxFramingErrors > 0 && d.framingRun > d.MaxFramingErrors {
		count := d.framingRun
		d.framingRun = 0
		return &FramingStormError{Count: count, Last: e}
	}
	return nil
}

func (d *Decoder) count(fn func(*Stats)) {
	d.statsLock.Lock()
	fn(&d.stats)
	d.statsLock.Unlock()
}

// IsStarved reports whether a read error only means no data was available
// in time, which is the case for serial ports with a read timeout.
func IsStarved(err error) bool {
	return os.IsTimeout(err) || errors.Is(err, io.ErrNoProgress)
}

package board

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/glog"

	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

const (
	// DefaultReadyMarker is printed by the firmware once it accepts commands.
	DefaultReadyMarker = "begin streaming data"
	// DefaultRegisterLines is the number of lines in a register dump.
	DefaultRegisterLines = 24
)

var (
	// ErrNoPort indicates no serial port looks like a board.
	ErrNoPort = errors.New("board port not found")
	// ErrNotStreaming indicates samples are requested before Start.
	ErrNotStreaming = errors.New("not streaming")
	// ErrStreaming indicates a text exchange is requested while streaming.
	ErrStreaming = errors.New("streaming in progress")
)

// Board manages the connection to an OpenBCI board.
//
// Handshake lines and binary frames are read through the same buffered
// reader. Commands sent while streaming are queued and written between
// frames.
type Board struct {
	ReadyMarker   string
	RegisterLines int
	DrainOnStart  bool
	// MaxStalls is the number of consecutive stalls tolerated, 0 for unlimited.
	MaxStalls    int
	StallBackOff backoff.BackOff

	port    io.ReadWriteCloser
	reader  *bufio.Reader
	decoder *wire.Decoder

	lock      sync.Mutex
	streaming bool
	pending   []wire.Command
	stalls    int
}

// New creates a Board over an opened port. A nil parser uses the
// default channel count and scale factor.
func New(port io.ReadWriteCloser, p *wire.Parser) *Board {
	b := &Board{
		ReadyMarker:   DefaultReadyMarker,
		RegisterLines: DefaultRegisterLines,
		DrainOnStart:  true,
		StallBackOff:  NewStallBackOff(100*time.Millisecond, 5*time.Second),
		port:          port,
		reader:        bufio.NewReader(port),
	}
	b.decoder = wire.NewDecoder(b.reader, p)
	b.decoder.StallHandler = wire.HandleStallFunc(b.handleStall)
	return b
}

// NewStallBackOff creates the pause schedule used between restart attempts.
func NewStallBackOff(initial, maxPause time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if maxPause < initial {
		maxPause = initial
	}
	bo.InitialInterval = initial
	bo.MaxInterval = maxPause
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Decoder gets the frame decoder.
func (b *Board) Decoder() *wire.Decoder {
	return b.decoder
}

// Streaming reports whether the board was asked to stream.
func (b *Board) Streaming() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.streaming
}

// WaitReady discards the boot banner until the ready marker shows up.
func (b *Board) WaitReady(ctx context.Context) error {
	for {
		line, err := b.readLine(ctx)
		if err != nil {
			return fmt.Errorf("wait ready: %w", err)
		}
		glog.V(2).Infof("board: %s", line)
		if strings.Contains(line, b.ReadyMarker) {
			return nil
		}
	}
}

// RegisterSettings requests the register dump and returns its lines.
func (b *Board) RegisterSettings(ctx context.Context) ([]string, error) {
	b.lock.Lock()
	if b.streaming {
		b.lock.Unlock()
		return nil, ErrStreaming
	}
	err := b.write(wire.CmdRegisterDump)
	b.lock.Unlock()
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, b.RegisterLines)
	for len(lines) < b.RegisterLines {
		line, err := b.readLine(ctx)
		if err != nil {
			return lines, fmt.Errorf("read registers: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Start asks the board to stream binary frames.
func (b *Board) Start(ctx context.Context) error {
	b.lock.Lock()
	if b.streaming {
		b.lock.Unlock()
		return nil
	}
	err := b.write(wire.CmdStartStream)
	if err == nil {
		b.streaming = true
		b.stalls = 0
		b.StallBackOff.Reset()
	}
	b.lock.Unlock()
	if err != nil {
		return err
	}
	b.decoder.Reset()
	if b.DrainOnStart {
		line, err := b.readLine(ctx)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		glog.V(2).Infof("board: %s", line)
	}
	glog.Infof("board streaming")
	return nil
}

// Stop asks the board to stop streaming. It must not be called while
// Stream is running, cancel the context of Stream instead.
func (b *Board) Stop() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.streaming {
		return nil
	}
	b.streaming = false
	cmds := append([]wire.Command{wire.CmdStopStream}, b.pending...)
	b.pending = nil
	b.decoder.Reset()
	glog.Infof("board stopped")
	return b.write(cmds...)
}

// Close stops streaming and closes the port.
func (b *Board) Close() error {
	if err := b.Stop(); err != nil {
		glog.Warningf("stop on close: %v", err)
	}
	return b.port.Close()
}

// Send writes a command, or queues it until the current frame completes.
func (b *Board) Send(cmd wire.Command) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.streaming {
		b.pending = append(b.pending, cmd)
		return nil
	}
	return b.write(cmd)
}

// SetChannel powers a channel on or off, channels are numbered from 1.
func (b *Board) SetChannel(ch int, on bool) error {
	cmd, err := wire.ChannelCommand(ch, on)
	if err != nil {
		return err
	}
	return b.Send(cmd)
}

// SetFilters toggles the on-board filters.
func (b *Board) SetFilters(on bool) error {
	return b.Send(wire.FilterCommand(on))
}

// SetLeadOff toggles lead-off detection of one input of a channel.
func (b *Board) SetLeadOff(ch int, polarity wire.LeadOffPolarity, on bool) error {
	cmd, err := wire.LeadOffCommand(ch, polarity, on)
	if err != nil {
		return err
	}
	return b.Send(cmd)
}

// Next decodes one sample. Queued commands are written before the next
// frame is read.
func (b *Board) Next(ctx context.Context) (*wire.Sample, error) {
	if !b.Streaming() {
		return nil, ErrNotStreaming
	}
	if err := b.flush(); err != nil {
		return nil, err
	}
	s, err := b.decoder.Next(ctx)
	if s != nil || errors.Is(err, wire.ErrSequence) {
		b.lock.Lock()
		b.stalls = 0
		b.lock.Unlock()
		b.StallBackOff.Reset()
	}
	return s, err
}

// Stream starts streaming and passes every sample to h until ctx is
// done or an error occurs. Streaming is stopped on return.
func (b *Board) Stream(ctx context.Context, h wire.SampleHandler) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := b.Stop(); err != nil {
			glog.Warningf("stop: %v", err)
		}
	}()
	for {
		s, err := b.Next(ctx)
		if err != nil {
			return err
		}
		if err = h.HandleSample(ctx, s); err != nil {
			return err
		}
	}
}

func (b *Board) handleStall(ctx context.Context, e *wire.StallError) error {
	b.lock.Lock()
	b.stalls++
	stalls := b.stalls
	if b.MaxStalls > 0 && stalls > b.MaxStalls {
		b.lock.Unlock()
		glog.Warningf("device stalled %d times, giving up", stalls)
		return e
	}
	glog.Warningf("device appears to be stalled (%v), restarting", e)
	// no frame is in progress while searching for a start marker.
	cmds := append([]wire.Command{wire.CmdStartStream}, b.pending...)
	b.pending = nil
	err := b.write(cmds...)
	b.lock.Unlock()
	if err != nil {
		return err
	}
	pause := b.StallBackOff.NextBackOff()
	if pause == backoff.Stop {
		return e
	}
	return sleep(ctx, pause)
}

func (b *Board) flush() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	cmds := b.pending
	b.pending = nil
	return b.write(cmds...)
}

// write must be called with lock held.
func (b *Board) write(cmds ...wire.Command) error {
	buf := make([]byte, len(cmds))
	for n, cmd := range cmds {
		buf[n] = byte(cmd)
		glog.V(4).Infof("board command %s", cmd)
	}
	if _, err := b.port.Write(buf); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// readLine reads one text line, retrying on starvation.
func (b *Board) readLine(ctx context.Context) (string, error) {
	var line []byte
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := b.reader.ReadBytes('\n')
		line = append(line, chunk...)
		if err == nil {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		if !wire.IsStarved(err) {
			return "", err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

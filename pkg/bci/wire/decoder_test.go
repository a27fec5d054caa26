package wire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedSource returns chunks in order. A nil chunk is an empty read,
// optionally with starveErr.
type scriptedSource struct {
	chunks    [][]byte
	starveErr error
	err       error
	curr      []byte
	reads     int
}

func (s *scriptedSource) Read(p []byte) (int, error) {
	s.reads++
	for len(s.curr) == 0 {
		if len(s.chunks) == 0 {
			if s.err != nil {
				return 0, s.err
			}
			return 0, io.EOF
		}
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		if chunk == nil {
			return 0, s.starveErr
		}
		s.curr = chunk
	}
	n := copy(p, s.curr)
	s.curr = s.curr[n:]
	return n, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func starve(n int) [][]byte {
	return make([][]byte, n)
}

func chunks(parts ...[][]byte) [][]byte {
	var all [][]byte
	for _, p := range parts {
		all = append(all, p...)
	}
	return all
}

func one(b []byte) [][]byte {
	return [][]byte{b}
}

func garbage(n int) []byte {
	return bytes.Repeat([]byte{0x01}, n)
}

var testAux = [AuxCount]int16{1, 32767, -1}

func testFrame(id uint8, n int) []byte {
	return EncodeFrame(id, counts(n, int32(id)), testAux)
}

func badFrame(id uint8, n int) []byte {
	b := testFrame(id, n)
	b[len(b)-1] = 0x00
	return b
}

func TestDecoderValidFrame(t *testing.T) {
	d := NewDecoder(bytes.NewReader(testFrame(42, DefaultChannelCount)), nil)
	s, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(42), s.PacketID)
	require.Len(t, s.Channels, DefaultChannelCount)
	require.Equal(t, testAux, s.Aux)
	require.Equal(t, expectSample(42, counts(DefaultChannelCount, 42), testAux), s)

	_, err = d.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, Stats{Samples: 1}, d.Stats())
}

func TestDecoderChannelCounts(t *testing.T) {
	for _, n := range []int{1, 4, 8, 16} {
		d := NewDecoder(bytes.NewReader(testFrame(1, n)), NewParser(n, DefaultScaleFactor))
		s, err := d.Next(context.Background())
		require.NoError(t, err)
		require.Len(t, s.Channels, n)
	}
}

func TestDecoderGarbageWithinBudget(t *testing.T) {
	src := &scriptedSource{chunks: chunks(one(garbage(5)), one(testFrame(1, 8)))}
	d := NewDecoder(src, nil)
	d.SkipBudget = 5
	s, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(1), s.PacketID)
	require.Equal(t, uint64(5), d.Stats().SkippedBytes)
	require.Zero(t, d.Stats().Stalls)
}

func TestDecoderStallWithoutHandler(t *testing.T) {
	src := &scriptedSource{chunks: chunks(one(garbage(8)), one(testFrame(1, 8)))}
	d := NewDecoder(src, nil)
	d.SkipBudget = 5

	_, err := d.Next(context.Background())
	require.ErrorIs(t, err, ErrStalled)
	var stallErr *StallError
	require.True(t, errors.As(err, &stallErr))
	require.Equal(t, &StallError{Skipped: 6}, stallErr)

	s, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(1), s.PacketID)
	require.Equal(t, uint64(1), d.Stats().Stalls)
}

func TestDecoderStallHandler(t *testing.T) {
	var stalls []*StallError
	src := &scriptedSource{chunks: chunks(one(garbage(10)), one(testFrame(3, 8)))}
	d := NewDecoder(src, nil)
	d.SkipBudget = 3
	d.StallHandler = HandleStallFunc(func(ctx context.Context, e *StallError) error {
		stalls = append(stalls, e)
		return nil
	})
	s, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(3), s.PacketID)
	require.Equal(t, []*StallError{{Skipped: 4}, {Skipped: 4}}, stalls)
	require.Equal(t, uint64(2), d.Stats().Stalls)
}

func TestDecoderStallHandlerAbort(t *testing.T) {
	abort := errors.New("abort")
	src := &scriptedSource{chunks: chunks(one(garbage(10)), one(testFrame(3, 8)))}
	d := NewDecoder(src, nil)
	d.SkipBudget = 3
	d.StallHandler = HandleStallFunc(func(ctx context.Context, e *StallError) error {
		return abort
	})
	_, err := d.Next(context.Background())
	require.Equal(t, abort, err)
}

func TestDecoderStarvationWhileSearching(t *testing.T) {
	testCases := []struct {
		name      string
		starveErr error
	}{
		{"empty reads", nil},
		{"timeouts", timeoutErr{}},
		{"no progress", io.ErrNoProgress},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &scriptedSource{
				chunks:    chunks(starve(4), one(testFrame(9, 8))),
				starveErr: tc.starveErr,
			}
			d := NewDecoder(src, nil)
			d.SkipBudget = 3
			_, err := d.Next(context.Background())
			require.Equal(t, &StallError{Starved: 4}, err)
			s, err := d.Next(context.Background())
			require.NoError(t, err)
			require.Equal(t, uint8(9), s.PacketID)
			require.Equal(t, uint64(4), d.Stats().StarvedReads)
		})
	}
}

func TestDecoderStarvationMidFrame(t *testing.T) {
	frame := testFrame(5, 8)
	src := &scriptedSource{
		chunks: chunks(one(frame[:5]), starve(20), one(frame[5:20]), starve(20), one(frame[20:])),
	}
	d := NewDecoder(src, nil)
	d.SkipBudget = 1
	s, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, expectSample(5, counts(8, 5), testAux), s)
	require.Zero(t, d.Stats().Stalls)
}

func TestDecoderResync(t *testing.T) {
	var framingErrs []*FramingError
	src := &scriptedSource{chunks: chunks(one(badFrame(1, 8)), one(testFrame(2, 8)))}
	d := NewDecoder(src, nil)
	d.Notifier = FramingErrorFunc(func(ctx context.Context, e *FramingError) {
		framingErrs = append(framingErrs, e)
	})
	s, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(2), s.PacketID)
	require.Equal(t, []*FramingError{{Expected: EndMarker, Actual: 0x00, PacketID: 1}}, framingErrs)
	require.Equal(t, Stats{Samples: 1, FramingErrors: 1}, d.Stats())
}

func TestDecoderFramingStorm(t *testing.T) {
	t.Run("consecutive", func(t *testing.T) {
		src := &scriptedSource{chunks: chunks(one(badFrame(1, 8)), one(badFrame(2, 8)), one(badFrame(3, 8)))}
		d := NewDecoder(src, nil)
		d.MaxFramingErrors = 2
		_, err := d.Next(context.Background())
		require.ErrorIs(t, err, ErrFramingStorm)
		var storm *FramingStormError
		require.True(t, errors.As(err, &storm))
		require.Equal(t, 3, storm.Count)
		require.Equal(t, uint8(3), storm.Last.PacketID)
	})
	t.Run("interrupted by good frames", func(t *testing.T) {
		src := &scriptedSource{chunks: chunks(
			one(badFrame(1, 8)), one(badFrame(2, 8)), one(testFrame(3, 8)),
			one(badFrame(4, 8)), one(badFrame(5, 8)), one(testFrame(6, 8)),
		)}
		d := NewDecoder(src, nil)
		d.MaxFramingErrors = 2
		for _, id := range []uint8{3, 6} {
			s, err := d.Next(context.Background())
			require.NoError(t, err)
			require.Equal(t, id, s.PacketID)
		}
	})
	t.Run("channel count mismatch", func(t *testing.T) {
		var stream []byte
		for id := uint8(0); id < 10; id++ {
			stream = append(stream, testFrame(id, 4)...)
		}
		d := NewDecoder(bytes.NewReader(stream), NewParser(8, DefaultScaleFactor))
		d.MaxFramingErrors = 3
		_, err := d.Next(context.Background())
		require.ErrorIs(t, err, ErrFramingStorm)
	})
}

func TestDecoderChunkedFrames(t *testing.T) {
	f1, f2 := testFrame(10, 8), testFrame(11, 8)
	stream := append(append([]byte{}, f1...), f2...)
	src := &scriptedSource{chunks: chunks(
		one(stream[:7]), starve(2), one(stream[7:40]), starve(1), one(stream[40:]),
	)}
	d := NewDecoder(src, nil)
	s1, err := d.Next(context.Background())
	require.NoError(t, err)
	s2, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, expectSample(10, counts(8, 10), testAux), s1)
	require.Equal(t, expectSample(11, counts(8, 11), testAux), s2)
	require.True(t, d.Parser().Searching())
}

func TestDecoderSequence(t *testing.T) {
	testCases := []struct {
		name   string
		mode   SequenceMode
		ids    []uint8
		gaps   uint64
		failAt int
	}{
		{"ignore", SequenceIgnore, []uint8{1, 2, 4, 5}, 0, -1},
		{"warn", SequenceWarn, []uint8{1, 2, 4, 5}, 1, -1},
		{"strict", SequenceStrict, []uint8{1, 2, 4, 5}, 1, 2},
		{"strict wraps", SequenceStrict, []uint8{254, 255, 0, 1}, 0, -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stream []byte
			for _, id := range tc.ids {
				stream = append(stream, testFrame(id, 8)...)
			}
			d := NewDecoder(bytes.NewReader(stream), nil)
			d.Sequence = tc.mode
			for n, id := range tc.ids {
				s, err := d.Next(context.Background())
				if n == tc.failAt {
					require.ErrorIs(t, err, ErrSequence)
					var seqErr *SequenceError
					require.True(t, errors.As(err, &seqErr))
					require.Equal(t, tc.ids[n-1]+1, seqErr.Expected)
					require.Equal(t, id, seqErr.Actual)
					require.Equal(t, id, seqErr.Sample.PacketID)
					continue
				}
				require.NoError(t, err)
				require.Equal(t, id, s.PacketID)
			}
			require.Equal(t, tc.gaps, d.Stats().SequenceGaps)
		})
	}
}

func TestParseSequenceMode(t *testing.T) {
	for s, expected := range map[string]SequenceMode{
		"":       SequenceIgnore,
		"ignore": SequenceIgnore,
		"warn":   SequenceWarn,
		"strict": SequenceStrict,
	} {
		mode, err := ParseSequenceMode(s)
		require.NoError(t, err)
		require.Equal(t, expected, mode)
	}
	_, err := ParseSequenceMode("sometimes")
	require.Error(t, err)
}

func TestDecoderConnectionFailure(t *testing.T) {
	closed := errors.New("port closed")
	src := &scriptedSource{chunks: one(testFrame(1, 8)[:10]), err: closed}
	d := NewDecoder(src, nil)
	s, err := d.Next(context.Background())
	require.Nil(t, s)
	require.ErrorIs(t, err, closed)
	require.True(t, d.Parser().Searching())
}

func TestDecoderContext(t *testing.T) {
	t.Run("canceled before", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := NewDecoder(bytes.NewReader(testFrame(1, 8)), nil)
		_, err := d.Next(ctx)
		require.Equal(t, context.Canceled, err)
	})
	t.Run("canceled while starving", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		src := &scriptedSource{chunks: starve(2 * DefaultSkipBudget)}
		d := NewDecoder(src, nil)
		d.StallHandler = HandleStallFunc(func(ctx context.Context, e *StallError) error {
			cancel()
			return nil
		})
		_, err := d.Next(ctx)
		require.Equal(t, context.Canceled, err)
		require.Equal(t, DefaultSkipBudget+2, src.reads)
	})
}

func TestDecoderRun(t *testing.T) {
	var stream []byte
	for id := uint8(0); id < 3; id++ {
		stream = append(stream, testFrame(id, 8)...)
	}

	t.Run("until EOF", func(t *testing.T) {
		var ids []uint8
		d := NewDecoder(bytes.NewReader(stream), nil)
		err := d.Run(context.Background(), HandleSampleFunc(func(ctx context.Context, s *Sample) error {
			ids = append(ids, s.PacketID)
			return nil
		}))
		require.ErrorIs(t, err, io.EOF)
		require.Equal(t, []uint8{0, 1, 2}, ids)
	})
	t.Run("handler error", func(t *testing.T) {
		stop := errors.New("stop")
		d := NewDecoder(bytes.NewReader(stream), nil)
		err := d.Run(context.Background(), HandleSampleFunc(func(ctx context.Context, s *Sample) error {
			return stop
		}))
		require.Equal(t, stop, err)
		require.Equal(t, uint64(1), d.Stats().Samples)
	})
}

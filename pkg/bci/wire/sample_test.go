package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScaleFactor(t *testing.T) {
	expected := 4.5 / 8388607 / 24000000
	require.InEpsilon(t, expected, DefaultScaleFactor, 1e-15)
	require.InEpsilon(t, expected, ScaleFactor(DefaultVref, DefaultGain), 1e-15)
	require.InEpsilon(t, 2*expected, ScaleFactor(DefaultVref, DefaultGain/2), 1e-15)
}

func TestDecodeChannel(t *testing.T) {
	testCases := []struct {
		name   string
		in     [3]byte
		expect int32
	}{
		{"zero", [3]byte{0, 0, 0}, 0},
		{"one", [3]byte{0, 0, 1}, 1},
		{"max positive", [3]byte{0x7f, 0xff, 0xff}, 8388607},
		{"min negative", [3]byte{0x80, 0, 0}, -8388608},
		{"minus one", [3]byte{0xff, 0xff, 0xff}, -1},
		{"msb 0x7f is positive", [3]byte{0x7f, 0, 0}, 0x7f0000},
		{"mixed", [3]byte{0x12, 0x34, 0x56}, 0x123456},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, DecodeChannel(tc.in[0], tc.in[1], tc.in[2]))
		})
	}
}

func TestChannelScaling(t *testing.T) {
	require.Equal(t, DefaultScaleFactor, float64(DecodeChannel(0, 0, 1))*DefaultScaleFactor)
	maxPos := float64(DecodeChannel(0x7f, 0xff, 0xff)) * DefaultScaleFactor
	require.InEpsilon(t, DefaultVref/(DefaultGain*1000000), maxPos, 1e-12)
	minNeg := float64(DecodeChannel(0x80, 0, 0)) * DefaultScaleFactor
	require.Less(t, minNeg, 0.0)
	require.InEpsilon(t, -maxPos, minNeg, 1e-6)
}

func TestDecodeAux(t *testing.T) {
	require.Equal(t, int16(1), DecodeAux(0x01, 0x00))
	require.Equal(t, int16(32767), DecodeAux(0xff, 0x7f))
	require.Equal(t, int16(-32768), DecodeAux(0x00, 0x80))
	require.Equal(t, int16(-1), DecodeAux(0xff, 0xff))
}

func TestEncodeFrame(t *testing.T) {
	b := EncodeFrame(7, []int32{1, -1}, [AuxCount]int16{1, 32767, -2})
	require.Equal(t, []byte{
		StartMarker, 7,
		0x00, 0x00, 0x01,
		0xff, 0xff, 0xff,
		0x01, 0x00, 0xff, 0x7f, 0xfe, 0xff,
		EndMarker,
	}, b)
	require.Len(t, EncodeFrame(0, make([]int32, 8), [AuxCount]int16{}), FrameSize(8))
	require.Equal(t, 33, FrameSize(8))
}

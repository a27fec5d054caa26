package wire

import "fmt"

// Frame markers.
const (
	StartMarker byte = 0xA0
	EndMarker   byte = 0xC0
)

// AuxCount is the number of aux values in every frame.
const AuxCount = 3

// DefaultChannelCount is the channel count of the 8-channel board.
const DefaultChannelCount = 8

// Hardware constants of the ADS1299 front-end.
const (
	DefaultVref = 4.5
	DefaultGain = 24.0
)

// DefaultScaleFactor converts raw counts to microvolts with default vref and gain.
var DefaultScaleFactor = ScaleFactor(DefaultVref, DefaultGain)

// ScaleFactor computes microvolts per ADC count.
func ScaleFactor(vref, gain float64) float64 {
	return vref / float64(1<<23-1) / (gain * 1000000.)
}

// FrameSize returns the total number of bytes of a frame with n channels.
func FrameSize(n int) int {
	return 2 + 3*n + 2*AuxCount + 1
}

// DecodeChannel reconstructs a 24-bit two's complement big-endian value.
func DecodeChannel(b0, b1, b2 byte) int32 {
	var prefix byte
	if b0 >= 0x80 {
		prefix = 0xff
	}
	return int32(uint32(prefix)<<24 | uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2))
}

// DecodeAux reconstructs a 16-bit little-endian signed value.
func DecodeAux(lo, hi byte) int16 {
	return int16(uint16(lo) | uint16(hi)<<8)
}

// Sample is one decoded frame.
type Sample struct {
	PacketID uint8
	// Channels are readings in microvolts, len is the configured channel count.
	Channels []float64
	Aux      [AuxCount]int16
}

// String implements fmt.Stringer.
func (s *Sample) String() string {
	return fmt.Sprintf("#%d %v aux=%v", s.PacketID, s.Channels, s.Aux)
}

// EncodeFrame encodes raw channel counts and aux values into a wire frame.
// Counts are truncated to 24 bits.
func EncodeFrame(packetID uint8, counts []int32, aux [AuxCount]int16) []byte {
	b := make([]byte, 0, FrameSize(len(counts)))
	b = append(b, StartMarker, packetID)
	for _, c := range counts {
		b = append(b, byte(c>>16), byte(c>>8), byte(c))
	}
	for _, a := range aux {
		b = append(b, byte(a), byte(a>>8))
	}
	return append(b, EndMarker)
}

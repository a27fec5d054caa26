// Package wire decodes the binary sample stream of an OpenBCI style board.
//
// Each frame on the wire is:
//
//	[0xA0][packet id][3 bytes x N channels][3 x int16 aux][0xC0]
//
// Channel values are 24-bit two's complement, most significant byte first.
// Aux values are 16-bit little-endian, an asymmetry inherited from the
// firmware which must be kept for compatibility.
//
// The stream carries no length prefix and no checksum. Frames are located
// by the start/end markers only, and a corrupted frame is dropped and the
// parser searches for the next start marker.
package wire

package wire

// Phase is the decoding phase of a Parser.
type Phase int

// Phases of frame decoding.
const (
	PhaseAwaitingStart Phase = iota
	PhaseReadingChannels
	PhaseReadingAux
	PhaseAwaitingEnd
)

var phaseNames = []string{
	"AwaitingStart",
	"ReadingChannels",
	"ReadingAux",
	"AwaitingEnd",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "Unknown"
}

type parseState int

const (
	stateStart    parseState = iota // waiting for start marker
	statePacketID                   // start marker found, waiting for packet id
	stateChannels                   // reading 3-byte channel values
	stateAux                        // reading 2-byte aux values
	stateEnd                        // waiting for end marker
)

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	Phase   Phase
	// Skipped is set when the byte was discarded while searching for start.
	Skipped bool
	Sample  *Sample
	Framing *FramingError
}

// Parser is the frame state machine. It consumes one byte at a time and
// never blocks, so it can be driven by any byte source.
type Parser struct {
	channelCount int
	scale        float64

	state      parseState
	packetID   uint8
	channels   []float64
	aux        [AuxCount]int16
	auxLen     int
	pending    [3]byte
	pendingLen int
}

// NewParser creates a Parser for n channels and the scale factor converting
// counts to microvolts. Non-positive values select the defaults.
func NewParser(n int, scale float64) *Parser {
	if n <= 0 {
		n = DefaultChannelCount
	}
	if scale <= 0 {
		scale = DefaultScaleFactor
	}
	return &Parser{channelCount: n, scale: scale}
}

// ChannelCount returns the number of channels per frame.
func (p *Parser) ChannelCount() int {
	return p.channelCount
}

// Scale returns microvolts per count.
func (p *Parser) Scale() float64 {
	return p.scale
}

// Phase gets the current phase.
func (p *Parser) Phase() Phase {
	switch p.state {
	case stateChannels:
		return PhaseReadingChannels
	case stateAux:
		return PhaseReadingAux
	case stateEnd:
		return PhaseAwaitingEnd
	}
	return PhaseAwaitingStart
}

// Searching indicates the parser is looking for a start marker and
// no frame is in progress.
func (p *Parser) Searching() bool {
	return p.state == stateStart
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state = stateStart
	p.packetID = 0
	p.channels = nil
	p.aux = [AuxCount]int16{}
	p.auxLen, p.pendingLen = 0, 0
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	pr.Skipped, pr.Sample, pr.Framing = p.parseByte(b)
	pr.Phase = p.Phase()
	return
}

func (p *Parser) parseByte(b byte) (skipped bool, sample *Sample, ferr *FramingError) {
	switch p.state {
	case stateStart:
		if b != StartMarker {
			return true, nil, nil
		}
		p.state = statePacketID
	case statePacketID:
		p.packetID = b
		p.channels = make([]float64, 0, p.channelCount)
		p.state = stateChannels
	case stateChannels:
		p.pending[p.pendingLen] = b
		if p.pendingLen++; p.pendingLen < 3 {
			return
		}
		p.pendingLen = 0
		count := DecodeChannel(p.pending[0], p.pending[1], p.pending[2])
		p.channels = append(p.channels, float64(count)*p.scale)
		if len(p.channels) == p.channelCount {
			p.state = stateAux
		}
	case stateAux:
		p.pending[p.pendingLen] = b
		if p.pendingLen++; p.pendingLen < 2 {
			return
		}
		p.pendingLen = 0
		p.aux[p.auxLen] = DecodeAux(p.pending[0], p.pending[1])
		if p.auxLen++; p.auxLen == AuxCount {
			p.state = stateEnd
		}
	case stateEnd:
		if b == EndMarker {
			sample = &Sample{PacketID: p.packetID, Channels: p.channels, Aux: p.aux}
		} else {
			ferr = &FramingError{Expected: EndMarker, Actual: b, PacketID: p.packetID}
		}
		p.Reset()
	}
	return
}

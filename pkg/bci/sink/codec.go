package sink

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

// Record is the encoded form of a sample.
type Record struct {
	PacketID uint8     `msgpack:"id" json:"id"`
	Channels []float64 `msgpack:"ch" json:"ch"`
	Aux      []int16   `msgpack:"aux" json:"aux"`
	// Time is nanoseconds since epoch when the sample was decoded.
	Time int64 `msgpack:"t" json:"t"`
}

// EncodeRecord encodes a Record.
func EncodeRecord(rec *Record) ([]byte, error) {
	return msgpack.Marshal(rec)
}

// DecodeRecord decodes a Record.
func DecodeRecord(data []byte, rec *Record) error {
	return msgpack.Unmarshal(data, rec)
}

// EncodeSample encodes a sample with its timestamp.
func EncodeSample(s *wire.Sample, t time.Time) ([]byte, error) {
	return EncodeRecord(&Record{
		PacketID: s.PacketID,
		Channels: s.Channels,
		Aux:      s.Aux[:],
		Time:     t.UnixNano(),
	})
}

// DecodeSample decodes a payload created by EncodeSample.
func DecodeSample(data []byte) (*wire.Sample, time.Time, error) {
	var rec Record
	if err := DecodeRecord(data, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode sample: %w", err)
	}
	if len(rec.Aux) != wire.AuxCount {
		return nil, time.Time{}, fmt.Errorf("decode sample: expect %d aux values, got %d", wire.AuxCount, len(rec.Aux))
	}
	s := &wire.Sample{PacketID: rec.PacketID, Channels: rec.Channels}
	copy(s.Aux[:], rec.Aux)
	return s, time.Unix(0, rec.Time), nil
}

// RecordWriter writes encoded samples to a stream.
// Each record is prefixed by 4-byte (little-endian) length.
type RecordWriter struct {
	W   io.Writer
	Now func() time.Time

	lock sync.Mutex
}

// NewRecordWriter creates a RecordWriter.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{W: w, Now: time.Now}
}

// HandleSample implements wire.SampleHandler.
func (w *RecordWriter) HandleSample(ctx context.Context, s *wire.Sample) error {
	data, err := EncodeSample(s, w.Now())
	if err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	if err = binary.Write(w.W, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.W.Write(data)
	return err
}

// MaxRecordSize bounds the length header accepted by RecordReader.
const MaxRecordSize = 1 << 20

// RecordReader reads samples written by RecordWriter.
type RecordReader struct {
	R io.Reader
}

// Next reads one sample, io.EOF at the end of stream.
func (r *RecordReader) Next() (*wire.Sample, time.Time, error) {
	var size uint32
	if err := binary.Read(r.R, binary.LittleEndian, &size); err != nil {
		return nil, time.Time{}, err
	}
	if size > MaxRecordSize {
		return nil, time.Time{}, fmt.Errorf("invalid record size %d", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r.R, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, time.Time{}, fmt.Errorf("truncated record: %w", err)
	}
	return DecodeSample(data)
}

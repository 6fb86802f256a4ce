package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrChecksumMismatch = errors.New("wal checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	// MaxPayloadSize rejects larger records. Zero means unlimited.
	MaxPayloadSize int
}

// Reader decodes WAL records from one segment.
type Reader struct {
	r       *bufio.Reader
	opts    ReaderOptions
	offset  int64
	header  [recordHeaderSize]byte
	sum     [recordChecksumSize]byte
	payload []byte
}

func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{r: bufio.NewReader(r), opts: opts}
}

// Offset is the byte position of the next record.
func (r *Reader) Offset() int64 { return r.offset }

// Next returns the next record. It returns io.EOF at a clean end of input and
// an error matching io.ErrUnexpectedEOF for a torn trailing record.
func (r *Reader) Next() (Record, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	switch {
	case errors.Is(err, io.EOF) && n == 0:
		return Record{}, io.EOF
	case err != nil:
		return Record{}, r.torn(err)
	}

	h, err := decodeRecordHeader(r.header[:])
	if err != nil {
		return Record{}, fmt.Errorf("offset %d: %w", r.offset, err)
	}
	if limit := r.opts.MaxPayloadSize; limit > 0 && h.payloadLen > uint32(limit) {
		return Record{}, fmt.Errorf("offset %d: %w: %d bytes", r.offset, ErrPayloadTooLarge, h.payloadLen)
	}

	if cap(r.payload) < int(h.payloadLen) {
		r.payload = make([]byte, h.payloadLen)
	}
	r.payload = r.payload[:h.payloadLen]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return Record{}, r.torn(err)
	}
	if _, err := io.ReadFull(r.r, r.sum[:]); err != nil {
		return Record{}, r.torn(err)
	}
	if !r.opts.DisableChecksum && checksum(r.header[:], r.payload) != binary.LittleEndian.Uint32(r.sum[:]) {
		return Record{}, fmt.Errorf("offset %d seq %d: %w", r.offset, h.seq, ErrChecksumMismatch)
	}

	rec, err := decodeRecord(h, r.payload)
	if err != nil {
		return Record{}, fmt.Errorf("offset %d seq %d: %w", r.offset, h.seq, err)
	}
	r.offset += int64(recordHeaderSize) + int64(h.payloadLen) + recordChecksumSize
	return rec, nil
}

func (r *Reader) torn(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("offset %d: %w", r.offset, io.ErrUnexpectedEOF)
	}
	return err
}

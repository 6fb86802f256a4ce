package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 40
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'M', 'D', 'R', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("wal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("wal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("wal invalid header size")
)

// Record is one decoded WAL entry.
type Record struct {
	// Seq is assigned by the writer and grows by one per record.
	Seq     uint64
	TsRecv  int64
	Message schema.Message
}

type recordHeader struct {
	kind       schema.MessageKind
	schemaVer  uint8
	source     uint16
	payloadLen uint32
	seq        uint64
	tsEvent    int64
	tsRecv     int64
}

func headerOf(seq uint64, msg schema.Message, payloadLen int) recordHeader {
	h := recordHeader{
		kind:       msg.Kind,
		schemaVer:  schema.SchemaVersion,
		payloadLen: uint32(payloadLen),
		seq:        seq,
		tsEvent:    msg.Ts(),
		tsRecv:     msg.Ts(),
	}
	switch msg.Kind {
	case schema.MessageEvent:
		h.source = msg.Event.Source
		h.tsRecv = msg.Event.TsRecv
	case schema.MessageGap:
		h.source = msg.Gap.Source
	case schema.MessageConnectivity:
		h.source = msg.Connectivity.Source
	}
	return h
}

// Layout (little endian):
//
//	[0:4] magic [4:6] version [6:8] header size [8] kind [9] schema version
//	[10:12] source [12:16] payload length [16:24] seq [24:32] ts event [32:40] ts recv
func encodeHeader(dst []byte, h recordHeader) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	dst[8] = byte(h.kind)
	dst[9] = h.schemaVer
	binary.LittleEndian.PutUint16(dst[10:12], h.source)
	binary.LittleEndian.PutUint32(dst[12:16], h.payloadLen)
	binary.LittleEndian.PutUint64(dst[16:24], h.seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(h.tsEvent))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(h.tsRecv))
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (recordHeader, error) {
	if len(src) < recordHeaderSize {
		return recordHeader{}, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return recordHeader{}, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return recordHeader{}, ErrUnsupportedRecordVer
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return recordHeader{}, ErrInvalidRecordHeaderSize
	}
	return recordHeader{
		kind:       schema.MessageKind(src[8]),
		schemaVer:  src[9],
		source:     binary.LittleEndian.Uint16(src[10:12]),
		payloadLen: binary.LittleEndian.Uint32(src[12:16]),
		seq:        binary.LittleEndian.Uint64(src[16:24]),
		tsEvent:    int64(binary.LittleEndian.Uint64(src[24:32])),
		tsRecv:     int64(binary.LittleEndian.Uint64(src[32:40])),
	}, nil
}

func decodeRecord(h recordHeader, payload []byte) (Record, error) {
	msg, err := codec.DecodeMessage(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{Seq: h.seq, TsRecv: h.tsRecv, Message: msg}, nil
}

package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// RecordHeaderSize is the size of the record length prefix in bytes.
const RecordHeaderSize = 4

// MaxRecordPayload returns the largest payload a record buffer of size n holds.
func MaxRecordPayload(n int) int {
	if n <= RecordHeaderSize {
		return 0
	}
	return n - RecordHeaderSize
}

// recordFramer reads and writes length-prefixed records through fixed
// buffers. A record returned by readRecord aliases the read buffer and is
// valid until the next call.
type recordFramer struct {
	rw   io.ReadWriter
	rbuf []byte
	wbuf []byte
}

func newRecordFramer(rw io.ReadWriter, readBuf, writeBuf []byte) *recordFramer {
	return &recordFramer{rw: rw, rbuf: readBuf, wbuf: writeBuf}
}

func (f *recordFramer) readRecord() ([]byte, error) {
	if len(f.rbuf) <= RecordHeaderSize {
		return nil, ErrRecordTooLarge
	}
	if _, err := io.ReadFull(f.rw, f.rbuf[:RecordHeaderSize]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrRecordTruncated
		}
		return nil, fmt.Errorf("read record length: %w", err)
	}

	length := binary.BigEndian.Uint32(f.rbuf[:RecordHeaderSize])
	if length == 0 {
		return nil, ErrRecordEmpty
	}
	if uint64(length) > uint64(MaxRecordPayload(len(f.rbuf))) {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, length, MaxRecordPayload(len(f.rbuf)))
	}

	payload := f.rbuf[RecordHeaderSize : RecordHeaderSize+int(length)]
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrRecordTruncated
		}
		return nil, fmt.Errorf("read record payload: %w", err)
	}
	return payload, nil
}

func (f *recordFramer) writeRecord(data []byte) error {
	if len(data) == 0 {
		return ErrRecordEmpty
	}
	if len(data) > MaxRecordPayload(len(f.wbuf)) {
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(data), MaxRecordPayload(len(f.wbuf)))
	}

	binary.BigEndian.PutUint32(f.wbuf[:RecordHeaderSize], uint32(len(data)))
	n := copy(f.wbuf[RecordHeaderSize:], data)
	if _, err := f.rw.Write(f.wbuf[:RecordHeaderSize+n]); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// AppendRecord appends data as a length-prefixed record to dst.
func AppendRecord(dst, data []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

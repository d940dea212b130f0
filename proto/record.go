package proto

import (
	"bytes"
	"errors"
	"io"
)

// RecordLen is the size of every client record: 1 byte type, 2x 4 byte integers.
const RecordLen = 9

const (
	readChunk     = 1024
	maxEmptyReads = 100
)

// ErrNoReader is returned by ReadRecord on a Decoder that was not created with NewDecoder.
var ErrNoReader = errors.New("decoder has no reader")

// Record is one raw, fixed-size protocol unit.
type Record [RecordLen]byte

// Message parses the record.
func (r Record) Message() (Message, error) {
	return Parse(r[:])
}

// Decoder splits a byte stream into Records. Records carry no length prefix,
// so framing relies only on the fixed record size.
//
// The zero value can be fed with Write and drained with Next. ReadRecord needs
// the reader given to NewDecoder.
type Decoder struct {
	r       io.Reader
	buf     bytes.Buffer // Bytes read but not yet returned as a Record.
	scratch []byte
	err     error // Sticky read error. Returned once buf no longer holds a full record.
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		scratch: make([]byte, readChunk),
	}
}

// Write appends p to the decode buffer.
func (d *Decoder) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

// Next removes and returns the first Record in the buffer. ok is false if the
// buffer holds fewer than RecordLen bytes, meaning more data is needed.
func (d *Decoder) Next() (rec Record, ok bool) {
	if d.buf.Len() < RecordLen {
		return rec, false
	}
	// bytes.Buffer compacts the unread remainder on the next Write that needs room.
	copy(rec[:], d.buf.Next(RecordLen))
	return rec, true
}

// Buffered returns the number of buffered bytes that do not yet form a Record.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// ReadRecord returns the next Record, reading from the underlying reader until
// one is complete. Records already buffered are returned before any read
// error. At the end of the stream ReadRecord returns io.EOF and any trailing
// partial record is dropped; Buffered reports its size.
func (d *Decoder) ReadRecord() (Record, error) {
	emptyReads := 0
	for {
		if rec, ok := d.Next(); ok {
			return rec, nil
		}
		if d.err != nil {
			return Record{}, d.err
		}
		if d.r == nil {
			return Record{}, ErrNoReader
		}
		if d.scratch == nil {
			d.scratch = make([]byte, readChunk)
		}

		n, err := d.r.Read(d.scratch)
		d.buf.Write(d.scratch[:n])
		if err != nil {
			d.err = err
			continue
		}
		if n == 0 {
			emptyReads++
			if emptyReads >= maxEmptyReads {
				d.err = io.ErrNoProgress
			}
			continue
		}
		emptyReads = 0
	}
}

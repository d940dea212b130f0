// Package proto implements the binary wire format of the Means to an End protocol.
//
// Clients send fixed-size 9 byte records. The first byte is the message type,
// followed by two big-endian, two's complement signed 32-bit integers. The only
// server response is the 4 byte mean price sent back for each query.
package proto

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type MsgType byte

const (
	MsgTypeInsert MsgType = 0x49 // 'I'
	MsgTypeQuery  MsgType = 0x51 // 'Q'
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeInsert:
		return "Insert"
	case MsgTypeQuery:
		return "Query"
	default:
		return fmt.Sprintf("MsgType(%#02x)", byte(t))
	}
}

// MeanLen is the size of a query response.
const MeanLen = 4

var (
	ErrRecordLen     = errors.New("record must be 9 bytes")
	ErrInvalidOpcode = errors.New("invalid opcode")
	ErrMeanLen       = errors.New("mean must be 4 bytes")
)

// InvalidOpcodeError is returned when the first byte of a record is neither 'I' nor 'Q'. It matches ErrInvalidOpcode with errors.Is.
type InvalidOpcodeError struct {
	Opcode byte
}

func (e *InvalidOpcodeError) Error() string {
	return fmt.Sprintf("invalid opcode: %#02x", e.Opcode)
}

func (e *InvalidOpcodeError) Is(target error) bool {
	return target == ErrInvalidOpcode
}

// Message is a parsed record, either an Insert or a Query.
type Message interface {
	Type() MsgType
	encoding.BinaryMarshaler
	fmt.Stringer
}

// Insert records a price at a timestamp. The server never responds to an Insert.
type Insert struct {
	Timestamp int32
	Price     int32 // Price in pennies. May be negative.
}

// Query asks for the mean price of all inserts with MinTime <= timestamp <= MaxTime.
type Query struct {
	MinTime int32
	MaxTime int32
}

// Parse converts a single record into an Insert or a Query.
func Parse(raw []byte) (Message, error) {
	if len(raw) != RecordLen {
		return nil, fmt.Errorf("%w: got %d", ErrRecordLen, len(raw))
	}

	lhs := int32(binary.BigEndian.Uint32(raw[1:5]))
	rhs := int32(binary.BigEndian.Uint32(raw[5:9]))

	switch MsgType(raw[0]) {
	case MsgTypeInsert:
		return Insert{Timestamp: lhs, Price: rhs}, nil
	case MsgTypeQuery:
		return Query{MinTime: lhs, MaxTime: rhs}, nil
	default:
		return nil, &InvalidOpcodeError{Opcode: raw[0]}
	}
}

func (Insert) Type() MsgType { return MsgTypeInsert }

func (m Insert) MarshalBinary() ([]byte, error) {
	return encodeRecord(MsgTypeInsert, m.Timestamp, m.Price), nil
}

func (m *Insert) UnmarshalBinary(data []byte) error {
	msg, err := Parse(data)
	if err != nil {
		return err
	}
	insert, ok := msg.(Insert)
	if !ok {
		return fmt.Errorf("expected type %q, got %q", MsgTypeInsert, msg.Type())
	}
	*m = insert
	return nil
}

func (m Insert) String() string {
	return fmt.Sprintf("Insert\t%d\t%d", m.Timestamp, m.Price)
}

func (Query) Type() MsgType { return MsgTypeQuery }

func (m Query) MarshalBinary() ([]byte, error) {
	return encodeRecord(MsgTypeQuery, m.MinTime, m.MaxTime), nil
}

func (m *Query) UnmarshalBinary(data []byte) error {
	msg, err := Parse(data)
	if err != nil {
		return err
	}
	query, ok := msg.(Query)
	if !ok {
		return fmt.Errorf("expected type %q, got %q", MsgTypeQuery, msg.Type())
	}
	*m = query
	return nil
}

func (m Query) String() string {
	return fmt.Sprintf("Query\t%d\t%d", m.MinTime, m.MaxTime)
}

func encodeRecord(typ MsgType, lhs, rhs int32) []byte {
	data := make([]byte, 0, RecordLen)
	data = append(data, byte(typ))
	data = binary.BigEndian.AppendUint32(data, uint32(lhs))
	return binary.BigEndian.AppendUint32(data, uint32(rhs))
}

// Mean is the response to a Query.
type Mean int32

func (m Mean) MarshalBinary() ([]byte, error) {
	return binary.BigEndian.AppendUint32(make([]byte, 0, MeanLen), uint32(m)), nil
}

func (m *Mean) UnmarshalBinary(data []byte) error {
	if len(data) != MeanLen {
		return fmt.Errorf("%w: got %d", ErrMeanLen, len(data))
	}
	*m = Mean(int32(binary.BigEndian.Uint32(data)))
	return nil
}

// ReadMean reads a single query response from r.
func ReadMean(r io.Reader) (Mean, error) {
	var raw [MeanLen]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return 0, err
	}
	var m Mean
	err := m.UnmarshalBinary(raw[:])
	return m, err
}

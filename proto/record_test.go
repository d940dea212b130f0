package proto_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/harveysanders/meanstoend/proto"
	"github.com/stretchr/testify/require"
)

// 	        Hexadecimal:         |  Decoded:
// <-- 49 00 00 30 39 00 00 00 65 I 12345 101
// <-- 49 00 00 30 3a 00 00 00 66 I 12346 102
// <-- 49 00 00 30 3b 00 00 00 64 I 12347 100
// <-- 49 00 00 a0 00 00 00 00 05 I 40960 5
// <-- 51 00 00 30 00 00 00 40 00 Q 12288 16384
var session = []byte{
	0x49, 0x00, 0x00, 0x30, 0x39, 0x00, 0x00, 0x00, 0x65,
	0x49, 0x00, 0x00, 0x30, 0x3a, 0x00, 0x00, 0x00, 0x66,
	0x49, 0x00, 0x00, 0x30, 0x3b, 0x00, 0x00, 0x00, 0x64,
	0x49, 0x00, 0x00, 0xa0, 0x00, 0x00, 0x00, 0x00, 0x05,
	0x51, 0x00, 0x00, 0x30, 0x00, 0x00, 0x00, 0x40, 0x00,
}

func readAll(t *testing.T, d *proto.Decoder) []proto.Record {
	t.Helper()
	var recs []proto.Record
	for {
		rec, err := d.ReadRecord()
		if errors.Is(err, io.EOF) {
			return recs
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
}

func TestDecoderNext(t *testing.T) {
	var d proto.Decoder

	_, ok := d.Next()
	require.False(t, ok, "empty buffer needs more data")

	_, err := d.Write(session[:8])
	require.NoError(t, err)
	_, ok = d.Next()
	require.False(t, ok, "8 bytes is not a record")
	require.Equal(t, 8, d.Buffered())

	_, err = d.Write(session[8:12])
	require.NoError(t, err)
	rec, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, session[:9], rec[:])
	require.Equal(t, 3, d.Buffered(), "remainder is kept")

	_, err = d.Write(session[12:])
	require.NoError(t, err)
	rec, ok = d.Next()
	require.True(t, ok)
	require.Equal(t, session[9:18], rec[:])

	for i := 0; i < 3; i++ {
		rec, err := d.ReadRecord()
		require.NoError(t, err, "buffered records need no reader")
		require.Equal(t, session[18+i*9:27+i*9], rec[:])
	}
	_, err = d.ReadRecord()
	require.ErrorIs(t, err, proto.ErrNoReader)
}

func TestDecoderReadRecord(t *testing.T) {
	t.Run("whole stream in one read", func(t *testing.T) {
		d := proto.NewDecoder(bytes.NewReader(session))
		recs := readAll(t, d)
		require.Len(t, recs, 5)

		msg, err := recs[4].Message()
		require.NoError(t, err)
		require.Equal(t, proto.Query{MinTime: 12_288, MaxTime: 16_384}, msg)
	})

	t.Run("fragmentation does not change the records", func(t *testing.T) {
		want := readAll(t, proto.NewDecoder(bytes.NewReader(session)))

		oneByte := readAll(t, proto.NewDecoder(iotest.OneByteReader(bytes.NewReader(session))))
		require.Equal(t, want, oneByte)

		halves := readAll(t, proto.NewDecoder(iotest.HalfReader(bytes.NewReader(session))))
		require.Equal(t, want, halves)
	})

	t.Run("records arriving with EOF are still returned", func(t *testing.T) {
		d := proto.NewDecoder(iotest.DataErrReader(bytes.NewReader(session)))
		require.Len(t, readAll(t, d), 5)
	})

	t.Run("trailing partial record is discarded", func(t *testing.T) {
		stream := append(append([]byte{}, session[:18]...), 0x49, 0x00, 0x00)
		d := proto.NewDecoder(bytes.NewReader(stream))
		require.Len(t, readAll(t, d), 2)
		require.Equal(t, 3, d.Buffered())

		_, err := d.ReadRecord()
		require.ErrorIs(t, err, io.EOF, "EOF is sticky")
	})

	t.Run("read errors are returned after buffered records", func(t *testing.T) {
		boom := errors.New("boom")
		r := io.MultiReader(bytes.NewReader(session[:9]), iotest.ErrReader(boom))
		d := proto.NewDecoder(r)

		rec, err := d.ReadRecord()
		require.NoError(t, err)
		require.Equal(t, session[:9], rec[:])

		_, err = d.ReadRecord()
		require.ErrorIs(t, err, boom)
	})

	t.Run("reader that never makes progress", func(t *testing.T) {
		d := proto.NewDecoder(emptyReader{})
		_, err := d.ReadRecord()
		require.ErrorIs(t, err, io.ErrNoProgress)
	})
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, nil }
